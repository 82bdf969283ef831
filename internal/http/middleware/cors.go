package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// corsRequestHeaders are the request headers the upload and query clients send.
const corsRequestHeaders = "Authorization, Content-Type, Idempotency-Key, X-Filename, X-Request-Id"

// corsExposedHeaders lets browser clients read the request id, the retry hint
// on 409 upload_in_progress and the location of a new distribution.
const corsExposedHeaders = "X-Request-Id, Retry-After, Location, Idempotent-Replayed"

// MethodsFunc reports the methods a path accepts, or nil for unknown paths.
type MethodsFunc func(path string) []string

type CORSConfig struct {
	// AllowedOrigins lists browser origins; "*" allows any. Empty disables CORS.
	AllowedOrigins []string
	Methods        MethodsFunc
}

func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.ToLower(strings.TrimSpace(origin)); origin != "" {
			origins[origin] = struct{}{}
		}
	}
	_, anyOrigin := origins["*"]

	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, allowed := origins[strings.ToLower(origin)]; !allowed && !anyOrigin {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			if anyOrigin {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			requested := r.Header.Get("Access-Control-Request-Method")
			if r.Method != http.MethodOptions || requested == "" {
				w.Header().Set("Access-Control-Expose-Headers", corsExposedHeaders)
				next.ServeHTTP(w, r)
				return
			}

			var methods []string
			if cfg.Methods != nil {
				methods = cfg.Methods(r.URL.Path)
			}
			if methods == nil {
				// unknown route: let the mux answer 404
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Access-Control-Request-Method")
			if !slices.Contains(methods, strings.ToUpper(requested)) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(append(methods, http.MethodOptions), ", "))
			w.Header().Set("Access-Control-Allow-Headers", corsRequestHeaders)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
