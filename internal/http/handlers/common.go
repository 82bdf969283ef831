package handlers

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
	"github.com/iago/contact-distributor/internal/http/middleware"
	"github.com/iago/contact-distributor/internal/service"
)

const idempotencyTTL = 24 * time.Hour

var errInvalidUpload = errors.New("invalid upload")

type API struct {
	distributions  *service.DistributionService
	idempotency    *idempotencyStore
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewAPI(distributions *service.DistributionService, maxUploadBytes int64, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		distributions:  distributions,
		idempotency:    newIdempotencyStore(idempotencyTTL),
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// statusForKind maps domain error kinds to HTTP status codes.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindSchemaMissingColumns, domain.KindEncodingError, domain.KindNoAgents:
		return http.StatusUnprocessableEntity
	case domain.KindUnsupportedFileType:
		return http.StatusUnsupportedMediaType
	case domain.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.KindTimeout:
		return http.StatusRequestTimeout
	case domain.KindUploadInProgress:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (api *API) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		api.logger.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, r, status, "internal_error", "internal error")
		return
	}
	if kind == domain.KindUploadInProgress {
		w.Header().Set("Retry-After", "2")
	}
	writeError(w, r, status, string(kind), err.Error())
}

type idempotencyEntry struct {
	PayloadHash uint64
	Result      service.UploadResult
	CreatedAt   time.Time
}

type idempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	ttl     time.Duration
	now     func() time.Time
}

func newIdempotencyStore(ttl time.Duration) *idempotencyStore {
	return &idempotencyStore{
		entries: make(map[string]idempotencyEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *idempotencyStore) Get(key string) (idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if ok && s.now().UTC().Sub(entry.CreatedAt) > s.ttl {
		delete(s.entries, key)
		return idempotencyEntry{}, false
	}
	return entry, ok
}

func (s *idempotencyStore) Put(key string, payloadHash uint64, result service.UploadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for existing, entry := range s.entries {
		if now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.entries, existing)
		}
	}
	s.entries[key] = idempotencyEntry{
		PayloadHash: payloadHash,
		Result:      result,
		CreatedAt:   now,
	}
}

func hashUpload(upload service.UploadRequest) uint64 {
	hasher := fnv.New64a()
	for _, part := range [][]byte{
		[]byte(upload.Name),
		[]byte(upload.Filename),
		[]byte(upload.ContentType),
		upload.Data,
	} {
		_, _ = hasher.Write(part)
		_, _ = hasher.Write([]byte{0})
	}
	return hasher.Sum64()
}
