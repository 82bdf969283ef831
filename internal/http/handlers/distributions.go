package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/iago/contact-distributor/internal/domain"
	"github.com/iago/contact-distributor/internal/service"
)

const (
	// multipartSlack covers boundaries, part headers and the name field.
	multipartSlack = 64 << 10

	multipartMemory = 1 << 20
)

type uploadResponse struct {
	Distribution domain.Distribution `json:"distribution"`
	RowErrors    []domain.RowError   `json:"row_errors"`
	Summary      string              `json:"summary"`
}

func newUploadResponse(result service.UploadResult) uploadResponse {
	return uploadResponse{
		Distribution: result.Distribution,
		RowErrors:    result.RowErrors,
		Summary:      result.Summary(),
	}
}

// Distributions serves GET (list) and POST (upload) on /v1/distributions.
func (api *API) Distributions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.listDistributions(w, r)
	case http.MethodPost:
		api.uploadDistribution(w, r)
	default:
		writeMethodNotAllowed(w, r, "GET, POST")
	}
}

func (api *API) listDistributions(w http.ResponseWriter, r *http.Request) {
	distributions, err := api.distributions.ListDistributions(r.Context())
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	if distributions == nil {
		distributions = make([]domain.Distribution, 0)
	}
	writeJSON(w, http.StatusOK, map[string]any{"distributions": distributions})
}

func (api *API) uploadDistribution(w http.ResponseWriter, r *http.Request) {
	limit := api.maxUploadBytes + multipartSlack
	if r.ContentLength > limit {
		api.writeDomainError(w, r, tooLarge(r.ContentLength, api.maxUploadBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	upload, err := readUpload(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.writeDomainError(w, r, tooLarge(maxErr.Limit, api.maxUploadBytes))
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	payloadHash := hashUpload(upload)
	if idempotencyKey != "" {
		if entry, exists := api.idempotency.Get(idempotencyKey); exists {
			if entry.PayloadHash != payloadHash {
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with different payload")
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, newUploadResponse(entry.Result))
			return
		}
	}

	result, err := api.distributions.SubmitUpload(r.Context(), upload)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	if idempotencyKey != "" {
		api.idempotency.Put(idempotencyKey, payloadHash, result)
	}
	w.Header().Set("Location", "/v1/distributions/"+result.Distribution.ID)
	writeJSON(w, http.StatusCreated, newUploadResponse(result))
}

// readUpload accepts either a multipart form with a "file" part and an
// optional "name" field, or the raw file as the request body.
func readUpload(r *http.Request) (service.UploadRequest, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return service.UploadRequest{}, fmt.Errorf("%w: %w", errInvalidUpload, err)
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			return service.UploadRequest{}, fmt.Errorf("%w: file part is required", errInvalidUpload)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return service.UploadRequest{}, fmt.Errorf("read file part: %w", err)
		}
		return service.UploadRequest{
			Data:        data,
			ContentType: header.Header.Get("Content-Type"),
			Filename:    header.Filename,
			Name:        firstNonEmpty(r.FormValue("name"), r.URL.Query().Get("name")),
		}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return service.UploadRequest{}, fmt.Errorf("read body: %w", err)
	}
	return service.UploadRequest{
		Data:        data,
		ContentType: r.Header.Get("Content-Type"),
		Filename:    firstNonEmpty(r.Header.Get("X-Filename"), r.URL.Query().Get("filename")),
		Name:        r.URL.Query().Get("name"),
	}, nil
}

func tooLarge(size, limit int64) error {
	return domain.NewError(domain.KindFileTooLarge, "upload",
		fmt.Errorf("request of %d bytes exceeds the %d byte file limit", size, limit))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// DistributionByID serves GET /v1/distributions/{id}.
func (api *API) DistributionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}

	distributionID := strings.TrimPrefix(r.URL.Path, "/v1/distributions/")
	distributionID = strings.TrimSpace(distributionID)
	if distributionID == "" || strings.Contains(distributionID, "/") {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "distribution id is required")
		return
	}

	distribution, contacts, err := api.distributions.GetDistribution(r.Context(), distributionID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"distribution": distribution,
		"contacts":     contacts,
	})
}
