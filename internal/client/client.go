// Package client talks to the distributor HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
)

const defaultBaseURL = "http://localhost:8080"

var contentTypesByExtension = map[string]string{
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. An empty baseURL falls back to DISTRIBUTOR_URL and
// then to localhost:8080. DISTRIBUTOR_CLIENT_TIMEOUT overrides the 2m timeout.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("DISTRIBUTOR_URL")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := 2 * time.Minute
	if raw := os.Getenv("DISTRIBUTOR_CLIENT_TIMEOUT"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			timeout = parsed
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response decoded from the API error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server error: %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type UploadInput struct {
	Filename       string
	Data           []byte
	Name           string
	IdempotencyKey string
}

type UploadResponse struct {
	Distribution domain.Distribution `json:"distribution"`
	RowErrors    []domain.RowError   `json:"row_errors"`
	Summary      string              `json:"summary"`
}

type DistributionDetail struct {
	Distribution domain.Distribution `json:"distribution"`
	Contacts     []domain.Contact    `json:"contacts"`
}

func (c *Client) Upload(ctx context.Context, input UploadInput) (UploadResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if input.Name != "" {
		if err := writer.WriteField("name", input.Name); err != nil {
			return UploadResponse{}, fmt.Errorf("write name field: %w", err)
		}
	}

	filename := filepath.Base(input.Filename)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	contentType, ok := contentTypesByExtension[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(input.Data); err != nil {
		return UploadResponse{}, fmt.Errorf("write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return UploadResponse{}, fmt.Errorf("close multipart: %w", err)
	}

	request, err := c.newRequest(ctx, http.MethodPost, "/v1/distributions", &body)
	if err != nil {
		return UploadResponse{}, err
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	if input.IdempotencyKey != "" {
		request.Header.Set("Idempotency-Key", input.IdempotencyKey)
	}

	var response UploadResponse
	if err := c.do(request, &response); err != nil {
		return UploadResponse{}, err
	}
	return response, nil
}

func (c *Client) ListDistributions(ctx context.Context) ([]domain.Distribution, error) {
	var response struct {
		Distributions []domain.Distribution `json:"distributions"`
	}
	if err := c.get(ctx, "/v1/distributions", &response); err != nil {
		return nil, err
	}
	return response.Distributions, nil
}

func (c *Client) GetDistribution(ctx context.Context, distributionID string) (DistributionDetail, error) {
	var response DistributionDetail
	if err := c.get(ctx, "/v1/distributions/"+url.PathEscape(distributionID), &response); err != nil {
		return DistributionDetail{}, err
	}
	return response, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]domain.AgentRef, error) {
	var response struct {
		Agents []domain.AgentRef `json:"agents"`
	}
	if err := c.get(ctx, "/v1/agents", &response); err != nil {
		return nil, err
	}
	return response.Agents, nil
}

func (c *Client) ListAgentContacts(ctx context.Context, agentID string) ([]domain.Contact, error) {
	var response struct {
		Contacts []domain.Contact `json:"contacts"`
	}
	if err := c.get(ctx, "/v1/agents/"+url.PathEscape(agentID)+"/contacts", &response); err != nil {
		return nil, err
	}
	return response.Contacts, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	request, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(request, result)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
	return request, nil
}

func (c *Client) do(request *http.Request, result any) error {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		apiErr := &APIError{StatusCode: response.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
			RequestID string `json:"request_id"`
		}
		if json.Unmarshal(body, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.RequestID = envelope.RequestID
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
