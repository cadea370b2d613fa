package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/songgift/api/internal/config"
	"github.com/songgift/api/internal/model"
)

// GenerationProvider defines the interface for the external song generation service
type GenerationProvider interface {
	SubmitJob(ctx context.Context, req *SubmitJobRequest) (*SubmitJobResponse, error)
	PollJob(ctx context.Context, taskID string) (*PollJobResponse, error)
}

// Provider-native task statuses
const (
	ProviderStatusPending      = "PENDING"
	ProviderStatusTextSuccess  = "TEXT_SUCCESS"
	ProviderStatusFirstSuccess = "FIRST_SUCCESS"
	ProviderStatusSuccess      = "SUCCESS"
)

// providerFailureStatuses are the explicit terminal failure codes the provider
// can report for a task.
var providerFailureStatuses = map[string]bool{
	"CREATE_TASK_FAILED":    true,
	"GENERATE_AUDIO_FAILED": true,
	"CALLBACK_EXCEPTION":    true,
	"SENSITIVE_WORD_ERROR":  true,
}

// IsFailureStatus reports whether a provider-native status is a terminal failure
func IsFailureStatus(status string) bool {
	return providerFailureStatuses[status]
}

// SunoClient implements GenerationProvider for the Suno API
type SunoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// SubmitJobRequest represents the request for a new generation task
type SubmitJobRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	Instrumental bool   `json:"instrumental,omitempty"`
	Model        string `json:"model,omitempty"`
	CallbackURL  string `json:"callBackUrl,omitempty"`
}

// SubmitJobResponse carries the provider-assigned task id
type SubmitJobResponse struct {
	TaskID string `json:"taskId"`
}

// PollJobResponse is the normalized result of one status poll
type PollJobResponse struct {
	TaskID       string
	Status       string
	ErrorMessage string
	Variants     []model.SongVariant
}

// APIError is a non-2xx response (or an error envelope) from the provider
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("suno API error (status %d): %s", e.StatusCode, e.Body)
}

// envelope is the provider's common response wrapper
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type recordInfoData struct {
	TaskID       string `json:"taskId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Response     struct {
		SunoData []sunoVariant `json:"sunoData"`
	} `json:"response"`
}

// sunoVariant is the raw provider variant payload. Fields are mapped
// explicitly into model.SongVariant at the boundary; entries without an id
// are dropped rather than trusted.
type sunoVariant struct {
	ID                   string  `json:"id"`
	AudioURL             string  `json:"audioUrl"`
	SourceAudioURL       string  `json:"sourceAudioUrl"`
	StreamAudioURL       string  `json:"streamAudioUrl"`
	SourceStreamAudioURL string  `json:"sourceStreamAudioUrl"`
	ImageURL             string  `json:"imageUrl"`
	Title                string  `json:"title"`
	Prompt               string  `json:"prompt"`
	Tags                 string  `json:"tags"`
	ModelName            string  `json:"modelName"`
	CreateTime           int64   `json:"createTime"`
	Duration             float64 `json:"duration"`
}

// NewSunoClient creates a new Suno API client
func NewSunoClient(cfg *config.SunoConfig) *SunoClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// SubmitJob starts a new generation task
func (c *SunoClient) SubmitJob(ctx context.Context, req *SubmitJobRequest) (*SubmitJobResponse, error) {
	data, err := c.post(ctx, "/api/v1/generate", req)
	if err != nil {
		return nil, err
	}

	var result SubmitJobResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submit response: %w", err)
	}
	if result.TaskID == "" {
		return nil, fmt.Errorf("provider returned no task id")
	}
	return &result, nil
}

// PollJob retrieves the current state of a generation task and maps the raw
// variant payload into SongVariant snapshots.
func (c *SunoClient) PollJob(ctx context.Context, taskID string) (*PollJobResponse, error) {
	endpoint := fmt.Sprintf("/api/v1/generate/record-info?taskId=%s", taskID)
	data, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var info recordInfoData
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record info: %w", err)
	}

	resp := &PollJobResponse{
		TaskID:       info.TaskID,
		Status:       info.Status,
		ErrorMessage: info.ErrorMessage,
	}
	for _, raw := range info.Response.SunoData {
		if raw.ID == "" {
			log.Printf("[Suno API] Dropping variant without id (task=%s)", taskID)
			continue
		}
		resp.Variants = append(resp.Variants, model.SongVariant{
			ID:                   raw.ID,
			AudioURL:             raw.AudioURL,
			SourceAudioURL:       raw.SourceAudioURL,
			StreamAudioURL:       raw.StreamAudioURL,
			SourceStreamAudioURL: raw.SourceStreamAudioURL,
			ImageURL:             raw.ImageURL,
			Title:                raw.Title,
			Prompt:               raw.Prompt,
			Tags:                 raw.Tags,
			ModelName:            raw.ModelName,
			CreateTime:           raw.CreateTime,
			Duration:             raw.Duration,
		})
	}

	return resp, nil
}

// post sends a POST request with JSON body and returns the envelope data
func (c *SunoClient) post(ctx context.Context, endpoint string, body interface{}) (json.RawMessage, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req)
}

// get sends a GET request and returns the envelope data
func (c *SunoClient) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req)
}

// doRequest executes an HTTP request and unwraps the provider envelope
func (c *SunoClient) doRequest(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Suno API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Suno API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Suno API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Suno API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		log.Printf("[Suno API] ✗ unmarshal error for %s %s: %v", req.Method, req.URL.String(), err)
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if env.Code != 200 {
		return nil, &APIError{StatusCode: env.Code, Body: env.Msg}
	}

	return env.Data, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SunoClient) IsConfigured() bool {
	return c.apiKey != ""
}
