package model

import "time"

// GenerationStatus is the persisted status of a song generation job
type GenerationStatus string

const (
	StatusPending         GenerationStatus = "pending"
	StatusStreamAvailable GenerationStatus = "stream_available"
	StatusCompleted       GenerationStatus = "completed"
	StatusFailed          GenerationStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state.
// Terminal states never transition back to pending/stream_available.
func (s GenerationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// VariantStatus is derived per variant from its URL fields; it is never persisted
type VariantStatus string

const (
	VariantPending       VariantStatus = "pending"
	VariantStreamReady   VariantStatus = "stream_ready"
	VariantDownloadReady VariantStatus = "download_ready"
)

// SongGeneration represents one generation job for a song request
type SongGeneration struct {
	ID               int64            `json:"id" db:"id"`
	UserID           string           `json:"userId" db:"user_id"`
	ProviderTaskID   *string          `json:"providerTaskId,omitempty" db:"provider_task_id"`
	Status           GenerationStatus `json:"status" db:"status"`
	Variants         []SongVariant    `json:"variants"`
	Title            string           `json:"title" db:"title"`
	Prompt           string           `json:"-" db:"prompt"`
	Style            string           `json:"style" db:"style"`
	ErrorMessage     *string          `json:"errorMessage,omitempty" db:"error_message"`
	ErrorCode        *string          `json:"errorCode,omitempty" db:"error_code"`
	StatusCheckedAt  *time.Time       `json:"statusCheckedAt,omitempty" db:"status_checked_at"`
	LastStatusCheck  *time.Time       `json:"lastStatusCheck,omitempty" db:"last_status_check"`
	StatusCheckCount int              `json:"statusCheckCount" db:"status_check_count"`
	CreatedAt        time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time        `json:"updatedAt" db:"updated_at"`
}

// SongVariant represents one candidate rendering of a song. Variants are
// embedded in the SongGeneration record (JSONB column), keyed by the
// provider-assigned id, in provider order.
type SongVariant struct {
	ID                   string  `json:"id"`
	AudioURL             string  `json:"audioUrl,omitempty"`
	SourceAudioURL       string  `json:"sourceAudioUrl,omitempty"`
	StreamAudioURL       string  `json:"streamAudioUrl,omitempty"`
	SourceStreamAudioURL string  `json:"sourceStreamAudioUrl,omitempty"`
	ImageURL             string  `json:"imageUrl,omitempty"`
	Title                string  `json:"title,omitempty"`
	Prompt               string  `json:"prompt,omitempty"`
	Tags                 string  `json:"tags,omitempty"`
	ModelName            string  `json:"modelName,omitempty"`
	CreateTime           int64   `json:"createTime,omitempty"`
	Duration             float64 `json:"duration,omitempty"`
}

// StatusResult is the engine's answer to "what is the status of song X"
type StatusResult struct {
	SongID       int64            `json:"songId"`
	Status       GenerationStatus `json:"status"`
	Variants     []SongVariant    `json:"variants"`
	ErrorCode    string           `json:"errorCode,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
}
