package model

// CreateSongRequest is the inbound request for a new personalized song
type CreateSongRequest struct {
	Title        string `json:"title" validate:"required,max=120"`
	Prompt       string `json:"prompt" validate:"required,max=2000"`
	Style        string `json:"style" validate:"max=120"`
	Instrumental bool   `json:"instrumental"`
}

// CreateSongResponse acknowledges a submitted generation job
type CreateSongResponse struct {
	SongID    int64            `json:"songId"`
	Status    GenerationStatus `json:"status"`
	CreatedAt string           `json:"createdAt"`
}
