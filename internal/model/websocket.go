package model

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage pushes a reconciled status to song subscribers
type WSStatusMessage struct {
	Type   string        `json:"type"`
	SongID int64         `json:"songId"`
	Result *StatusResult `json:"result"`
}
