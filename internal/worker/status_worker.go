package worker

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"

	"github.com/songgift/api/internal/service"
)

// StatusWorker processes background status refresh tasks
type StatusWorker struct {
	statusService *service.StatusService
}

// NewStatusWorker creates a new status refresh worker
func NewStatusWorker(statusService *service.StatusService) *StatusWorker {
	return &StatusWorker{statusService: statusService}
}

// ProcessTask handles one background reconciliation pass. It always returns
// nil: a failed pass is logged, never retried and never surfaced — the merge
// rule makes re-running it on the next status request safe.
func (w *StatusWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		SongID int64 `json:"songId"`
	}

	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Printf("Invalid status refresh payload: %v", err)
		return nil
	}

	log.Printf("Background refresh for song %d", payload.SongID)

	if err := w.statusService.RefreshSong(ctx, payload.SongID); err != nil {
		log.Printf("Background refresh for song %d failed: %v", payload.SongID, err)
	}

	return nil
}
