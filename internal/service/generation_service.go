package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/songgift/api/internal/apperror"
	"github.com/songgift/api/internal/client"
	"github.com/songgift/api/internal/model"
)

// GenerationStore is the store contract for creating generation records
type GenerationStore interface {
	Create(ctx context.Context, g *model.SongGeneration) error
	SetProviderTaskID(ctx context.Context, id int64, taskID string) error
	UpdateStatus(ctx context.Context, id int64, newStatus model.GenerationStatus, errorMessage, errorCode *string) error
}

// GenerationService submits new song generation jobs to the provider and
// records the write-once provider task id. Reconciliation of the job's
// progress afterwards is the StatusService's job.
type GenerationService struct {
	store    GenerationStore
	provider client.GenerationProvider
}

// NewGenerationService creates a new generation service. provider may be nil
// for development: submissions then get a mock task id and stay pending.
func NewGenerationService(genStore GenerationStore, provider client.GenerationProvider) *GenerationService {
	return &GenerationService{
		store:    genStore,
		provider: provider,
	}
}

// CreateSong persists a pending generation record and submits the job
func (s *GenerationService) CreateSong(ctx context.Context, userID string, req *model.CreateSongRequest) (*model.SongGeneration, error) {
	record := &model.SongGeneration{
		UserID: userID,
		Status: model.StatusPending,
		Title:  req.Title,
		Prompt: req.Prompt,
		Style:  req.Style,
	}

	if err := s.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create song generation: %w", err)
	}

	taskID, err := s.submit(ctx, record, req)
	if err != nil {
		classified := apperror.Classify(err)
		msg := classified.Message
		code := string(classified.Code)
		if updateErr := s.store.UpdateStatus(ctx, record.ID, model.StatusFailed, &msg, &code); updateErr != nil {
			log.Printf("Failed to mark song %d failed after submit error: %v", record.ID, updateErr)
		}
		return nil, classified
	}

	if err := s.store.SetProviderTaskID(ctx, record.ID, taskID); err != nil {
		return nil, fmt.Errorf("failed to record provider task id: %w", err)
	}

	record.ProviderTaskID = &taskID
	log.Printf("Song %d submitted (task=%s)", record.ID, taskID)
	return record, nil
}

func (s *GenerationService) submit(ctx context.Context, record *model.SongGeneration, req *model.CreateSongRequest) (string, error) {
	if s.provider == nil {
		// Development fallback, mirrors an unconfigured provider
		taskID := "mock-" + uuid.New().String()
		log.Printf("Provider not configured, assigning mock task %s to song %d", taskID, record.ID)
		return taskID, nil
	}

	submitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.provider.SubmitJob(submitCtx, &client.SubmitJobRequest{
		Prompt:       req.Prompt,
		Style:        req.Style,
		Title:        req.Title,
		Instrumental: req.Instrumental,
	})
	if err != nil {
		return "", err
	}

	return resp.TaskID, nil
}
