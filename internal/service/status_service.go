package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/singleflight"

	"github.com/songgift/api/internal/apperror"
	"github.com/songgift/api/internal/cache"
	"github.com/songgift/api/internal/client"
	"github.com/songgift/api/internal/config"
	"github.com/songgift/api/internal/model"
	"github.com/songgift/api/internal/status"
	"github.com/songgift/api/internal/store"
	"github.com/songgift/api/internal/websocket"
)

const TaskTypeStatusRefresh = "status:refresh"

// RecordStore is the persistence contract the reconciliation engine consumes.
// It is the only path through which song generation records are mutated.
type RecordStore interface {
	GetByID(ctx context.Context, id int64) (*model.SongGeneration, error)
	MergeVariants(ctx context.Context, id int64, candidates []model.SongVariant) (*model.SongGeneration, error)
	UpdateStatus(ctx context.Context, id int64, newStatus model.GenerationStatus, errorMessage, errorCode *string) error
	IncrementStatusCheckCount(ctx context.Context, id int64) error
}

// StatusService reconciles locally persisted song generation records with the
// provider's true task state. It answers status requests DB-first, re-polls
// the provider when the record is stale, and guarantees at most one in-flight
// poll per song.
type StatusService struct {
	store       RecordStore
	provider    client.GenerationProvider
	statusCache *cache.Cache[*model.StatusResult]
	recordCache *cache.Cache[*model.SongGeneration]
	hub         *websocket.Hub
	asynqClient *asynq.Client

	group           singleflight.Group
	pollTimeout     time.Duration
	refreshInterval time.Duration
	statusTTL       time.Duration
	recordTTL       time.Duration
}

// NewStatusService creates a new status reconciliation service. hub and
// asynqClient may be nil: without a hub no transitions are pushed, without an
// asynq client background refreshes run as plain goroutines.
func NewStatusService(
	recordStore RecordStore,
	provider client.GenerationProvider,
	statusCache *cache.Cache[*model.StatusResult],
	recordCache *cache.Cache[*model.SongGeneration],
	hub *websocket.Hub,
	asynqClient *asynq.Client,
	cfg *config.RefreshConfig,
) *StatusService {
	return &StatusService{
		store:           recordStore,
		provider:        provider,
		statusCache:     statusCache,
		recordCache:     recordCache,
		hub:             hub,
		asynqClient:     asynqClient,
		pollTimeout:     secondsOrDefault(cfg.PollTimeout, 30),
		refreshInterval: secondsOrDefault(cfg.Interval, 15),
		statusTTL:       secondsOrDefault(cfg.StatusTTL, 30),
		recordTTL:       secondsOrDefault(cfg.RecordTTL, 300),
	}
}

func secondsOrDefault(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func statusKey(songID int64) string { return fmt.Sprintf("status:%d", songID) }
func recordKey(songID int64) string { return fmt.Sprintf("record:%d", songID) }

// GetStatus answers "what is the status of song X".
//
// The stored record is authoritative for terminal states: once completed or
// failed the provider is never contacted again. Non-terminal records are
// refreshed in the caller's foreground when stale, otherwise the current
// status is returned immediately and a background refresh is scheduled so
// the next caller sees fresher data.
func (s *StatusService) GetStatus(ctx context.Context, songID int64) (*model.StatusResult, error) {
	if res, ok := s.statusCache.Get(statusKey(songID)); ok {
		return res, nil
	}

	record, err := s.loadRecord(ctx, songID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.NewStoreError(err)
	}

	if err := s.store.IncrementStatusCheckCount(ctx, songID); err != nil {
		log.Printf("Failed to increment status check count for song %d: %v", songID, err)
	}

	// DB-first short-circuit: a stored terminal state was only ever written
	// after a successful convergence and is trusted unconditionally.
	if record.Status.IsTerminal() {
		res := resultFromRecord(record)
		s.statusCache.Set(statusKey(songID), res, s.statusTTL)
		return res, nil
	}

	if record.ProviderTaskID == nil || *record.ProviderTaskID == "" {
		// Not submitted yet; nothing to poll.
		return resultFromRecord(record), nil
	}

	if !s.refreshNeeded(record) {
		// Fresh enough for this caller; reconcile off the request path.
		s.ScheduleBackgroundRefresh(songID)
		return resultFromRecord(record), nil
	}

	return s.refresh(ctx, songID)
}

// refreshNeeded decides staleness. Completed/failed never refresh (second
// gate behind the terminal short-circuit); pending/stream_available refresh
// once the last successful poll is older than the refresh interval.
func (s *StatusService) refreshNeeded(record *model.SongGeneration) bool {
	if record.Status.IsTerminal() {
		return false
	}
	if record.LastStatusCheck == nil {
		return true
	}
	return time.Since(*record.LastStatusCheck) >= s.refreshInterval
}

// refresh performs one poll-merge-persist pass. Passes are singleflighted by
// song id: a concurrent request for the same song observes the in-flight
// result instead of issuing a duplicate provider call.
func (s *StatusService) refresh(ctx context.Context, songID int64) (*model.StatusResult, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(songID, 10), func() (interface{}, error) {
		return s.pollAndReconcile(ctx, songID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.StatusResult), nil
}

func (s *StatusService) pollAndReconcile(ctx context.Context, songID int64) (*model.StatusResult, error) {
	// Fresh read: a concurrent pass may have converged while we waited
	// on the singleflight lock.
	record, err := s.store.GetByID(ctx, songID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.NewStoreError(err)
	}
	if record.Status.IsTerminal() {
		return resultFromRecord(record), nil
	}
	if record.ProviderTaskID == nil || *record.ProviderTaskID == "" {
		return resultFromRecord(record), nil
	}
	if s.provider == nil {
		return resultFromRecord(record), nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()

	resp, err := s.provider.PollJob(pollCtx, *record.ProviderTaskID)
	if err != nil {
		classified := apperror.Classify(err)
		if classified.Retryable {
			// Availability over freshness: the caller gets the last known
			// good status and polls again later.
			log.Printf("Poll for song %d failed (%s), returning stored status %s: %v",
				songID, classified.Code, record.Status, err)
			return resultFromRecord(record), nil
		}
		// A failed call is not a failed job. Only an explicit failure code
		// from the provider is terminal; the caller sees the error, the
		// record stays non-terminal and the next poll may still converge.
		log.Printf("Poll for song %d failed (%s, non-retryable): %v",
			songID, classified.Code, err)
		return nil, classified
	}

	if client.IsFailureStatus(resp.Status) {
		return s.failJob(ctx, songID, record, apperror.NewProviderFailure(resp.ErrorMessage))
	}

	updated := record
	if len(resp.Variants) > 0 {
		updated, err = s.store.MergeVariants(ctx, songID, resp.Variants)
		if err != nil {
			return nil, apperror.NewStoreError(err)
		}
	}

	calc := status.Calculate(updated.Variants)
	if err := s.store.UpdateStatus(ctx, songID, calc.Overall, nil, nil); err != nil {
		return nil, apperror.NewStoreError(err)
	}

	s.invalidate(songID)

	updated.Status = calc.Overall
	updated.ErrorMessage = nil
	res := resultFromRecord(updated)
	s.statusCache.Set(statusKey(songID), res, s.statusTTL)

	if record.Status != calc.Overall {
		log.Printf("Song %d reconciled: %s → %s", songID, record.Status, calc.Overall)
		if s.hub != nil {
			s.hub.BroadcastStatus(songID, res)
		}
	}

	return res, nil
}

// failJob persists a terminal failure reported by the provider
func (s *StatusService) failJob(ctx context.Context, songID int64, record *model.SongGeneration, classified *apperror.ClassifiedError) (*model.StatusResult, error) {
	msg := classified.Message
	code := string(classified.Code)
	if err := s.store.UpdateStatus(ctx, songID, model.StatusFailed, &msg, &code); err != nil {
		return nil, apperror.NewStoreError(err)
	}

	s.invalidate(songID)

	res := &model.StatusResult{
		SongID:       songID,
		Status:       model.StatusFailed,
		Variants:     record.Variants,
		ErrorCode:    string(classified.Code),
		ErrorMessage: classified.UserMessage,
	}
	s.statusCache.Set(statusKey(songID), res, s.statusTTL)

	log.Printf("Song %d marked failed: %s", songID, classified.Message)
	if s.hub != nil {
		s.hub.BroadcastStatus(songID, res)
	}

	return res, nil
}

// RefreshSong runs one reconciliation pass for a song; used by the
// background worker. Shares the singleflight group with foreground polls.
func (s *StatusService) RefreshSong(ctx context.Context, songID int64) error {
	_, err := s.refresh(ctx, songID)
	return err
}

// ScheduleBackgroundRefresh triggers a reconciliation pass without blocking
// the caller. Enqueued through asynq when available, otherwise run as a
// goroutine with its own error boundary; either way a failed pass is logged
// and never surfaces to a user.
func (s *StatusService) ScheduleBackgroundRefresh(songID int64) {
	if s.asynqClient != nil {
		task, err := NewStatusRefreshTask(songID)
		if err == nil {
			_, err = s.asynqClient.Enqueue(task,
				asynq.Queue("status"),
				asynq.MaxRetry(0),
				asynq.Unique(30*time.Second),
			)
			if err == nil || errors.Is(err, asynq.ErrDuplicateTask) {
				return
			}
		}
		log.Printf("Failed to enqueue status refresh for song %d, running inline: %v", songID, err)
	}

	refreshID := uuid.New().String()[:8]
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Background refresh %s for song %d panicked: %v", refreshID, songID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.pollTimeout+5*time.Second)
		defer cancel()

		if err := s.RefreshSong(ctx, songID); err != nil {
			log.Printf("Background refresh %s for song %d failed: %v", refreshID, songID, err)
		}
	}()
}

func (s *StatusService) loadRecord(ctx context.Context, songID int64) (*model.SongGeneration, error) {
	if record, ok := s.recordCache.Get(recordKey(songID)); ok {
		return record, nil
	}

	record, err := s.store.GetByID(ctx, songID)
	if err != nil {
		return nil, err
	}

	s.recordCache.Set(recordKey(songID), record, s.recordTTL)
	return record, nil
}

func (s *StatusService) invalidate(songID int64) {
	s.statusCache.Delete(statusKey(songID))
	s.recordCache.Delete(recordKey(songID))
}

func resultFromRecord(record *model.SongGeneration) *model.StatusResult {
	res := &model.StatusResult{
		SongID:   record.ID,
		Status:   record.Status,
		Variants: record.Variants,
	}
	if record.Status == model.StatusFailed {
		// Rows written before error_code existed carry no code; report the
		// provider classification for those.
		res.ErrorCode = string(apperror.CodeProviderError)
		if record.ErrorCode != nil {
			res.ErrorCode = *record.ErrorCode
		}
		if record.ErrorMessage != nil {
			res.ErrorMessage = *record.ErrorMessage
		}
	}
	return res
}

// NewStatusRefreshTask builds the asynq task for one background refresh
func NewStatusRefreshTask(songID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"songId": songID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStatusRefresh, payload), nil
}
