package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/songgift/api/internal/model"
)

// ErrNotFound is returned when a song generation record does not exist
var ErrNotFound = errors.New("song generation not found")

// ErrTaskIDAlreadySet is returned when a provider task id is written twice
var ErrTaskIDAlreadySet = errors.New("provider task id already set")

const songColumns = `id, user_id, provider_task_id, status, variants, title, prompt, style,
	error_message, error_code, status_checked_at, last_status_check, status_check_count, created_at, updated_at`

// songRow is the scanned shape of a song_generations row; variants arrive as
// raw JSONB and are decoded into the model.
type songRow struct {
	ID               int64                  `db:"id"`
	UserID           string                 `db:"user_id"`
	ProviderTaskID   *string                `db:"provider_task_id"`
	Status           model.GenerationStatus `db:"status"`
	Variants         []byte                 `db:"variants"`
	Title            string                 `db:"title"`
	Prompt           string                 `db:"prompt"`
	Style            string                 `db:"style"`
	ErrorMessage     *string                `db:"error_message"`
	ErrorCode        *string                `db:"error_code"`
	StatusCheckedAt  *time.Time             `db:"status_checked_at"`
	LastStatusCheck  *time.Time             `db:"last_status_check"`
	StatusCheckCount int                    `db:"status_check_count"`
	CreatedAt        time.Time              `db:"created_at"`
	UpdatedAt        time.Time              `db:"updated_at"`
}

func (r *songRow) toModel() (*model.SongGeneration, error) {
	var variants []model.SongVariant
	if len(r.Variants) > 0 {
		if err := json.Unmarshal(r.Variants, &variants); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variants for song %d: %w", r.ID, err)
		}
	}
	return &model.SongGeneration{
		ID:               r.ID,
		UserID:           r.UserID,
		ProviderTaskID:   r.ProviderTaskID,
		Status:           r.Status,
		Variants:         variants,
		Title:            r.Title,
		Prompt:           r.Prompt,
		Style:            r.Style,
		ErrorMessage:     r.ErrorMessage,
		ErrorCode:        r.ErrorCode,
		StatusCheckedAt:  r.StatusCheckedAt,
		LastStatusCheck:  r.LastStatusCheck,
		StatusCheckCount: r.StatusCheckCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}, nil
}

// SongStore is the only component allowed to mutate song generation records
type SongStore struct {
	db *sqlx.DB
}

// NewSongStore creates a new song generation store
func NewSongStore(db *sqlx.DB) *SongStore {
	return &SongStore{db: db}
}

// GetByID retrieves a song generation record
func (s *SongStore) GetByID(ctx context.Context, id int64) (*model.SongGeneration, error) {
	var row songRow
	query := fmt.Sprintf(`SELECT %s FROM song_generations WHERE id = $1`, songColumns)

	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get song generation: %w", err)
	}

	return row.toModel()
}

// Create inserts a new pending song generation record
func (s *SongStore) Create(ctx context.Context, g *model.SongGeneration) error {
	if g.Status == "" {
		g.Status = model.StatusPending
	}
	variants, err := json.Marshal(g.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	if g.Variants == nil {
		variants = []byte("[]")
	}

	query := `
		INSERT INTO song_generations (user_id, status, variants, title, prompt, style)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err = s.db.QueryRowxContext(ctx, query,
		g.UserID, g.Status, variants, g.Title, g.Prompt, g.Style,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create song generation: %w", err)
	}

	return nil
}

// SetProviderTaskID records the provider-assigned task id. The column is
// write-once: a second write for the same record fails.
func (s *SongStore) SetProviderTaskID(ctx context.Context, id int64, taskID string) error {
	query := `
		UPDATE song_generations
		SET provider_task_id = $2, updated_at = NOW()
		WHERE id = $1 AND provider_task_id IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, id, taskID)
	if err != nil {
		return fmt.Errorf("failed to set provider task id: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrTaskIDAlreadySet
	}

	return nil
}

// MergeVariants merges candidate variant snapshots into the stored list under
// a row lock, so two concurrent polls cannot interleave partial merges. The
// merge itself (model.MergeVariantLists) never reduces informational
// completeness. Returns the record with the merged variants.
func (s *SongStore) MergeVariants(ctx context.Context, id int64, candidates []model.SongVariant) (*model.SongGeneration, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	merged := model.MergeVariantLists(record.Variants, candidates)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged variants: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE song_generations SET variants = $2, updated_at = NOW() WHERE id = $1`,
		id, data,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to write merged variants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}

	record.Variants = merged
	return record, nil
}

// UpdateStatus writes a new status with server-side timestamps. A transition
// out of completed/failed back to pending/stream_available is refused: the
// write becomes a logged no-op. errorMessage and errorCode are stored as-is
// and cleared (set NULL) when nil.
func (s *SongStore) UpdateStatus(ctx context.Context, id int64, newStatus model.GenerationStatus, errorMessage, errorCode *string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	if record.Status.IsTerminal() && !newStatus.IsTerminal() {
		log.Printf("Refusing status regression for song %d: %s → %s", id, record.Status, newStatus)
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE song_generations
		SET status = $2,
		    error_message = $3,
		    error_code = $4,
		    status_checked_at = NOW(),
		    last_status_check = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`, id, newStatus, errorMessage, errorCode)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	return nil
}

// IncrementStatusCheckCount bumps the audit counter for one status request
func (s *SongStore) IncrementStatusCheckCount(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE song_generations SET status_check_count = status_check_count + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment status check count: %w", err)
	}
	return nil
}

func getForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.SongGeneration, error) {
	var row songRow
	query := fmt.Sprintf(`SELECT %s FROM song_generations WHERE id = $1 FOR UPDATE`, songColumns)

	if err := tx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock song generation: %w", err)
	}

	return row.toModel()
}
