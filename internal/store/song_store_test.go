package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/songgift/api/internal/model"
)

func newMockStore(t *testing.T) (*SongStore, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	store := NewSongStore(sqlx.NewDb(db, "sqlmock"))
	return store, mock, func() { db.Close() }
}

func songColumnsList() []string {
	return []string{
		"id", "user_id", "provider_task_id", "status", "variants", "title", "prompt", "style",
		"error_message", "error_code", "status_checked_at", "last_status_check",
		"status_check_count", "created_at", "updated_at",
	}
}

func songRowValues(id int64, status model.GenerationStatus, variants []model.SongVariant) []driverValue {
	data, _ := json.Marshal(variants)
	if variants == nil {
		data = []byte("[]")
	}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []driverValue{
		id, "user-1", "task-abc", string(status), data, "Birthday Song", "a happy song", "pop",
		nil, nil, nil, nil, 0, now, now,
	}
}

type driverValue = driver.Value

func addSongRow(rows *sqlmock.Rows, values []driverValue) *sqlmock.Rows {
	return rows.AddRow(values...)
}

func TestSongStore_GetByID(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	variants := []model.SongVariant{{ID: "v1", StreamAudioURL: "https://cdn/v1-stream.mp3"}}
	rows := addSongRow(sqlmock.NewRows(songColumnsList()), songRowValues(42, model.StatusStreamAvailable, variants))

	mock.ExpectQuery("SELECT .+ FROM song_generations WHERE id =").
		WithArgs(int64(42)).
		WillReturnRows(rows)

	record, err := store.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if record.ID != 42 || record.Status != model.StatusStreamAvailable {
		t.Errorf("unexpected record: id=%d status=%s", record.ID, record.Status)
	}
	if len(record.Variants) != 1 || record.Variants[0].ID != "v1" {
		t.Errorf("variants not decoded: %+v", record.Variants)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSongStore_GetByID_NotFound(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .+ FROM song_generations WHERE id =").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByID(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSongStore_MergeVariants(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	stored := []model.SongVariant{{ID: "v1", AudioURL: "https://cdn/v1.mp3"}}
	rows := addSongRow(sqlmock.NewRows(songColumnsList()), songRowValues(7, model.StatusStreamAvailable, stored))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM song_generations WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE song_generations SET variants =").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Incoming snapshot has lost the audio URL; the merge must keep it
	candidates := []model.SongVariant{
		{ID: "v1", StreamAudioURL: "https://cdn/v1-stream.mp3"},
		{ID: "v2", StreamAudioURL: "https://cdn/v2-stream.mp3"},
	}

	record, err := store.MergeVariants(context.Background(), 7, candidates)
	if err != nil {
		t.Fatalf("MergeVariants() error = %v", err)
	}

	if len(record.Variants) != 2 {
		t.Fatalf("expected 2 merged variants, got %d", len(record.Variants))
	}
	if record.Variants[0].AudioURL != "https://cdn/v1.mp3" {
		t.Errorf("merge dropped the stored audioUrl: %q", record.Variants[0].AudioURL)
	}
	if record.Variants[0].StreamAudioURL != "https://cdn/v1-stream.mp3" {
		t.Errorf("merge ignored the new streamAudioUrl: %q", record.Variants[0].StreamAudioURL)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSongStore_UpdateStatus(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := addSongRow(sqlmock.NewRows(songColumnsList()), songRowValues(7, model.StatusStreamAvailable, nil))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM song_generations WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE song_generations").
		WithArgs(int64(7), string(model.StatusCompleted), nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.UpdateStatus(context.Background(), 7, model.StatusCompleted, nil, nil); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSongStore_UpdateStatus_PersistsFailureClassification(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := addSongRow(sqlmock.NewRows(songColumnsList()), songRowValues(7, model.StatusPending, nil))

	msg := "audio generation failed"
	code := "PROVIDER_ERROR"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM song_generations WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE song_generations").
		WithArgs(int64(7), string(model.StatusFailed), msg, code).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.UpdateStatus(context.Background(), 7, model.StatusFailed, &msg, &code); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSongStore_UpdateStatus_RefusesRegression(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := addSongRow(sqlmock.NewRows(songColumnsList()), songRowValues(7, model.StatusCompleted, nil))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM song_generations WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(rows)
	// No UPDATE: the regression is refused and the tx committed as a no-op
	mock.ExpectCommit()

	if err := store.UpdateStatus(context.Background(), 7, model.StatusPending, nil, nil); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("regression write was not a no-op: %v", err)
	}
}

func TestSongStore_SetProviderTaskID_WriteOnce(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec("UPDATE song_generations SET provider_task_id =").
		WithArgs(int64(7), "task-abc").
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := addSongRow(sqlmock.NewRows(songColumnsList()), songRowValues(7, model.StatusPending, nil))
	mock.ExpectQuery("SELECT .+ FROM song_generations WHERE id =").
		WithArgs(int64(7)).
		WillReturnRows(rows)

	err := store.SetProviderTaskID(context.Background(), 7, "task-abc")
	if !errors.Is(err, ErrTaskIDAlreadySet) {
		t.Errorf("expected ErrTaskIDAlreadySet, got %v", err)
	}
}

func TestSongStore_IncrementStatusCheckCount(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec("UPDATE song_generations SET status_check_count = status_check_count").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.IncrementStatusCheckCount(context.Background(), 7); err != nil {
		t.Fatalf("IncrementStatusCheckCount() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
