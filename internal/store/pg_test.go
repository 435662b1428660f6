package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gestpipe/console/internal/models"
)

func gestureStateRows(t *testing.T, adminID uuid.UUID, slots []models.GestureSlot, version int64) *sqlmock.Rows {
	t.Helper()
	payload, err := json.Marshal(slots)
	if err != nil {
		t.Fatalf("marshal slots: %v", err)
	}
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"admin_id", "slots", "version", "created_at", "updated_at"}).
		AddRow(adminID.String(), payload, version, now, now)
}

func TestPGCustomizeSlot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	defer db.Close()

	adminID := uuid.New()
	st := NewPGStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO admin_gesture_states").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT admin_id, slots, version, created_at, updated_at FROM admin_gesture_states").
		WithArgs(adminID).
		WillReturnRows(gestureStateRows(t, adminID, models.DefaultGestureCatalog(), 3))
	mock.ExpectExec("UPDATE admin_gesture_states").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	slot, err := st.CustomizeSlot(context.Background(), adminID, "home", "My Home")
	assert.NoError(t, err)
	assert.Equal(t, models.SlotCustomed, slot.Status)
	assert.Equal(t, "My Home", slot.GestureName)
	assert.NotNil(t, slot.CustomedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGCustomizeSlotConflictRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	defer db.Close()

	adminID := uuid.New()
	st := NewPGStore(db)

	slots := models.DefaultGestureCatalog()
	slots[2].Status = models.SlotCustomed // "home"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO admin_gesture_states").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT admin_id, slots, version, created_at, updated_at FROM admin_gesture_states").
		WithArgs(adminID).
		WillReturnRows(gestureStateRows(t, adminID, slots, 1))
	mock.ExpectRollback()

	_, err = st.CustomizeSlot(context.Background(), adminID, "home", "Other")
	assert.ErrorIs(t, err, ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGMarkSubmissionProcessingInvalidState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	defer db.Close()

	st := NewPGStore(db)
	subID := uuid.New()
	adminID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE submissions").
		WithArgs(subID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT id, admin_id, gesture_ids, status, reject_reason, artifact_paths, created_at, updated_at FROM submissions").
		WithArgs(subID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "admin_id", "gesture_ids", "status", "reject_reason", "artifact_paths", "created_at", "updated_at",
		}).AddRow(subID.String(), adminID.String(), []byte(`["home"]`), "accepted", "", []byte(`{}`), now, now))

	_, err = st.MarkSubmissionProcessing(context.Background(), subID)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGForceFailRunningRunNoMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	defer db.Close()

	st := NewPGStore(db)
	runID := uuid.New()

	mock.ExpectExec("UPDATE training_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	forced, err := st.ForceFailRunningRun(context.Background(), runID, "stale")
	assert.NoError(t, err)
	assert.False(t, forced)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAppendTrainingLogNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	defer db.Close()

	st := NewPGStore(db)

	mock.ExpectExec("UPDATE training_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = st.AppendTrainingLog(context.Background(), uuid.New(), models.LogInfo, "hello")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}
