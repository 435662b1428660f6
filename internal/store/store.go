package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gestpipe/console/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a state-machine guard violation (slot not ready,
	// or a resource already busy). Maps to HTTP 409 at the boundary.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState signals a submission transition from a state that does
	// not permit it (e.g. approving an accepted submission).
	ErrInvalidState = errors.New("invalid state")
)

// ResetMode selects which slots a bulk reset touches and which timestamps it
// writes.
type ResetMode int

const (
	// ResetAll moves every non-ready slot to ready, clearing all timestamps.
	ResetAll ResetMode = iota
	// ResetApprove moves every non-ready slot to ready and stamps approvedAt.
	ResetApprove
	// ResetBlocked moves only blocked slots to ready (rejection path).
	ResetBlocked
	// ResetCustomed moves only customed slots to ready (admin delete path).
	ResetCustomed
)

type Store interface {
	// Gesture status state machine. Bulk transitions are linearizable per
	// adminId: the stored aggregate is mutated under a per-row lock.
	GetOrCreateGestureState(ctx context.Context, adminID uuid.UUID) (models.AdminGestureState, bool, error)
	CustomizeSlot(ctx context.Context, adminID uuid.UUID, gestureID, gestureName string) (models.GestureSlot, error)
	BlockAllSlots(ctx context.Context, adminID uuid.UUID) (int, error)
	ResetSlots(ctx context.Context, adminID uuid.UUID, mode ResetMode) (int, error)

	// Submissions. One active submission per admin, upserted by adminId.
	UpsertSubmission(ctx context.Context, in UpsertSubmissionInput) (models.Submission, error)
	GetSubmission(ctx context.Context, id uuid.UUID) (models.Submission, error)
	GetSubmissionByAdmin(ctx context.Context, adminID uuid.UUID) (models.Submission, error)
	ListSubmissions(ctx context.Context, filter ListSubmissionsFilter) ([]models.Submission, error)
	MarkSubmissionProcessing(ctx context.Context, id uuid.UUID) (models.Submission, error)
	FinishSubmission(ctx context.Context, in FinishSubmissionInput) (models.Submission, error)

	// Training runs (audit records for the global retraining job).
	CreateTrainingRun(ctx context.Context, in TrainingRunInput) (models.TrainingRun, error)
	AppendTrainingLog(ctx context.Context, id uuid.UUID, level models.LogLevel, message string) error
	FinishTrainingRun(ctx context.Context, in FinishRunInput) (models.TrainingRun, error)
	GetTrainingRun(ctx context.Context, id uuid.UUID) (models.TrainingRun, error)
	ListTrainingRuns(ctx context.Context, limit int) ([]models.TrainingRun, error)
	ForceFailRunningRun(ctx context.Context, id uuid.UUID, message string) (bool, error)

	// Global sample corpus.
	CountSamples(ctx context.Context) (int64, error)
	PoseCounts(ctx context.Context) ([]models.PoseCount, error)
	InsertSamples(ctx context.Context, samples []models.CorpusSample) error
	ForEachSample(ctx context.Context, fn func(models.CorpusSample) error) error

	Ping(ctx context.Context) error
}

type UpsertSubmissionInput struct {
	AdminID    uuid.UUID
	GestureIDs []string
	Status     models.SubmissionStatus
	RawDataDir string
}

type ListSubmissionsFilter struct {
	Status models.SubmissionStatus
	Limit  int
}

type FinishSubmissionInput struct {
	ID            uuid.UUID
	Status        models.SubmissionStatus
	RejectReason  string
	ArtifactPaths *models.ArtifactPaths
}

type TrainingRunInput struct {
	ID          uuid.UUID
	Status      models.RunStatus
	DatasetSize int64
	PoseCounts  []models.PoseCount
	StartedAt   time.Time
	FirstLog    string
}

type FinishRunInput struct {
	ID       uuid.UUID
	Status   models.RunStatus
	ExitCode *int
	Summary  *models.TrainingSummary
}

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func normalizeLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

func marshalJSON(v interface{}, fallback string) []byte {
	b, err := json.Marshal(v)
	if err != nil || v == nil {
		return []byte(fallback)
	}
	return b
}

// --- gesture states ---

const gestureStateCols = "admin_id, slots, version, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGestureState(row rowScanner) (models.AdminGestureState, error) {
	var (
		state models.AdminGestureState
		slots []byte
	)
	if err := row.Scan(&state.AdminID, &slots, &state.Version, &state.CreatedAt, &state.UpdatedAt); err != nil {
		return models.AdminGestureState{}, err
	}
	if err := json.Unmarshal(slots, &state.Slots); err != nil {
		return models.AdminGestureState{}, fmt.Errorf("decode slots: %w", err)
	}
	return state, nil
}

func (s *PGStore) GetOrCreateGestureState(ctx context.Context, adminID uuid.UUID) (models.AdminGestureState, bool, error) {
	const insert = `
		INSERT INTO admin_gesture_states (admin_id, slots, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (admin_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, insert, adminID, marshalJSON(models.DefaultGestureCatalog(), "[]"))
	if err != nil {
		return models.AdminGestureState{}, false, fmt.Errorf("insert gesture state: %w", err)
	}
	created := false
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
	}
	const query = `SELECT ` + gestureStateCols + ` FROM admin_gesture_states WHERE admin_id=$1`
	state, err := scanGestureState(s.db.QueryRowContext(ctx, query, adminID))
	if err != nil {
		return models.AdminGestureState{}, false, fmt.Errorf("get gesture state: %w", err)
	}
	return state, created, nil
}

// mutateSlots applies fn to the admin's slot list under a row lock, creating
// the aggregate with the default catalog first if absent. fn returns the
// number of slots it touched.
func (s *PGStore) mutateSlots(ctx context.Context, adminID uuid.UUID, fn func(slots []models.GestureSlot) (int, error)) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO admin_gesture_states (admin_id, slots, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (admin_id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insert, adminID, marshalJSON(models.DefaultGestureCatalog(), "[]")); err != nil {
		return 0, fmt.Errorf("ensure gesture state: %w", err)
	}

	const lock = `SELECT ` + gestureStateCols + ` FROM admin_gesture_states WHERE admin_id=$1 FOR UPDATE`
	state, err := scanGestureState(tx.QueryRowContext(ctx, lock, adminID))
	if err != nil {
		return 0, fmt.Errorf("lock gesture state: %w", err)
	}

	touched, err := fn(state.Slots)
	if err != nil {
		return 0, err
	}

	const update = `
		UPDATE admin_gesture_states
		SET slots=$2, version=version+1, updated_at=NOW()
		WHERE admin_id=$1 AND version=$3
	`
	res, err := tx.ExecContext(ctx, update, adminID, marshalJSON(state.Slots, "[]"), state.Version)
	if err != nil {
		return 0, fmt.Errorf("update gesture state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, fmt.Errorf("gesture state version moved: %w", ErrConflict)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit gesture state: %w", err)
	}
	return touched, nil
}

func (s *PGStore) CustomizeSlot(ctx context.Context, adminID uuid.UUID, gestureID, gestureName string) (models.GestureSlot, error) {
	var out models.GestureSlot
	_, err := s.mutateSlots(ctx, adminID, func(slots []models.GestureSlot) (int, error) {
		slot, n, err := customizeSlot(slots, gestureID, gestureName)
		if err != nil {
			return 0, err
		}
		out = slot
		return n, nil
	})
	if err != nil {
		return models.GestureSlot{}, err
	}
	return out, nil
}

func (s *PGStore) BlockAllSlots(ctx context.Context, adminID uuid.UUID) (int, error) {
	return s.mutateSlots(ctx, adminID, func(slots []models.GestureSlot) (int, error) {
		return blockAllSlots(slots), nil
	})
}

func (s *PGStore) ResetSlots(ctx context.Context, adminID uuid.UUID, mode ResetMode) (int, error) {
	return s.mutateSlots(ctx, adminID, func(slots []models.GestureSlot) (int, error) {
		return resetSlots(slots, mode, time.Now().UTC()), nil
	})
}

// customizeSlot flips a ready slot to customed. Shared by PGStore and
// MemoryStore so both enforce the same guard.
func customizeSlot(slots []models.GestureSlot, gestureID, gestureName string) (models.GestureSlot, int, error) {
	for i := range slots {
		if slots[i].GestureID != gestureID {
			continue
		}
		if slots[i].Status != models.SlotReady {
			return models.GestureSlot{}, 0, fmt.Errorf("gesture %s already %s: %w", gestureID, slots[i].Status, ErrConflict)
		}
		now := time.Now().UTC()
		slots[i].Status = models.SlotCustomed
		slots[i].GestureName = gestureName
		slots[i].CustomedAt = &now
		return slots[i], 1, nil
	}
	return models.GestureSlot{}, 0, fmt.Errorf("gesture %s not in catalog: %w", gestureID, ErrNotFound)
}

func blockAllSlots(slots []models.GestureSlot) int {
	now := time.Now().UTC()
	for i := range slots {
		slots[i].Status = models.SlotBlocked
		slots[i].BlockedAt = &now
	}
	return len(slots)
}

func resetSlots(slots []models.GestureSlot, mode ResetMode, now time.Time) int {
	touched := 0
	for i := range slots {
		switch mode {
		case ResetBlocked:
			if slots[i].Status != models.SlotBlocked {
				continue
			}
			slots[i].Status = models.SlotReady
			slots[i].BlockedAt = nil
		case ResetCustomed:
			if slots[i].Status != models.SlotCustomed {
				continue
			}
			slots[i].Status = models.SlotReady
			slots[i].CustomedAt = nil
			slots[i].BlockedAt = nil
			slots[i].ApprovedAt = nil
		case ResetApprove:
			if slots[i].Status == models.SlotReady {
				continue
			}
			approvedAt := now
			slots[i].Status = models.SlotReady
			slots[i].CustomedAt = nil
			slots[i].BlockedAt = nil
			slots[i].ApprovedAt = &approvedAt
		default: // ResetAll
			if slots[i].Status == models.SlotReady {
				continue
			}
			slots[i].Status = models.SlotReady
			slots[i].CustomedAt = nil
			slots[i].BlockedAt = nil
			slots[i].ApprovedAt = nil
		}
		touched++
	}
	return touched
}

// --- submissions ---

const submissionCols = "id, admin_id, gesture_ids, status, reject_reason, artifact_paths, created_at, updated_at"

func scanSubmission(row rowScanner) (models.Submission, error) {
	var (
		sub      models.Submission
		gestures []byte
		paths    []byte
	)
	if err := row.Scan(&sub.ID, &sub.AdminID, &gestures, &sub.Status, &sub.RejectReason, &paths, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return models.Submission{}, err
	}
	if err := json.Unmarshal(gestures, &sub.GestureIDs); err != nil {
		return models.Submission{}, fmt.Errorf("decode gesture ids: %w", err)
	}
	if len(paths) > 0 {
		if err := json.Unmarshal(paths, &sub.ArtifactPaths); err != nil {
			return models.Submission{}, fmt.Errorf("decode artifact paths: %w", err)
		}
	}
	return sub, nil
}

func (s *PGStore) UpsertSubmission(ctx context.Context, in UpsertSubmissionInput) (models.Submission, error) {
	id := uuid.New()
	paths := models.ArtifactPaths{RawDataDir: in.RawDataDir}
	query := `
		INSERT INTO submissions (id, admin_id, gesture_ids, status, reject_reason, artifact_paths)
		VALUES ($1,$2,$3,$4,'',$5)
		ON CONFLICT (admin_id) DO UPDATE
		SET gesture_ids=EXCLUDED.gesture_ids,
		    status=EXCLUDED.status,
		    reject_reason='',
		    artifact_paths=EXCLUDED.artifact_paths,
		    updated_at=NOW()
		RETURNING ` + submissionCols
	row := s.db.QueryRowContext(ctx, query, id, in.AdminID, marshalJSON(in.GestureIDs, "[]"), in.Status, marshalJSON(paths, "{}"))
	sub, err := scanSubmission(row)
	if err != nil {
		return models.Submission{}, fmt.Errorf("upsert submission: %w", err)
	}
	return sub, nil
}

func (s *PGStore) GetSubmission(ctx context.Context, id uuid.UUID) (models.Submission, error) {
	const query = `SELECT ` + submissionCols + ` FROM submissions WHERE id=$1`
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Submission{}, ErrNotFound
		}
		return models.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (s *PGStore) GetSubmissionByAdmin(ctx context.Context, adminID uuid.UUID) (models.Submission, error) {
	const query = `SELECT ` + submissionCols + ` FROM submissions WHERE admin_id=$1`
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, query, adminID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Submission{}, ErrNotFound
		}
		return models.Submission{}, fmt.Errorf("get submission by admin: %w", err)
	}
	return sub, nil
}

func (s *PGStore) ListSubmissions(ctx context.Context, filter ListSubmissionsFilter) ([]models.Submission, error) {
	query := `SELECT ` + submissionCols + ` FROM submissions`
	args := []interface{}{}
	if filter.Status != "" {
		query += " WHERE status=$1"
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT %d", normalizeLimit(filter.Limit, 50, 500))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

func (s *PGStore) MarkSubmissionProcessing(ctx context.Context, id uuid.UUID) (models.Submission, error) {
	const query = `
		UPDATE submissions
		SET status='processing', updated_at=NOW()
		WHERE id=$1 AND status IN ('pending','failed')
		RETURNING ` + submissionCols
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, query, id))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Submission{}, fmt.Errorf("mark submission processing: %w", err)
	}
	current, getErr := s.GetSubmission(ctx, id)
	if getErr != nil {
		return models.Submission{}, getErr
	}
	return models.Submission{}, fmt.Errorf("submission is %s: %w", current.Status, ErrInvalidState)
}

func (s *PGStore) FinishSubmission(ctx context.Context, in FinishSubmissionInput) (models.Submission, error) {
	query := `
		UPDATE submissions
		SET status=$2, reject_reason=$3, updated_at=NOW()
	`
	args := []interface{}{in.ID, in.Status, in.RejectReason}
	if in.ArtifactPaths != nil {
		query += ", artifact_paths=$4 WHERE id=$1 RETURNING " + submissionCols
		args = append(args, marshalJSON(*in.ArtifactPaths, "{}"))
	} else {
		query += " WHERE id=$1 RETURNING " + submissionCols
	}
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Submission{}, ErrNotFound
		}
		return models.Submission{}, fmt.Errorf("finish submission: %w", err)
	}
	return sub, nil
}

// --- training runs ---

const trainingRunCols = "id, status, dataset_size, pose_counts, log, summary, started_at, finished_at, exit_code, created_at, updated_at"

func scanTrainingRun(row rowScanner) (models.TrainingRun, error) {
	var (
		run        models.TrainingRun
		poseCounts []byte
		logBytes   []byte
		summary    []byte
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		exitCode   sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.Status, &run.DatasetSize, &poseCounts, &logBytes, &summary,
		&startedAt, &finishedAt, &exitCode, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return models.TrainingRun{}, err
	}
	if err := json.Unmarshal(poseCounts, &run.PoseCounts); err != nil {
		return models.TrainingRun{}, fmt.Errorf("decode pose counts: %w", err)
	}
	if err := json.Unmarshal(logBytes, &run.Log); err != nil {
		return models.TrainingRun{}, fmt.Errorf("decode run log: %w", err)
	}
	if len(summary) > 0 && string(summary) != "null" {
		run.Summary = &models.TrainingSummary{}
		if err := json.Unmarshal(summary, run.Summary); err != nil {
			return models.TrainingRun{}, fmt.Errorf("decode summary: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if exitCode.Valid {
		c := int(exitCode.Int64)
		run.ExitCode = &c
	}
	return run, nil
}

func (s *PGStore) CreateTrainingRun(ctx context.Context, in TrainingRunInput) (models.TrainingRun, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	initialLog := []models.RunLogEntry{}
	if in.FirstLog != "" {
		initialLog = append(initialLog, models.RunLogEntry{At: time.Now().UTC(), Level: models.LogInfo, Message: in.FirstLog})
	}
	query := `
		INSERT INTO training_runs (id, status, dataset_size, pose_counts, log, started_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING ` + trainingRunCols
	row := s.db.QueryRowContext(ctx, query, in.ID, in.Status, in.DatasetSize,
		marshalJSON(in.PoseCounts, "[]"), marshalJSON(initialLog, "[]"), in.StartedAt)
	run, err := scanTrainingRun(row)
	if err != nil {
		return models.TrainingRun{}, fmt.Errorf("insert training run: %w", err)
	}
	return run, nil
}

func (s *PGStore) AppendTrainingLog(ctx context.Context, id uuid.UUID, level models.LogLevel, message string) error {
	entry := models.RunLogEntry{At: time.Now().UTC(), Level: level, Message: message}
	const query = `
		UPDATE training_runs
		SET log = log || $2::jsonb, updated_at=NOW()
		WHERE id=$1
	`
	res, err := s.db.ExecContext(ctx, query, id, marshalJSON([]models.RunLogEntry{entry}, "[]"))
	if err != nil {
		return fmt.Errorf("append training log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) FinishTrainingRun(ctx context.Context, in FinishRunInput) (models.TrainingRun, error) {
	var summary interface{}
	if in.Summary != nil {
		summary = marshalJSON(in.Summary, "null")
	}
	var exitCode interface{}
	if in.ExitCode != nil {
		exitCode = *in.ExitCode
	}
	query := `
		UPDATE training_runs
		SET status=$2, exit_code=$3, summary=$4, finished_at=NOW(), updated_at=NOW()
		WHERE id=$1
		RETURNING ` + trainingRunCols
	run, err := scanTrainingRun(s.db.QueryRowContext(ctx, query, in.ID, in.Status, exitCode, summary))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TrainingRun{}, ErrNotFound
		}
		return models.TrainingRun{}, fmt.Errorf("finish training run: %w", err)
	}
	return run, nil
}

func (s *PGStore) GetTrainingRun(ctx context.Context, id uuid.UUID) (models.TrainingRun, error) {
	const query = `SELECT ` + trainingRunCols + ` FROM training_runs WHERE id=$1`
	run, err := scanTrainingRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TrainingRun{}, ErrNotFound
		}
		return models.TrainingRun{}, fmt.Errorf("get training run: %w", err)
	}
	return run, nil
}

func (s *PGStore) ListTrainingRuns(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	query := fmt.Sprintf(`SELECT `+trainingRunCols+` FROM training_runs ORDER BY created_at DESC LIMIT %d`,
		normalizeLimit(limit, 20, 100))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list training runs: %w", err)
	}
	defer rows.Close()

	var runs []models.TrainingRun
	for rows.Next() {
		run, err := scanTrainingRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan training run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training runs: %w", err)
	}
	return runs, nil
}

func (s *PGStore) ForceFailRunningRun(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	entry := models.RunLogEntry{At: time.Now().UTC(), Level: models.LogError, Message: message}
	const query = `
		UPDATE training_runs
		SET status='failed', finished_at=NOW(), updated_at=NOW(), log = log || $2::jsonb
		WHERE id=$1 AND status='running'
	`
	res, err := s.db.ExecContext(ctx, query, id, marshalJSON([]models.RunLogEntry{entry}, "[]"))
	if err != nil {
		return false, fmt.Errorf("force fail run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("force fail run: %w", err)
	}
	return n > 0, nil
}

// --- sample corpus ---

const sampleCols = `id, pose_label, gesture_type,
	left_finger_0, left_finger_1, left_finger_2, left_finger_3, left_finger_4,
	right_finger_0, right_finger_1, right_finger_2, right_finger_3, right_finger_4,
	motion_x_start, motion_y_start, motion_x_mid, motion_y_mid, motion_x_end, motion_y_end,
	main_axis_x, main_axis_y, delta_x, delta_y, created_at`

func scanCorpusSample(row rowScanner) (models.CorpusSample, error) {
	var cs models.CorpusSample
	err := row.Scan(&cs.ID, &cs.PoseLabel, &cs.GestureType,
		&cs.LeftFingers[0], &cs.LeftFingers[1], &cs.LeftFingers[2], &cs.LeftFingers[3], &cs.LeftFingers[4],
		&cs.RightFingers[0], &cs.RightFingers[1], &cs.RightFingers[2], &cs.RightFingers[3], &cs.RightFingers[4],
		&cs.MotionXStart, &cs.MotionYStart, &cs.MotionXMid, &cs.MotionYMid, &cs.MotionXEnd, &cs.MotionYEnd,
		&cs.MainAxisX, &cs.MainAxisY, &cs.DeltaX, &cs.DeltaY, &cs.CreatedAt)
	if err != nil {
		return models.CorpusSample{}, err
	}
	return cs, nil
}

func (s *PGStore) CountSamples(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gesture_samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

func (s *PGStore) PoseCounts(ctx context.Context) ([]models.PoseCount, error) {
	const query = `
		SELECT pose_label, COUNT(*) AS samples
		FROM gesture_samples
		GROUP BY pose_label
		ORDER BY samples DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pose counts: %w", err)
	}
	defer rows.Close()

	var counts []models.PoseCount
	for rows.Next() {
		var pc models.PoseCount
		if err := rows.Scan(&pc.PoseLabel, &pc.Samples); err != nil {
			return nil, fmt.Errorf("scan pose count: %w", err)
		}
		counts = append(counts, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pose counts: %w", err)
	}
	return counts, nil
}

func (s *PGStore) InsertSamples(ctx context.Context, samples []models.CorpusSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO gesture_samples (pose_label, gesture_type,
			left_finger_0, left_finger_1, left_finger_2, left_finger_3, left_finger_4,
			right_finger_0, right_finger_1, right_finger_2, right_finger_3, right_finger_4,
			motion_x_start, motion_y_start, motion_x_mid, motion_y_mid, motion_x_end, motion_y_end,
			main_axis_x, main_axis_y, delta_x, delta_y)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`
	for _, cs := range samples {
		if _, err := tx.ExecContext(ctx, query, cs.PoseLabel, cs.GestureType,
			cs.LeftFingers[0], cs.LeftFingers[1], cs.LeftFingers[2], cs.LeftFingers[3], cs.LeftFingers[4],
			cs.RightFingers[0], cs.RightFingers[1], cs.RightFingers[2], cs.RightFingers[3], cs.RightFingers[4],
			cs.MotionXStart, cs.MotionYStart, cs.MotionXMid, cs.MotionYMid, cs.MotionXEnd, cs.MotionYEnd,
			cs.MainAxisX, cs.MainAxisY, cs.DeltaX, cs.DeltaY); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit samples: %w", err)
	}
	return nil
}

func (s *PGStore) ForEachSample(ctx context.Context, fn func(models.CorpusSample) error) error {
	const query = `SELECT ` + sampleCols + ` FROM gesture_samples ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("select samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		cs, err := scanCorpusSample(rows)
		if err != nil {
			return fmt.Errorf("scan sample: %w", err)
		}
		if err := fn(cs); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate samples: %w", err)
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
