package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gestpipe/console/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	states      map[uuid.UUID]*models.AdminGestureState
	submissions map[uuid.UUID]models.Submission
	byAdmin     map[uuid.UUID]uuid.UUID
	runs        map[uuid.UUID]*models.TrainingRun
	samples     []models.CorpusSample
	nextSample  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:      map[uuid.UUID]*models.AdminGestureState{},
		submissions: map[uuid.UUID]models.Submission{},
		byAdmin:     map[uuid.UUID]uuid.UUID{},
		runs:        map[uuid.UUID]*models.TrainingRun{},
		nextSample:  1,
	}
}

func (m *MemoryStore) stateLocked(adminID uuid.UUID) (*models.AdminGestureState, bool) {
	state, ok := m.states[adminID]
	if ok {
		return state, false
	}
	now := time.Now().UTC()
	state = &models.AdminGestureState{
		AdminID:   adminID,
		Slots:     models.DefaultGestureCatalog(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.states[adminID] = state
	return state, true
}

func copyState(state *models.AdminGestureState) models.AdminGestureState {
	out := *state
	out.Slots = append([]models.GestureSlot(nil), state.Slots...)
	return out
}

func (m *MemoryStore) GetOrCreateGestureState(ctx context.Context, adminID uuid.UUID) (models.AdminGestureState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, created := m.stateLocked(adminID)
	return copyState(state), created, nil
}

func (m *MemoryStore) CustomizeSlot(ctx context.Context, adminID uuid.UUID, gestureID, gestureName string) (models.GestureSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, _ := m.stateLocked(adminID)
	slot, _, err := customizeSlot(state.Slots, gestureID, gestureName)
	if err != nil {
		return models.GestureSlot{}, err
	}
	state.Version++
	state.UpdatedAt = time.Now().UTC()
	return slot, nil
}

func (m *MemoryStore) BlockAllSlots(ctx context.Context, adminID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, _ := m.stateLocked(adminID)
	n := blockAllSlots(state.Slots)
	state.Version++
	state.UpdatedAt = time.Now().UTC()
	return n, nil
}

func (m *MemoryStore) ResetSlots(ctx context.Context, adminID uuid.UUID, mode ResetMode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, _ := m.stateLocked(adminID)
	n := resetSlots(state.Slots, mode, time.Now().UTC())
	state.Version++
	state.UpdatedAt = time.Now().UTC()
	return n, nil
}

func (m *MemoryStore) UpsertSubmission(ctx context.Context, in UpsertSubmissionInput) (models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if id, ok := m.byAdmin[in.AdminID]; ok {
		sub := m.submissions[id]
		sub.GestureIDs = append([]string(nil), in.GestureIDs...)
		sub.Status = in.Status
		sub.RejectReason = ""
		sub.ArtifactPaths = models.ArtifactPaths{RawDataDir: in.RawDataDir}
		sub.UpdatedAt = now
		m.submissions[id] = sub
		return sub, nil
	}
	sub := models.Submission{
		ID:            uuid.New(),
		AdminID:       in.AdminID,
		GestureIDs:    append([]string(nil), in.GestureIDs...),
		Status:        in.Status,
		ArtifactPaths: models.ArtifactPaths{RawDataDir: in.RawDataDir},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.submissions[sub.ID] = sub
	m.byAdmin[in.AdminID] = sub.ID
	return sub, nil
}

func (m *MemoryStore) GetSubmission(ctx context.Context, id uuid.UUID) (models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.submissions[id]
	if !ok {
		return models.Submission{}, ErrNotFound
	}
	return sub, nil
}

func (m *MemoryStore) GetSubmissionByAdmin(ctx context.Context, adminID uuid.UUID) (models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byAdmin[adminID]
	if !ok {
		return models.Submission{}, ErrNotFound
	}
	return m.submissions[id], nil
}

func (m *MemoryStore) ListSubmissions(ctx context.Context, filter ListSubmissionsFilter) ([]models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var subs []models.Submission
	for _, sub := range m.submissions {
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].UpdatedAt.After(subs[j].UpdatedAt) })
	limit := normalizeLimit(filter.Limit, 50, 500)
	if len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

func (m *MemoryStore) MarkSubmissionProcessing(ctx context.Context, id uuid.UUID) (models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return models.Submission{}, ErrNotFound
	}
	if sub.Status != models.SubmissionPending && sub.Status != models.SubmissionFailed {
		return models.Submission{}, ErrInvalidState
	}
	sub.Status = models.SubmissionProcessing
	sub.UpdatedAt = time.Now().UTC()
	m.submissions[id] = sub
	return sub, nil
}

func (m *MemoryStore) FinishSubmission(ctx context.Context, in FinishSubmissionInput) (models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[in.ID]
	if !ok {
		return models.Submission{}, ErrNotFound
	}
	sub.Status = in.Status
	sub.RejectReason = in.RejectReason
	if in.ArtifactPaths != nil {
		sub.ArtifactPaths = *in.ArtifactPaths
	}
	sub.UpdatedAt = time.Now().UTC()
	m.submissions[in.ID] = sub
	return sub, nil
}

func (m *MemoryStore) CreateTrainingRun(ctx context.Context, in TrainingRunInput) (models.TrainingRun, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	now := time.Now().UTC()
	run := &models.TrainingRun{
		ID:          in.ID,
		Status:      in.Status,
		DatasetSize: in.DatasetSize,
		PoseCounts:  append([]models.PoseCount(nil), in.PoseCounts...),
		Log:         []models.RunLogEntry{},
		StartedAt:   &in.StartedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.FirstLog != "" {
		run.Log = append(run.Log, models.RunLogEntry{At: now, Level: models.LogInfo, Message: in.FirstLog})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return copyRun(run), nil
}

func copyRun(run *models.TrainingRun) models.TrainingRun {
	out := *run
	out.PoseCounts = append([]models.PoseCount(nil), run.PoseCounts...)
	out.Log = append([]models.RunLogEntry(nil), run.Log...)
	if run.Summary != nil {
		summary := *run.Summary
		out.Summary = &summary
	}
	return out
}

func (m *MemoryStore) AppendTrainingLog(ctx context.Context, id uuid.UUID, level models.LogLevel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Log = append(run.Log, models.RunLogEntry{At: time.Now().UTC(), Level: level, Message: message})
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) FinishTrainingRun(ctx context.Context, in FinishRunInput) (models.TrainingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[in.ID]
	if !ok {
		return models.TrainingRun{}, ErrNotFound
	}
	now := time.Now().UTC()
	run.Status = in.Status
	run.ExitCode = in.ExitCode
	run.Summary = in.Summary
	run.FinishedAt = &now
	run.UpdatedAt = now
	return copyRun(run), nil
}

func (m *MemoryStore) GetTrainingRun(ctx context.Context, id uuid.UUID) (models.TrainingRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return models.TrainingRun{}, ErrNotFound
	}
	return copyRun(run), nil
}

func (m *MemoryStore) ListTrainingRuns(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var runs []models.TrainingRun
	for _, run := range m.runs {
		runs = append(runs, copyRun(run))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	max := normalizeLimit(limit, 20, 100)
	if len(runs) > max {
		runs = runs[:max]
	}
	return runs, nil
}

func (m *MemoryStore) ForceFailRunningRun(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || run.Status != models.RunRunning {
		return false, nil
	}
	now := time.Now().UTC()
	run.Status = models.RunFailed
	run.FinishedAt = &now
	run.UpdatedAt = now
	run.Log = append(run.Log, models.RunLogEntry{At: now, Level: models.LogError, Message: message})
	return true, nil
}

func (m *MemoryStore) CountSamples(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.samples)), nil
}

func (m *MemoryStore) PoseCounts(ctx context.Context) ([]models.PoseCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tally := map[string]int64{}
	for _, cs := range m.samples {
		tally[cs.PoseLabel]++
	}
	counts := make([]models.PoseCount, 0, len(tally))
	for label, n := range tally {
		counts = append(counts, models.PoseCount{PoseLabel: label, Samples: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Samples != counts[j].Samples {
			return counts[i].Samples > counts[j].Samples
		}
		return counts[i].PoseLabel < counts[j].PoseLabel
	})
	return counts, nil
}

func (m *MemoryStore) InsertSamples(ctx context.Context, samples []models.CorpusSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, cs := range samples {
		cs.ID = m.nextSample
		cs.CreatedAt = now
		m.nextSample++
		m.samples = append(m.samples, cs)
	}
	return nil
}

func (m *MemoryStore) ForEachSample(ctx context.Context, fn func(models.CorpusSample) error) error {
	m.mu.RLock()
	samples := append([]models.CorpusSample(nil), m.samples...)
	m.mu.RUnlock()
	for _, cs := range samples {
		if err := fn(cs); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
