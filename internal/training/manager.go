// Package training supervises the shared-corpus retraining job. At most one
// trainer process runs per service instance; the manager owns the process
// handle and keeps the persisted run record honest about it.
package training

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gestpipe/console/internal/dataset"
	"github.com/gestpipe/console/internal/events"
	"github.com/gestpipe/console/internal/execrunner"
	"github.com/gestpipe/console/internal/models"
	"github.com/gestpipe/console/internal/store"
)

var (
	// ErrAlreadyRunning rejects a second concurrent training run.
	ErrAlreadyRunning = errors.New("training is already running")
	// ErrEmptyDataset rejects training on an empty corpus.
	ErrEmptyDataset = errors.New("training dataset is empty")
	// ErrNotActive means no training process is currently supervised.
	ErrNotActive = errors.New("no training process is currently running")
	// ErrRunMismatch means the given run id is not the active one.
	ErrRunMismatch = errors.New("run is not the active training run")
)

const trainScriptName = "train_motion_svm_all_models.py"

// modelFiles are the artifacts the trainer leaves under <pipeline>/models.
var modelFiles = []string{
	"motion_svm_model.pkl",
	"motion_scaler.pkl",
	"static_dynamic_classifier.pkl",
}

type Config struct {
	// PipelineDir holds the trainer script and its models/ and
	// training_results/ output directories.
	PipelineDir string
	PythonBin   string
}

type Manager struct {
	store  store.Store
	runner execrunner.Runner
	events events.Publisher
	cfg    Config

	mu              sync.Mutex
	runID           uuid.UUID
	process         *execrunner.Process
	cancelRequested bool
}

func New(st store.Store, runner execrunner.Runner, pub events.Publisher, cfg Config) *Manager {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if cfg.PythonBin == "" {
		cfg.PythonBin = "python3"
	}
	return &Manager{store: st, runner: runner, events: pub, cfg: cfg}
}

func (m *Manager) resultsDir() string { return filepath.Join(m.cfg.PipelineDir, "training_results") }
func (m *Manager) modelsDir() string  { return filepath.Join(m.cfg.PipelineDir, "models") }

// Start creates a run record, exports the corpus to a temp CSV, and spawns
// the trainer with its output streamed into the run log. The mutex is held
// across the whole sequence so two concurrent starts cannot both spawn.
func (m *Manager) Start(ctx context.Context) (models.TrainingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.process != nil {
		return models.TrainingRun{}, ErrAlreadyRunning
	}

	size, err := m.store.CountSamples(ctx)
	if err != nil {
		return models.TrainingRun{}, err
	}
	if size == 0 {
		return models.TrainingRun{}, ErrEmptyDataset
	}
	poseCounts, err := m.store.PoseCounts(ctx)
	if err != nil {
		return models.TrainingRun{}, err
	}

	run, err := m.store.CreateTrainingRun(ctx, store.TrainingRunInput{
		ID:          uuid.New(),
		Status:      models.RunRunning,
		DatasetSize: size,
		PoseCounts:  poseCounts,
		StartedAt:   time.Now().UTC(),
		FirstLog:    "Training run created. Preparing dataset...",
	})
	if err != nil {
		return models.TrainingRun{}, err
	}

	tempCSV := filepath.Join(os.TempDir(), fmt.Sprintf("gesture_dataset_%s.csv", run.ID))
	if err := dataset.ExportCorpusCSV(ctx, m.store, tempCSV); err != nil {
		m.finishEarly(ctx, run.ID, fmt.Sprintf("export dataset: %v", err))
		return models.TrainingRun{}, fmt.Errorf("export dataset: %w", err)
	}

	// The process outlives the request context.
	proc, err := m.runner.Start(context.Background(), execrunner.Spec{
		Command: m.cfg.PythonBin,
		Args:    []string{filepath.Join(m.cfg.PipelineDir, trainScriptName), "--dataset", tempCSV},
		Dir:     m.cfg.PipelineDir,
		Env:     []string{"PYTHONIOENCODING=utf-8"},
	}, execrunner.StreamHandlers{
		OnStdout: func(line string) { m.appendLog(run.ID, models.LogInfo, line) },
		OnStderr: func(line string) { m.appendLog(run.ID, models.LogError, line) },
	})
	if err != nil {
		if rmErr := os.Remove(tempCSV); rmErr != nil {
			log.Printf("[training] remove temp dataset: %v", rmErr)
		}
		m.finishEarly(ctx, run.ID, fmt.Sprintf("start trainer: %v", err))
		return models.TrainingRun{}, fmt.Errorf("start trainer: %w", err)
	}

	m.runID = run.ID
	m.process = proc
	m.cancelRequested = false
	go m.watch(run.ID, proc, tempCSV)

	log.Printf("[training] run %s started (dataset size %d)", run.ID, size)
	return run, nil
}

// finishEarly fails a run that never got a process.
func (m *Manager) finishEarly(ctx context.Context, runID uuid.UUID, msg string) {
	m.appendLog(runID, models.LogError, msg)
	exitCode := -1
	if _, err := m.store.FinishTrainingRun(ctx, store.FinishRunInput{
		ID:       runID,
		Status:   models.RunFailed,
		ExitCode: &exitCode,
	}); err != nil {
		log.Printf("[training] run %s: record early failure: %v", runID, err)
	}
}

// watch waits for the trainer to exit, then finalizes the run record.
// Cancellation wins over the exit code: a cancelled run is failed even if
// the process exits 0.
func (m *Manager) watch(runID uuid.UUID, proc *execrunner.Process, tempCSV string) {
	code, waitErr := proc.Wait()

	m.mu.Lock()
	cancelled := m.cancelRequested
	m.runID = uuid.Nil
	m.process = nil
	m.cancelRequested = false
	m.mu.Unlock()

	if err := os.Remove(tempCSV); err != nil && !os.IsNotExist(err) {
		log.Printf("[training] remove temp dataset: %v", err)
	}

	ctx := context.Background()
	summary, err := dataset.ParseTrainingSummary(m.resultsDir())
	if err != nil {
		log.Printf("[training] run %s: parse summary: %v", runID, err)
	}

	status := models.RunFailed
	level := models.LogError
	message := fmt.Sprintf("Training failed with exit code %d.", code)
	switch {
	case cancelled:
		message = "Training cancelled by user."
	case code == 0 && waitErr == nil:
		status = models.RunCompleted
		level = models.LogInfo
		message = "Training completed successfully."
	case waitErr != nil:
		message = fmt.Sprintf("Training process failed: %v", waitErr)
	}
	m.appendLog(runID, level, message)

	if _, err := m.store.FinishTrainingRun(ctx, store.FinishRunInput{
		ID:       runID,
		Status:   status,
		ExitCode: &code,
		Summary:  summary,
	}); err != nil {
		log.Printf("[training] run %s: finalize: %v", runID, err)
	}
	m.events.TrainingRunFinished(ctx, runID, string(status), message)
	log.Printf("[training] run %s finished: %s (exit code %d)", runID, status, code)
}

func (m *Manager) appendLog(runID uuid.UUID, level models.LogLevel, message string) {
	if err := m.store.AppendTrainingLog(context.Background(), runID, level, message); err != nil {
		log.Printf("[training] run %s: append log: %v", runID, err)
	}
}

// Cancel requests termination of the active run. If no process is active
// but the given run's record still says running, the record is force-failed
// so it cannot stay running forever.
func (m *Manager) Cancel(ctx context.Context, runID uuid.UUID) error {
	m.mu.Lock()
	if m.process == nil {
		m.mu.Unlock()
		run, err := m.store.GetTrainingRun(ctx, runID)
		if err == nil && run.Status == models.RunRunning {
			if _, err := m.store.ForceFailRunningRun(ctx, runID, "Training marked as cancelled (process not active)."); err != nil {
				log.Printf("[training] run %s: force fail: %v", runID, err)
			}
		}
		return ErrNotActive
	}
	if m.runID != runID {
		m.mu.Unlock()
		return ErrRunMismatch
	}
	m.cancelRequested = true
	proc := m.process
	m.mu.Unlock()

	m.appendLog(runID, models.LogInfo, "Cancellation requested by user.")
	if err := proc.Terminate(); err != nil {
		return fmt.Errorf("cancel training: %w", err)
	}
	return nil
}

// ModelInfo describes the trained artifact set on disk.
type ModelInfo struct {
	Exists       bool      `json:"exists"`
	LastModified time.Time `json:"lastModified,omitempty"`
	SizeBytes    int64     `json:"sizeBytes,omitempty"`
}

// Status is the training overview for the admin console.
type Status struct {
	Active             bool                `json:"active"`
	ActiveRunID        *uuid.UUID          `json:"activeRunId,omitempty"`
	DatasetSize        int64               `json:"datasetSize"`
	HasPreTrainedModel bool                `json:"hasPreTrainedModel"`
	ModelInfo          *ModelInfo          `json:"modelInfo,omitempty"`
	LatestRun          *models.TrainingRun `json:"latestRun,omitempty"`
}

// Status reports the active handle, corpus size, artifact presence, and the
// latest run. A persisted run still marked running with no live process is
// force-failed here, so a crashed instance cannot wedge the console.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	size, err := m.store.CountSamples(ctx)
	if err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	activeID := m.runID
	active := m.process != nil
	m.mu.Unlock()

	st := Status{Active: active, DatasetSize: size}
	if active {
		id := activeID
		st.ActiveRunID = &id
	}

	runs, err := m.store.ListTrainingRuns(ctx, 1)
	if err != nil {
		return Status{}, err
	}
	if len(runs) > 0 {
		latest := runs[0]
		if latest.Status == models.RunRunning && (!active || activeID != latest.ID) {
			forced, err := m.store.ForceFailRunningRun(ctx, latest.ID, "Run was recorded as running with no active process.")
			if err != nil {
				log.Printf("[training] run %s: force fail stale record: %v", latest.ID, err)
			}
			if forced {
				if refreshed, err := m.store.GetTrainingRun(ctx, latest.ID); err == nil {
					latest = refreshed
				}
			}
		}
		st.LatestRun = &latest
	}

	st.HasPreTrainedModel, st.ModelInfo = m.checkModels()
	return st, nil
}

// checkModels reports whether all trainer artifacts exist on disk.
func (m *Manager) checkModels() (bool, *ModelInfo) {
	var newest time.Time
	var total int64
	for _, name := range modelFiles {
		info, err := os.Stat(filepath.Join(m.modelsDir(), name))
		if err != nil {
			return false, nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		total += info.Size()
	}
	return true, &ModelInfo{Exists: true, LastModified: newest, SizeBytes: total}
}

// GetRun returns one run record.
func (m *Manager) GetRun(ctx context.Context, id uuid.UUID) (models.TrainingRun, error) {
	return m.store.GetTrainingRun(ctx, id)
}

// ListRuns returns the most recent run records.
func (m *Manager) ListRuns(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	return m.store.ListTrainingRuns(ctx, limit)
}
