// Package pipeline sequences the external per-admin approval steps: verify
// remote data, fetch it, prepare the merged dataset, train, upload artifacts.
// Steps are fail-fast; slot state is always reconciled on the way out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/gestpipe/console/internal/adminlock"
	"github.com/gestpipe/console/internal/dataset"
	"github.com/gestpipe/console/internal/events"
	"github.com/gestpipe/console/internal/execrunner"
	"github.com/gestpipe/console/internal/models"
	"github.com/gestpipe/console/internal/store"
)

const trainScriptName = "train_motion_svm_all_models.py"

// Archiver pushes produced artifact directories to durable storage.
// Archival is best-effort; a nil Archiver disables it.
type Archiver interface {
	ArchiveDir(ctx context.Context, dir, keyPrefix string) (int, error)
}

// Config locates the external scripts and bounds each step.
type Config struct {
	// ScriptsDir holds the remote-archive scripts (check, fetch, upload).
	ScriptsDir string
	// PipelineDir holds the dataset-preparation and training scripts.
	PipelineDir string
	PythonBin   string

	StepTimeout  time.Duration
	TrainTimeout time.Duration
}

// StepError reports which pipeline step failed and with what output.
type StepError struct {
	Step     string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

func (e *StepError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("step %s timed out (exit code %d)", e.Step, e.ExitCode)
	}
	return fmt.Sprintf("step %s failed with exit code %d", e.Step, e.ExitCode)
}

type Orchestrator struct {
	store    store.Store
	runner   execrunner.Runner
	workdir  dataset.Workdir
	locks    *adminlock.Locks
	events   events.Publisher
	archiver Archiver
	cfg      Config
}

func New(st store.Store, runner execrunner.Runner, workdir dataset.Workdir, locks *adminlock.Locks, pub events.Publisher, archiver Archiver, cfg Config) *Orchestrator {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if cfg.PythonBin == "" {
		cfg.PythonBin = "python3"
	}
	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = 10 * time.Minute
	}
	if cfg.TrainTimeout == 0 {
		cfg.TrainTimeout = time.Hour
	}
	return &Orchestrator{
		store:    st,
		runner:   runner,
		workdir:  workdir,
		locks:    locks,
		events:   pub,
		archiver: archiver,
		cfg:      cfg,
	}
}

// Approve transitions the submission to processing and launches the pipeline
// in the background. Only pending or failed submissions can be approved; any
// other state returns ErrInvalidState. The returned snapshot reflects the
// processing state.
func (o *Orchestrator) Approve(ctx context.Context, submissionID uuid.UUID) (models.Submission, error) {
	sub, err := o.store.MarkSubmissionProcessing(ctx, submissionID)
	if err != nil {
		return models.Submission{}, err
	}
	go o.run(context.Background(), sub)
	return sub, nil
}

// Reject finalizes a pending or failed submission as rejected and unblocks
// the admin's slots. Customed slots keep their status so the admin can
// re-submit without recapturing.
func (o *Orchestrator) Reject(ctx context.Context, submissionID uuid.UUID, reason string) (models.Submission, error) {
	sub, err := o.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return models.Submission{}, err
	}
	if sub.Status != models.SubmissionPending && sub.Status != models.SubmissionFailed {
		return models.Submission{}, fmt.Errorf("submission is %s: %w", sub.Status, store.ErrInvalidState)
	}

	unlock := o.locks.Lock(sub.AdminID)
	defer unlock()

	sub, err = o.store.FinishSubmission(ctx, store.FinishSubmissionInput{
		ID:           submissionID,
		Status:       models.SubmissionRejected,
		RejectReason: reason,
	})
	if err != nil {
		return models.Submission{}, err
	}
	if _, err := o.store.ResetSlots(ctx, sub.AdminID, store.ResetBlocked); err != nil {
		log.Printf("[pipeline] reset blocked slots for admin %s: %v", sub.AdminID, err)
	}
	o.events.SubmissionChanged(ctx, sub.AdminID, sub.ID, string(sub.Status), reason)
	return sub, nil
}

// run executes the approval steps for one submission. Slot state is
// reconciled on every exit path: approvedAt stamped on success, everything
// back to ready on failure.
func (o *Orchestrator) run(ctx context.Context, sub models.Submission) {
	adminID := sub.AdminID
	unlock := o.locks.Lock(adminID)
	defer unlock()

	success := false
	defer func() {
		mode := store.ResetAll
		if success {
			mode = store.ResetApprove
		}
		if _, err := o.store.ResetSlots(ctx, adminID, mode); err != nil {
			log.Printf("[pipeline] reset slots for admin %s: %v", adminID, err)
		}
	}()

	log.Printf("[pipeline] submission %s: starting approval pipeline for admin %s", sub.ID, adminID)
	if err := o.executeSteps(ctx, adminID); err != nil {
		o.fail(ctx, sub, err)
		return
	}
	success = true

	paths := &models.ArtifactPaths{
		ModelsDir:          o.workdir.ModelsDir(adminID),
		TrainingResultsDir: o.workdir.TrainingResultsDir(adminID),
	}
	finished, err := o.store.FinishSubmission(ctx, store.FinishSubmissionInput{
		ID:            sub.ID,
		Status:        models.SubmissionAccepted,
		ArtifactPaths: paths,
	})
	if err != nil {
		log.Printf("[pipeline] submission %s: record acceptance: %v", sub.ID, err)
		return
	}
	if err := o.workdir.PurgeTransients(adminID); err != nil {
		log.Printf("[pipeline] submission %s: purge transients: %v", sub.ID, err)
	}
	o.archive(ctx, adminID, paths)
	o.events.SubmissionChanged(ctx, adminID, finished.ID, string(finished.Status), "pipeline completed")
	log.Printf("[pipeline] submission %s: accepted", sub.ID)
}

func (o *Orchestrator) fail(ctx context.Context, sub models.Submission, err error) {
	detail := err.Error()
	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.Stderr != "" {
		detail = fmt.Sprintf("%s: %s", stepErr.Error(), truncate(stepErr.Stderr, 4000))
	}
	log.Printf("[pipeline] submission %s: %s", sub.ID, detail)
	if _, err := o.store.FinishSubmission(ctx, store.FinishSubmissionInput{
		ID:           sub.ID,
		Status:       models.SubmissionFailed,
		RejectReason: detail,
	}); err != nil {
		log.Printf("[pipeline] submission %s: record failure: %v", sub.ID, err)
	}
	o.events.SubmissionChanged(ctx, sub.AdminID, sub.ID, string(models.SubmissionFailed), detail)
}

func (o *Orchestrator) executeSteps(ctx context.Context, adminID uuid.UUID) error {
	id := adminID.String()

	if err := o.runStep(ctx, "check-remote-data", execrunner.Spec{
		Command: o.cfg.PythonBin,
		Args:    []string{filepath.Join(o.cfg.ScriptsDir, "check_drive_data.py"), id},
		Dir:     o.cfg.ScriptsDir,
		Timeout: o.cfg.StepTimeout,
	}); err != nil {
		return err
	}

	if err := o.runStep(ctx, "fetch-user-data", execrunner.Spec{
		Command: o.cfg.PythonBin,
		Args:    []string{filepath.Join(o.cfg.ScriptsDir, "download_user_data.py"), "--user-id", id},
		Dir:     o.cfg.ScriptsDir,
		Timeout: o.cfg.StepTimeout,
	}); err != nil {
		return err
	}

	if err := o.runStep(ctx, "prepare-dataset", execrunner.Spec{
		Command: o.cfg.PythonBin,
		Args:    []string{filepath.Join(o.cfg.PipelineDir, "prepare_user_data.py"), "--user-id", id},
		Dir:     o.cfg.PipelineDir,
		Timeout: o.cfg.StepTimeout,
	}); err != nil {
		return err
	}

	if err := o.trainStep(ctx, adminID); err != nil {
		return err
	}

	return o.runStep(ctx, "upload-artifacts", execrunner.Spec{
		Command: o.cfg.PythonBin,
		Args:    []string{filepath.Join(o.cfg.ScriptsDir, "upload_trained_model.py"), "--user-id", id},
		Dir:     o.cfg.ScriptsDir,
		Timeout: o.cfg.StepTimeout,
	})
}

// trainStep runs the trainer inside the admin's directory on the merged
// dataset. The script is copied in so its relative output paths land in the
// admin's folder; the working copy is removed afterwards.
func (o *Orchestrator) trainStep(ctx context.Context, adminID uuid.UUID) error {
	adminDir := o.workdir.AdminDir(adminID)
	src := filepath.Join(o.cfg.PipelineDir, trainScriptName)
	workingCopy := filepath.Join(adminDir, trainScriptName)
	if err := copyFile(src, workingCopy); err != nil {
		return &StepError{Step: "train-models", ExitCode: -1, Stderr: fmt.Sprintf("place training script: %v", err)}
	}
	defer func() {
		if err := os.Remove(workingCopy); err != nil && !os.IsNotExist(err) {
			log.Printf("[pipeline] remove training script copy for admin %s: %v", adminID, err)
		}
	}()

	return o.runStep(ctx, "train-models", execrunner.Spec{
		Command: o.cfg.PythonBin,
		Args:    []string{trainScriptName, "--dataset", filepath.Base(o.workdir.MergedCSVPath(adminID))},
		Dir:     adminDir,
		Timeout: o.cfg.TrainTimeout,
	})
}

func (o *Orchestrator) runStep(ctx context.Context, step string, spec execrunner.Spec) error {
	log.Printf("[pipeline] step %s: %s %v", step, spec.Command, spec.Args)
	res, err := o.runner.Run(ctx, spec)
	if err == nil {
		return nil
	}
	var exitErr *execrunner.ExitError
	if errors.As(err, &exitErr) {
		return &StepError{
			Step:     step,
			ExitCode: exitErr.ExitCode,
			Stdout:   exitErr.Stdout,
			Stderr:   exitErr.Stderr,
			TimedOut: exitErr.TimedOut,
		}
	}
	return &StepError{Step: step, ExitCode: res.ExitCode, Stderr: err.Error()}
}

func (o *Orchestrator) archive(ctx context.Context, adminID uuid.UUID, paths *models.ArtifactPaths) {
	if o.archiver == nil {
		return
	}
	for _, dir := range []struct{ path, key string }{
		{paths.ModelsDir, "models"},
		{paths.TrainingResultsDir, "training_results"},
	} {
		if dir.path == "" {
			continue
		}
		if _, err := os.Stat(dir.path); err != nil {
			continue
		}
		keyPrefix := filepath.ToSlash(filepath.Join("users", adminID.String(), dir.key))
		n, err := o.archiver.ArchiveDir(ctx, dir.path, keyPrefix)
		if err != nil {
			log.Printf("[pipeline] archive %s for admin %s: %v", dir.key, adminID, err)
			continue
		}
		log.Printf("[pipeline] archived %d files from %s for admin %s", n, dir.key, adminID)
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}
