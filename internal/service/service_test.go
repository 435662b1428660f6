package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/gestpipe/console/internal/adminlock"
	"github.com/gestpipe/console/internal/dataset"
	"github.com/gestpipe/console/internal/models"
	"github.com/gestpipe/console/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	workdir := dataset.Workdir{Root: t.TempDir()}
	svc := New(st, workdir, adminlock.New(), nil, "")
	return svc, st
}

func consistentBatch(n int) []models.Sample {
	samples := make([]models.Sample, n)
	for i := range samples {
		samples[i] = models.Sample{RightFingers: [5]int{0, 1, 1, 0, 0}}
	}
	return samples
}

func TestUploadSamplesHappyPath(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	adminID := uuid.New()

	result, err := svc.UploadSamples(ctx, adminID, "next_slide", "Swipe Right", consistentBatch(5))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Accepted != 5 {
		t.Fatalf("accepted %d, want 5", result.Accepted)
	}
	if _, err := os.Stat(result.RawFile); err != nil {
		t.Fatalf("raw file missing: %v", err)
	}
	if _, err := os.Stat(result.MasterFile); err != nil {
		t.Fatalf("master file missing: %v", err)
	}
	if result.Warning != "" {
		t.Fatalf("unexpected warning: %s", result.Warning)
	}

	state, _, _ := st.GetOrCreateGestureState(ctx, adminID)
	for _, slot := range state.Slots {
		if slot.GestureID == "next_slide" {
			if slot.Status != models.SlotCustomed || slot.GestureName != "Swipe Right" {
				t.Fatalf("slot not customized: %+v", slot)
			}
			return
		}
	}
	t.Fatalf("slot next_slide not found")
}

func TestUploadSamplesRejectsSecondCustomize(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	adminID := uuid.New()

	if _, err := svc.UploadSamples(ctx, adminID, "home", "First", consistentBatch(5)); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	_, err := svc.UploadSamples(ctx, adminID, "home", "Second", consistentBatch(5))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestUploadSamplesValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	adminID := uuid.New()

	if _, err := svc.UploadSamples(ctx, adminID, "", "Name", consistentBatch(5)); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing gesture id: want ErrValidation, got %v", err)
	}
	if _, err := svc.UploadSamples(ctx, adminID, "home", "Name", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty batch: want ErrValidation, got %v", err)
	}
	if _, err := svc.UploadSamples(ctx, adminID, "home", "Name", consistentBatch(2)); !errors.Is(err, ErrValidation) {
		t.Fatalf("short batch: want ErrValidation, got %v", err)
	}

	// Inconsistent batch: no three identical shapes.
	samples := []models.Sample{
		{RightFingers: [5]int{1, 1, 1, 1, 1}},
		{RightFingers: [5]int{0, 0, 0, 0, 0}},
		{RightFingers: [5]int{1, 0, 1, 0, 1}},
		{RightFingers: [5]int{0, 1, 0, 1, 0}},
		{RightFingers: [5]int{1, 1, 0, 0, 0}},
	}
	if _, err := svc.UploadSamples(ctx, adminID, "home", "Name", samples); !errors.Is(err, ErrValidation) {
		t.Fatalf("inconsistent batch: want ErrValidation, got %v", err)
	}
}

func TestUploadSamplesMasterAppendIsFailSoft(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	workdir := dataset.Workdir{Root: t.TempDir()}
	svc := New(st, workdir, adminlock.New(), nil, "")
	adminID := uuid.New()

	// Make the master CSV path unwritable by occupying it with a directory.
	if err := os.MkdirAll(workdir.MasterCSVPath(adminID), 0o755); err != nil {
		t.Fatalf("occupy master path: %v", err)
	}

	result, err := svc.UploadSamples(ctx, adminID, "home", "H", consistentBatch(5))
	if err != nil {
		t.Fatalf("upload must survive master append failure: %v", err)
	}
	if result.Warning == "" {
		t.Fatalf("expected a warning about the master append")
	}
	if _, err := os.Stat(result.RawFile); err != nil {
		t.Fatalf("raw file must be retained: %v", err)
	}

	state, _, _ := st.GetOrCreateGestureState(ctx, adminID)
	for _, slot := range state.Slots {
		if slot.GestureID == "home" && slot.Status != models.SlotCustomed {
			t.Fatalf("slot transition must still happen")
		}
	}
}

func TestSubmitForApproval(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	adminID := uuid.New()

	// No recorded samples yet.
	if _, err := svc.SubmitForApproval(ctx, adminID); !errors.Is(err, ErrValidation) {
		t.Fatalf("submit without samples: want ErrValidation, got %v", err)
	}

	if _, err := svc.UploadSamples(ctx, adminID, "home", "H", consistentBatch(5)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	result, err := svc.SubmitForApproval(ctx, adminID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.BlockedCount != 14 {
		t.Fatalf("submit must block every slot, got %d", result.BlockedCount)
	}
	if result.Submission.Status != models.SubmissionPending {
		t.Fatalf("submission status %s, want pending", result.Submission.Status)
	}
	if len(result.Submission.GestureIDs) != 1 || result.Submission.GestureIDs[0] != "home" {
		t.Fatalf("submission must list the customed gestures, got %v", result.Submission.GestureIDs)
	}

	state, _, _ := st.GetOrCreateGestureState(ctx, adminID)
	for _, slot := range state.Slots {
		if slot.Status != models.SlotBlocked {
			t.Fatalf("slot %s not blocked after submit", slot.GestureID)
		}
	}

	report, err := svc.GestureStatuses(ctx, adminID)
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if !report.HasBlocked || report.CanCustom {
		t.Fatalf("statuses must reflect the blocked state: %+v", report)
	}
}

func TestResetCustomizedPurgesWorkdir(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	workdir := dataset.Workdir{Root: t.TempDir()}
	svc := New(st, workdir, adminlock.New(), nil, "")
	adminID := uuid.New()

	result, err := svc.UploadSamples(ctx, adminID, "home", "H", consistentBatch(5))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	count, err := svc.ResetCustomized(ctx, adminID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if count != 1 {
		t.Fatalf("reset count %d, want 1", count)
	}
	if _, err := os.Stat(result.RawFile); !os.IsNotExist(err) {
		t.Fatalf("raw capture must be purged")
	}
	if _, err := os.Stat(filepath.Dir(result.MasterFile)); !os.IsNotExist(err) {
		t.Fatalf("admin working dir must be purged")
	}
}

func TestResetToActiveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	adminID := uuid.New()

	if _, err := svc.UploadSamples(ctx, adminID, "home", "H", consistentBatch(5)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := svc.SubmitForApproval(ctx, adminID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	count, err := svc.ResetToActive(ctx, adminID)
	if err != nil {
		t.Fatalf("reset to active: %v", err)
	}
	if count != 14 {
		t.Fatalf("first reset touched %d, want 14", count)
	}
	count, err = svc.ResetToActive(ctx, adminID)
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if count != 0 {
		t.Fatalf("second reset touched %d, want 0", count)
	}
}

func TestCheckConflictWithoutTemplates(t *testing.T) {
	svc, _ := newTestService(t)
	conflict, _ := svc.CheckConflict(models.Sample{RightFingers: [5]int{1, 1, 0, 0, 0}})
	if conflict {
		t.Fatalf("no reference templates must mean no conflict")
	}
}
