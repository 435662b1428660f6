package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/gestpipe/console/internal/models"
)

func TestGetOrCreateGestureState(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	adminID := uuid.New()

	state, created, err := st.GetOrCreateGestureState(ctx, adminID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !created {
		t.Fatalf("first access must create the catalog")
	}
	if len(state.Slots) != 14 {
		t.Fatalf("default catalog has 14 slots, got %d", len(state.Slots))
	}
	for _, slot := range state.Slots {
		if slot.Status != models.SlotReady {
			t.Fatalf("slot %s not ready initially", slot.GestureID)
		}
	}

	_, created, err = st.GetOrCreateGestureState(ctx, adminID)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if created {
		t.Fatalf("second access must not create")
	}
}

func TestCustomizeSlotGuards(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	adminID := uuid.New()

	slot, err := st.CustomizeSlot(ctx, adminID, "home", "My Home")
	if err != nil {
		t.Fatalf("customize: %v", err)
	}
	if slot.Status != models.SlotCustomed || slot.GestureName != "My Home" || slot.CustomedAt == nil {
		t.Fatalf("unexpected slot after customize: %+v", slot)
	}

	// Customizing again must conflict and leave the slot unchanged.
	if _, err := st.CustomizeSlot(ctx, adminID, "home", "Other"); !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	state, _, _ := st.GetOrCreateGestureState(ctx, adminID)
	for _, s := range state.Slots {
		if s.GestureID == "home" && s.GestureName != "My Home" {
			t.Fatalf("failed customize must not mutate the slot")
		}
	}

	if _, err := st.CustomizeSlot(ctx, adminID, "no_such_gesture", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown gesture: want ErrNotFound, got %v", err)
	}
}

func TestBlockAllAndResetModes(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	adminID := uuid.New()

	if _, err := st.CustomizeSlot(ctx, adminID, "home", "H"); err != nil {
		t.Fatalf("customize: %v", err)
	}
	n, err := st.BlockAllSlots(ctx, adminID)
	if err != nil {
		t.Fatalf("block all: %v", err)
	}
	if n != 14 {
		t.Fatalf("block all must touch every slot, got %d", n)
	}
	state, _, _ := st.GetOrCreateGestureState(ctx, adminID)
	for _, s := range state.Slots {
		if s.Status != models.SlotBlocked || s.BlockedAt == nil {
			t.Fatalf("slot %s not blocked", s.GestureID)
		}
	}

	// Rejection path: blocked slots return to ready, nothing else changes.
	n, err = st.ResetSlots(ctx, adminID, ResetBlocked)
	if err != nil {
		t.Fatalf("reset blocked: %v", err)
	}
	if n != 14 {
		t.Fatalf("reset blocked touched %d slots, want 14", n)
	}
	state, _, _ = st.GetOrCreateGestureState(ctx, adminID)
	for _, s := range state.Slots {
		if s.Status != models.SlotReady || s.BlockedAt != nil {
			t.Fatalf("slot %s not reset: %+v", s.GestureID, s)
		}
	}
}

func TestResetApproveStampsApprovedAt(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	adminID := uuid.New()

	if _, err := st.BlockAllSlots(ctx, adminID); err != nil {
		t.Fatalf("block all: %v", err)
	}
	if _, err := st.ResetSlots(ctx, adminID, ResetApprove); err != nil {
		t.Fatalf("reset approve: %v", err)
	}
	state, _, _ := st.GetOrCreateGestureState(ctx, adminID)
	for _, s := range state.Slots {
		if s.Status != models.SlotReady || s.ApprovedAt == nil {
			t.Fatalf("slot %s missing approvedAt after approval reset", s.GestureID)
		}
		if s.BlockedAt != nil || s.CustomedAt != nil {
			t.Fatalf("slot %s retains stale timestamps", s.GestureID)
		}
	}
}

func TestResetCustomedTouchesOnlyCustomed(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	adminID := uuid.New()

	if _, err := st.CustomizeSlot(ctx, adminID, "home", "H"); err != nil {
		t.Fatalf("customize: %v", err)
	}
	n, err := st.ResetSlots(ctx, adminID, ResetCustomed)
	if err != nil {
		t.Fatalf("reset customed: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 slot reset, got %d", n)
	}

	// Idempotent: nothing left to touch.
	n, err = st.ResetSlots(ctx, adminID, ResetCustomed)
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if n != 0 {
		t.Fatalf("second reset touched %d slots", n)
	}
}

func TestSubmissionUpsertAndTransitions(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	adminID := uuid.New()

	sub, err := st.UpsertSubmission(ctx, UpsertSubmissionInput{
		AdminID:    adminID,
		GestureIDs: []string{"home"},
		Status:     models.SubmissionPending,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Re-submitting reuses the same record.
	again, err := st.UpsertSubmission(ctx, UpsertSubmissionInput{
		AdminID:    adminID,
		GestureIDs: []string{"home", "end"},
		Status:     models.SubmissionPending,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != sub.ID {
		t.Fatalf("upsert created a second submission for the same admin")
	}
	if len(again.GestureIDs) != 2 {
		t.Fatalf("gesture ids not replaced")
	}

	marked, err := st.MarkSubmissionProcessing(ctx, sub.ID)
	if err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if marked.Status != models.SubmissionProcessing {
		t.Fatalf("status %s, want processing", marked.Status)
	}

	// Processing is not re-approvable.
	if _, err := st.MarkSubmissionProcessing(ctx, sub.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}

	failed, err := st.FinishSubmission(ctx, FinishSubmissionInput{
		ID:           sub.ID,
		Status:       models.SubmissionFailed,
		RejectReason: "step train-models failed with exit code 2",
	})
	if err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if failed.Status != models.SubmissionFailed {
		t.Fatalf("status %s, want failed", failed.Status)
	}

	// Failed submissions can be retried.
	if _, err := st.MarkSubmissionProcessing(ctx, sub.ID); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestListSubmissionsFilter(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	for i := 0; i < 3; i++ {
		if _, err := st.UpsertSubmission(ctx, UpsertSubmissionInput{
			AdminID: uuid.New(),
			Status:  models.SubmissionPending,
		}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	sub, _ := st.UpsertSubmission(ctx, UpsertSubmissionInput{AdminID: uuid.New(), Status: models.SubmissionPending})
	if _, err := st.FinishSubmission(ctx, FinishSubmissionInput{ID: sub.ID, Status: models.SubmissionRejected, RejectReason: "nope"}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	pending, err := st.ListSubmissions(ctx, ListSubmissionsFilter{Status: models.SubmissionPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("want 3 pending, got %d", len(pending))
	}
	all, err := st.ListSubmissions(ctx, ListSubmissionsFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("want 4 total, got %d", len(all))
	}
}

func TestForceFailRunningRun(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	run, err := st.CreateTrainingRun(ctx, TrainingRunInput{Status: models.RunRunning, DatasetSize: 10})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	forced, err := st.ForceFailRunningRun(ctx, run.ID, "stale")
	if err != nil {
		t.Fatalf("force fail: %v", err)
	}
	if !forced {
		t.Fatalf("running run must be forceable")
	}
	got, _ := st.GetTrainingRun(ctx, run.ID)
	if got.Status != models.RunFailed || got.FinishedAt == nil {
		t.Fatalf("run not failed: %+v", got)
	}

	// Already-finished runs are untouched.
	forced, err = st.ForceFailRunningRun(ctx, run.ID, "again")
	if err != nil {
		t.Fatalf("second force fail: %v", err)
	}
	if forced {
		t.Fatalf("finished run must not be forceable")
	}
}

func TestSampleCorpus(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	samples := []models.CorpusSample{
		{GestureType: "static", Sample: models.Sample{PoseLabel: "home"}},
		{GestureType: "static", Sample: models.Sample{PoseLabel: "home"}},
		{GestureType: "dynamic", Sample: models.Sample{PoseLabel: "next_slide"}},
	}
	if err := st.InsertSamples(ctx, samples); err != nil {
		t.Fatalf("insert samples: %v", err)
	}

	n, err := st.CountSamples(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}

	counts, err := st.PoseCounts(ctx)
	if err != nil {
		t.Fatalf("pose counts: %v", err)
	}
	if len(counts) != 2 || counts[0].PoseLabel != "home" || counts[0].Samples != 2 {
		t.Fatalf("unexpected pose counts: %+v", counts)
	}

	var seen int
	err = st.ForEachSample(ctx, func(cs models.CorpusSample) error {
		if cs.ID == 0 {
			t.Fatalf("sample id not assigned")
		}
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("for each: %v", err)
	}
	if seen != 3 {
		t.Fatalf("iterated %d samples, want 3", seen)
	}
}
