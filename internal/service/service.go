// Package service composes the sample validator, the gesture status store,
// and the on-disk dataset layout into the admin-facing customization
// operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gestpipe/console/internal/adminlock"
	"github.com/gestpipe/console/internal/dataset"
	"github.com/gestpipe/console/internal/events"
	"github.com/gestpipe/console/internal/models"
	"github.com/gestpipe/console/internal/store"
	"github.com/gestpipe/console/internal/validator"
)

// ErrValidation marks malformed or insufficient input. Never retried;
// surfaced to the caller as a 400.
var ErrValidation = errors.New("validation failed")

type Service struct {
	store        store.Store
	workdir      dataset.Workdir
	locks        *adminlock.Locks
	events       events.Publisher
	referenceCSV string

	tplOnce   sync.Once
	templates []validator.Template
}

func New(st store.Store, workdir dataset.Workdir, locks *adminlock.Locks, pub events.Publisher, referenceCSV string) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{
		store:        st,
		workdir:      workdir,
		locks:        locks,
		events:       pub,
		referenceCSV: referenceCSV,
	}
}

func (s *Service) Workdir() dataset.Workdir { return s.workdir }

// referenceTemplates loads the known-gesture template set once. Load failure
// is fail-open: conflicts cannot be detected without the reference data, so
// uploads proceed with a logged warning rather than hard-failing.
func (s *Service) referenceTemplates() []validator.Template {
	s.tplOnce.Do(func() {
		if s.referenceCSV == "" {
			return
		}
		templates, err := dataset.LoadReferenceTemplates(s.referenceCSV)
		if err != nil {
			log.Printf("[service] reference templates unavailable: %v", err)
			return
		}
		s.templates = templates
	})
	return s.templates
}

// CheckConflict probes whether a single sample's hand shape collides with a
// known gesture template.
func (s *Service) CheckConflict(sample models.Sample) (bool, string) {
	return validator.CheckConflict(sample, s.referenceTemplates())
}

type UploadResult struct {
	Accepted   int    `json:"accepted"`
	RawFile    string `json:"rawFile"`
	MasterFile string `json:"masterFile"`
	Message    string `json:"message"`
	Warning    string `json:"warning,omitempty"`
}

// UploadSamples validates a capture batch and, if it passes, persists it and
// flips the gesture slot to customed. The conflict check runs first and
// short-circuits; quality validation runs on the full batch. The raw capture
// file is the durable source of truth: a master-append failure is reported
// as a warning but does not abort the slot transition.
func (s *Service) UploadSamples(ctx context.Context, adminID uuid.UUID, gestureID, gestureName string, samples []models.Sample) (UploadResult, error) {
	if gestureID == "" || gestureName == "" {
		return UploadResult{}, fmt.Errorf("gestureId and gestureName are required: %w", ErrValidation)
	}
	if len(samples) == 0 {
		return UploadResult{}, fmt.Errorf("missing sample data: %w", ErrValidation)
	}

	unlock := s.locks.Lock(adminID)
	defer unlock()

	result := validator.Validate(samples, s.referenceTemplates())
	if result.Conflict {
		return UploadResult{}, fmt.Errorf("%s: %w", result.Message, store.ErrConflict)
	}
	if !result.Valid {
		return UploadResult{}, fmt.Errorf("%s: %w", result.Message, ErrValidation)
	}

	slug := dataset.Slug(gestureID)
	rawPath := s.workdir.RawCSVPath(adminID, slug, time.Now())
	if err := dataset.WriteRawCSV(rawPath, gestureName, samples); err != nil {
		return UploadResult{}, fmt.Errorf("save raw samples: %w", err)
	}

	out := UploadResult{
		Accepted: len(result.ConsistentSamples),
		RawFile:  rawPath,
		Message:  result.Message,
	}

	masterPath := s.workdir.MasterCSVPath(adminID)
	if _, err := dataset.AppendMasterCSV(masterPath, gestureName, result.ConsistentSamples); err != nil {
		// The raw file above is retained, so nothing is lost; report and
		// continue to the slot transition.
		log.Printf("[service] append master csv for admin %s: %v", adminID, err)
		out.Warning = fmt.Sprintf("master dataset append failed: %v", err)
	} else {
		out.MasterFile = masterPath
	}

	if _, err := s.store.CustomizeSlot(ctx, adminID, gestureID, gestureName); err != nil {
		return out, err
	}
	return out, nil
}

type SubmitResult struct {
	BlockedCount int               `json:"blockedCount"`
	Submission   models.Submission `json:"submission"`
}

// SubmitForApproval blocks every slot for the admin and upserts a pending
// submission. All slots block, including ready ones, so no new uploads can
// land while the decision is pending.
func (s *Service) SubmitForApproval(ctx context.Context, adminID uuid.UUID) (SubmitResult, error) {
	unlock := s.locks.Lock(adminID)
	defer unlock()

	if _, err := os.Stat(s.workdir.MasterCSVPath(adminID)); err != nil {
		return SubmitResult{}, fmt.Errorf("no recorded samples found for this admin: %w", ErrValidation)
	}

	state, _, err := s.store.GetOrCreateGestureState(ctx, adminID)
	if err != nil {
		return SubmitResult{}, err
	}
	var gestureIDs []string
	for _, slot := range state.Slots {
		if slot.Status == models.SlotCustomed {
			gestureIDs = append(gestureIDs, slot.GestureID)
		}
	}

	blocked, err := s.store.BlockAllSlots(ctx, adminID)
	if err != nil {
		return SubmitResult{}, err
	}

	sub, err := s.store.UpsertSubmission(ctx, store.UpsertSubmissionInput{
		AdminID:    adminID,
		GestureIDs: gestureIDs,
		Status:     models.SubmissionPending,
		RawDataDir: s.workdir.RawDataDir(adminID),
	})
	if err != nil {
		return SubmitResult{}, err
	}
	s.events.SubmissionChanged(ctx, adminID, sub.ID, string(sub.Status), "submitted for approval")
	return SubmitResult{BlockedCount: blocked, Submission: sub}, nil
}

type StatusReport struct {
	Slots       []models.GestureSlot `json:"slots"`
	HasBlocked  bool                 `json:"hasBlockedGestures"`
	HasCustomed bool                 `json:"hasCustomedGestures"`
	CanCustom   bool                 `json:"canCustom"`
}

// GestureStatuses returns the admin's slot list, lazily creating the default
// catalog on first access.
func (s *Service) GestureStatuses(ctx context.Context, adminID uuid.UUID) (StatusReport, error) {
	state, _, err := s.store.GetOrCreateGestureState(ctx, adminID)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{Slots: state.Slots}
	for _, slot := range state.Slots {
		switch slot.Status {
		case models.SlotBlocked:
			report.HasBlocked = true
		case models.SlotCustomed:
			report.HasCustomed = true
		}
	}
	report.CanCustom = !report.HasBlocked
	return report, nil
}

// ResetCustomized moves the admin's customed slots back to ready and
// discards the working raw-sample directory.
func (s *Service) ResetCustomized(ctx context.Context, adminID uuid.UUID) (int, error) {
	unlock := s.locks.Lock(adminID)
	defer unlock()

	count, err := s.store.ResetSlots(ctx, adminID, store.ResetCustomed)
	if err != nil {
		return 0, err
	}
	if err := s.workdir.PurgeAdminDir(adminID); err != nil {
		log.Printf("[service] purge admin dir %s: %v", adminID, err)
	}
	return count, nil
}

// ResetToActive moves every slot back to ready regardless of prior status.
// Idempotent: a second call touches nothing.
func (s *Service) ResetToActive(ctx context.Context, adminID uuid.UUID) (int, error) {
	return s.store.ResetSlots(ctx, adminID, store.ResetAll)
}

// SubmissionForAdmin returns the admin's current submission, if any.
func (s *Service) SubmissionForAdmin(ctx context.Context, adminID uuid.UUID) (models.Submission, error) {
	return s.store.GetSubmissionByAdmin(ctx, adminID)
}

// ListSubmissions returns submissions for the superadmin review screen.
func (s *Service) ListSubmissions(ctx context.Context, status models.SubmissionStatus, limit int) ([]models.Submission, error) {
	return s.store.ListSubmissions(ctx, store.ListSubmissionsFilter{Status: status, Limit: limit})
}
