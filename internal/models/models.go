package models

import (
	"time"

	"github.com/google/uuid"
)

// SlotStatus is the lifecycle state of one customizable gesture slot.
type SlotStatus string

const (
	SlotReady    SlotStatus = "ready"
	SlotCustomed SlotStatus = "customed"
	SlotBlocked  SlotStatus = "blocked"
)

// GestureSlot is one customizable gesture identity in an admin's fixed catalog.
type GestureSlot struct {
	GestureID   string     `json:"gestureId"`
	GestureName string     `json:"gestureName"`
	Status      SlotStatus `json:"status"`
	CustomedAt  *time.Time `json:"customedAt,omitempty"`
	BlockedAt   *time.Time `json:"blockedAt,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
}

// AdminGestureState owns the ordered slot list for one admin. Version backs
// optimistic concurrency on bulk transitions.
type AdminGestureState struct {
	AdminID   uuid.UUID     `json:"adminId"`
	Slots     []GestureSlot `json:"slots"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// DefaultGestureCatalog returns the fixed slot set every admin starts with.
// The catalog is constant-size; slots are never added or removed per admin.
func DefaultGestureCatalog() []GestureSlot {
	defaults := []struct{ id, name string }{
		{"end", "End"},
		{"end_present", "End Present"},
		{"home", "Home"},
		{"next_slide", "Next Slide"},
		{"previous_slide", "Previous Slide"},
		{"rotate_down", "Rotate Down"},
		{"rotate_left", "Rotate Left"},
		{"rotate_right", "Rotate Right"},
		{"rotate_up", "Rotate Up"},
		{"start_present", "Start Present"},
		{"zoom_in", "Zoom In"},
		{"zoom_in_slide", "Zoom In Slide"},
		{"zoom_out", "Zoom Out"},
		{"zoom_out_slide", "Zoom Out Slide"},
	}
	slots := make([]GestureSlot, 0, len(defaults))
	for _, d := range defaults {
		slots = append(slots, GestureSlot{
			GestureID:   d.id,
			GestureName: d.name,
			Status:      SlotReady,
		})
	}
	return slots
}

// Sample is one recorded gesture capture. Finger flags are 0/1 per finger
// (thumb..pinky) for each hand; motion is a 2-D trace plus a delta vector.
type Sample struct {
	PoseLabel    string  `json:"poseLabel,omitempty"`
	LeftFingers  [5]int  `json:"leftFingers"`
	RightFingers [5]int  `json:"rightFingers"`
	MotionXStart float64 `json:"motionXStart"`
	MotionYStart float64 `json:"motionYStart"`
	MotionXMid   float64 `json:"motionXMid"`
	MotionYMid   float64 `json:"motionYMid"`
	MotionXEnd   float64 `json:"motionXEnd"`
	MotionYEnd   float64 `json:"motionYEnd"`
	MainAxisX    float64 `json:"mainAxisX"`
	MainAxisY    float64 `json:"mainAxisY"`
	DeltaX       float64 `json:"deltaX"`
	DeltaY       float64 `json:"deltaY"`
}

// CorpusSample is a persisted sample in the global training corpus.
type CorpusSample struct {
	ID          int64  `json:"id"`
	GestureType string `json:"gestureType"`
	Sample
	CreatedAt time.Time `json:"createdAt"`
}

// PoseCount is the per-pose sample tally captured on a training run.
type PoseCount struct {
	PoseLabel string `json:"poseLabel"`
	Samples   int64  `json:"samples"`
}

// SubmissionStatus is the lifecycle state of a customization submission.
type SubmissionStatus string

const (
	SubmissionDraft      SubmissionStatus = "draft"
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionProcessing SubmissionStatus = "processing"
	SubmissionAccepted   SubmissionStatus = "accepted"
	SubmissionRejected   SubmissionStatus = "rejected"
	SubmissionFailed     SubmissionStatus = "failed"
)

// ArtifactPaths locates a submission's produced artifacts inside the admin's
// working directory.
type ArtifactPaths struct {
	ModelsDir          string `json:"modelsDir,omitempty"`
	TrainingResultsDir string `json:"trainingResultsDir,omitempty"`
	RawDataDir         string `json:"rawDataDir,omitempty"`
}

// Submission records one admin's customization request lifecycle. At most one
// active submission exists per admin (upsert by adminId).
type Submission struct {
	ID            uuid.UUID        `json:"id"`
	AdminID       uuid.UUID        `json:"adminId"`
	GestureIDs    []string         `json:"gestureIds"`
	Status        SubmissionStatus `json:"status"`
	RejectReason  string           `json:"rejectReason,omitempty"`
	ArtifactPaths ArtifactPaths    `json:"artifactPaths"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// RunStatus is the lifecycle state of a global training run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// LogLevel tags a training run log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogError LogLevel = "error"
)

// RunLogEntry is one append-only line of a training run's log.
type RunLogEntry struct {
	At      time.Time `json:"at"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

// PoseHyperparams is one row of the trainer's summary file.
type PoseHyperparams struct {
	PoseLabel   string  `json:"poseLabel"`
	BestKernel  string  `json:"bestKernel"`
	BestC       float64 `json:"bestC"`
	BestGamma   string  `json:"bestGamma"`
	TestF1Score float64 `json:"testF1Score"`
}

// TrainingSummary aggregates the trainer's machine-parsable results file.
type TrainingSummary struct {
	AverageCvF1     float64           `json:"averageCvF1"`
	AverageTestF1   float64           `json:"averageTestF1"`
	BestHyperparams []PoseHyperparams `json:"bestHyperparams"`
	SummaryPath     string            `json:"summaryPath,omitempty"`
}

// TrainingRun is the audit record of one shared-corpus retraining job. The
// "one running at a time" invariant is enforced by the in-process manager, not
// by this record.
type TrainingRun struct {
	ID          uuid.UUID        `json:"id"`
	Status      RunStatus        `json:"status"`
	DatasetSize int64            `json:"datasetSize"`
	PoseCounts  []PoseCount      `json:"poseCounts"`
	Log         []RunLogEntry    `json:"log"`
	Summary     *TrainingSummary `json:"summary,omitempty"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	FinishedAt  *time.Time       `json:"finishedAt,omitempty"`
	ExitCode    *int             `json:"exitCode,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
