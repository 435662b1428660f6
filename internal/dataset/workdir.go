package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9_-]+`)

// Slug normalizes a gesture name into a filesystem-safe identifier.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugPattern.ReplaceAllString(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// Workdir describes the per-admin pipeline directory layout:
//
//	<root>/user_<adminId>/
//	    raw_data/<gestureSlug>/gesture_data_custom_<adminId>_<slug>_<ts>.csv
//	    gesture_data_custom_<adminId>.csv   (cumulative master)
//	    gesture_data_custom_full.csv        (merged, pipeline-prepared)
//	    models/
//	    training_results/
//
// Each admin's directory is exclusively owned by that admin's in-flight
// operation; callers serialize access with a per-admin lock.
type Workdir struct {
	Root string
}

func (w Workdir) AdminDir(adminID uuid.UUID) string {
	return filepath.Join(w.Root, "user_"+adminID.String())
}

func (w Workdir) RawDataDir(adminID uuid.UUID) string {
	return filepath.Join(w.AdminDir(adminID), "raw_data")
}

func (w Workdir) GestureDir(adminID uuid.UUID, gestureSlug string) string {
	return filepath.Join(w.RawDataDir(adminID), gestureSlug)
}

// RawCSVPath names a timestamped capture file for one upload batch.
func (w Workdir) RawCSVPath(adminID uuid.UUID, gestureSlug string, now time.Time) string {
	stamp := now.UTC().Format("20060102150405")
	name := fmt.Sprintf("gesture_data_custom_%s_%s_%s.csv", adminID, gestureSlug, stamp)
	return filepath.Join(w.GestureDir(adminID, gestureSlug), name)
}

func (w Workdir) MasterCSVPath(adminID uuid.UUID) string {
	return filepath.Join(w.AdminDir(adminID), fmt.Sprintf("gesture_data_custom_%s.csv", adminID))
}

// MergedCSVPath is the training-ready dataset the prepare step produces.
func (w Workdir) MergedCSVPath(adminID uuid.UUID) string {
	return filepath.Join(w.AdminDir(adminID), "gesture_data_custom_full.csv")
}

func (w Workdir) ModelsDir(adminID uuid.UUID) string {
	return filepath.Join(w.AdminDir(adminID), "models")
}

func (w Workdir) TrainingResultsDir(adminID uuid.UUID) string {
	return filepath.Join(w.AdminDir(adminID), "training_results")
}

// PurgeRawData removes the admin's raw capture directory. Missing directories
// are not an error.
func (w Workdir) PurgeRawData(adminID uuid.UUID) error {
	return os.RemoveAll(w.RawDataDir(adminID))
}

// PurgeAdminDir removes the admin's whole working directory.
func (w Workdir) PurgeAdminDir(adminID uuid.UUID) error {
	return os.RemoveAll(w.AdminDir(adminID))
}

// PurgeTransients removes the intermediate datasets after a successful
// pipeline run, keeping produced model and training-result artifacts.
func (w Workdir) PurgeTransients(adminID uuid.UUID) error {
	if err := w.PurgeRawData(adminID); err != nil {
		return err
	}
	for _, p := range []string{w.MasterCSVPath(adminID), w.MergedCSVPath(adminID)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}
