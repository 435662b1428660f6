// Package dataset owns the CSV layouts and on-disk working directories the
// training pipeline consumes: per-admin raw capture files, the cumulative
// per-admin master dataset, the exported global corpus, the reference
// template set, and the trainer's summary file.
package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gestpipe/console/internal/models"
)

// Columns is the canonical per-admin dataset layout. The corpus export adds
// gesture_type after pose_label (see corpusColumns).
var Columns = []string{
	"instance_id",
	"pose_label",
	"left_finger_state_0",
	"left_finger_state_1",
	"left_finger_state_2",
	"left_finger_state_3",
	"left_finger_state_4",
	"right_finger_state_0",
	"right_finger_state_1",
	"right_finger_state_2",
	"right_finger_state_3",
	"right_finger_state_4",
	"motion_x_start",
	"motion_y_start",
	"motion_x_mid",
	"motion_y_mid",
	"motion_x_end",
	"motion_y_end",
	"main_axis_x",
	"main_axis_y",
	"delta_x",
	"delta_y",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// SampleRow renders one sample as a row of the canonical layout.
func SampleRow(instanceID int64, poseLabel string, s models.Sample) []string {
	if s.PoseLabel != "" {
		poseLabel = s.PoseLabel
	}
	row := make([]string, 0, len(Columns))
	row = append(row, strconv.FormatInt(instanceID, 10), poseLabel)
	for _, f := range s.LeftFingers {
		row = append(row, strconv.Itoa(f))
	}
	for _, f := range s.RightFingers {
		row = append(row, strconv.Itoa(f))
	}
	row = append(row,
		formatFloat(s.MotionXStart), formatFloat(s.MotionYStart),
		formatFloat(s.MotionXMid), formatFloat(s.MotionYMid),
		formatFloat(s.MotionXEnd), formatFloat(s.MotionYEnd),
		formatFloat(s.MainAxisX), formatFloat(s.MainAxisY),
		formatFloat(s.DeltaX), formatFloat(s.DeltaY),
	)
	return row
}

// WriteRawCSV writes the full upload batch to path, numbering instances from 1.
func WriteRawCSV(path, poseLabel string, samples []models.Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create raw dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raw csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, s := range samples {
		if err := w.Write(SampleRow(int64(i+1), poseLabel, s)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush raw csv: %w", err)
	}
	return nil
}

// lastInstanceID returns the instance id of the file's final data row, or 0
// for a missing or header-only file.
func lastInstanceID(path string) (int64, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("open master csv: %w", err)
	}
	defer f.Close()

	var last string
	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines++
		last = line
	}
	if err := scanner.Err(); err != nil {
		return 0, false, fmt.Errorf("scan master csv: %w", err)
	}
	if lines <= 1 {
		return 0, true, nil
	}
	first := strings.SplitN(last, ",", 2)[0]
	id, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("parse last instance id %q: %w", first, err)
	}
	return id, true, nil
}

// AppendMasterCSV appends the samples to the admin's cumulative master
// dataset, continuing the file's monotonically increasing instance ids. Id
// numbering is per file, not global. Returns the first id assigned.
func AppendMasterCSV(path, poseLabel string, samples []models.Sample) (int64, error) {
	lastID, exists, err := lastInstanceID(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create master dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open master csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(Columns); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}
	nextID := lastID + 1
	for i, s := range samples {
		if err := w.Write(SampleRow(nextID+int64(i), poseLabel, s)); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush master csv: %w", err)
	}
	return nextID, nil
}
