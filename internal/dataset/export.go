package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/gestpipe/console/internal/models"
)

var corpusColumns = []string{
	"instance_id",
	"pose_label",
	"gesture_type",
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

// SampleSource streams the global corpus. Satisfied by store.Store.
type SampleSource interface {
	ForEachSample(ctx context.Context, fn func(models.CorpusSample) error) error
}

// ExportCorpusCSV streams the full sample corpus to outputPath in the
// trainer's input layout.
func ExportCorpusCSV(ctx context.Context, src SampleSource, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create corpus csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(corpusColumns); err != nil {
		return fmt.Errorf("write corpus header: %w", err)
	}
	err = src.ForEachSample(ctx, func(cs models.CorpusSample) error {
		row := make([]string, 0, len(corpusColumns))
		row = append(row, strconv.FormatInt(cs.ID, 10), cs.PoseLabel, cs.GestureType)
		for _, flag := range cs.LeftFingers {
			row = append(row, strconv.Itoa(flag))
		}
		for _, flag := range cs.RightFingers {
			row = append(row, strconv.Itoa(flag))
		}
		row = append(row,
			formatFloat(cs.MotionXStart), formatFloat(cs.MotionYStart),
			formatFloat(cs.MotionXMid), formatFloat(cs.MotionYMid),
			formatFloat(cs.MotionXEnd), formatFloat(cs.MotionYEnd),
			formatFloat(cs.MainAxisX), formatFloat(cs.MainAxisY),
			formatFloat(cs.DeltaX), formatFloat(cs.DeltaY),
		)
		return w.Write(row)
	})
	if err != nil {
		return fmt.Errorf("export corpus: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush corpus csv: %w", err)
	}
	return nil
}
