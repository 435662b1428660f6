package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gestpipe/console/internal/models"
)

// SummaryFileName is the machine-parsable results file the trainer emits.
const SummaryFileName = "optimal_hyperparameters_per_pose.csv"

// ParseTrainingSummary reads the trainer's summary file from resultsDir.
// A missing or empty file returns (nil, nil): the summary is optional.
func ParseTrainingSummary(resultsDir string) (*models.TrainingSummary, error) {
	summaryPath := filepath.Join(resultsDir, SummaryFileName)
	f, err := os.Open(summaryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open summary: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read summary header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}

	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}
	numeric := func(record []string, name string) float64 {
		v, err := strconv.ParseFloat(field(record, name), 64)
		if err != nil {
			return 0
		}
		return v
	}

	summary := &models.TrainingSummary{SummaryPath: summaryPath}
	var cvSum, testSum float64
	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read summary row: %w", err)
		}
		rows++
		cvSum += numeric(record, "cv_f1_score")
		testSum += numeric(record, "test_f1_score")
		summary.BestHyperparams = append(summary.BestHyperparams, models.PoseHyperparams{
			PoseLabel:   field(record, "pose_label"),
			BestKernel:  field(record, "best_kernel"),
			BestC:       numeric(record, "best_C"),
			BestGamma:   field(record, "best_gamma"),
			TestF1Score: numeric(record, "test_f1_score"),
		})
	}
	if rows == 0 {
		return nil, nil
	}
	summary.AverageCvF1 = cvSum / float64(rows)
	summary.AverageTestF1 = testSum / float64(rows)
	return summary, nil
}
