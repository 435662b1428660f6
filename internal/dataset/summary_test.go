package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestParseTrainingSummary(t *testing.T) {
	dir := t.TempDir()
	content := "pose_label,best_kernel,best_C,best_gamma,cv_f1_score,test_f1_score\n" +
		"home,rbf,10,scale,0.9,0.8\n" +
		"next_slide,linear,1,auto,0.7,0.6\n"
	if err := os.WriteFile(filepath.Join(dir, SummaryFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("seed summary: %v", err)
	}

	summary, err := ParseTrainingSummary(dir)
	if err != nil {
		t.Fatalf("parse summary: %v", err)
	}
	if summary == nil {
		t.Fatalf("summary missing")
	}
	if len(summary.BestHyperparams) != 2 {
		t.Fatalf("want 2 rows, got %d", len(summary.BestHyperparams))
	}
	if math.Abs(summary.AverageCvF1-0.8) > 1e-9 {
		t.Fatalf("average cv f1 = %v, want 0.8", summary.AverageCvF1)
	}
	if math.Abs(summary.AverageTestF1-0.7) > 1e-9 {
		t.Fatalf("average test f1 = %v, want 0.7", summary.AverageTestF1)
	}
	row := summary.BestHyperparams[0]
	if row.PoseLabel != "home" || row.BestKernel != "rbf" || row.BestC != 10 || row.BestGamma != "scale" {
		t.Fatalf("unexpected first row: %+v", row)
	}
}

func TestParseTrainingSummaryMissingFile(t *testing.T) {
	summary, err := ParseTrainingSummary(t.TempDir())
	if err != nil {
		t.Fatalf("missing summary must not be an error: %v", err)
	}
	if summary != nil {
		t.Fatalf("missing summary must be nil")
	}
}

func TestParseTrainingSummaryHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, SummaryFileName),
		[]byte("pose_label,best_kernel,best_C,best_gamma,cv_f1_score,test_f1_score\n"), 0o644); err != nil {
		t.Fatalf("seed summary: %v", err)
	}
	summary, err := ParseTrainingSummary(dir)
	if err != nil {
		t.Fatalf("header-only summary must not be an error: %v", err)
	}
	if summary != nil {
		t.Fatalf("header-only summary must be nil")
	}
}
