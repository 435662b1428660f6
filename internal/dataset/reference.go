package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gestpipe/console/internal/validator"
)

// LoadReferenceTemplates reads the reference gesture template set
// (gesture_data_compact.csv): instance_id, pose_label, five left finger
// columns, five right finger columns, then motion columns. Rows with short
// records are skipped.
func LoadReferenceTemplates(path string) ([]validator.Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// header
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read reference header: %w", err)
	}

	var templates []validator.Template
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read reference row: %w", err)
		}
		if len(record) < 12 {
			continue
		}
		tpl := validator.Template{PoseLabel: record[1]}
		for i := 0; i < 5; i++ {
			tpl.LeftFingers[i] = atoiFlag(record[2+i])
			tpl.RightFingers[i] = atoiFlag(record[7+i])
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

func atoiFlag(s string) int {
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == 1 {
		return 1
	}
	return 0
}
