package anomaly

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/agrostack/cosecha/internal/utils"
)

// LoadTrainingRows reads the historical climate CSV and returns one row per
// complete observation of the scored signals. Rows with gaps are dropped, not
// imputed: the forest should learn from clean data only.
func LoadTrainingRows(path string, logger *slog.Logger) ([][]float64, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open training data %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read training header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		// Some climate exports prefix the time column with a comment marker.
		if name == "%time" {
			name = "time"
		}
		idx[name] = i
	}

	featureIdx := make([]int, len(FeatureColumns))
	for i, col := range FeatureColumns {
		j, ok := idx[col]
		if !ok {
			return nil, fmt.Errorf("training data missing column %q", col)
		}
		featureIdx[i] = j
	}

	var rows [][]float64
	dropped := 0
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read training row: %w", err)
		}
		row := make([]float64, len(featureIdx))
		ok := true
		for i, j := range featureIdx {
			if j >= len(rec) {
				ok = false
				break
			}
			v, err := utils.ParseDecimal(rec[j])
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				ok = false
				break
			}
			row[i] = v
		}
		if !ok {
			dropped++
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("training data %s has no complete rows (%d dropped)", path, dropped)
	}
	if dropped > 0 {
		logger.Debug("training rows with gaps dropped", "rows", dropped)
	}
	return rows, nil
}
