package anomaly

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/agrostack/cosecha/internal/models"
)

// AlertLog appends anomalous raw records to a CSV for offline review: the
// record's values plus a prediction marker and the anomaly score. Columns
// lock on first write so every row lines up with the header.
type AlertLog struct {
	mu      sync.Mutex
	path    string
	columns []string
}

// OpenAlertLog prepares the log at path, recovering the column set from an
// existing file so appends stay aligned across restarts.
func OpenAlertLog(path string) (*AlertLog, error) {
	l := &AlertLog{path: path}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return l, nil
		}
		return nil, fmt.Errorf("read alert log header: %w", err)
	}
	l.columns = header
	return l, nil
}

// Append writes one anomalous record with its score.
func (l *AlertLog) Append(rec models.SensorRecord, score float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)

	if l.columns == nil {
		names := make([]string, 0, len(rec.Values))
		for name := range rec.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		l.columns = append([]string{"time"}, names...)
		l.columns = append(l.columns, "prediction", "anomaly_score")
		if err := cw.Write(l.columns); err != nil {
			return fmt.Errorf("write alert log header: %w", err)
		}
	}

	row := make([]string, len(l.columns))
	for i, col := range l.columns {
		switch col {
		case "time":
			row[i] = rec.Time.UTC().Format("2006-01-02 15:04:05")
		case "prediction":
			row[i] = "-1"
		case "anomaly_score":
			row[i] = strconv.FormatFloat(score, 'g', -1, 64)
		default:
			if v, ok := rec.Values[col]; ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				row[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write alert row: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush alert log: %w", err)
	}
	return nil
}
