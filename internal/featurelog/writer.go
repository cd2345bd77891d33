package featurelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/agrostack/cosecha/internal/features"
	"github.com/agrostack/cosecha/internal/models"
)

const timestampLayout = "2006-01-02 15:04:05"

// Writer appends feature rows to a CSV file. The column set is locked when
// the header is written (or recovered from an existing file) so that every
// row lines up with the header regardless of which variables a particular
// window happened to contain: columns missing from a row are left empty,
// columns the header does not know are dropped.
type Writer struct {
	mu      sync.Mutex
	path    string
	columns []string
}

// Open prepares a writer for path. If the file already exists and has a
// header, the column set is recovered from it so appends stay aligned
// across restarts.
func Open(path string) (*Writer, error) {
	w := &Writer{path: path}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return nil, fmt.Errorf("open feature log: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return w, nil
		}
		return nil, fmt.Errorf("read feature log header: %w", err)
	}
	w.columns = header
	return w, nil
}

// Columns reports the locked column order, nil before the first append to a
// fresh file.
func (w *Writer) Columns() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.columns...)
}

// Append writes one feature row. The first append to a fresh file derives
// the column set from the row and writes the header.
func (w *Writer) Append(row models.FeatureRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open feature log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)

	if w.columns == nil {
		cols := features.ColumnsFor(features.VariablesOf(row))
		w.columns = append([]string{"window_start"}, cols...)
		if err := cw.Write(w.columns); err != nil {
			return fmt.Errorf("write feature log header: %w", err)
		}
	}

	record := make([]string, len(w.columns))
	record[0] = formatWindowStart(row.WindowStart)
	for i, col := range w.columns[1:] {
		if v, ok := row.Values[col]; ok {
			record[i+1] = formatValue(v)
		}
	}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("write feature row: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush feature log: %w", err)
	}
	return nil
}

func formatWindowStart(ws time.Time) string {
	if ws.IsZero() {
		return ""
	}
	return ws.UTC().Format(timestampLayout)
}

func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
