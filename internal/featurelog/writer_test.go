package featurelog

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agrostack/cosecha/internal/models"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func featureRow(ws time.Time, values map[string]float64) models.FeatureRow {
	return models.FeatureRow{WindowStart: ws, Values: values}
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.csv")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ws := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	row := featureRow(ws, map[string]float64{
		"Tair__mean": 21, "Tair__median": 21, "Tair__min": 20, "Tair__max": 22,
		"Tair__std": 1, "Tair__p25": 20.5, "Tair__p75": 21.5, "Tair__range": 2,
		"Tair__slope": 0.001,
	})
	if err := w.Append(row); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(featureRow(ws.Add(time.Hour), row.Values)); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows := readAll(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "window_start" || rows[0][1] != "Tair__mean" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "2024-03-15 10:00:00" {
		t.Fatalf("unexpected window_start cell %q", rows[1][0])
	}
	if rows[2][1] != "21" {
		t.Fatalf("unexpected mean cell %q", rows[2][1])
	}
}

func TestAppendKeepsRowsAlignedToHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.csv")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ws := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	first := map[string]float64{}
	for _, c := range []string{"mean", "median", "min", "max", "std", "p25", "p75", "range", "slope"} {
		first["Rhair__"+c] = 70
		first["Tair__"+c] = 21
	}
	if err := w.Append(featureRow(ws, first)); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Later window lost Rhair and grew a variable the header never saw.
	second := map[string]float64{}
	for _, c := range []string{"mean", "median", "min", "max", "std", "p25", "p75", "range", "slope"} {
		second["Tair__"+c] = 23
		second["VentLee__"+c] = 10
	}
	second["Tair__slope"] = math.NaN()
	if err := w.Append(featureRow(ws.Add(time.Hour), second)); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows := readAll(t, path)
	header, last := rows[0], rows[2]
	if len(last) != len(header) {
		t.Fatalf("row width %d != header width %d", len(last), len(header))
	}
	cell := func(col string) string {
		for i, h := range header {
			if h == col {
				return last[i]
			}
		}
		t.Fatalf("column %q not in header %v", col, header)
		return ""
	}
	if got := cell("Rhair__mean"); got != "" {
		t.Fatalf("missing variable should leave empty cell, got %q", got)
	}
	if got := cell("Tair__mean"); got != "23" {
		t.Fatalf("Tair__mean = %q, want 23", got)
	}
	if got := cell("Tair__slope"); got != "" {
		t.Fatalf("undefined slope should leave empty cell, got %q", got)
	}
	for _, h := range header {
		if h == "VentLee__mean" {
			t.Fatalf("header should not grow new columns: %v", header)
		}
	}
}

func TestOpenRecoversColumnsFromExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.csv")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ws := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	values := map[string]float64{}
	for _, c := range []string{"mean", "median", "min", "max", "std", "p25", "p75", "range", "slope"} {
		values["Tair__"+c] = 21
	}
	if err := w.Append(featureRow(ws, values)); err != nil {
		t.Fatalf("append: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if cols := reopened.Columns(); len(cols) == 0 || cols[0] != "window_start" {
		t.Fatalf("columns not recovered: %v", cols)
	}
	if err := reopened.Append(featureRow(ws.Add(time.Hour), values)); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}

	rows := readAll(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected single header + 2 rows, got %d rows", len(rows))
	}
	if rows[0][0] != "window_start" && rows[1][0] == "window_start" {
		t.Fatalf("header written twice")
	}
}
