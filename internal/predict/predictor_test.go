package predict

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

func TestLagBuilderBorrowsNearestRow(t *testing.T) {
	mains := [][]float64{mainRow(10), mainRow(20), mainRow(30)}
	c := testCorpus(t, mains, []float64{1, 2, 3})
	b := NewLagFeatureBuilder(c, nil)

	// CO2air__mean is main column 0; 19 sits nearest to the row at 20.
	out := b.Build(map[string]float64{"CO2air__mean": 19})

	if len(out) != c.Dim() {
		t.Fatalf("vector length = %d, want %d", len(out), c.Dim())
	}
	if out[0] != 19 {
		t.Fatalf("live value not preserved: %v", out[0])
	}
	// The test corpus tags each row's lag block with 1000+row.
	for j := c.MainDim(); j < c.Dim(); j++ {
		if out[j] != 1001 {
			t.Fatalf("lag cell %d = %v, want 1001 (row 1's block)", j, out[j])
		}
	}
}

func TestLagBuilderSubstitutesColumnMeans(t *testing.T) {
	mains := [][]float64{mainRow(10), mainRow(20), mainRow(30)}
	for i := range mains {
		mains[i][5] = float64(i) // PipeLow__mean varies 0,1,2
	}
	c := testCorpus(t, mains, []float64{1, 2, 3})
	b := NewLagFeatureBuilder(c, nil)

	out := b.Build(map[string]float64{"CO2air__mean": 30})
	if got := out[5]; math.Abs(got-1) > 1e-12 {
		t.Fatalf("missing main should take column mean 1, got %v", got)
	}
}

func TestDecodeModelData(t *testing.T) {
	payload := []byte(`{
		"Tair__mean": 21.4,
		"Rhair__mean": "70,5",
		"CO2air__mean": NaN,
		"cosecha": 3,
		"tiempo_final": 12.5,
		"__time__": "2024-01-01 00:00:00",
		"timestamp": "2024-06-01T10:00:00"
	}`)

	md, err := DecodeModelData(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if md.Values["Tair__mean"] != 21.4 {
		t.Fatalf("Tair__mean = %v", md.Values["Tair__mean"])
	}
	if md.Values["Rhair__mean"] != 70.5 {
		t.Fatalf("comma decimal not normalised: %v", md.Values["Rhair__mean"])
	}
	if _, ok := md.Values["CO2air__mean"]; ok {
		t.Fatal("NaN literal should drop the field")
	}
	if got, ok := md.HarvestNumber.(float64); !ok || got != 3 {
		t.Fatalf("harvest number = %v, want cosecha alias 3", md.HarvestNumber)
	}
	if got, ok := md.DaysToHarvestReal.(float64); !ok || got != 12.5 {
		t.Fatalf("days real = %v, want 12.5", md.DaysToHarvestReal)
	}
	if md.Timestamp != "2024-06-01T10:00:00" {
		t.Fatalf("timestamp = %q", md.Timestamp)
	}
}

func TestDecodeModelDataPrefersHarvestNumber(t *testing.T) {
	md, err := DecodeModelData([]byte(`{"harvest_number": "B-7", "cosecha": 3}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, ok := md.HarvestNumber.(string); !ok || got != "B-7" {
		t.Fatalf("harvest number = %v, want B-7", md.HarvestNumber)
	}
}

func TestDecodeModelDataMalformed(t *testing.T) {
	_, err := DecodeModelData([]byte("not json"))
	if !errors.Is(err, utils.ErrMalformedInput) {
		t.Fatalf("error = %v, want ErrMalformedInput", err)
	}
}

func TestPredictorEndToEnd(t *testing.T) {
	mains := make([][]float64, 20)
	targets := make([]float64, 20)
	for i := range mains {
		mains[i] = mainRow(600 + float64(i))
		targets[i] = 40
	}
	c := testCorpus(t, mains, targets)

	p, err := NewPredictor(c, 2.5, nil)
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	realDays := 39.5
	pred := p.Predict(models.ModelData{
		Values:            map[string]float64{"CO2air__mean": 610},
		HarvestNumber:     float64(3),
		DaysToHarvestReal: realDays,
	})

	if pred.Model != models.ModelName {
		t.Fatalf("model = %q", pred.Model)
	}
	if pred.Timestamp != fixed.Format(time.RFC3339) {
		t.Fatalf("timestamp = %q", pred.Timestamp)
	}
	if got, ok := pred.HarvestNumber.(float64); !ok || got != 3 {
		t.Fatalf("harvest number = %v", pred.HarvestNumber)
	}
	if got, ok := pred.DaysToHarvestReal.(float64); !ok || got != realDays {
		t.Fatalf("days real = %v", pred.DaysToHarvestReal)
	}
	// Every corpus target is 40: any weighting, and the mean fallback too,
	// lands on 40 days, a NORMAL estimate.
	if math.Abs(pred.PredictedDays-40) > 1e-6 {
		t.Fatalf("predicted days = %v, want 40", pred.PredictedDays)
	}
	if pred.Status != models.StatusNormal || pred.Color != "green" {
		t.Fatalf("status = %s/%s, want NORMAL/green", pred.Status, pred.Color)
	}
}
