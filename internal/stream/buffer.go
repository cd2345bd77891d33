package stream

import (
	"sort"
	"time"

	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// Window is a batch of records whose aggregation window has closed.
type Window struct {
	Start   time.Time
	Records []models.SensorRecord
}

// StreamBuffer accumulates raw records until their window closes. A window
// closes as soon as the buffer has seen a record with a strictly later
// window start, so at steady state the buffer holds only the newest open
// window's records. Records are kept in one arena slice that is compacted in
// place on every flush instead of reallocated.
//
// The buffer is not safe for concurrent use; the ingest loop is the single
// writer.
type StreamBuffer struct {
	interval time.Duration
	records  []models.SensorRecord
	minWS    time.Time
	maxWS    time.Time
}

// NewStreamBuffer creates a buffer with the given window interval. A zero or
// negative interval falls back to hourly windows.
func NewStreamBuffer(interval time.Duration) *StreamBuffer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &StreamBuffer{interval: interval}
}

// Interval returns the window length.
func (b *StreamBuffer) Interval() time.Duration { return b.interval }

// Len returns the number of buffered records.
func (b *StreamBuffer) Len() int { return len(b.records) }

// OpenWindowStart returns the start of the newest window observed so far,
// or the zero time before any record arrived.
func (b *StreamBuffer) OpenWindowStart() time.Time { return b.maxWS }

// Add inserts a record and returns any windows it caused to close, oldest
// first. Windows close exactly once; a record older than the open window is
// flushed immediately as its own (late) window.
func (b *StreamBuffer) Add(rec models.SensorRecord) []Window {
	ws := utils.FloorWindow(rec.Time, b.interval)
	b.records = append(b.records, rec)

	if b.maxWS.IsZero() || ws.After(b.maxWS) {
		b.maxWS = ws
	}
	if b.minWS.IsZero() || ws.Before(b.minWS) {
		b.minWS = ws
	}

	if !b.minWS.Before(b.maxWS) {
		return nil
	}
	return b.flush()
}

// flush removes every record belonging to a window older than the newest
// one and groups the removed records per window.
func (b *StreamBuffer) flush() []Window {
	groups := make(map[int64][]models.SensorRecord)

	open := b.records[:0]
	for _, rec := range b.records {
		ws := utils.FloorWindow(rec.Time, b.interval)
		if ws.Before(b.maxWS) {
			key := ws.UnixNano()
			groups[key] = append(groups[key], rec)
		} else {
			open = append(open, rec)
		}
	}
	// Release references past the open range so flushed records can be
	// collected.
	for i := len(open); i < len(b.records); i++ {
		b.records[i] = models.SensorRecord{}
	}
	b.records = open
	b.minWS = b.maxWS

	starts := make([]int64, 0, len(groups))
	for key := range groups {
		starts = append(starts, key)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	windows := make([]Window, 0, len(starts))
	for _, key := range starts {
		windows = append(windows, Window{
			Start:   time.Unix(0, key).UTC(),
			Records: groups[key],
		})
	}
	return windows
}
