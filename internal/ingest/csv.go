// Package ingest reads recorded maneuvers from tabular exports.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-spiro/internal/spiro"
)

// ErrNoSamples is returned when no row yields a complete sample.
var ErrNoSamples = errors.New("no samples found")

// Layout locates the sample columns in a row. Columns are zero-based.
type Layout struct {
	HeaderRows   int
	TimeColumn   int
	VolumeColumn int
	FlowColumn   int
	Comma        rune
}

// DefaultLayout matches the spirometer export: one header row, time, volume
// and flow in the fourth to sixth columns.
func DefaultLayout() Layout {
	return Layout{HeaderRows: 1, TimeColumn: 3, VolumeColumn: 4, FlowColumn: 5, Comma: ','}
}

// ParseColumns parses "time,volume,flow" column indexes into layout.
func (l Layout) ParseColumns(value string) (Layout, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return l, fmt.Errorf("columns %q: want time,volume,flow", value)
	}
	idx := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return l, fmt.Errorf("columns %q: invalid index %q", value, part)
		}
		idx[i] = n
	}
	l.TimeColumn, l.VolumeColumn, l.FlowColumn = idx[0], idx[1], idx[2]
	return l, nil
}

// ReadCSV parses samples from r. Rows with a missing, non-numeric or
// non-finite cell are skipped, as are the leading header rows.
func ReadCSV(r io.Reader, layout Layout) ([]spiro.Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if layout.Comma != 0 {
		reader.Comma = layout.Comma
	}

	samples := make([]spiro.Sample, 0, 256)
	for row := 0; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row+1, err)
		}
		if row < layout.HeaderRows {
			continue
		}
		sample, ok := parseRow(record, layout)
		if !ok {
			continue
		}
		samples = append(samples, sample)
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	return samples, nil
}

func parseRow(record []string, layout Layout) (spiro.Sample, bool) {
	ts, ok := cell(record, layout.TimeColumn)
	if !ok {
		return spiro.Sample{}, false
	}
	volume, ok := cell(record, layout.VolumeColumn)
	if !ok {
		return spiro.Sample{}, false
	}
	flow, ok := cell(record, layout.FlowColumn)
	if !ok {
		return spiro.Sample{}, false
	}
	return spiro.Sample{Time: ts, Volume: volume, Flow: flow}, true
}

func cell(record []string, idx int) (float64, bool) {
	if idx < 0 || idx >= len(record) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
