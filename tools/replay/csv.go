package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	telemetry "meter-insights/internal/telemetry/domain"
)

var requiredColumns = []string{"meter_id", "timestamp", "feeder_id", "voltage", "active_power", "power_factor"}

// readReadingsCSV parses readings from a CSV with a header row. Columns are
// matched by name; region, energy and interval_minutes are optional.
func readReadingsCSV(r io.Reader) ([]telemetry.Reading, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
	}

	var out []telemetry.Reading
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		ts, err := time.Parse(time.RFC3339, field("timestamp"))
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp must be RFC3339", line)
		}
		reading := telemetry.Reading{
			MeterID:   field("meter_id"),
			FeederID:  field("feeder_id"),
			Region:    field("region"),
			Timestamp: ts,
		}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"voltage", &reading.Voltage},
			{"active_power", &reading.ActivePower},
			{"power_factor", &reading.PowerFactor},
			{"energy", &reading.Energy},
		} {
			value := field(f.name)
			if value == "" {
				continue
			}
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, f.name, err)
			}
			*f.dst = parsed
		}
		if value := field("interval_minutes"); value != "" {
			parsed, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: interval_minutes: %w", line, err)
			}
			reading.IntervalMinutes = parsed
		}
		out = append(out, reading)
	}
	return out, nil
}
