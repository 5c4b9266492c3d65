package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	events "meter-insights/internal/events/domain"
)

// EventColumns is the CSV header for event exports.
var EventColumns = []string{
	"event_id", "meter_id", "timestamp", "feeder_id", "region", "type", "severity",
	"measured_value", "threshold", "voltage", "description", "suggested_action",
	"destination", "impact", "late",
}

// WriteEventsCSV writes one row per event.
func WriteEventsCSV(w io.Writer, list []events.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EventColumns); err != nil {
		return err
	}
	for _, evt := range list {
		row := []string{
			evt.ID,
			evt.MeterID,
			evt.Timestamp.UTC().Format(time.RFC3339),
			evt.FeederID,
			evt.Region,
			string(evt.Type),
			evt.Severity.String(),
			strconv.FormatFloat(evt.MeasuredValue, 'f', 3, 64),
			strconv.FormatFloat(evt.Threshold, 'f', 3, 64),
			strconv.FormatFloat(evt.Voltage, 'f', 1, 64),
			evt.Description,
			evt.SuggestedAction,
			string(evt.Destination),
			strconv.Itoa(int(evt.Impact)),
			strconv.FormatBool(evt.Late),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
