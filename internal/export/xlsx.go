package export

import (
	"bytes"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary   = "summary"
	sheetEvents    = "events"
	sheetIncidents = "incidents"
	sheetOrders    = "work_orders"
	sheetFeeders   = "feeders"
)

// BuildReportXLSX renders the report as a workbook with one sheet per view.
func BuildReportXLSX(r Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetEvents, sheetIncidents, sheetOrders, sheetFeeders} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	_ = f.SetCellValue(sheetSummary, "A1", "Meter Operations Report")
	_ = f.SetCellValue(sheetSummary, "A3", "Generated")
	_ = f.SetCellValue(sheetSummary, "B3", r.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(sheetSummary, "A4", "Total Events")
	_ = f.SetCellValue(sheetSummary, "B4", r.Summary.Total)
	_ = f.SetCellValue(sheetSummary, "A5", "Critical Events")
	_ = f.SetCellValue(sheetSummary, "B5", r.Summary.Critical)
	_ = f.SetCellValue(sheetSummary, "A6", "Incidents")
	_ = f.SetCellValue(sheetSummary, "B6", len(r.Incidents))
	_ = f.SetCellValue(sheetSummary, "A7", "Work Orders")
	_ = f.SetCellValue(sheetSummary, "B7", r.OrderSummary.Total)
	_ = f.SetCellValue(sheetSummary, "A8", "Estimated Cost")
	_ = f.SetCellValue(sheetSummary, "B8", r.OrderSummary.TotalCost.StringFixed(2))
	_ = f.SetCellValue(sheetSummary, "A9", "Currency")
	_ = f.SetCellValue(sheetSummary, "B9", r.OrderSummary.Currency)

	writeRow(f, sheetEvents, 1, anyRow(EventColumns)...)
	for i, evt := range r.Events {
		writeRow(f, sheetEvents, i+2,
			evt.ID, evt.MeterID, evt.Timestamp.UTC().Format(time.RFC3339), evt.FeederID, evt.Region,
			string(evt.Type), evt.Severity.String(), evt.MeasuredValue, evt.Threshold, evt.Voltage,
			evt.Description, evt.SuggestedAction, string(evt.Destination), int(evt.Impact), evt.Late,
		)
	}

	writeRow(f, sheetIncidents, 1, "incident_id", "feeder_id", "status", "window_start", "window_end",
		"affected", "meters", "probable_cause", "priority")
	for i, inc := range r.Incidents {
		writeRow(f, sheetIncidents, i+2,
			inc.ID, inc.FeederID, string(inc.Status), inc.WindowStart.UTC().Format(time.RFC3339),
			inc.WindowEnd.UTC().Format(time.RFC3339), inc.Affected(), strings.Join(inc.AffectedMeterIDs, " "),
			inc.ProbableCause, inc.Priority.String(),
		)
	}

	writeRow(f, sheetOrders, 1, "order_id", "source_id", "type", "meters", "crew", "duration",
		"estimated_cost", "currency", "status", "revision")
	for i, order := range r.Orders {
		writeRow(f, sheetOrders, i+2,
			order.ID, order.SourceID, string(order.Type), strings.Join(order.MeterIDs, " "), order.CrewCount,
			string(order.DurationClass), order.EstimatedCost.StringFixed(2), order.Currency,
			string(order.Status), order.Revision,
		)
	}

	writeRow(f, sheetFeeders, 1, "feeder_id", "meters", "total_kw", "capacity_kw", "loading_pct", "open_outage")
	for i, load := range r.Loads {
		writeRow(f, sheetFeeders, i+2,
			load.FeederID, load.Meters, load.TotalKW, load.CapacityKW, load.LoadingPct, load.OpenOutage,
		)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			continue
		}
		_ = f.SetCellValue(sheet, cell, value)
	}
}

func anyRow(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
