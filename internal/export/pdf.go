package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const pdfMaxEventRows = 40

// BuildReportPDF renders a one-document operations summary: counters,
// incidents, work orders, feeder load and the highest ranked events.
func BuildReportPDF(r Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Meter Operations Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", r.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Events: %d (critical %d)", r.Summary.Total, r.Summary.Critical))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Incidents: %d", len(r.Incidents)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Work orders: %d, crews %d, estimated cost %s %s",
		r.OrderSummary.Total, r.OrderSummary.Crews, r.OrderSummary.Currency, r.OrderSummary.TotalCost.StringFixed(2)))
	pdf.Ln(8)

	if len(r.Incidents) > 0 {
		header(pdf, []float64{30, 20, 18, 40, 16, 56}, "Incident", "Feeder", "Status", "Window start", "Meters", "Probable cause")
		for _, inc := range r.Incidents {
			row(pdf, []float64{30, 20, 18, 40, 16, 56},
				inc.ID, inc.FeederID, string(inc.Status), inc.WindowStart.UTC().Format("2006-01-02 15:04"),
				fmt.Sprintf("%d", inc.Affected()), truncate(inc.ProbableCause, 34))
		}
		pdf.Ln(4)
	}

	if len(r.Orders) > 0 {
		header(pdf, []float64{28, 30, 24, 16, 20, 30, 18}, "Order", "Source", "Type", "Crew", "Duration", "Cost", "Rev")
		for _, order := range r.Orders {
			row(pdf, []float64{28, 30, 24, 16, 20, 30, 18},
				order.ID, order.SourceID, string(order.Type), fmt.Sprintf("%d", order.CrewCount),
				string(order.DurationClass), order.EstimatedCost.StringFixed(2), fmt.Sprintf("%d", order.Revision))
		}
		pdf.Ln(4)
	}

	if len(r.Loads) > 0 {
		header(pdf, []float64{30, 20, 30, 30, 30}, "Feeder", "Meters", "Load (kW)", "Capacity (kW)", "Loading (%)")
		for _, load := range r.Loads {
			row(pdf, []float64{30, 20, 30, 30, 30},
				load.FeederID, fmt.Sprintf("%d", load.Meters), fmt.Sprintf("%.2f", load.TotalKW),
				fmt.Sprintf("%.0f", load.CapacityKW), fmt.Sprintf("%.1f", load.LoadingPct))
		}
		pdf.Ln(4)
	}

	if len(r.Events) > 0 {
		header(pdf, []float64{26, 16, 32, 36, 18, 24, 28}, "Event", "Meter", "Time", "Type", "Severity", "Value", "Destination")
		for i, evt := range r.Events {
			if i == pdfMaxEventRows {
				pdf.Cell(0, 6, fmt.Sprintf("... %d more events in the CSV export", len(r.Events)-pdfMaxEventRows))
				pdf.Ln(5)
				break
			}
			row(pdf, []float64{26, 16, 32, 36, 18, 24, 28},
				evt.ID, evt.MeterID, evt.Timestamp.UTC().Format("01-02 15:04"), string(evt.Type),
				evt.Severity.String(), fmt.Sprintf("%.2f", evt.MeasuredValue), string(evt.Destination))
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func header(pdf *gofpdf.Fpdf, widths []float64, titles ...string) {
	pdf.SetFont("Arial", "B", 9)
	for i, title := range titles {
		pdf.CellFormat(widths[i], 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
}

func row(pdf *gofpdf.Fpdf, widths []float64, values ...string) {
	for i, value := range values {
		pdf.CellFormat(widths[i], 6, value, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func truncate(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[:n-3] + "..."
}
