package apihttp

import (
	"bytes"
	"net/http"
	"time"

	"meter-insights/internal/export"
	"meter-insights/internal/observability/metrics"
)

// ExportEventsCSV handles GET /api/v1/exports/events.csv.
func (h *Handlers) ExportEventsCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start := time.Now()
	var buf bytes.Buffer
	if err := export.WriteEventsCSV(&buf, h.pipeline.Events(filter)); err != nil {
		metrics.ObserveExport("csv", metrics.ResultError, time.Since(start))
		h.logger.Printf("api: csv export failed: %v", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("csv", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	_, _ = w.Write(buf.Bytes())
}

// ExportReportXLSX handles GET /api/v1/exports/report.xlsx.
func (h *Handlers) ExportReportXLSX(w http.ResponseWriter, r *http.Request) {
	h.exportReport(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.BuildReportXLSX)
}

// ExportReportPDF handles GET /api/v1/exports/report.pdf.
func (h *Handlers) ExportReportPDF(w http.ResponseWriter, r *http.Request) {
	h.exportReport(w, r, "pdf", "application/pdf", export.BuildReportPDF)
}

func (h *Handlers) exportReport(w http.ResponseWriter, r *http.Request, format, contentType string, build func(export.Report) ([]byte, error)) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start := time.Now()
	data, err := build(export.Snapshot(h.pipeline, filter, h.now()))
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		h.logger.Printf("api: %s export failed: %v", format, err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="report.`+format+`"`)
	_, _ = w.Write(data)
}
