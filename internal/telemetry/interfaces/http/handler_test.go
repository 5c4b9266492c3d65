package telemetryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"meter-insights/internal/config"
	events "meter-insights/internal/events/domain"
	"meter-insights/internal/pipeline"
)

func newHandler(t *testing.T) (*IngestHandler, *pipeline.Pipeline) {
	t.Helper()
	p, err := pipeline.New(config.Default())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	h, err := NewIngestHandler(p, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h, p
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIngestSingleReading(t *testing.T) {
	h, _ := newHandler(t)
	rec := post(h, `{"meter_id":"M1","feeder_id":"F1","timestamp":"2024-03-01T10:00:00Z","voltage":108,"active_power":2,"power_factor":0.95}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted != 1 || len(resp.Events) != 1 || resp.Events[0].Type != events.TypeUndervoltage {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestIngestBatchWithRejectedAndLateReadings(t *testing.T) {
	h, _ := newHandler(t)
	body := `[
		{"meter_id":"M1","feeder_id":"F1","timestamp":"2024-03-01T10:15:00Z","voltage":127,"active_power":2,"power_factor":0.95},
		{"meter_id":"M1","feeder_id":"F1","timestamp":"2024-03-01T10:00:00Z","voltage":127,"active_power":2,"power_factor":0.95},
		{"meter_id":"","feeder_id":"F1","timestamp":"2024-03-01T10:00:00Z","voltage":127}
	]`
	rec := post(h, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted != 2 || resp.Late != 1 || resp.Rejected != 1 || len(resp.Errors) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestIngestRejectsBadRequests(t *testing.T) {
	h, _ := newHandler(t)
	if rec := post(h, `{not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
	if rec := post(h, `[]`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", rec.Code)
	}
	if rec := post(h, `{"meter_id":"M1"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 when nothing accepted, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestIngestAfterShutdown(t *testing.T) {
	h, p := newHandler(t)
	p.Shutdown(context.Background())
	rec := post(h, `{"meter_id":"M1","feeder_id":"F1","timestamp":"2024-03-01T10:00:00Z","voltage":127,"active_power":1,"power_factor":1}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

var _ Ingester = (*pipeline.Pipeline)(nil)
