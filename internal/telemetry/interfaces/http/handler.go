package telemetryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	events "meter-insights/internal/events/domain"
	"meter-insights/internal/pipeline"
	telemetry "meter-insights/internal/telemetry/domain"
)

const maxBodyBytes = 8 << 20

// Ingester processes readings.
type Ingester interface {
	Ingest(ctx context.Context, r telemetry.Reading) (pipeline.Result, error)
}

// IngestHandler accepts meter readings over HTTP.
type IngestHandler struct {
	ingester Ingester
	logger   *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(ingester Ingester, logger *log.Logger) (*IngestHandler, error) {
	if ingester == nil {
		return nil, errors.New("telemetry ingest: nil ingester")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{ingester: ingester, logger: logger}, nil
}

type ingestResponse struct {
	Accepted int            `json:"accepted"`
	Late     int            `json:"late"`
	Rejected int            `json:"rejected"`
	Events   []events.Event `json:"events"`
	Errors   []string       `json:"errors,omitempty"`
}

// ServeHTTP handles POST /api/v1/readings. The body is one reading or an array.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Printf("telemetry ingest: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	readings, err := decodeReadings(body)
	if err != nil {
		h.logger.Printf("telemetry ingest: decode error: %v", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(readings) == 0 {
		http.Error(w, "no readings", http.StatusBadRequest)
		return
	}

	resp := ingestResponse{Events: []events.Event{}}
	for _, reading := range readings {
		res, err := h.ingester.Ingest(r.Context(), reading)
		switch {
		case errors.Is(err, pipeline.ErrClosed):
			http.Error(w, "pipeline closed", http.StatusServiceUnavailable)
			return
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return
		case errors.Is(err, telemetry.ErrInvalidReading):
			resp.Rejected++
			resp.Errors = append(resp.Errors, err.Error())
			continue
		case errors.Is(err, telemetry.ErrOutOfOrderReading):
			resp.Late++
		case err != nil:
			h.logger.Printf("telemetry ingest: meter=%s err=%v", reading.MeterID, err)
			resp.Errors = append(resp.Errors, err.Error())
		}
		resp.Accepted++
		resp.Events = append(resp.Events, res.Events...)
	}

	status := http.StatusOK
	if resp.Accepted == 0 {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func decodeReadings(body []byte) ([]telemetry.Reading, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if trimmed[0] == '[' {
		var list []telemetry.Reading
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one telemetry.Reading
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []telemetry.Reading{one}, nil
}
