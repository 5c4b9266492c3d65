package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/nats-io/nats.go"

	telemetry "meter-insights/internal/telemetry/domain"
)

// ReadingSource decodes readings published on a NATS subject and feeds
// them to a channel in arrival order.
type ReadingSource struct {
	out    chan telemetry.Reading
	logger *log.Logger
	sub    *nats.Subscription
}

// NewReadingSource constructs a source with the given channel buffer.
func NewReadingSource(buffer int, logger *log.Logger) *ReadingSource {
	if buffer < 0 {
		buffer = 0
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReadingSource{out: make(chan telemetry.Reading, buffer), logger: logger}
}

// Readings returns the channel readings are delivered on.
func (s *ReadingSource) Readings() <-chan telemetry.Reading {
	return s.out
}

// Listen subscribes to subject. Messages are handled sequentially, so a
// meter's readings keep their publish order.
func (s *ReadingSource) Listen(ctx context.Context, conn *nats.Conn, subject string) error {
	if conn == nil {
		return errors.New("messaging: nil nats connection")
	}
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		s.handle(ctx, msg.Data)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

// Close drains the subscription. The readings channel stays open because a
// callback may still be delivering.
func (s *ReadingSource) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

func (s *ReadingSource) handle(ctx context.Context, data []byte) {
	readings, err := decodeReadings(data)
	if err != nil {
		s.logger.Printf("messaging: drop malformed reading payload: %v", err)
		return
	}
	for _, r := range readings {
		select {
		case s.out <- r:
		case <-ctx.Done():
			return
		}
	}
}

func decodeReadings(data []byte) ([]telemetry.Reading, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}
	if trimmed[0] == '[' {
		var list []telemetry.Reading
		err := json.Unmarshal(trimmed, &list)
		return list, err
	}
	var one telemetry.Reading
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []telemetry.Reading{one}, nil
}
