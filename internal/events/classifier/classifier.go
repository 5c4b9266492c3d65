package classifier

import (
	"errors"
	"fmt"
	"sync/atomic"

	events "meter-insights/internal/events/domain"
)

const defaultIDPrefix = "EVT"

// Classifier applies the rule catalog to readings. It holds no per-reading
// state and is safe for concurrent use.
type Classifier struct {
	catalog  Catalog
	seq      atomic.Uint64
	idPrefix string
}

// Option configures the classifier.
type Option func(*Classifier)

// WithIDPrefix overrides the event id prefix.
func WithIDPrefix(prefix string) Option {
	return func(c *Classifier) {
		if prefix != "" {
			c.idPrefix = prefix
		}
	}
}

// New constructs a classifier over catalog.
func New(catalog Catalog, opts ...Option) (*Classifier, error) {
	if catalog.Len() == 0 {
		return nil, errors.New("classifier: empty catalog")
	}
	c := &Classifier{catalog: catalog, idPrefix: defaultIDPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify evaluates every rule in order and returns one event per satisfied rule.
func (c *Classifier) Classify(in Input) ([]events.Event, error) {
	if c == nil {
		return nil, errors.New("classifier: nil classifier")
	}
	var out []events.Event
	for _, rule := range c.catalog.rules {
		draft, ok := rule.Evaluate(in)
		if !ok {
			continue
		}
		class, err := events.Classify(draft.Type, draft.Bucket)
		if err != nil {
			return out, err
		}
		r := in.Reading
		out = append(out, events.Event{
			ID:              c.nextID(),
			MeterID:         r.MeterID,
			Timestamp:       r.Timestamp,
			FeederID:        r.FeederID,
			Region:          r.Region,
			Type:            draft.Type,
			Severity:        class.Severity,
			MeasuredValue:   draft.Value,
			Threshold:       draft.Threshold,
			Voltage:         r.Voltage,
			Description:     draft.Description,
			SuggestedAction: class.SuggestedAction,
			Destination:     class.Destination,
			Impact:          class.Impact,
		})
	}
	return out, nil
}

// Issued returns how many event ids have been assigned.
func (c *Classifier) Issued() uint64 {
	return c.seq.Load()
}

func (c *Classifier) nextID() string {
	return fmt.Sprintf("%s-%06d", c.idPrefix, c.seq.Add(1))
}
