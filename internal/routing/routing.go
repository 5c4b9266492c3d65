package routing

import (
	"sort"
	"time"

	events "meter-insights/internal/events/domain"
	outage "meter-insights/internal/outage/domain"
)

// Kind tells whether a routed item is an event or an incident.
type Kind string

const (
	KindEvent    Kind = "event"
	KindIncident Kind = "incident"
)

// Item is one ranked entry in a destination queue.
type Item struct {
	Rank      int              `json:"rank"`
	Kind      Kind             `json:"kind"`
	ID        string           `json:"id"`
	Severity  events.Severity  `json:"severity"`
	Timestamp time.Time        `json:"timestamp"`
	Event     *events.Event    `json:"event,omitempty"`
	Incident  *outage.Incident `json:"incident,omitempty"`
}

// Queues partitions routed items by destination.
type Queues struct {
	Operations []Item `json:"operations"`
	Commercial []Item `json:"commercial"`
	Customer   []Item `json:"customer"`
}

// Queue returns the items for a destination.
func (q Queues) Queue(d events.Destination) []Item {
	switch d {
	case events.DestinationOperations:
		return q.Operations
	case events.DestinationCommercial:
		return q.Commercial
	case events.DestinationCustomer:
		return q.Customer
	default:
		return nil
	}
}

// Len returns the total number of routed items.
func (q Queues) Len() int {
	return len(q.Operations) + len(q.Commercial) + len(q.Customer)
}

// Route partitions events and incidents into destination queues ordered by
// severity descending, then timestamp ascending, then id. Inputs are copied.
func Route(list []events.Event, incidents []outage.Incident) Queues {
	var q Queues
	for i := range list {
		evt := list[i]
		item := Item{Kind: KindEvent, ID: evt.ID, Severity: evt.Severity, Timestamp: evt.Timestamp, Event: &evt}
		switch evt.Destination {
		case events.DestinationCommercial:
			q.Commercial = append(q.Commercial, item)
		case events.DestinationCustomer:
			q.Customer = append(q.Customer, item)
		default:
			q.Operations = append(q.Operations, item)
		}
	}
	for i := range incidents {
		inc := incidents[i].Clone()
		q.Operations = append(q.Operations, Item{
			Kind:      KindIncident,
			ID:        inc.ID,
			Severity:  inc.Priority,
			Timestamp: inc.WindowStart,
			Incident:  &inc,
		})
	}
	rank(q.Operations)
	rank(q.Commercial)
	rank(q.Customer)
	return q
}

// SortEvents returns a copy of list in routing order.
func SortEvents(list []events.Event) []events.Event {
	out := append([]events.Event(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Severity, out[j].Severity, out[i].Timestamp, out[j].Timestamp, out[i].ID, out[j].ID)
	})
	return out
}

func rank(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return less(items[i].Severity, items[j].Severity, items[i].Timestamp, items[j].Timestamp, items[i].ID, items[j].ID)
	})
	for i := range items {
		items[i].Rank = i + 1
	}
}

func less(sa, sb events.Severity, ta, tb time.Time, ia, ib string) bool {
	if sa != sb {
		return sa > sb
	}
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return ia < ib
}
