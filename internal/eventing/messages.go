package eventing

import (
	events "meter-insights/internal/events/domain"
	outage "meter-insights/internal/outage/domain"
	telemetry "meter-insights/internal/telemetry/domain"
	workorders "meter-insights/internal/workorders/domain"
)

// EventClassified is published for every event emitted by the classifier.
type EventClassified struct {
	Event events.Event `json:"event"`
}

// IncidentOpened is published when a feeder incident opens.
type IncidentOpened struct {
	Incident outage.Incident `json:"incident"`
}

// IncidentExtended is published when an open incident gains a meter or a
// longer window.
type IncidentExtended struct {
	Incident outage.Incident `json:"incident"`
}

// IncidentClosed is published when an incident closes by gap, sweep or flush.
type IncidentClosed struct {
	Incident outage.Incident `json:"incident"`
}

// WorkOrderIssued is published for a new work order.
type WorkOrderIssued struct {
	Order workorders.WorkOrder `json:"order"`
}

// WorkOrderRevised is published when an incident order is revised in place.
type WorkOrderRevised struct {
	Order workorders.WorkOrder `json:"order"`
}

// ReadingRejected is published when a reading fails validation.
type ReadingRejected struct {
	Reading telemetry.Reading `json:"reading"`
	Reason  string            `json:"reason"`
}
