package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"meter-insights/internal/eventing"
	events "meter-insights/internal/events/domain"
	outage "meter-insights/internal/outage/domain"
)

// IncidentReader loads the current state of an incident.
type IncidentReader interface {
	Incident(id string) (outage.Incident, error)
}

// Clock provides time for cooldowns.
type Clock interface {
	Now() time.Time
}

// Notifier sends notifications for severe events and incident lifecycle
// changes, and re-notifies incidents that stay open past the escalation delay.
type Notifier struct {
	channel      Channel
	template     *Template
	incidents    IncidentReader
	minSeverity  events.Severity
	escalation   time.Duration
	clock        Clock
	logger       *log.Logger
	mu           sync.Mutex
	timers       map[string]*time.Timer
	sent         SendLog
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithMinSeverity sets the lowest event severity that is notified.
func WithMinSeverity(sev events.Severity) Option {
	return func(n *Notifier) {
		if sev.Valid() {
			n.minSeverity = sev
		}
	}
}

// WithEscalation re-notifies incidents still open after the delay.
func WithEscalation(after time.Duration, reader IncidentReader) Option {
	return func(n *Notifier) {
		if after > 0 && reader != nil {
			n.escalation = after
			n.incidents = reader
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithSendLog shares cooldown and dedupe history through sendLog, for example
// across replicas.
func WithSendLog(sendLog SendLog) Option {
	return func(n *Notifier) {
		if sendLog != nil {
			n.sent = sendLog
		}
	}
}

// WithLogger assigns a logger for delivery failures.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same
// subject and kind.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs a notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:     channel,
		template:    template,
		minSeverity: events.SeverityCritical,
		clock:       systemClock{},
		timers:      make(map[string]*time.Timer),
		sent:        NewMemorySendLog(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Subscribe attaches the notifier to pipeline messages.
func (n *Notifier) Subscribe(bus eventing.EventBus) {
	eventing.SubscribeTo(bus, func(ctx context.Context, msg eventing.EventClassified) error {
		n.NotifyEvent(ctx, msg.Event)
		return nil
	})
	eventing.SubscribeTo(bus, func(ctx context.Context, msg eventing.IncidentOpened) error {
		n.NotifyIncident(ctx, "opened", msg.Incident)
		return nil
	})
	eventing.SubscribeTo(bus, func(ctx context.Context, msg eventing.IncidentClosed) error {
		n.NotifyIncident(ctx, "closed", msg.Incident)
		return nil
	})
}

// NotifyEvent sends a notification for an event at or above the minimum
// severity. Interruptions are reported through their incident.
func (n *Notifier) NotifyEvent(ctx context.Context, evt events.Event) {
	if n == nil || evt.Type == events.TypeInterruption || !evt.Severity.AtLeast(n.minSeverity) {
		return
	}
	data := TemplateData{
		Kind:       "event",
		Label:      "Event " + labelFor(string(evt.Type)),
		Subject:    fmt.Sprintf("%s on meter %s", evt.ID, evt.MeterID),
		ID:         evt.ID,
		FeederID:   evt.FeederID,
		Region:     evt.Region,
		Severity:   evt.Severity.String(),
		Meters:     evt.MeterID,
		Value:      formatFloat(evt.MeasuredValue),
		Threshold:  formatFloat(evt.Threshold),
		StartTime:  evt.Timestamp.UTC().Format(time.RFC3339),
		Detail:     evt.Description,
		Suggestion: evt.SuggestedAction,
	}
	n.dispatch(ctx, evt.MeterID+"/"+string(evt.Type), "event", data)
}

// NotifyIncident sends a notification for an incident lifecycle change.
func (n *Notifier) NotifyIncident(ctx context.Context, change string, inc outage.Incident) {
	if n == nil || inc.ID == "" {
		return
	}
	n.dispatch(ctx, inc.ID, change, incidentData(change, inc))

	switch change {
	case "opened":
		n.scheduleEscalation(inc.ID)
	case "closed":
		n.cancelEscalation(inc.ID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func incidentData(change string, inc outage.Incident) TemplateData {
	detail := inc.ProbableCause
	if change == "closed" && !inc.ClosedAt.IsZero() {
		detail = fmt.Sprintf("%s; closed at %s", inc.ProbableCause, inc.ClosedAt.UTC().Format(time.RFC3339))
	}
	return TemplateData{
		Kind:       "incident",
		Label:      "Outage " + labelFor(change),
		Subject:    fmt.Sprintf("%s, %d meter(s) affected", inc.ID, inc.Affected()),
		ID:         inc.ID,
		FeederID:   inc.FeederID,
		Region:     inc.Region,
		Severity:   inc.Priority.String(),
		Meters:     strings.Join(inc.AffectedMeterIDs, ", "),
		StartTime:  inc.WindowStart.UTC().Format(time.RFC3339),
		Detail:     detail,
		Suggestion: suggestionFor(change, inc),
	}
}

func (n *Notifier) dispatch(ctx context.Context, subject, kind string, data TemplateData) {
	content, err := n.template.Render(data)
	if err != nil {
		n.logf("notify: render %s: %v", subject, err)
		return
	}
	if !n.shouldSend(ctx, subject, kind, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.logf("notify: send %s: %v", subject, err)
		return
	}
	n.markSent(ctx, subject, kind, content)
}

func (n *Notifier) scheduleEscalation(incidentID string) {
	if n.escalation <= 0 || n.incidents == nil {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[incidentID]; ok && existing != nil {
		existing.Stop()
	}
	n.timers[incidentID] = time.AfterFunc(n.escalation, func() {
		n.runEscalation(incidentID)
	})
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(incidentID string) {
	n.mu.Lock()
	timer := n.timers[incidentID]
	delete(n.timers, incidentID)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(incidentID string) {
	n.mu.Lock()
	delete(n.timers, incidentID)
	n.mu.Unlock()

	inc, err := n.incidents.Incident(incidentID)
	if err != nil || !inc.IsOpen() {
		return
	}
	n.dispatch(context.Background(), inc.ID, "escalated", incidentData("escalated", inc))
}

func labelFor(value string) string {
	switch value {
	case "opened":
		return "Opened"
	case "closed":
		return "Closed"
	case "escalated":
		return "Escalated"
	default:
		return strings.ReplaceAll(value, "_", " ")
	}
}

func suggestionFor(change string, inc outage.Incident) string {
	switch change {
	case "closed":
		return "Confirm supply is restored and close the field work order."
	case "escalated":
		return "Outage still open, escalate to the control room."
	}
	if inc.Priority == events.SeverityCritical {
		return "Dispatch crew to the feeder immediately."
	}
	return "Verify the affected service points."
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

// A send log failure lets the notification through rather than dropping it.
func (n *Notifier) shouldSend(ctx context.Context, subject, kind, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	record, ok, err := n.sent.Last(ctx, notificationKey(subject, kind))
	if err != nil {
		n.logf("notify: send log lookup %s: %v", subject, err)
		return true
	}
	if !ok {
		return true
	}
	now := n.clock.Now().UTC()
	if n.cooldown > 0 && now.Sub(record.At) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.Hash == hashContent(content) && now.Sub(record.At) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(ctx context.Context, subject, kind, content string) {
	ttl := n.cooldown
	if n.dedupeWindow > ttl {
		ttl = n.dedupeWindow
	}
	record := SendRecord{At: n.clock.Now().UTC(), Hash: hashContent(content)}
	if err := n.sent.Record(ctx, notificationKey(subject, kind), record, ttl); err != nil {
		n.logf("notify: send log record %s: %v", subject, err)
	}
}

func (n *Notifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

func notificationKey(subject, kind string) string {
	return subject + "|" + kind
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
