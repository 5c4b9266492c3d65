package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Severity is an ordinal rank; larger is more urgent.
type Severity int

const (
	SeverityLow      Severity = 1
	SeverityMedium   Severity = 2
	SeverityHigh     Severity = 3
	SeverityCritical Severity = 4
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// String returns the lowercase label.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// AtLeast reports whether s ranks at or above target.
func (s Severity) AtLeast(target Severity) bool {
	return s >= target
}

// ParseSeverity accepts a label ("critical") or an ordinal ("4").
func ParseSeverity(value string) (Severity, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "critical", "4":
		return SeverityCritical, nil
	case "high", "3":
		return SeverityHigh, nil
	case "medium", "2":
		return SeverityMedium, nil
	case "low", "1":
		return SeverityLow, nil
	default:
		return 0, fmt.Errorf("events: unknown severity %q", value)
	}
}

// MarshalText renders the label. Unknown values, including the zero value,
// are written as their ordinal so that UnmarshalText can restore them.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return []byte(strconv.Itoa(int(s))), nil
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a label or any integer ordinal.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err == nil {
		*s = parsed
		return nil
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(string(text)))
	if convErr != nil {
		return err
	}
	*s = Severity(n)
	return nil
}

// MarshalJSON renders the severity as a JSON string.
func (s Severity) MarshalJSON() ([]byte, error) {
	text, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}
