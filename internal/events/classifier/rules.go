package classifier

import (
	"errors"
	"fmt"

	"meter-insights/internal/analytics/domain/rolling"
	events "meter-insights/internal/events/domain"
	telemetry "meter-insights/internal/telemetry/domain"
)

// Thresholds configures the canonical rule catalog.
type Thresholds struct {
	PrecariousVoltage float64 `yaml:"precarious_voltage"`
	LowVoltage        float64 `yaml:"low_voltage"`
	HighVoltage       float64 `yaml:"high_voltage"`
	NearZeroPowerKW   float64 `yaml:"near_zero_power_kw"`
	HighConsumptionKW float64 `yaml:"high_consumption_kw"`
	MinPowerFactor    float64 `yaml:"min_power_factor"`
	ZScoreThreshold   float64 `yaml:"z_score_threshold"`
}

// DefaultThresholds returns the reference limits for a 127 V secondary network.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PrecariousVoltage: 110,
		LowVoltage:        117,
		HighVoltage:       133,
		NearZeroPowerKW:   0.05,
		HighConsumptionKW: 10,
		MinPowerFactor:    0.92,
		ZScoreThreshold:   3,
	}
}

// Validate checks threshold consistency.
func (t Thresholds) Validate() error {
	if t.PrecariousVoltage <= 0 || t.LowVoltage <= 0 || t.HighVoltage <= 0 {
		return errors.New("classifier: voltage limits must be positive")
	}
	if t.PrecariousVoltage >= t.LowVoltage {
		return errors.New("classifier: precarious voltage must be below low voltage")
	}
	if t.LowVoltage >= t.HighVoltage {
		return errors.New("classifier: low voltage must be below high voltage")
	}
	if t.NearZeroPowerKW < 0 {
		return errors.New("classifier: negative near-zero power")
	}
	if t.HighConsumptionKW <= t.NearZeroPowerKW {
		return errors.New("classifier: high consumption must exceed near-zero power")
	}
	if t.MinPowerFactor <= 0 || t.MinPowerFactor > 1 {
		return errors.New("classifier: min power factor out of range")
	}
	if t.ZScoreThreshold <= 0 {
		return errors.New("classifier: z-score threshold must be positive")
	}
	return nil
}

// Input is what a rule sees: one reading plus the rolling active power score.
type Input struct {
	Reading    telemetry.Reading
	PowerStats rolling.Stats
}

// Draft is a candidate event before id and table lookup.
type Draft struct {
	Type        events.Type
	Bucket      events.Bucket
	Value       float64
	Threshold   float64
	Description string
}

// Rule is a pure predicate over one input.
type Rule interface {
	Type() events.Type
	Evaluate(in Input) (Draft, bool)
}

type ruleFunc struct {
	typ events.Type
	fn  func(in Input) (Draft, bool)
}

func (r ruleFunc) Type() events.Type { return r.typ }

func (r ruleFunc) Evaluate(in Input) (Draft, bool) { return r.fn(in) }

// Catalog is the ordered, immutable rule set.
type Catalog struct {
	rules []Rule
}

// NewCatalog builds a catalog from rules in evaluation order.
func NewCatalog(rules ...Rule) (Catalog, error) {
	seen := make(map[events.Type]bool, len(rules))
	for _, rule := range rules {
		if rule == nil {
			return Catalog{}, errors.New("classifier: nil rule")
		}
		if !rule.Type().Valid() {
			return Catalog{}, fmt.Errorf("classifier: unknown rule type %q", rule.Type())
		}
		if seen[rule.Type()] {
			return Catalog{}, fmt.Errorf("classifier: duplicate rule %q", rule.Type())
		}
		seen[rule.Type()] = true
	}
	return Catalog{rules: append([]Rule(nil), rules...)}, nil
}

// DefaultCatalog returns the canonical rules in declared order.
func DefaultCatalog(t Thresholds) Catalog {
	catalog, err := NewCatalog(
		UndervoltageRule(t),
		OvervoltageRule(t),
		InterruptionRule(t),
		AbnormalConsumptionRule(t),
		LowPowerFactorRule(t),
		StatisticalAnomalyRule(t),
	)
	if err != nil {
		panic(err)
	}
	return catalog
}

// Rules returns a copy of the rule list.
func (c Catalog) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Len returns the number of rules.
func (c Catalog) Len() int {
	return len(c.rules)
}

// UndervoltageRule fires below the low adequate limit; below the precarious limit it is severe.
func UndervoltageRule(t Thresholds) Rule {
	return ruleFunc{typ: events.TypeUndervoltage, fn: func(in Input) (Draft, bool) {
		v := in.Reading.Voltage
		if v >= t.LowVoltage {
			return Draft{}, false
		}
		if v < t.PrecariousVoltage {
			return Draft{
				Type:        events.TypeUndervoltage,
				Bucket:      events.BucketSevere,
				Value:       v,
				Threshold:   t.PrecariousVoltage,
				Description: fmt.Sprintf("Voltage %.1f V below precarious limit %.1f V", v, t.PrecariousVoltage),
			}, true
		}
		return Draft{
			Type:        events.TypeUndervoltage,
			Value:       v,
			Threshold:   t.LowVoltage,
			Description: fmt.Sprintf("Voltage %.1f V below adequate limit %.1f V", v, t.LowVoltage),
		}, true
	}}
}

// OvervoltageRule fires above the high adequate limit.
func OvervoltageRule(t Thresholds) Rule {
	return ruleFunc{typ: events.TypeOvervoltage, fn: func(in Input) (Draft, bool) {
		v := in.Reading.Voltage
		if v <= t.HighVoltage {
			return Draft{}, false
		}
		return Draft{
			Type:        events.TypeOvervoltage,
			Value:       v,
			Threshold:   t.HighVoltage,
			Description: fmt.Sprintf("Voltage %.1f V above adequate limit %.1f V", v, t.HighVoltage),
		}, true
	}}
}

// InterruptionRule fires when active power is near zero.
func InterruptionRule(t Thresholds) Rule {
	return ruleFunc{typ: events.TypeInterruption, fn: func(in Input) (Draft, bool) {
		if !isInterrupted(in.Reading, t) {
			return Draft{}, false
		}
		p := in.Reading.ActivePower
		return Draft{
			Type:        events.TypeInterruption,
			Value:       p,
			Threshold:   t.NearZeroPowerKW,
			Description: fmt.Sprintf("Active power %.3f kW below supply threshold %.3f kW", p, t.NearZeroPowerKW),
		}, true
	}}
}

// AbnormalConsumptionRule fires above the high consumption threshold.
func AbnormalConsumptionRule(t Thresholds) Rule {
	return ruleFunc{typ: events.TypeAbnormalConsumption, fn: func(in Input) (Draft, bool) {
		p := in.Reading.ActivePower
		if p <= t.HighConsumptionKW {
			return Draft{}, false
		}
		return Draft{
			Type:        events.TypeAbnormalConsumption,
			Value:       p,
			Threshold:   t.HighConsumptionKW,
			Description: fmt.Sprintf("Active power %.2f kW above consumption threshold %.2f kW", p, t.HighConsumptionKW),
		}, true
	}}
}

// LowPowerFactorRule fires below the regulatory minimum power factor.
func LowPowerFactorRule(t Thresholds) Rule {
	return ruleFunc{typ: events.TypeLowPowerFactor, fn: func(in Input) (Draft, bool) {
		pf := in.Reading.PowerFactor
		if pf >= t.MinPowerFactor {
			return Draft{}, false
		}
		return Draft{
			Type:        events.TypeLowPowerFactor,
			Value:       pf,
			Threshold:   t.MinPowerFactor,
			Description: fmt.Sprintf("Power factor %.3f below minimum %.2f", pf, t.MinPowerFactor),
		}, true
	}}
}

// StatisticalAnomalyRule fires when active power deviates above the rolling baseline.
func StatisticalAnomalyRule(t Thresholds) Rule {
	return ruleFunc{typ: events.TypeStatisticalAnomaly, fn: func(in Input) (Draft, bool) {
		z := in.PowerStats.ZScore
		if isInterrupted(in.Reading, t) || z <= t.ZScoreThreshold {
			return Draft{}, false
		}
		return Draft{
			Type:      events.TypeStatisticalAnomaly,
			Value:     z,
			Threshold: t.ZScoreThreshold,
			Description: fmt.Sprintf("Active power %.2f kW is %.1f standard deviations above rolling mean %.2f kW",
				in.Reading.ActivePower, z, in.PowerStats.Mean),
		}, true
	}}
}

// isInterrupted treats near-zero power as loss of supply. A drop to zero is
// not scored as a consumption anomaly.
func isInterrupted(r telemetry.Reading, t Thresholds) bool {
	return r.ActivePower < t.NearZeroPowerKW
}
