package events

import "fmt"

// Bucket selects a row within a type's classification table.
type Bucket int

const (
	BucketDefault Bucket = iota
	BucketSevere
)

// Classification is the table-driven outcome for a (type, bucket) pair.
type Classification struct {
	Severity        Severity
	Destination     Destination
	Impact          Impact
	SuggestedAction string
}

type classKey struct {
	t Type
	b Bucket
}

var classifications = map[classKey]Classification{
	{TypeUndervoltage, BucketSevere}: {
		Severity:        SeverityCritical,
		Destination:     DestinationOperations,
		Impact:          ImpactHigh,
		SuggestedAction: "Dispatch crew to check transformer tap and secondary network",
	},
	{TypeUndervoltage, BucketDefault}: {
		Severity:        SeverityHigh,
		Destination:     DestinationOperations,
		Impact:          ImpactMedium,
		SuggestedAction: "Schedule voltage regulation review on the feeder",
	},
	{TypeOvervoltage, BucketDefault}: {
		Severity:        SeverityHigh,
		Destination:     DestinationOperations,
		Impact:          ImpactMedium,
		SuggestedAction: "Check regulator settings and transformer tap position",
	},
	{TypeInterruption, BucketDefault}: {
		Severity:        SeverityCritical,
		Destination:     DestinationOperations,
		Impact:          ImpactHigh,
		SuggestedAction: "Confirm loss of supply and correlate with neighbouring meters",
	},
	{TypeAbnormalConsumption, BucketDefault}: {
		Severity:        SeverityMedium,
		Destination:     DestinationCommercial,
		Impact:          ImpactLow,
		SuggestedAction: "Review consumption profile for irregular load or tampering",
	},
	{TypeLowPowerFactor, BucketDefault}: {
		Severity:        SeverityMedium,
		Destination:     DestinationCustomer,
		Impact:          ImpactLow,
		SuggestedAction: "Advise customer on capacitor bank for power factor correction",
	},
	{TypeStatisticalAnomaly, BucketDefault}: {
		Severity:        SeverityMedium,
		Destination:     DestinationOperations,
		Impact:          ImpactLow,
		SuggestedAction: "Inspect meter readings for sudden load change",
	},
}

// Classify returns the classification row for a type and value bucket.
func Classify(t Type, b Bucket) (Classification, error) {
	c, ok := classifications[classKey{t, b}]
	if !ok {
		return Classification{}, fmt.Errorf("%w: %s/%d", ErrUnknownType, t, b)
	}
	return c, nil
}
