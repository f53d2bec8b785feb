package estimate

// Confidence bands used when pricing a classification.
const (
	// ConfidenceThreshold is the minimum classifier confidence accepted at all.
	ConfidenceThreshold = 0.3
	// PricingThreshold is the minimum confidence for which a cost is produced.
	PricingThreshold = 0.6
	// DiscountCeiling is the exclusive upper bound of the discounted band.
	DiscountCeiling = 0.7
	// PremiumFloor is the exclusive lower bound of the premium band.
	PremiumFloor = 0.9
)

// Adjust scales a base cost by the classifier confidence. The boolean is
// false when the confidence is too low to produce any price.
//
//	c < 0.6          not estimable
//	0.6 <= c < 0.7   80% of base
//	0.7 <= c <= 0.9  base
//	c > 0.9          110% of base
//
// Results are truncated toward zero.
func Adjust(base int, confidence float64) (int, bool) {
	switch {
	case !(confidence >= PricingThreshold):
		return 0, false
	case confidence < DiscountCeiling:
		return base * 8 / 10, true
	case confidence > PremiumFloor:
		return base * 11 / 10, true
	default:
		return base, true
	}
}
