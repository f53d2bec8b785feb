// Package estimate holds the repair cost decision rules: damage categories,
// cost tables, confidence adjustment and severity labelling.
package estimate

import (
	"math"
	"strings"
)

// Category is a damage class predicted by the image classifier.
type Category string

// Damage categories known to the default cost table.
const (
	CategoryWindowBroken    Category = "window_broken"
	CategoryScratch         Category = "scratch"
	CategoryDent            Category = "dent"
	CategoryHeadlightBroken Category = "headlight_broken"
	CategoryFlatTire        Category = "flat_tire"
	CategoryMirrorBroken    Category = "mirror_broken"
	CategoryBumperDent      Category = "bumper_dent"
	CategoryTotaled         Category = "totaled"

	// CategoryUnknown is reported when the classifier has no label for its prediction.
	CategoryUnknown Category = "unknown"
)

// NormalizeCategory turns a raw classifier label into a Category.
func NormalizeCategory(label string) Category {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return CategoryUnknown
	}
	return Category(strings.ReplaceAll(label, " ", "_"))
}

// Classification is the classifier verdict for a single image.
type Classification struct {
	Category   Category
	Confidence float64
}

// NewClassification normalizes a raw label and pairs it with its confidence.
func NewClassification(label string, confidence float64) Classification {
	return Classification{Category: NormalizeCategory(label), Confidence: confidence}
}

// ValidConfidence reports whether the score is a usable probability.
func (c Classification) ValidConfidence() bool {
	return !math.IsNaN(c.Confidence) && c.Confidence >= 0 && c.Confidence <= 1
}
