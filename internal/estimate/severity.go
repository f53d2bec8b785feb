package estimate

// Severity is the display tier of a damage category.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const fallbackRangeLabel = "Rs 10,000 – 20,000"

var categorySeverity = map[Category]Severity{
	CategoryScratch:         SeverityLow,
	CategoryFlatTire:        SeverityLow,
	CategoryMirrorBroken:    SeverityLow,
	CategoryDent:            SeverityMedium,
	CategoryWindowBroken:    SeverityMedium,
	CategoryHeadlightBroken: SeverityMedium,
	CategoryBumperDent:      SeverityMedium,
	CategoryTotaled:         SeverityHigh,
}

var severityRanges = map[Severity]string{
	SeverityLow:    "Rs 5,000 – 10,000",
	SeverityMedium: "Rs 15,000 – 30,000",
	SeverityHigh:   "Rs 40,000 – 80,000",
}

// SeverityOf maps a category to its tier. Unmapped categories are medium.
func SeverityOf(c Category) Severity {
	if s, ok := categorySeverity[c]; ok {
		return s
	}
	return SeverityMedium
}

// RangeLabel returns the human readable cost range shown for a severity.
func RangeLabel(s Severity) string {
	if label, ok := severityRanges[s]; ok {
		return label
	}
	return fallbackRangeLabel
}
