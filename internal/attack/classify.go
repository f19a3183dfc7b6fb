package attack

import (
	"strings"
	"unicode"
)

// Category selects the axis actors are grouped by.
type Category string

const (
	CategoryRegion   Category = "region"
	CategoryActivity Category = "activity"
	CategorySector   Category = "sector"
)

// Categories returns the grouping axes in menu order.
func Categories() []Category {
	return []Category{CategoryRegion, CategoryActivity, CategorySector}
}

// Title returns the human-readable axis name.
func (c Category) Title() string {
	switch c {
	case CategoryActivity:
		return "Activity Type"
	case CategorySector:
		return "Target Sector"
	default:
		return "Geographical Region"
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryRegion, CategoryActivity, CategorySector:
		return true
	}
	return false
}

// Classification keyword lists. Order matters: the first keyword found in
// the description wins.
var (
	regionKeywords   = []string{"China", "Russia", "Iran", "North Korea", "USA", "Vietnam", "India", "Europe"}
	activityKeywords = []string{"espionage", "financial", "theft", "sabotage", "ransomware", "malware"}
	sectorKeywords   = []string{"government", "financial", "healthcare", "technology", "energy", "military"}
)

// ClassifyRegion scans the description for a region keyword,
// case-insensitively, and returns the keyword verbatim or "Unknown".
func ClassifyRegion(description string) string {
	if kw, ok := matchKeyword(description, regionKeywords); ok {
		return kw
	}
	return "Unknown"
}

// ClassifyActivity scans for an activity keyword and returns it capitalized,
// or "Other".
func ClassifyActivity(description string) string {
	if kw, ok := matchKeyword(description, activityKeywords); ok {
		return capitalize(kw)
	}
	return "Other"
}

// ClassifySector scans for a target-sector keyword and returns it
// capitalized, or "Other".
func ClassifySector(description string) string {
	if kw, ok := matchKeyword(description, sectorKeywords); ok {
		return capitalize(kw)
	}
	return "Other"
}

// Classify returns the classification along the given axis.
func Classify(c Category, description string) string {
	switch c {
	case CategoryActivity:
		return ClassifyActivity(description)
	case CategorySector:
		return ClassifySector(description)
	default:
		return ClassifyRegion(description)
	}
}

func matchKeyword(description string, keywords []string) (string, bool) {
	lower := strings.ToLower(description)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
