package triage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is one of the five ordered urgency categories. Lower values are
// more urgent. The zero value is invalid; nothing outside the five constants
// is ever constructed by this package.
type Category int

const (
	CategoryResuscitation Category = iota + 1
	CategoryEmergency
	CategoryUrgent
	CategorySemiUrgent
	CategoryNonUrgent
)

var categoryNames = map[Category]string{
	CategoryResuscitation: "resuscitation",
	CategoryEmergency:     "emergency",
	CategoryUrgent:        "urgent",
	CategorySemiUrgent:    "semi_urgent",
	CategoryNonUrgent:     "non_urgent",
}

// Valid reports whether c is one of the five defined categories.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// String returns the wire name of the category, or "unknown" for invalid values.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// Index returns the 1-based position on the urgency scale (1 = most urgent).
func (c Category) Index() int {
	return int(c)
}

// MoreUrgentThan reports whether c outranks other on the urgency scale.
func (c Category) MoreUrgentThan(other Category) bool {
	return c < other
}

// CompareCategories returns -1 if a is more urgent than b, 0 if equal,
// and 1 if a is less urgent than b.
func CompareCategories(a, b Category) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MostUrgent returns whichever of a and b sits higher on the urgency scale.
func MostUrgent(a, b Category) Category {
	if a < b {
		return a
	}
	return b
}

// ParseCategory maps a wire name (case-insensitive, spaces or dashes allowed)
// back to a Category. Returns false for anything outside the fixed domain.
func ParseCategory(raw string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	for c, name := range categoryNames {
		if name == normalized {
			return c, true
		}
	}
	return 0, false
}

// MarshalJSON encodes the category as its wire name.
func (c Category) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("triage: cannot marshal invalid category %d", int(c))
	}
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes either a wire name or a 1-based index.
func (c *Category) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, ok := ParseCategory(name)
		if !ok {
			return fmt.Errorf("triage: unknown category %q", name)
		}
		*c = parsed
		return nil
	}

	var index int
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("triage: cannot decode category from %s", string(data))
	}
	candidate := Category(index)
	if !candidate.Valid() {
		return fmt.Errorf("triage: category index %d out of range", index)
	}
	*c = candidate
	return nil
}
