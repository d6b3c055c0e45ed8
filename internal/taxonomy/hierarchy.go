// Package taxonomy models category label structures: composite-string hierarchies and the
// stage dependency graphs the cascade trains over.
package taxonomy

import "strings"

// Sentinel labels. Neither is ever learned as a class.
const (
	// NotApplicable marks a level that does not exist for a product's branch.
	NotApplicable = "N/A"
	// Unknown marks a level that exists but the trained taxonomy cannot decide.
	Unknown = "Unknown"
)

// DefaultSeparator is the canonical level separator for composite categories.
const DefaultSeparator = " > "

// sourceSentinels are spellings of "no label" found in catalog exports.
var sourceSentinels = map[string]struct{}{
	"":        {},
	"none":    {},
	"n/a":     {},
	"na":      {},
	"nan":     {},
	"null":    {},
	"<na>":    {},
	"unknown": {},
}

// IsSentinel reports whether label is a reserved or source "no label" value.
func IsSentinel(label string) bool {
	_, ok := sourceSentinels[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

// Path is an ordered list of labels, one per level.
type Path []string

// Depth returns the number of non-sentinel leading levels.
func (p Path) Depth() int {
	for i, label := range p {
		if IsSentinel(label) {
			return i
		}
	}
	return len(p)
}

// Hierarchy parses and formats composite category strings.
type Hierarchy struct {
	Separator string
	Depth     int
}

// NewHierarchy returns a Hierarchy, defaulting the separator.
func NewHierarchy(separator string, depth int) Hierarchy {
	if separator == "" {
		separator = DefaultSeparator
	}
	return Hierarchy{Separator: separator, Depth: depth}
}

// Parse splits s into exactly h.Depth levels. Missing, empty or sentinel parts become
// NotApplicable, and every level after the first sentinel is NotApplicable too.
func (h Hierarchy) Parse(s string) Path {
	path := make(Path, h.Depth)
	parts := splitParts(s, h.Separator, h.Depth)

	closed := false
	for i := range path {
		if closed || i >= len(parts) || IsSentinel(parts[i]) {
			path[i] = NotApplicable
			closed = true
			continue
		}
		path[i] = parts[i]
	}
	return path
}

// Format joins p with the separator.
func (h Hierarchy) Format(p Path) string {
	return strings.Join(p, h.Separator)
}

func splitParts(s, sep string, depth int) []string {
	if strings.TrimSpace(s) == "" || depth <= 0 {
		return nil
	}
	parts := strings.SplitN(s, sep, depth)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
