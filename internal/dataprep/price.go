package dataprep

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
)

var currencyPrefixes = []string{"inr", "rs.", "rs"}

// decimalPattern admits base-10 numbers with an optional fraction and exponent.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ParsePrice coerces a price cell such as "₹1,299" or "Rs. 499.00" to a number.
// Currency symbols, thousands separators and spaces are removed, and what remains must be
// a base-10 number. Empty, sentinel, non-numeric, negative or non-finite values are
// errors; they are never defaulted.
func ParsePrice(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if taxonomy.IsSentinel(s) {
		return 0, fmt.Errorf("price %q is missing", raw)
	}

	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) || r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	lower := strings.ToLower(s)
	for _, prefix := range currencyPrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}

	if s == "" {
		return 0, fmt.Errorf("price %q has no digits", raw)
	}
	if !decimalPattern.MatchString(s) {
		return 0, fmt.Errorf("price %q is not a number", raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q is not a number", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("price %q is not finite", raw)
	}
	if v < 0 {
		return 0, errors.New("price is negative")
	}
	return v, nil
}

// CombinedText joins the trimmed name and description with one space. A missing or
// blank description leaves no trailing space.
func CombinedText(name string, about *string) string {
	name = strings.TrimSpace(name)
	if about == nil {
		return name
	}
	a := strings.TrimSpace(*about)
	switch {
	case a == "":
		return name
	case name == "":
		return a
	default:
		return name + " " + a
	}
}
