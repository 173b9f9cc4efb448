// Package prices converts Swedish retail price fragments like "35:-",
// "35:90" or "35.90" into numeric values.
package prices

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparsable is returned when a fragment matches no recognized notation.
var ErrUnparsable = errors.New("unparsable price")

// kronor, then ":" or ".", then optional öre digits ("35:-" matches with no öre)
var priceRe = regexp.MustCompile(`(\d+)[:.](\d+)?`)

// Parse converts a single price fragment to a float. "35:-" -> 35.0,
// "35:90" -> 35.9, "35.90" -> 35.9.
func Parse(text string) (float64, error) {
	cleaned := strings.ReplaceAll(text, " ", "")
	m := priceRe.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparsable, text)
	}
	if m[2] == "" {
		return strconv.ParseFloat(m[1], 64)
	}
	return strconv.ParseFloat(m[1]+"."+m[2], 64)
}

// ParseRange parses a "from-to" display like "38:90-50:90" and returns the
// arithmetic mean of the endpoints. A single price is the mean of itself, so
// ParseRange accepts anything Parse does. The öre-absence notation ":-" is
// folded away before splitting so a trailing dash is never taken for a range
// separator.
func ParseRange(text string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.ReplaceAll(text, " ", ""), ":-", ":")
	var sum float64
	var n int
	for _, part := range strings.Split(cleaned, "-") {
		v, err := Parse(part)
		if err != nil {
			return 0, fmt.Errorf("range %q: %w", text, err)
		}
		sum += v
		n++
	}
	return sum / float64(n), nil
}
