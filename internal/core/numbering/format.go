package numbering

import (
	"fmt"
	"strconv"
	"strings"
)

// PadWidth is the minimum width of the numeric part of a formatted number.
const PadWidth = 6

// MaxNumber is the largest value a counter ever issues. A counter whose
// nextNumber has passed it is exhausted; next_number+1 stays far from the
// int64 and BIGINT limits.
const MaxNumber int64 = 999_999_999_999_999

// Format renders prefix + zero-padded n. Numbers wider than PadWidth are
// never truncated.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, PadWidth, n)
}

// Parse recovers n from a formatted number given its known prefix.
func Parse(formatted, prefix string) (int64, error) {
	if !strings.HasPrefix(formatted, prefix) {
		return 0, fmt.Errorf("number %q does not start with prefix %q", formatted, prefix)
	}
	digits := formatted[len(prefix):]
	if len(digits) < PadWidth {
		return 0, fmt.Errorf("number %q: numeric part shorter than %d digits", formatted, PadWidth)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("number %q: non-digit in numeric part", formatted)
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("number %q: %w", formatted, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("number %q: value must be positive", formatted)
	}
	return n, nil
}

// ValidatePrefix checks an operator-supplied prefix.
func ValidatePrefix(prefix string) error {
	if len(prefix) > 32 {
		return fmt.Errorf("prefix longer than 32 characters")
	}
	if strings.ContainsAny(prefix, " \t\r\n") {
		return fmt.Errorf("prefix must not contain whitespace")
	}
	return nil
}
