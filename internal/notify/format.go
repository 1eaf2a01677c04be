package notify

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// formatUnitValue renders a numeric amount with thousands separators and
// two decimal places. Non-numeric input passes through unchanged.
func formatUnitValue(raw string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw
	}
	// Round to total cents first so .995-style fractions carry into the
	// whole part instead of printing as a third digit.
	cents := int64(math.Round(math.Abs(v) * 100))
	whole := cents / 100
	frac := cents % 100

	sign := ""
	if v < 0 && cents > 0 {
		sign = "-"
	}
	digits := strconv.FormatInt(whole, 10)
	var parts []string
	for len(digits) > 3 {
		parts = append([]string{digits[len(digits)-3:]}, parts...)
		digits = digits[:len(digits)-3]
	}
	parts = append([]string{digits}, parts...)
	return fmt.Sprintf("%s%s.%02d", sign, strings.Join(parts, ","), frac)
}

var submittedDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// formatSubmittedDate normalizes a submitted-date string to MM/dd/yy.
// Unparseable input passes through unchanged.
func formatSubmittedDate(raw string) string {
	s := strings.TrimSpace(raw)
	for _, layout := range submittedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("01/02/06")
		}
	}
	return raw
}
