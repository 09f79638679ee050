// Package period normalizes loose billing-period expressions into the
// canonical "YYYY-MM" form used by the billing backend.
package period

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Default is the period returned when no recognizable expression is found.
const Default = "2025-01"

var (
	canonicalRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
	yearRe      = regexp.MustCompile(`\b(20\d{2})\b`)
	monthYearRe = regexp.MustCompile(`(\d{1,2})[/-](\d{4})`)
)

// monthNames maps month names and abbreviations to their two-digit codes.
// Full names come first so "september 2024" resolves against the full token
// rather than the "sep" prefix; both yield the same code either way.
var monthNames = []struct {
	name string
	code string
}{
	{"january", "01"}, {"february", "02"}, {"march", "03"}, {"april", "04"},
	{"may", "05"}, {"june", "06"}, {"july", "07"}, {"august", "08"},
	{"september", "09"}, {"october", "10"}, {"november", "11"}, {"december", "12"},
	{"jan", "01"}, {"feb", "02"}, {"mar", "03"}, {"apr", "04"},
	{"jun", "06"}, {"jul", "07"}, {"aug", "08"},
	{"sep", "09"}, {"oct", "10"}, {"nov", "11"}, {"dec", "12"},
}

// Normalize converts a raw period expression to "YYYY-MM". It is total and
// deterministic: any input, including the empty string, yields a valid
// period. Rules are applied in priority order:
//
//  1. already "YYYY-MM" → returned unchanged
//  2. contains a month name or abbreviation → its code, paired with an
//     explicit 4-digit year elsewhere in the string or the current year
//  3. "MM/YYYY" or "MM-YYYY" → reassembled with a zero-padded month
//  4. anything else → Default
func Normalize(raw string) string {
	input := strings.ToLower(strings.TrimSpace(raw))
	if input == "" {
		return Default
	}

	if canonicalRe.MatchString(input) {
		return input
	}

	for _, m := range monthNames {
		if !strings.Contains(input, m.name) {
			continue
		}
		year := fmt.Sprintf("%d", time.Now().Year())
		if match := yearRe.FindStringSubmatch(input); match != nil {
			year = match[1]
		}
		return year + "-" + m.code
	}

	if match := monthYearRe.FindStringSubmatch(input); match != nil {
		month := match[1]
		if len(month) == 1 {
			month = "0" + month
		}
		return match[2] + "-" + month
	}

	return Default
}
