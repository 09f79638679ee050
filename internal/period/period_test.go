package period_test

import (
	"fmt"
	"testing"
	"time"

	"billgate/internal/period"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	currentYear := fmt.Sprintf("%d", time.Now().Year())

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Canonical form passes through",
			input:    "2024-10",
			expected: "2024-10",
		},
		{
			name:     "Canonical form with surrounding whitespace",
			input:    "  2024-10  ",
			expected: "2024-10",
		},
		{
			name:     "Full month name with year",
			input:    "October 2024",
			expected: "2024-10",
		},
		{
			name:     "Abbreviated month with year",
			input:    "oct 2024",
			expected: "2024-10",
		},
		{
			name:     "Month name inside a sentence",
			input:    "what is my bill for october 2024",
			expected: "2024-10",
		},
		{
			name:     "Month name without year uses current year",
			input:    "march",
			expected: currentYear + "-03",
		},
		{
			name:     "September resolves to 09",
			input:    "september 2023",
			expected: "2023-09",
		},
		{
			name:     "MM/YYYY form",
			input:    "10/2024",
			expected: "2024-10",
		},
		{
			name:     "M-YYYY form zero pads the month",
			input:    "5-2024",
			expected: "2024-05",
		},
		{
			name:     "Empty input yields default",
			input:    "",
			expected: period.Default,
		},
		{
			name:     "Garbage yields default",
			input:    "no period here",
			expected: period.Default,
		},
		{
			name:     "Bare year yields default",
			input:    "2024",
			expected: period.Default,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := period.Normalize(tt.input)
			if result != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalize_AllMonths(t *testing.T) {
	t.Parallel()

	months := map[string]string{
		"january": "01", "february": "02", "march": "03", "april": "04",
		"may": "05", "june": "06", "july": "07", "august": "08",
		"september": "09", "october": "10", "november": "11", "december": "12",
		"jan": "01", "feb": "02", "mar": "03", "apr": "04", "jun": "06",
		"jul": "07", "aug": "08", "sep": "09", "oct": "10", "nov": "11", "dec": "12",
	}
	years := []string{"2023", "2024", "2025"}

	for name, code := range months {
		for _, year := range years {
			input := name + " " + year
			expected := year + "-" + code
			if got := period.Normalize(input); got != expected {
				t.Errorf("Normalize(%q) = %q, want %q", input, got, expected)
			}
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"2024-10",
		"October 2024",
		"10/2024",
		"pay my bill",
		"",
		"sep 2022",
	}

	for _, input := range inputs {
		once := period.Normalize(input)
		twice := period.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}
