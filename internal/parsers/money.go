package parsers

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a money string from an insurer report into a decimal.
// It tolerates currency symbols, thousands separators in either convention
// ("1,234.56" and "1.234,56"), and accounting negatives ("(1,234.56)").
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		neg = true
		raw = raw[1 : len(raw)-1]
	}

	// Currency symbols can themselves contain separators ("B/." for balboa),
	// so cut everything outside the first and last digit before looking at
	// the separators. A minus sign in the leading chunk still counts.
	isDigit := func(r rune) bool { return r >= '0' && r <= '9' }
	if i := strings.IndexFunc(raw, isDigit); i > 0 {
		if strings.Contains(raw[:i], "-") {
			neg = true
		}
		raw = raw[i:]
	}
	if i := strings.LastIndexFunc(raw, isDigit); i >= 0 && i < len(raw)-1 {
		raw = raw[:i+1]
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == '.' || r == ',' || r == '-':
			return r
		}
		return -1
	}, raw)
	if strings.HasPrefix(cleaned, "-") {
		neg = true
		cleaned = cleaned[1:]
	}
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("amount %q has no digits", s)
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		// European convention: dots group thousands, comma is decimal.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case lastComma >= 0 && lastDot >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case lastComma >= 0:
		// Lone comma with a non-3-digit tail is a decimal separator;
		// anything else is grouping.
		if strings.Count(cleaned, ",") == 1 && len(cleaned)-lastComma-1 != 3 {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q not parseable: %w", s, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}
