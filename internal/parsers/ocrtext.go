package parsers

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// OCRRule is the carrier-scoped reconstruction rule for scanned reports.
// The heuristics are specific to the carriers observed so far and are not
// assumed to generalize.
type OCRRule struct {
	Insurer string

	// Prefix for the synthesized policy number.
	CarrierPrefix string

	// Exact digit length of the receipt-number token.
	ReceiptDigits int

	// Digit count of the business-line code glued to the end of the
	// commission amount token.
	BusinessLineDigits int

	// Extra boilerplate patterns (matched as uppercase substrings) on top
	// of the built-ins.
	NoisePatterns []string
}

var builtinNoise = []string{
	"PAGINA", "PAGE", "REPORTE", "COMISIONES DEL", "FECHA DE",
	"ASEGURADO RECIBO", "POLIZA ENDOSO", "SUBTOTAL", "TOTAL", "-----",
}

var numericToken = regexp.MustCompile(`^\d+$`)

// ParseOCRText reconstructs commission rows from OCR-extracted plain text.
// A line is accepted only when every positional token validates; anything
// else on a non-boilerplate line becomes a RowError.
func ParseOCRText(text string, rule OCRRule) (Result, error) {
	if rule.ReceiptDigits <= 0 {
		return Result{}, fmt.Errorf("%w: OCR rule missing receipt digit length", ErrUnreadable)
	}
	lineDigits := rule.BusinessLineDigits
	if lineDigits <= 0 {
		lineDigits = 3
	}
	comboToken := regexp.MustCompile(fmt.Sprintf(`^(\d+\.\d{2})(\d{%d})$`, lineDigits))

	var res Result
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isNoiseLine(trimmed, rule.NoisePatterns) {
			continue
		}
		tokens := strings.Fields(trimmed)
		if len(tokens) < 6 {
			continue
		}

		dateTok := tokens[len(tokens)-1]
		if _, err := time.Parse("02/01/2006", dateTok); err != nil {
			res.Errors = append(res.Errors, RowError{Line: lineNo, Reason: "missing or invalid trailing date"})
			continue
		}
		m := comboToken.FindStringSubmatch(tokens[len(tokens)-2])
		if m == nil {
			res.Errors = append(res.Errors, RowError{Line: lineNo, Reason: "commission+line-code token malformed"})
			continue
		}
		endorsement := tokens[len(tokens)-3]
		policy := tokens[len(tokens)-4]
		if !numericToken.MatchString(policy) || !numericToken.MatchString(endorsement) {
			res.Errors = append(res.Errors, RowError{Line: lineNo, Reason: "policy or endorsement token not numeric"})
			continue
		}
		receiptIdx := -1
		for j, tok := range tokens[:len(tokens)-4] {
			if len(tok) == rule.ReceiptDigits && numericToken.MatchString(tok) {
				receiptIdx = j
				break
			}
		}
		if receiptIdx <= 0 {
			res.Errors = append(res.Errors, RowError{Line: lineNo, Reason: "no receipt-number token of expected length"})
			continue
		}

		amt, err := ParseAmount(m[1])
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: lineNo, Reason: err.Error()})
			continue
		}
		code := m[2]
		for len(code) < 3 {
			code = "0" + code
		}
		name := strings.Join(tokens[:receiptIdx], " ")
		res.Rows = append(res.Rows, CanonicalRow{
			PolicyNumber:  fmt.Sprintf("%s-%s-%s", rule.CarrierPrefix, code, stripLeadingZeros(policy)),
			ClientName:    name,
			GrossAmount:   amt,
			SourceInsurer: rule.Insurer,
			Raw: RawFields{
				"receipt":     tokens[receiptIdx],
				"policy":      policy,
				"endorsement": endorsement,
				"date":        dateTok,
			},
		})
	}
	return res, nil
}

func isNoiseLine(line string, extra []string) bool {
	up := strings.ToUpper(stripAccents(line))
	for _, pat := range builtinNoise {
		if strings.Contains(up, pat) {
			return true
		}
	}
	for _, pat := range extra {
		if pat != "" && strings.Contains(up, strings.ToUpper(pat)) {
			return true
		}
	}
	return false
}

func stripLeadingZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}
