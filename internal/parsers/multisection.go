package parsers

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MultiSectionConfig drives the stacked-detail-table adapter. A section's
// header row is found by locating the three required labels in one row;
// data rows accumulate until a row whose first cell equals TotalMarker.
type MultiSectionConfig struct {
	Insurer         string
	PolicyLabels    []string
	InsuredLabels   []string
	AmountLabels    []string
	TotalMarker     string
	Epsilon         decimal.Decimal
	InvertNegatives bool
}

var boilerplatePolicyCells = map[string]bool{
	"POLIZA": true, "POLICY": true, "SUBTOTAL": true, "TOTAL": true,
	"TOTALES": true, "N/A": true, "-": true,
}

// ParseMultiSection parses a sheet containing several detail tables stacked
// vertically, each with its own header row and closed by a total row. Rows
// between a total marker and the next header are never emitted.
func ParseMultiSection(data []byte, filename string, cfg MultiSectionConfig) (Result, error) {
	records, err := decodeRows(data, filename)
	if err != nil {
		return Result{}, err
	}
	if cfg.TotalMarker == "" {
		cfg.TotalMarker = "TOTAL"
	}
	marker := normalizeHeader(cfg.TotalMarker)

	var res Result
	inSection := false
	var polCol, nameCol, amtCol int
	for i, row := range records {
		line := i + 1
		if !inSection {
			p := matchColumn(row, cfg.PolicyLabels, defaultPolicyAliases)
			n := matchColumn(row, cfg.InsuredLabels, defaultInsuredAliases)
			a := matchColumn(row, cfg.AmountLabels, defaultAmountAliases)
			if p >= 0 && n >= 0 && a >= 0 && p != a {
				inSection = true
				polCol, nameCol, amtCol = p, n, a
			}
			continue
		}

		if normalizeHeader(cell(row, 0)) == marker {
			inSection = false
			continue
		}
		if isEmptyRow(row) {
			continue
		}

		policy := strings.TrimSpace(cell(row, polCol))
		name := strings.TrimSpace(cell(row, nameCol))
		if policy == "" || boilerplatePolicyCells[normalizeHeader(policy)] {
			continue
		}
		if len(name) < 3 || looksLikeHeaderCell(name) {
			continue
		}
		amt, err := ParseAmount(cell(row, amtCol))
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Reason: err.Error()})
			continue
		}
		if amt.Abs().LessThanOrEqual(cfg.Epsilon) {
			continue
		}
		if cfg.InvertNegatives {
			amt = amt.Neg()
		}
		res.Rows = append(res.Rows, CanonicalRow{
			PolicyNumber:  strings.ToUpper(policy),
			ClientName:    name,
			GrossAmount:   amt,
			SourceInsurer: cfg.Insurer,
			Raw: RawFields{
				"policy":  policy,
				"insured": name,
				"amount":  cell(row, amtCol),
			},
		})
	}
	return res, nil
}

func looksLikeHeaderCell(s string) bool {
	n := normalizeHeader(s)
	for _, set := range [][]string{defaultPolicyAliases, defaultInsuredAliases, defaultAmountAliases} {
		for _, label := range set {
			if n == label {
				return true
			}
		}
	}
	return false
}
