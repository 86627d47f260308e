package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TabularConfig drives the generic adapter for one insurer. Alias lists are
// ordered: the first alias matching a header cell (case- and accent-
// insensitive substring) wins. Empty lists fall back to built-in heuristics.
type TabularConfig struct {
	Insurer        string
	PolicyAliases  []string
	InsuredAliases []string
	AmountAliases  []string

	// Set for insurers that report payable commissions as negatives.
	InvertNegatives bool
}

var (
	defaultPolicyAliases  = []string{"POLIZA", "POLICY", "CERTIFICADO", "CONTRATO"}
	defaultInsuredAliases = []string{"ASEGURADO", "NOMBRE", "CLIENTE", "INSURED"}
	defaultAmountAliases  = []string{"COMISION", "COMMISSION", "MONTO", "AMOUNT", "NETO"}
)

// ParseTabular parses a spreadsheet or CSV commission report using the
// insurer's column-mapping configuration.
func ParseTabular(data []byte, filename string, cfg TabularConfig) (Result, error) {
	records, err := decodeRows(data, filename)
	if err != nil {
		return Result{}, err
	}

	headerIdx := -1
	var polCol, nameCol, amtCol int
	for i, row := range records {
		p := matchColumn(row, cfg.PolicyAliases, defaultPolicyAliases)
		a := matchColumn(row, cfg.AmountAliases, defaultAmountAliases)
		if p >= 0 && a >= 0 && p != a {
			headerIdx = i
			polCol = p
			amtCol = a
			nameCol = matchColumn(row, cfg.InsuredAliases, defaultInsuredAliases)
			break
		}
	}
	if headerIdx < 0 {
		return Result{}, fmt.Errorf("%w: no header row with policy and amount columns", ErrUnreadable)
	}
	header := records[headerIdx]

	var res Result
	for i := headerIdx + 1; i < len(records); i++ {
		row := records[i]
		line := i + 1
		if isEmptyRow(row) {
			continue
		}
		policy := strings.TrimSpace(cell(row, polCol))
		if policy == "" {
			res.Errors = append(res.Errors, RowError{Line: line, Reason: "missing policy number"})
			continue
		}
		amt, err := ParseAmount(cell(row, amtCol))
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Reason: err.Error()})
			continue
		}
		if cfg.InvertNegatives {
			amt = amt.Neg()
		}
		raw := RawFields{}
		for j, h := range header {
			h = strings.TrimSpace(h)
			if h != "" && j < len(row) {
				raw[h] = row[j]
			}
		}
		res.Rows = append(res.Rows, CanonicalRow{
			PolicyNumber:  strings.ToUpper(policy),
			ClientName:    strings.TrimSpace(cell(row, nameCol)),
			GrossAmount:   amt,
			SourceInsurer: cfg.Insurer,
			Raw:           raw,
		})
	}
	return res, nil
}

// decodeRows opens the container format. xlsx via excelize, legacy xls via
// xlsReader, anything else is treated as delimited text.
func decodeRows(data []byte, filename string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		return rows, nil
	case ".xls":
		wb, err := xls.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		sheet, err := wb.GetSheet(0)
		if err != nil || sheet == nil {
			return nil, fmt.Errorf("%w: no sheet in xls workbook", ErrUnreadable)
		}
		var rows [][]string
		for _, xlsRow := range sheet.GetRows() {
			var vals []string
			for _, col := range xlsRow.GetCols() {
				vals = append(vals, col.GetString())
			}
			rows = append(rows, vals)
		}
		return rows, nil
	default:
		return decodeDelimited(data)
	}
}

func decodeDelimited(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return rows, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best := ','
	bestCount := bytes.Count(line, []byte(","))
	for _, cand := range []byte{';', '\t'} {
		if n := bytes.Count(line, []byte{cand}); n > bestCount {
			best = rune(cand)
			bestCount = n
		}
	}
	return best
}

func matchColumn(row []string, aliases, fallback []string) int {
	if len(aliases) == 0 {
		aliases = fallback
	}
	normed := make([]string, len(row))
	for i, c := range row {
		normed[i] = normalizeHeader(c)
	}
	for _, alias := range aliases {
		na := normalizeHeader(alias)
		if na == "" {
			continue
		}
		for i, c := range normed {
			if c != "" && strings.Contains(c, na) {
				return i
			}
		}
	}
	return -1
}

func normalizeHeader(s string) string {
	return strings.ToUpper(strings.TrimSpace(stripAccents(s)))
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
