// Package parsers turns raw insurer commission reports into canonical rows.
// All adapters share the same contract: malformed individual rows are
// collected as RowError entries while the rest of the file still parses;
// only an unreadable container is a hard failure (ErrUnreadable).
package parsers

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnreadable marks a file that cannot be opened as its declared format.
// It aborts the whole ingestion; row-level problems never wrap it.
var ErrUnreadable = errors.New("file unreadable")

// CanonicalRow is one commission line normalized from any source format.
type CanonicalRow struct {
	PolicyNumber  string
	ClientName    string
	GrossAmount   decimal.Decimal
	SourceInsurer string
	Raw           RawFields
}

// RowError records one rejected source row. Ingestion continues past it.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Result is the outcome of parsing one file.
type Result struct {
	Rows   []CanonicalRow
	Errors []RowError
}

// RawFields preserves the original source row, keyed by header label, for
// audit and re-matching. Known hints are read through accessors rather than
// ad hoc key probing.
type RawFields map[string]string

var brokerHintKeys = []string{"corredor", "broker", "agente", "email", "correo"}

// BrokerEmailHint returns an email-like broker hint embedded in the raw row,
// or "" when none is present. Columns whose header names a broker/email
// field are preferred; otherwise any single email-shaped value counts.
func (rf RawFields) BrokerEmailHint() string {
	for key, val := range rf {
		lk := strings.ToLower(key)
		for _, hint := range brokerHintKeys {
			if strings.Contains(lk, hint) && looksLikeEmail(val) {
				return strings.TrimSpace(val)
			}
		}
	}
	for _, val := range rf {
		if looksLikeEmail(val) {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func looksLikeEmail(s string) bool {
	s = strings.TrimSpace(s)
	at := strings.Index(s, "@")
	if at <= 0 || strings.Count(s, "@") != 1 {
		return false
	}
	return strings.Contains(s[at:], ".") && !strings.ContainsAny(s, " \t")
}

// TextExtractor is the external OCR collaborator. Extraction latency is
// unbounded, so callers wrap the context with a timeout. An extraction
// failure is distinct from a text that parses to zero rows.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}
