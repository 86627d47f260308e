// Package ach renders fortnight broker totals into the bank's fixed-field
// wire-transfer text format. One line is eight semicolon-delimited ASCII
// fields; a single malformed field corrupts the whole transfer batch, so
// every field is normalized defensively before rendering.
package ach

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrNoValidBankingData is returned when no payment yields a valid line;
// an empty file is never emitted.
var ErrNoValidBankingData = errors.New("no valid banking data for ACH generation")

const (
	referenceMarker     = "REF*TXT**"
	referenceTerminator = `\`
	creditCode          = "C"
)

// Payment is one broker's candidate disbursement.
type Payment struct {
	BrokerID        string
	BeneficiaryName string
	RouteCode       string
	AccountNumber   string
	AccountTypeCode string
	Net             decimal.Decimal
	IsRetained      bool
}

// Skipped records a payment excluded from the file, for manual follow-up.
type Skipped struct {
	BrokerID        string `json:"broker_id"`
	BeneficiaryName string `json:"beneficiary_name"`
	Reason          string `json:"reason"`
}

// File is one rendered disbursement batch.
type File struct {
	Lines   []string
	Skipped []Skipped
}

// Render joins the lines into the downloadable file body.
func (f File) Render() string {
	return strings.Join(f.Lines, "\n") + "\n"
}

// Config bounds the rendered fields.
type Config struct {
	// Account numbers starting with one of these get a forced leading zero.
	ForcedZeroPrefixes []string
	NameMaxLen         int
	AccountMaxLen      int
	ReferenceMaxLen    int
}

func DefaultConfig() Config {
	return Config{
		ForcedZeroPrefixes: []string{"3"},
		NameMaxLen:         22,
		AccountMaxLen:      17,
		ReferenceMaxLen:    80,
	}
}

// BuildFile renders the eligible payments. Retained brokers, negative nets
// and incomplete banking profiles are skipped with a reason, never failed;
// lines are ordered by beneficiary name and numbered after sorting so the
// output is deterministic for a given input set.
func BuildFile(payments []Payment, reference string, cfg Config) (File, error) {
	var file File
	eligible := make([]Payment, 0, len(payments))
	for _, p := range payments {
		switch {
		case p.IsRetained:
			file.Skipped = append(file.Skipped, Skipped{p.BrokerID, p.BeneficiaryName, "payout retained"})
		case p.Net.Sign() < 0:
			file.Skipped = append(file.Skipped, Skipped{p.BrokerID, p.BeneficiaryName, "negative net amount"})
		case digitsOnly(p.RouteCode) == "" || digitsOnly(p.AccountNumber) == "":
			file.Skipped = append(file.Skipped, Skipped{p.BrokerID, p.BeneficiaryName, "incomplete banking profile"})
		default:
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return file, ErrNoValidBankingData
	}

	sort.Slice(eligible, func(i, j int) bool {
		ni, nj := NormalizeName(eligible[i].BeneficiaryName, cfg.NameMaxLen), NormalizeName(eligible[j].BeneficiaryName, cfg.NameMaxLen)
		if ni != nj {
			return ni < nj
		}
		return eligible[i].BrokerID < eligible[j].BrokerID
	})

	for seq, p := range eligible {
		fields := []string{
			fmt.Sprintf("%03d", seq+1),
			NormalizeName(p.BeneficiaryName, cfg.NameMaxLen),
			strings.TrimLeft(digitsOnly(p.RouteCode), "0"),
			FormatAccount(p.AccountNumber, cfg),
			p.AccountTypeCode,
			p.Net.Abs().StringFixed(2),
			creditCode,
			formatReference(reference, cfg.ReferenceMaxLen),
		}
		file.Lines = append(file.Lines, strings.Join(fields, ";"))
	}
	return file, nil
}

// NormalizeName upper-cases, strips accents and non-ASCII noise, and bounds
// the beneficiary name to the bank's field width.
func NormalizeName(name string, maxLen int) string {
	s := strings.ToUpper(stripAccents(strings.TrimSpace(name)))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ', r == '.', r == '-', r == '&':
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}

// FormatAccount cleans the destination account number per the bank rule:
// accounts beginning with a configured prefix get a forced leading zero,
// and the result is bounded to the field width.
func FormatAccount(account string, cfg Config) string {
	acct := digitsOnly(account)
	for _, prefix := range cfg.ForcedZeroPrefixes {
		if prefix != "" && strings.HasPrefix(acct, prefix) {
			acct = "0" + acct
			break
		}
	}
	if len(acct) > cfg.AccountMaxLen {
		acct = acct[:cfg.AccountMaxLen]
	}
	return acct
}

func formatReference(text string, maxLen int) string {
	budget := maxLen - len(referenceMarker) - len(referenceTerminator)
	t := NormalizeName(text, budget)
	return referenceMarker + t + referenceTerminator
}

// FileName is the deterministic download name for a batch generated on the
// given date.
func FileName(date time.Time) string {
	return fmt.Sprintf("PAGOS_COMISIONES_%s.txt", date.Format("20060102"))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
