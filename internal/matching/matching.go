// Package matching resolves canonical commission rows to broker identities.
package matching

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"BrokerSettle/internal/parsers"
)

// PolicyRef is the result of a policy directory lookup.
type PolicyRef struct {
	BrokerID        string
	PercentOverride *decimal.Decimal
}

// Directory is the policy/broker lookup surface the matcher depends on.
// Policy numbers are compared after NormalizePolicy on both sides.
type Directory interface {
	LookupPolicy(ctx context.Context, policyNumber string) (PolicyRef, bool, error)
	LookupBrokerByHint(ctx context.Context, hint string) (string, bool, error)
}

// Resolution is the attribution decision for one row. BrokerID is "" for
// unidentified rows, which stay in the ledger awaiting manual claim or the
// retention sweep.
type Resolution struct {
	BrokerID        string
	PercentOverride *decimal.Decimal
	ViaPolicy       bool
	ViaHint         bool
}

type Matcher struct {
	dir Directory
}

func NewMatcher(dir Directory) *Matcher {
	return &Matcher{dir: dir}
}

// Resolve attributes a row. An exact policy match wins regardless of any
// broker hint in the raw fields; the hint is only consulted when the policy
// is unknown.
func (m *Matcher) Resolve(ctx context.Context, row parsers.CanonicalRow) (Resolution, error) {
	ref, ok, err := m.dir.LookupPolicy(ctx, NormalizePolicy(row.PolicyNumber))
	if err != nil {
		return Resolution{}, err
	}
	if ok {
		return Resolution{BrokerID: ref.BrokerID, PercentOverride: ref.PercentOverride, ViaPolicy: true}, nil
	}

	if hint := row.Raw.BrokerEmailHint(); hint != "" {
		brokerID, ok, err := m.dir.LookupBrokerByHint(ctx, strings.ToLower(hint))
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{BrokerID: brokerID, ViaHint: true}, nil
		}
	}
	return Resolution{}, nil
}

// NormalizePolicy is the soft-reference rule between ledger items and the
// policy directory: uppercase, trim, strip leading zeros. It must be applied
// identically on both sides of every comparison — the directory stores
// normalized numbers and lookups normalize their argument.
func NormalizePolicy(policyNumber string) string {
	s := strings.ToUpper(strings.TrimSpace(policyNumber))
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}
