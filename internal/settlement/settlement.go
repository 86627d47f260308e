// Package settlement computes per-broker fortnight totals: gross scaled by
// the applicable percentage, itemized deductions, and net payout. All
// arithmetic is decimal; each commission line is rounded to the cent once,
// so recomputation with unchanged inputs is byte-stable.
package settlement

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrDiscountExceedsBalance rejects a discount larger than the live
	// remaining balance of its advance.
	ErrDiscountExceedsBalance = errors.New("discount exceeds advance remaining balance")

	// ErrAlreadyPaid rejects any mutation of a fortnight that has been
	// closed.
	ErrAlreadyPaid = errors.New("fortnight already paid")
)

var hundred = decimal.NewFromInt(100)

// Item is one attributed ledger line entering aggregation. Unidentified
// lines (empty BrokerID) are excluded before aggregation.
type Item struct {
	BrokerID       string
	Insurer        string
	GrossAmount    decimal.Decimal
	PercentApplied *decimal.Decimal
	IsLife         bool
}

// BrokerInfo carries the broker's default commission percentage.
type BrokerInfo struct {
	ID             string
	PercentDefault decimal.Decimal
}

// Discount is a proposed deduction backed by an outstanding advance.
type Discount struct {
	ID        string
	BrokerID  string
	AdvanceID string
	Amount    decimal.Decimal
	Reason    string
}

// DeductionRule is a recurring per-fortnight withholding for one broker.
type DeductionRule struct {
	BrokerID string
	Amount   decimal.Decimal
	Reason   string
}

// DiscountEntry is one element of a total's itemized deduction list, stored
// as discounts_json.
type DiscountEntry struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// BrokerTotal is one broker's aggregated result for a fortnight.
type BrokerTotal struct {
	BrokerID   string
	Gross      decimal.Decimal
	Discounts  []DiscountEntry
	Net        decimal.Decimal
	IsRetained bool
}

// Config scopes the carrier-specific percentage override.
type Config struct {
	// Insurer names (uppercased) whose life batches pay the broker 100%
	// regardless of the broker's default percentage.
	LifeOverrideInsurers map[string]bool
}

// ApplicablePercent selects the percentage for one item: the explicitly
// recorded percentage when present, else the broker default, with the life
// override forcing 100 for qualifying carriers.
func ApplicablePercent(item Item, broker BrokerInfo, cfg Config) decimal.Decimal {
	if item.IsLife && cfg.LifeOverrideInsurers[strings.ToUpper(item.Insurer)] {
		return hundred
	}
	if item.PercentApplied != nil {
		return *item.PercentApplied
	}
	return broker.PercentDefault
}

// ComputeTotals aggregates items by broker and merges deductions. Every
// discount is re-validated against the advance's live remaining balance;
// a stale proposal that no longer fits fails the whole computation.
// Output is ordered by broker id so repeated runs are identical.
func ComputeTotals(
	items []Item,
	brokers map[string]BrokerInfo,
	discounts []Discount,
	rules []DeductionRule,
	balances map[string]decimal.Decimal,
	retained map[string]bool,
	cfg Config,
) ([]BrokerTotal, error) {
	gross := make(map[string]decimal.Decimal)
	for _, item := range items {
		if item.BrokerID == "" {
			continue
		}
		pct := ApplicablePercent(item, brokers[item.BrokerID], cfg)
		scaled := item.GrossAmount.Mul(pct).Div(hundred).Round(2)
		gross[item.BrokerID] = gross[item.BrokerID].Add(scaled)
	}

	// Cumulative per-advance usage within this computation, so two
	// discounts against the same advance cannot jointly overdraw it.
	used := make(map[string]decimal.Decimal)

	entries := make(map[string][]DiscountEntry)
	for _, rule := range rules {
		if _, ok := gross[rule.BrokerID]; !ok {
			continue
		}
		entries[rule.BrokerID] = append(entries[rule.BrokerID], DiscountEntry{
			Type:   "recurring",
			Amount: rule.Amount,
			Reason: rule.Reason,
		})
	}
	for _, d := range discounts {
		if _, ok := gross[d.BrokerID]; !ok {
			continue
		}
		remaining := balances[d.AdvanceID].Sub(used[d.AdvanceID])
		if d.Amount.GreaterThan(remaining) {
			return nil, fmt.Errorf("advance %s: proposed %s, remaining %s: %w",
				d.AdvanceID, d.Amount.StringFixed(2), remaining.StringFixed(2), ErrDiscountExceedsBalance)
		}
		used[d.AdvanceID] = used[d.AdvanceID].Add(d.Amount)
		entries[d.BrokerID] = append(entries[d.BrokerID], DiscountEntry{
			Type:   "advance",
			Amount: d.Amount,
			Reason: d.Reason,
		})
	}

	totals := make([]BrokerTotal, 0, len(gross))
	for brokerID, g := range gross {
		sum := decimal.Zero
		for _, e := range entries[brokerID] {
			sum = sum.Add(e.Amount)
		}
		totals = append(totals, BrokerTotal{
			BrokerID:   brokerID,
			Gross:      g,
			Discounts:  entries[brokerID],
			Net:        g.Sub(sum),
			IsRetained: retained[brokerID],
		})
	}
	// A hold placed before the broker's items arrive must survive
	// recomputation, so retained brokers get a zero row even without items.
	for brokerID, held := range retained {
		if !held {
			continue
		}
		if _, ok := gross[brokerID]; ok {
			continue
		}
		totals = append(totals, BrokerTotal{
			BrokerID:   brokerID,
			Gross:      decimal.Zero,
			Net:        decimal.Zero,
			IsRetained: true,
		})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].BrokerID < totals[j].BrokerID })
	return totals, nil
}

// ApplicableDiscounts filters proposals down to brokers that have at least
// one attributed item in the fortnight. ComputeTotals folds a discount into
// the deduction list only for brokers with items, so a close must not
// decrement an advance for a discount that never made it into a total.
func ApplicableDiscounts(discounts []Discount, items []Item) []Discount {
	present := make(map[string]bool)
	for _, item := range items {
		if item.BrokerID != "" {
			present[item.BrokerID] = true
		}
	}
	out := make([]Discount, 0, len(discounts))
	for _, d := range discounts {
		if present[d.BrokerID] {
			out = append(out, d)
		}
	}
	return out
}

// ValidateDiscount is the proposal-time balance check. The same rule runs
// again inside ComputeTotals before any close.
func ValidateDiscount(amount, remaining decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("discount amount must be positive")
	}
	if amount.GreaterThan(remaining) {
		return fmt.Errorf("proposed %s, remaining %s: %w",
			amount.StringFixed(2), remaining.StringFixed(2), ErrDiscountExceedsBalance)
	}
	return nil
}

// AdvanceApplication is one durable balance decrement planned by a close.
type AdvanceApplication struct {
	AdvanceID string
	Amount    decimal.Decimal
	NewStatus string
}

// PlanAdvanceApplications folds the fortnight's applied discounts into one
// decrement per advance and decides the resulting advance status.
func PlanAdvanceApplications(discounts []Discount, balances map[string]decimal.Decimal) ([]AdvanceApplication, error) {
	perAdvance := make(map[string]decimal.Decimal)
	order := make([]string, 0)
	for _, d := range discounts {
		if _, seen := perAdvance[d.AdvanceID]; !seen {
			order = append(order, d.AdvanceID)
		}
		perAdvance[d.AdvanceID] = perAdvance[d.AdvanceID].Add(d.Amount)
	}
	apps := make([]AdvanceApplication, 0, len(order))
	for _, advanceID := range order {
		amount := perAdvance[advanceID]
		remaining := balances[advanceID]
		if amount.GreaterThan(remaining) {
			return nil, fmt.Errorf("advance %s: applying %s, remaining %s: %w",
				advanceID, amount.StringFixed(2), remaining.StringFixed(2), ErrDiscountExceedsBalance)
		}
		status := "PARTIAL"
		if remaining.Sub(amount).IsZero() {
			status = "PAID"
		}
		apps = append(apps, AdvanceApplication{AdvanceID: advanceID, Amount: amount, NewStatus: status})
	}
	return apps, nil
}
