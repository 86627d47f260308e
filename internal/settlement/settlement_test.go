package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testConfig() Config {
	return Config{LifeOverrideInsurers: map[string]bool{"PALIG": true}}
}

func TestApplicablePercent(t *testing.T) {
	broker := BrokerInfo{ID: "b1", PercentDefault: dec(t, "70")}
	override := dec(t, "85")

	assert.True(t, ApplicablePercent(Item{BrokerID: "b1"}, broker, testConfig()).Equal(dec(t, "70")))
	assert.True(t, ApplicablePercent(Item{BrokerID: "b1", PercentApplied: &override}, broker, testConfig()).Equal(dec(t, "85")))

	// Qualifying life carrier forces 100 even past an explicit percentage.
	life := Item{BrokerID: "b1", Insurer: "Palig", IsLife: true, PercentApplied: &override}
	assert.True(t, ApplicablePercent(life, broker, testConfig()).Equal(dec(t, "100")))

	// Life batch from a non-qualifying carrier keeps the normal rules.
	other := Item{BrokerID: "b1", Insurer: "ASSA", IsLife: true}
	assert.True(t, ApplicablePercent(other, broker, testConfig()).Equal(dec(t, "70")))
}

func TestComputeTotalsScalesAndNets(t *testing.T) {
	items := []Item{
		{BrokerID: "b1", Insurer: "ASSA", GrossAmount: dec(t, "1000.00")},
		{BrokerID: "b1", Insurer: "ASSA", GrossAmount: dec(t, "-100.00")},
		{BrokerID: "", Insurer: "ASSA", GrossAmount: dec(t, "55.00")}, // unidentified
	}
	brokers := map[string]BrokerInfo{"b1": {ID: "b1", PercentDefault: dec(t, "70")}}
	discounts := []Discount{{ID: "d1", BrokerID: "b1", AdvanceID: "a1", Amount: dec(t, "30.00"), Reason: "adelanto"}}
	rules := []DeductionRule{{BrokerID: "b1", Amount: dec(t, "25.00"), Reason: "seguro colectivo"}}
	balances := map[string]decimal.Decimal{"a1": dec(t, "30.00")}

	totals, err := ComputeTotals(items, brokers, discounts, rules, balances, nil, testConfig())
	require.NoError(t, err)
	require.Len(t, totals, 1)

	got := totals[0]
	assert.Equal(t, "b1", got.BrokerID)
	assert.True(t, got.Gross.Equal(dec(t, "630.00")), "gross %s", got.Gross)
	require.Len(t, got.Discounts, 2)
	assert.Equal(t, "recurring", got.Discounts[0].Type)
	assert.Equal(t, "advance", got.Discounts[1].Type)
	assert.True(t, got.Net.Equal(dec(t, "575.00")), "net %s", got.Net)
}

func TestComputeTotalsIdempotent(t *testing.T) {
	items := []Item{
		{BrokerID: "b2", Insurer: "ASSA", GrossAmount: dec(t, "333.33")},
		{BrokerID: "b1", Insurer: "ASSA", GrossAmount: dec(t, "10.01")},
	}
	brokers := map[string]BrokerInfo{
		"b1": {ID: "b1", PercentDefault: dec(t, "60")},
		"b2": {ID: "b2", PercentDefault: dec(t, "75")},
	}

	first, err := ComputeTotals(items, brokers, nil, nil, nil, nil, testConfig())
	require.NoError(t, err)
	second, err := ComputeTotals(items, brokers, nil, nil, nil, nil, testConfig())
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].BrokerID, second[i].BrokerID)
		assert.Equal(t, first[i].Gross.String(), second[i].Gross.String())
		assert.Equal(t, first[i].Net.String(), second[i].Net.String())
	}
	// Ordered by broker id regardless of input order.
	assert.Equal(t, "b1", first[0].BrokerID)
	assert.Equal(t, "b2", first[1].BrokerID)
}

func TestComputeTotalsRejectsOverdrawnDiscount(t *testing.T) {
	items := []Item{{BrokerID: "b1", Insurer: "ASSA", GrossAmount: dec(t, "500.00")}}
	brokers := map[string]BrokerInfo{"b1": {ID: "b1", PercentDefault: dec(t, "100")}}
	discounts := []Discount{{ID: "d1", BrokerID: "b1", AdvanceID: "a1", Amount: dec(t, "50.00")}}
	balances := map[string]decimal.Decimal{"a1": dec(t, "30.00")}

	_, err := ComputeTotals(items, brokers, discounts, nil, balances, nil, testConfig())
	assert.ErrorIs(t, err, ErrDiscountExceedsBalance)
}

func TestComputeTotalsCumulativePerAdvance(t *testing.T) {
	// Two discounts against the same advance cannot jointly overdraw it.
	items := []Item{{BrokerID: "b1", Insurer: "ASSA", GrossAmount: dec(t, "500.00")}}
	brokers := map[string]BrokerInfo{"b1": {ID: "b1", PercentDefault: dec(t, "100")}}
	discounts := []Discount{
		{ID: "d1", BrokerID: "b1", AdvanceID: "a1", Amount: dec(t, "20.00")},
		{ID: "d2", BrokerID: "b1", AdvanceID: "a1", Amount: dec(t, "20.00")},
	}
	balances := map[string]decimal.Decimal{"a1": dec(t, "30.00")}

	_, err := ComputeTotals(items, brokers, discounts, nil, balances, nil, testConfig())
	assert.ErrorIs(t, err, ErrDiscountExceedsBalance)
}

func TestComputeTotalsRetainedFlagPreserved(t *testing.T) {
	items := []Item{{BrokerID: "b1", Insurer: "ASSA", GrossAmount: dec(t, "100.00")}}
	brokers := map[string]BrokerInfo{"b1": {ID: "b1", PercentDefault: dec(t, "50")}}

	totals, err := ComputeTotals(items, brokers, nil, nil, nil, map[string]bool{"b1": true}, testConfig())
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.True(t, totals[0].IsRetained)
}

func TestComputeTotalsRetainedBrokerWithoutItemsKeepsRow(t *testing.T) {
	// A hold on a broker with no lines yet must survive a recompute as a
	// zero row instead of disappearing from the totals.
	items := []Item{{BrokerID: "b1", Insurer: "ASSA", GrossAmount: dec(t, "100.00")}}
	brokers := map[string]BrokerInfo{"b1": {ID: "b1", PercentDefault: dec(t, "50")}}
	retained := map[string]bool{"b2": true}

	totals, err := ComputeTotals(items, brokers, nil, nil, nil, retained, testConfig())
	require.NoError(t, err)
	require.Len(t, totals, 2)

	assert.Equal(t, "b1", totals[0].BrokerID)
	assert.False(t, totals[0].IsRetained)

	held := totals[1]
	assert.Equal(t, "b2", held.BrokerID)
	assert.True(t, held.IsRetained)
	assert.True(t, held.Gross.IsZero(), "gross %s", held.Gross)
	assert.True(t, held.Net.IsZero(), "net %s", held.Net)
	assert.Empty(t, held.Discounts)
}

func TestApplicableDiscountsDropsBrokersWithoutItems(t *testing.T) {
	// A discount for a broker with no lines never makes it into a total,
	// so closing must not decrement its advance either.
	items := []Item{
		{BrokerID: "b1", Insurer: "ASSA", GrossAmount: dec(t, "200.00")},
		{BrokerID: "", Insurer: "ASSA", GrossAmount: dec(t, "99.00")},
	}
	discounts := []Discount{
		{ID: "d1", BrokerID: "b1", AdvanceID: "a1", Amount: dec(t, "15.00")},
		{ID: "d2", BrokerID: "b2", AdvanceID: "a2", Amount: dec(t, "30.00")},
	}

	applicable := ApplicableDiscounts(discounts, items)
	require.Len(t, applicable, 1)
	assert.Equal(t, "d1", applicable[0].ID)

	balances := map[string]decimal.Decimal{"a1": dec(t, "15.00"), "a2": dec(t, "30.00")}
	apps, err := PlanAdvanceApplications(applicable, balances)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "a1", apps[0].AdvanceID)
}

func TestValidateDiscount(t *testing.T) {
	assert.NoError(t, ValidateDiscount(dec(t, "30.00"), dec(t, "30.00")))
	assert.ErrorIs(t, ValidateDiscount(dec(t, "50.00"), dec(t, "30.00")), ErrDiscountExceedsBalance)
	assert.Error(t, ValidateDiscount(dec(t, "0"), dec(t, "30.00")))
	assert.Error(t, ValidateDiscount(dec(t, "-5.00"), dec(t, "30.00")))
}

func TestPlanAdvanceApplications(t *testing.T) {
	discounts := []Discount{
		{ID: "d1", BrokerID: "b1", AdvanceID: "a1", Amount: dec(t, "30.00")},
		{ID: "d2", BrokerID: "b2", AdvanceID: "a2", Amount: dec(t, "10.00")},
	}
	balances := map[string]decimal.Decimal{"a1": dec(t, "30.00"), "a2": dec(t, "40.00")}

	apps, err := PlanAdvanceApplications(discounts, balances)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "a1", apps[0].AdvanceID)
	assert.Equal(t, "PAID", apps[0].NewStatus)
	assert.Equal(t, "PARTIAL", apps[1].NewStatus)
}

func TestPlanAdvanceApplicationsRejectsOverdraw(t *testing.T) {
	discounts := []Discount{{ID: "d1", BrokerID: "b1", AdvanceID: "a1", Amount: dec(t, "50.00")}}
	balances := map[string]decimal.Decimal{"a1": dec(t, "30.00")}
	_, err := PlanAdvanceApplications(discounts, balances)
	assert.ErrorIs(t, err, ErrDiscountExceedsBalance)
}
