package config

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"BrokerSettle/internal/parsers"
)

const (
	DefaultTimeZone = "America/Panama"

	// Stale-item sweep: unidentified ledger lines older than the retention
	// window are attributed to the house broker.
	DefaultStaleSchedule = "0 3 * * *"
	StaleBatchSize       = 500
	DefaultRetentionDays = 90

	SectionTotalMarker = "TOTAL"

	// Amounts at or below this are treated as rounding noise by the
	// multi-section adapter.
	AmountEpsilon = "0.01"

	ACHNameMaxLen      = 22
	ACHAccountMaxLen   = 17
	ACHReferenceMaxLen = 80
)

// EngineConfig carries the carrier-scoped tunables of the settlement engine.
// It is built once at boot and passed into entrypoints; nothing here is
// package-level mutable state.
type EngineConfig struct {
	RetentionDays int
	HouseBrokerID string

	// Insurer names (uppercased) whose life-insurance batches force the
	// broker percentage to 100.
	LifeOverrideInsurers map[string]bool

	// Account-type label -> two-digit wire code.
	AccountTypeCodes map[string]string

	// Account numbers starting with one of these prefixes get a forced
	// leading zero in the ACH file.
	ACHForcedZeroPrefixes []string

	// Per-insurer OCR line reconstruction rules, keyed by uppercased
	// insurer name.
	OCRRules map[string]parsers.OCRRule

	AmountEpsilon      decimal.Decimal
	SectionTotalMarker string
}

// NewEngineConfig returns the engine defaults, with the house broker and
// retention window overridable from the environment.
func NewEngineConfig() *EngineConfig {
	cfg := &EngineConfig{
		RetentionDays: DefaultRetentionDays,
		HouseBrokerID: os.Getenv("HOUSE_BROKER_ID"),
		LifeOverrideInsurers: map[string]bool{
			"PALIG": true,
		},
		AccountTypeCodes: map[string]string{
			"checking": "03",
			"savings":  "04",
			"loan":     "05",
		},
		ACHForcedZeroPrefixes: []string{"3"},
		OCRRules: map[string]parsers.OCRRule{
			"OPTIMA": {
				CarrierPrefix:      "OPT",
				ReceiptDigits:      7,
				BusinessLineDigits: 3,
			},
		},
		AmountEpsilon:      decimal.RequireFromString(AmountEpsilon),
		SectionTotalMarker: SectionTotalMarker,
	}
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionDays = n
		}
	}
	return cfg
}

// AccountTypeCode maps a stored account-type label to its wire code,
// defaulting to checking when the label is unknown.
func (c *EngineConfig) AccountTypeCode(label string) string {
	if code, ok := c.AccountTypeCodes[label]; ok {
		return code
	}
	return c.AccountTypeCodes["checking"]
}
