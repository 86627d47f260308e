package parsers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestBrokerEmailHint(t *testing.T) {
	rf := RawFields{
		"Poliza":   "AB-123",
		"Corredor": "maria.lopez@example.com",
		"Monto":    "45.10",
	}
	assert.Equal(t, "maria.lopez@example.com", rf.BrokerEmailHint())
}

func TestBrokerEmailHintFallsBackToAnyEmailValue(t *testing.T) {
	rf := RawFields{
		"Poliza": "AB-123",
		"Extra":  "pedro@corp.com.pa",
	}
	assert.Equal(t, "pedro@corp.com.pa", rf.BrokerEmailHint())
}

func TestBrokerEmailHintEmptyWhenNone(t *testing.T) {
	rf := RawFields{"Poliza": "AB-123", "Nombre": "JUAN PEREZ"}
	assert.Equal(t, "", rf.BrokerEmailHint())
}
