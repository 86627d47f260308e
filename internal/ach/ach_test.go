package ach

import (
	"strings"
	"testing"
	"time"

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

func payment(name string) Payment {
	return Payment{
		BrokerID:        "b-" + name,
		BeneficiaryName: name,
		RouteCode:       "0071",
		AccountNumber:   "123456789",
		AccountTypeCode: "03",
		Net:             decimal.RequireFromString("100.00"),
	}
}

func TestBuildFileGoldenLine(t *testing.T) {
	p := Payment{
		BrokerID:        "b1",
		BeneficiaryName: "José Ángel Martínez",
		RouteCode:       "0071",
		AccountNumber:   "04-123456-7",
		AccountTypeCode: "04",
		Net:             dec(t, "1234.50"),
	}
	file, err := BuildFile([]Payment{p}, "Comisiones Q2 Nov", DefaultConfig())
	require.NoError(t, err)
	require.Len(t, file.Lines, 1)
	assert.Equal(t, `001;JOSE ANGEL MARTINEZ;71;041234567;04;1234.50;C;REF*TXT**COMISIONES Q2 NOV\`, file.Lines[0])
	assert.Equal(t, file.Lines[0]+"\n", file.Render())
}

func TestBuildFileForcedLeadingZero(t *testing.T) {
	p := payment("ANA")
	p.AccountNumber = "3123456789"
	file, err := BuildFile([]Payment{p}, "PAGO", DefaultConfig())
	require.NoError(t, err)
	fields := strings.Split(file.Lines[0], ";")
	assert.Equal(t, "03123456789", fields[3])
}

func TestBuildFileNameTruncatedTo22(t *testing.T) {
	p := payment("ABCDEFGHIJ KLMNOPQRST UVWXYZ30") // 30 chars
	file, err := BuildFile([]Payment{p}, "PAGO", DefaultConfig())
	require.NoError(t, err)
	fields := strings.Split(file.Lines[0], ";")
	assert.Len(t, fields[1], 22)
}

func TestBuildFileNegativeZeroAmount(t *testing.T) {
	p := payment("CERO")
	p.Net = dec(t, "-0.00")
	file, err := BuildFile([]Payment{p}, "PAGO", DefaultConfig())
	require.NoError(t, err)
	fields := strings.Split(file.Lines[0], ";")
	assert.Equal(t, "0.00", fields[5])
}

func TestBuildFileSkipsAndContinues(t *testing.T) {
	ok := payment("BUENA")
	retained := payment("RETENIDA")
	retained.IsRetained = true
	noBank := payment("SINBANCO")
	noBank.AccountNumber = ""
	negative := payment("NEGATIVA")
	negative.Net = dec(t, "-10.00")

	file, err := BuildFile([]Payment{ok, retained, noBank, negative}, "PAGO", DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, file.Lines, 1)
	require.Len(t, file.Skipped, 3)
	reasons := map[string]string{}
	for _, s := range file.Skipped {
		reasons[s.BeneficiaryName] = s.Reason
	}
	assert.Contains(t, reasons["RETENIDA"], "retained")
	assert.Contains(t, reasons["SINBANCO"], "incomplete")
	assert.Contains(t, reasons["NEGATIVA"], "negative")
}

func TestBuildFileEmptyBatch(t *testing.T) {
	retained := payment("SOLO")
	retained.IsRetained = true
	_, err := BuildFile([]Payment{retained}, "PAGO", DefaultConfig())
	assert.ErrorIs(t, err, ErrNoValidBankingData)
}

func TestBuildFileSortsAndRenumbersByName(t *testing.T) {
	file, err := BuildFile([]Payment{payment("ZULEMA"), payment("ALBA"), payment("MARIO")}, "PAGO", DefaultConfig())
	require.NoError(t, err)
	require.Len(t, file.Lines, 3)
	assert.True(t, strings.HasPrefix(file.Lines[0], "001;ALBA;"))
	assert.True(t, strings.HasPrefix(file.Lines[1], "002;MARIO;"))
	assert.True(t, strings.HasPrefix(file.Lines[2], "003;ZULEMA;"))
}

func TestBuildFileReferenceBounded(t *testing.T) {
	long := strings.Repeat("X", 120)
	file, err := BuildFile([]Payment{payment("ANA")}, long, DefaultConfig())
	require.NoError(t, err)
	fields := strings.Split(file.Lines[0], ";")
	ref := fields[7]
	assert.LessOrEqual(t, len(ref), 80)
	assert.True(t, strings.HasPrefix(ref, `REF*TXT**`))
	assert.True(t, strings.HasSuffix(ref, `\`))
}

func TestFileName(t *testing.T) {
	d := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "PAGOS_COMISIONES_20251115.txt", FileName(d))
}
