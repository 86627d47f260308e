package parsers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msConfig() MultiSectionConfig {
	return MultiSectionConfig{
		Insurer:     "PALIG",
		TotalMarker: "TOTAL",
		Epsilon:     decimal.RequireFromString("0.01"),
	}
}

func TestParseMultiSectionTwoSections(t *testing.T) {
	data := []byte("RAMO VIDA INDIVIDUAL\n" +
		"Poliza,Asegurado,Comision\n" +
		"V-100,CARLOS RUIZ,200.00\n" +
		"V-101,ANA SOLIS,55.25\n" +
		"TOTAL,,255.25\n" +
		"RAMO SALUD\n" +
		"Poliza,Asegurado,Comision\n" +
		"S-300,LUIS VEGA,80.00\n" +
		"TOTAL,,80.00\n")

	res, err := ParseMultiSection(data, "reporte.csv", msConfig())
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "V-100", res.Rows[0].PolicyNumber)
	assert.Equal(t, "S-300", res.Rows[2].PolicyNumber)
	assert.True(t, res.Rows[2].GrossAmount.Equal(mustDecimal(t, "80")))
}

func TestParseMultiSectionNoCrossSectionBleed(t *testing.T) {
	// The row in the gap between a total marker and the next header must
	// yield nothing.
	data := []byte("SECCION A\n" +
		"Poliza,Asegurado,Comision\n" +
		"A-1,JOSE LUNA,10.00\n" +
		"TOTAL,,10.00\n" +
		"G-999,FANTASMA ROW,99.99\n" +
		"Poliza,Asegurado,Comision\n" +
		"B-2,RITA MENA,20.00\n" +
		"TOTAL,,20.00\n")

	res, err := ParseMultiSection(data, "reporte.csv", msConfig())
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	for _, row := range res.Rows {
		assert.NotEqual(t, "G-999", row.PolicyNumber)
	}
}

func TestParseMultiSectionNoiseRows(t *testing.T) {
	data := []byte("Poliza,Asegurado,Comision\n" +
		",VACIO POLIZA,10.00\n" +
		"SUBTOTAL,ALGO AQUI,30.00\n" +
		"N-1,AB,40.00\n" +
		"N-2,ASEGURADO,50.00\n" +
		"N-3,RUIDO CENTAVO,0.01\n" +
		"N-4,FILA BUENA,60.00\n" +
		"TOTAL,,60.00\n")

	res, err := ParseMultiSection(data, "reporte.csv", msConfig())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "N-4", res.Rows[0].PolicyNumber)
}
