package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ocrRule() OCRRule {
	return OCRRule{
		Insurer:            "OPTIMA",
		CarrierPrefix:      "OPT",
		ReceiptDigits:      7,
		BusinessLineDigits: 3,
	}
}

func TestParseOCRTextAcceptsWellFormedLines(t *testing.T) {
	text := "REPORTE DE COMISIONES DEL 01/11/2025 AL 15/11/2025\n" +
		"ASEGURADO RECIBO POLIZA ENDOSO COMISION FECHA\n" +
		"JUAN CARLOS PEREZ 1234567 0045678 0 125.43002 14/11/2025\n" +
		"MARIA GOMEZ 7654321 0000912 2 88.00015 15/11/2025\n" +
		"PAGINA 1 DE 1\n"

	res, err := ParseOCRText(text, ocrRule())
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Empty(t, res.Errors)

	assert.Equal(t, "OPT-002-45678", res.Rows[0].PolicyNumber)
	assert.Equal(t, "JUAN CARLOS PEREZ", res.Rows[0].ClientName)
	assert.True(t, res.Rows[0].GrossAmount.Equal(mustDecimal(t, "125.43")))
	assert.Equal(t, "1234567", res.Rows[0].Raw["receipt"])

	assert.Equal(t, "OPT-015-912", res.Rows[1].PolicyNumber)
	assert.True(t, res.Rows[1].GrossAmount.Equal(mustDecimal(t, "88.00")))
}

func TestParseOCRTextRejectsMalformedLines(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"no receipt token", "JUAN PEREZ SIN RECIBO 0045678 0 125.43002 14/11/2025"},
		{"bad combo token", "JUAN PEREZ ALGO 1234567 0045678 0 125.4302 14/11/2025"},
		{"no trailing date", "JUAN PEREZ ALGO 1234567 0045678 0 125.43002 NOFECHA"},
		{"non-numeric policy", "JUAN PEREZ ALGO 1234567 ABC678 0 125.43002 14/11/2025"},
	}
	for _, tc := range cases {
		res, err := ParseOCRText(tc.line, ocrRule())
		require.NoError(t, err, tc.name)
		assert.Empty(t, res.Rows, tc.name)
		assert.Len(t, res.Errors, 1, tc.name)
	}
}

func TestParseOCRTextMissingRuleIsUnreadable(t *testing.T) {
	_, err := ParseOCRText("whatever", OCRRule{})
	assert.ErrorIs(t, err, ErrUnreadable)
}
