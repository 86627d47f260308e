package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTabularCSV(t *testing.T) {
	data := []byte("No. Póliza,Nombre Asegurado,Comisión,Corredor\n" +
		"ab-001,JUAN PEREZ,\"1,250.75\",ana@corp.com\n" +
		"AB-002,MARIA GOMEZ,(45.10),\n" +
		",SIN POLIZA,10.00,\n" +
		"AB-003,PEDRO DIAZ,no-es-numero,\n")

	res, err := ParseTabular(data, "reporte.csv", TabularConfig{Insurer: "ASSA"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Len(t, res.Errors, 2)

	assert.Equal(t, "AB-001", res.Rows[0].PolicyNumber)
	assert.Equal(t, "JUAN PEREZ", res.Rows[0].ClientName)
	assert.True(t, res.Rows[0].GrossAmount.Equal(mustDecimal(t, "1250.75")))
	assert.Equal(t, "ASSA", res.Rows[0].SourceInsurer)
	assert.Equal(t, "ana@corp.com", res.Rows[0].Raw.BrokerEmailHint())

	// Accounting negative keeps its sign: insurer-side reversal.
	assert.True(t, res.Rows[1].GrossAmount.Equal(mustDecimal(t, "-45.10")))

	assert.Equal(t, 4, res.Errors[0].Line)
	assert.Contains(t, res.Errors[0].Reason, "missing policy")
	assert.Equal(t, 5, res.Errors[1].Line)
}

func TestParseTabularAliasOrderWins(t *testing.T) {
	data := []byte("Contrato;Certificado;Cliente;Neto Pagado\nC-9;X-1;LUIS MORA;15,00\n")
	cfg := TabularConfig{
		Insurer:       "MAPFRE",
		PolicyAliases: []string{"CERTIFICADO", "CONTRATO"},
	}
	res, err := ParseTabular(data, "reporte.csv", cfg)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "X-1", res.Rows[0].PolicyNumber)
	assert.True(t, res.Rows[0].GrossAmount.Equal(mustDecimal(t, "15")))
}

func TestParseTabularInvertNegatives(t *testing.T) {
	data := []byte("Poliza,Asegurado,Comision\nP-1,ROSA NUNEZ,-80.00\n")
	res, err := ParseTabular(data, "r.csv", TabularConfig{Insurer: "VUMI", InvertNegatives: true})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].GrossAmount.Equal(mustDecimal(t, "80")))
}

func TestParseTabularNoHeaderIsUnreadable(t *testing.T) {
	data := []byte("a,b,c\n1,2,3\n")
	_, err := ParseTabular(data, "r.csv", TabularConfig{Insurer: "X"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadable)
}
