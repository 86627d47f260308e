package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumIsStable(t *testing.T) {
	data := []byte("POLIZA;ASEGURADO;COMISION\nA-1;JUAN;10.00\n")
	assert.Equal(t, Sum(data), Sum(data))
	assert.Len(t, Sum(data), 64)
	assert.NotEqual(t, Sum(data), Sum([]byte("different")))
}

func TestMatches(t *testing.T) {
	data := []byte("report contents")
	assert.True(t, Matches(data, Sum(data)))
	assert.False(t, Matches(data, Sum([]byte("other"))))
	assert.False(t, Matches(data, ""))
}
