package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPaginationDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/commissions/items", nil)
	p, err := ExtractPagination(r)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 0, p.Offset)
}

func TestExtractPaginationExplicit(t *testing.T) {
	r := httptest.NewRequest("GET", "/commissions/items?page=3&limit=25", nil)
	p, err := ExtractPagination(r)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 25, p.Limit)
	assert.Equal(t, 50, p.Offset)
}

func TestExtractPaginationRejectsBadValues(t *testing.T) {
	for _, q := range []string{"page=0", "page=-1", "page=abc", "limit=0", "limit=x"} {
		r := httptest.NewRequest("GET", "/commissions/items?"+q, nil)
		_, err := ExtractPagination(r)
		assert.Error(t, err, q)
	}
}

func TestSetPaginationStats(t *testing.T) {
	p := PaginationParams{Page: 2, Limit: 10}
	p.SetPaginationStats(41)
	assert.Equal(t, 41, p.TotalRecords)
	assert.Equal(t, 5, p.TotalPages)

	p.SetPaginationStats(0)
	assert.Equal(t, 0, p.TotalPages)
}
