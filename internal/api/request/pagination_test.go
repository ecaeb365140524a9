package request

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination_Defaults(t *testing.T) {
	p, err := ParsePagination(httptest.NewRequest("GET", "/logs", nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Empty(t, p.Cursor)
}

func TestParsePagination_CustomValues(t *testing.T) {
	p, err := ParsePagination(httptest.NewRequest("GET", "/logs?limit=25&cursor=abc123", nil))
	require.NoError(t, err)
	assert.Equal(t, 25, p.Limit)
	assert.Equal(t, "abc123", p.Cursor)
}

func TestParsePagination_ExceedsMax(t *testing.T) {
	p, err := ParsePagination(httptest.NewRequest("GET", "/logs?limit=500", nil))
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, p.Limit)
}

func TestParsePagination_InvalidLimit(t *testing.T) {
	for _, q := range []string{"limit=abc", "limit=0", "limit=-3"} {
		_, err := ParsePagination(httptest.NewRequest("GET", "/logs?"+q, nil))
		assert.Error(t, err, q)
	}
}
