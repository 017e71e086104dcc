package shopify

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinkHeader(t *testing.T) {
	header := `<https://a.myshopify.com/admin/api/2024-10/orders.json?limit=2&page_info=prev1>; rel="previous", ` +
		`<https://a.myshopify.com/admin/api/2024-10/orders.json?limit=2&page_info=next1>; rel="next"`

	links, err := ParseLinkHeader(header)
	require.NoError(t, err)
	assert.Equal(t, "https://a.myshopify.com/admin/api/2024-10/orders.json?limit=2&page_info=prev1", links["previous"])
	assert.Equal(t, "https://a.myshopify.com/admin/api/2024-10/orders.json?limit=2&page_info=next1", links["next"])
}

func TestParseLinkHeaderMalformed(t *testing.T) {
	for _, header := range []string{
		`https://x/orders.json; rel="next"`,
		`<https://x/orders.json; rel="next"`,
		`<https://x/orders.json>`,
	} {
		_, err := ParseLinkHeader(header)
		var perr *PaginationError
		require.True(t, errors.As(err, &perr), header)
	}
}

func TestNextCursor(t *testing.T) {
	h := http.Header{}
	_, ok, err := NextCursor(h)
	require.NoError(t, err)
	assert.False(t, ok)

	h.Set("Link", `<https://x/orders.json?page_info=prev>; rel="previous"`)
	_, ok, err = NextCursor(h)
	require.NoError(t, err)
	assert.False(t, ok)

	h.Set("Link", `<https://x/orders.json?limit=50&page_info=abc>; rel="next"`)
	cursor, ok, err := NextCursor(h)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", cursor)

	h.Set("Link", `<https://x/orders.json?limit=50>; rel="next"`)
	_, ok, err = NextCursor(h)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestPageQueryValues(t *testing.T) {
	since := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	first := FirstPage(100, Filters{Status: "any", CreatedAtMin: &since})
	v := first.Values()
	assert.Equal(t, "100", v.Get("limit"))
	assert.Equal(t, "any", v.Get("status"))
	assert.Equal(t, "2024-01-02T02:04:05Z", v.Get("created_at_min"))
	assert.Empty(t, v.Get("page_info"))

	next := NextPage(100, "abc")
	v = next.Values()
	assert.Len(t, v, 2)
	assert.Equal(t, "abc", v.Get("page_info"))
	assert.Equal(t, "100", v.Get("limit"))
	assert.Equal(t, "abc", next.Cursor())
}
