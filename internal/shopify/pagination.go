package shopify

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Filters narrow the first page of an order listing.
type Filters struct {
	Status       string
	CreatedAtMin *time.Time
	UpdatedAtMin *time.Time
}

// PageQuery is either a first page (filters allowed) or a cursor page (limit and
// cursor only). The zero value is an unfiltered first page.
type PageQuery struct {
	limit   int
	cursor  string
	filters Filters
}

// FirstPage starts a listing with filters applied.
func FirstPage(limit int, f Filters) PageQuery {
	return PageQuery{limit: limit, filters: f}
}

// NextPage continues a listing. The remote rejects filters next to a cursor, so none can be set.
func NextPage(limit int, cursor string) PageQuery {
	return PageQuery{limit: limit, cursor: cursor}
}

// Cursor returns the page_info token, empty for a first page.
func (q PageQuery) Cursor() string { return q.cursor }

// Limit returns the requested page size.
func (q PageQuery) Limit() int { return q.limit }

// Values encodes the query string.
func (q PageQuery) Values() url.Values {
	v := url.Values{}
	if q.limit > 0 {
		v.Set("limit", strconv.Itoa(q.limit))
	}
	if q.cursor != "" {
		v.Set("page_info", q.cursor)
		return v
	}
	if q.filters.Status != "" {
		v.Set("status", q.filters.Status)
	}
	if q.filters.CreatedAtMin != nil {
		v.Set("created_at_min", q.filters.CreatedAtMin.UTC().Format(time.RFC3339))
	}
	if q.filters.UpdatedAtMin != nil {
		v.Set("updated_at_min", q.filters.UpdatedAtMin.UTC().Format(time.RFC3339))
	}
	return v
}

// ParseLinkHeader maps each rel of an RFC 8288 Link header to its target URL.
func ParseLinkHeader(header string) (map[string]string, error) {
	links := make(map[string]string)
	rest := strings.TrimSpace(header)
	for rest != "" {
		if rest[0] != '<' {
			return nil, &PaginationError{Header: header, Reason: "expected '<'"}
		}
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return nil, &PaginationError{Header: header, Reason: "unterminated link target"}
		}
		target := rest[1:end]
		rest = rest[end+1:]

		var params string
		if comma := strings.IndexByte(rest, ','); comma >= 0 {
			params, rest = rest[:comma], strings.TrimSpace(rest[comma+1:])
		} else {
			params, rest = rest, ""
		}

		rel := ""
		for _, p := range strings.Split(params, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
				continue
			}
			rel = strings.Trim(strings.TrimSpace(value), `"`)
		}
		if rel == "" {
			return nil, &PaginationError{Header: header, Reason: "link without rel"}
		}
		for _, r := range strings.Fields(rel) {
			links[strings.ToLower(r)] = target
		}
	}
	return links, nil
}

// NextCursor extracts the page_info token of the "next" relation.
// ok is false when there is no next page.
func NextCursor(h http.Header) (cursor string, ok bool, err error) {
	header := h.Get("Link")
	if strings.TrimSpace(header) == "" {
		return "", false, nil
	}
	links, err := ParseLinkHeader(header)
	if err != nil {
		return "", false, err
	}
	next, found := links["next"]
	if !found {
		return "", false, nil
	}
	u, err := url.Parse(next)
	if err != nil {
		return "", false, &PaginationError{Header: header, Reason: "next link is not a URL"}
	}
	cursor = u.Query().Get("page_info")
	if cursor == "" {
		return "", false, &PaginationError{Header: header, Reason: "next link has no page_info"}
	}
	return cursor, true, nil
}
