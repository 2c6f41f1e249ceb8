// Package pagination parses page/pageSize query parameters shared by list
// endpoints.
package pagination

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is the fallback number of items when the client omits
	// pageSize.
	DefaultPageSize = 10
	// MaxPageSize caps the supported pageSize to prevent unbounded queries.
	MaxPageSize = 100
)

// Params bundles the pagination values extracted from a request.
type Params struct {
	Page     int
	PageSize int
}

// Offset returns the row offset for limit/offset queries.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Parse extracts and validates pagination parameters from the query string.
func Parse(r *http.Request) (Params, error) {
	params := Params{Page: 1, PageSize: DefaultPageSize}

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Params{}, fmt.Errorf("invalid page %q", raw)
		}
		params.Page = page
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return Params{}, fmt.Errorf("invalid pageSize %q", raw)
		}
		if size > MaxPageSize {
			size = MaxPageSize
		}
		params.PageSize = size
	}
	return params, nil
}
