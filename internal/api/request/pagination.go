package request

import (
	"fmt"
	"net/http"
	"strconv"
)

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Cursor string
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ParsePagination extracts limit and cursor from query parameters. Limits
// above MaxLimit are clamped; a limit that is not a positive number is an
// error.
func ParsePagination(r *http.Request) (Pagination, error) {
	p := Pagination{
		Limit:  DefaultLimit,
		Cursor: r.URL.Query().Get("cursor"),
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			return p, fmt.Errorf("limit must be a positive integer")
		}
		p.Limit = min(limit, MaxLimit)
	}
	return p, nil
}
