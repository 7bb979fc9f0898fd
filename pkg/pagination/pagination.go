// Package pagination reads limit/offset query parameters and describes the
// surrounding pages in response headers. List bodies stay plain JSON arrays.
package pagination

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500

	TotalCountHeader = "X-Total-Count"
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads "limit" and "offset". Missing or non-positive limits use
// DefaultLimit; limits above MaxLimit are clamped.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset never goes below zero.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Link is one page relation of an RFC 8288 Link header.
type Link struct {
	Relation string
	URL      string
}

// Links returns self plus next/previous where they exist.
func (p Params) Links(basePath string, total int) []Link {
	links := []Link{{Relation: "self", URL: pageURL(basePath, p.Offset, p.Limit)}}
	if p.HasNext(total) {
		links = append(links, Link{Relation: "next", URL: pageURL(basePath, p.NextOffset(), p.Limit)})
	}
	if p.HasPrevious() {
		links = append(links, Link{Relation: "prev", URL: pageURL(basePath, p.PreviousOffset(), p.Limit)})
	}
	return links
}

func pageURL(basePath string, offset, limit int) string {
	return fmt.Sprintf("%s?limit=%d&offset=%d", basePath, limit, offset)
}

// WriteHeaders sets X-Total-Count and Link on the response.
func (p Params) WriteHeaders(c echo.Context, total int) {
	h := c.Response().Header()
	h.Set(TotalCountHeader, strconv.Itoa(total))

	links := p.Links(c.Request().URL.Path, total)
	parts := make([]string, 0, len(links))
	for _, l := range links {
		parts = append(parts, fmt.Sprintf(`<%s>; rel="%s"`, l.URL, l.Relation))
	}
	h.Set("Link", strings.Join(parts, ", "))
}
