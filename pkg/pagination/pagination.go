package pagination

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination and ordering parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
	Sort   string
	Desc   bool
}

// FromContext reads page/page_size first and falls back to limit/offset
// (or _count/_offset).
func FromContext(c echo.Context) Params {
	p := Params{
		Sort: strings.TrimSpace(c.QueryParam("sort")),
		Desc: strings.EqualFold(c.QueryParam("order"), "desc"),
	}
	if strings.HasPrefix(p.Sort, "-") {
		p.Sort = strings.TrimPrefix(p.Sort, "-")
		p.Desc = true
	}

	size := firstInt(c, "page_size", "_count", "limit")
	if size <= 0 {
		size = DefaultLimit
	}
	if size > MaxLimit {
		size = MaxLimit
	}
	p.Limit = size

	if page := firstInt(c, "page"); page > 0 {
		p.Offset = (page - 1) * size
		return p
	}
	if offset := firstInt(c, "_offset", "offset"); offset > 0 {
		p.Offset = offset
	}
	return p
}

func firstInt(c echo.Context, names ...string) int {
	for _, name := range names {
		if v, err := strconv.Atoi(c.QueryParam(name)); err == nil && v != 0 {
			return v
		}
	}
	return 0
}

// Page returns the 1-based page number the offset falls in.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Response wraps a paginated API response.
type Response struct {
	Data     interface{} `json:"data"`
	Total    int         `json:"total"`
	Limit    int         `json:"limit"`
	Offset   int         `json:"offset"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	HasMore  bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:     data,
		Total:    total,
		Limit:    p.Limit,
		Offset:   p.Offset,
		Page:     p.Page(),
		PageSize: p.Limit,
		HasMore:  p.Offset+p.Limit < total,
	}
}
