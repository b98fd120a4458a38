package pagination

import (
	"net/url"
	"strconv"
)

// PageRequest selects one page of a listing.
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps the request to the configured bounds.
func (r *PageRequest) Normalize(cfg Config) {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = cfg.DefaultPageSize
	}
	if r.PageSize > cfg.MaxPageSize {
		r.PageSize = cfg.MaxPageSize
	}
}

// Offset is the number of items preceding the page.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// FromQuery reads page and page_size from URL query values and normalizes
// the result. Malformed values fall back to the defaults.
func FromQuery(values url.Values, cfg Config) PageRequest {
	page, _ := strconv.Atoi(values.Get("page"))
	size, _ := strconv.Atoi(values.Get("page_size"))

	req := PageRequest{Page: page, PageSize: size}
	req.Normalize(cfg)
	return req
}

// PageResult is one page of items with the totals needed to navigate.
type PageResult[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPageResult computes the page count for total items. The page count
// is at least one and Data is never nil.
func NewPageResult[T any](data []T, total int, req PageRequest) PageResult[T] {
	pages := 1
	if req.PageSize > 0 && total > 0 {
		pages = (total + req.PageSize - 1) / req.PageSize
	}
	if data == nil {
		data = []T{}
	}

	return PageResult[T]{
		Data:       data,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: pages,
	}
}

// Map converts every item of a page, keeping its navigation fields.
func Map[T, U any](p PageResult[T], fn func(T) U) PageResult[U] {
	out := make([]U, len(p.Data))
	for i, item := range p.Data {
		out[i] = fn(item)
	}
	return PageResult[U]{
		Data:       out,
		Total:      p.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
}
