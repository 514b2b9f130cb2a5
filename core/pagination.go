package core

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination holds the list-endpoint paging query params. Page is 1-indexed.
type Pagination struct {
	Page     int `query:"page" json:"page"`
	PageSize int `query:"page_size" json:"page_size"`
}

// Clean clamps the params to sane bounds; a page beyond the collection is
// left as-is and simply yields an empty slice.
func (p *Pagination) Clean() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

// Page is the envelope list endpoints respond with.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPage slices the full (already filtered and sorted) collection down to
// the requested page.
func NewPage[T any](items []T, p Pagination) Page[T] {
	return Page[T]{
		Items:      Paginate(items, p.Page, p.PageSize),
		Total:      len(items),
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: TotalPages(len(items), p.PageSize),
	}
}

// Paginate returns the 1-indexed `page` of `items`, `size` items per page.
// Pages past the end yield an empty (non-nil) slice.
func Paginate[T any](items []T, page, size int) []T {
	if page < 1 || size < 1 {
		return []T{}
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// TotalPages returns ceil(total/size), never less than 1 so that an empty
// collection still renders as a single empty page.
func TotalPages(total, size int) int {
	if total <= 0 || size < 1 {
		return 1
	}
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	return pages
}
