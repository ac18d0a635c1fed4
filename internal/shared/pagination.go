package shared

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata. The page is clamped into [1, max(TotalPages, 1)].
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if total < 0 {
		total = 0
	}
	p := Pagination{PerPage: perPage, Total: total, TotalPages: (total + perPage - 1) / perPage}
	p.Page = p.Clamp(page)
	return p
}

// Clamp bounds page to the valid range for this listing.
func (p Pagination) Clamp(page int) int {
	last := max(p.TotalPages, 1)
	switch {
	case page < 1:
		return 1
	case page > last:
		return last
	default:
		return page
	}
}

// Offset is the index of the first item on the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// End is the exclusive index of the last item on the current page.
func (p Pagination) End() int {
	return min(p.Offset()+p.PerPage, p.Total)
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

// HasNext reports whether a following page exists.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}
