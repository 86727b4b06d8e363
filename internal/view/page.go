package view

// DefaultPageSize is the number of rows per page.
const DefaultPageSize = 50

// Page is one page of a filtered list.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
	Total      int `json:"total"`
}

// Window returns at most count items starting at offset. Out of range windows
// are clamped and never panic.
func Window[T any](items []T, offset, count int) []T {
	if offset < 0 {
		offset = 0
	}
	if count < 0 {
		count = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+count, len(items))
	return items[offset:end:end]
}

// Paginate returns the 1-based page of items. Pages past the end are clamped to
// the last page.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(items)
	pages := (total + size - 1) / size

	page = max(min(page, pages), 1)

	return Page[T]{
		Items:      Window(items, (page-1)*size, size),
		Page:       page,
		PageSize:   size,
		TotalPages: pages,
		Total:      total,
	}
}
