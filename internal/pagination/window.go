package pagination

// Window is a page-number/page-size view over a list of Total items
type Window struct {
	Page    int
	PerPage int
	Total   int
}

// NewWindow normalizes page and perPage: page starts at 1, perPage falls back
// to defaultPerPage and is capped at maxPerPage.
func NewWindow(page, perPage, total, defaultPerPage, maxPerPage int) Window {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	if perPage <= 0 {
		perPage = 1
	}
	w := Window{Page: page, PerPage: perPage, Total: max(total, 0)}
	w.Page = min(max(page, 1), max(w.TotalPages(), 1))
	return w
}

// TotalPages is the number of pages needed for Total items
func (w Window) TotalPages() int {
	if w.Total <= 0 || w.PerPage <= 0 {
		return 0
	}
	return (w.Total + w.PerPage - 1) / w.PerPage
}

// Offset is the index of the first item on the current page
func (w Window) Offset() int {
	return (w.Page - 1) * w.PerPage
}

// Labels renders the page controls for this window
func (w Window) Labels() []Label {
	return PageNumbers(w.Page, w.TotalPages())
}

// Slice returns the part of items that falls on the current page
func Slice[T any](w Window, items []T) []T {
	start := min(w.Offset(), len(items))
	end := min(start+w.PerPage, len(items))
	return items[start:end]
}
