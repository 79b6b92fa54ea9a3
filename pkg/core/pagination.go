package core

// Pagination carries the page request (Page, RecordsPerPage) and the computed
// totals (RecordsCount, PagesCount). A nil Page means the first page.
type Pagination struct {
	Page           *int `json:"page,omitempty" yaml:"page,omitempty"`
	RecordsPerPage int  `json:"recordsPerPage,omitempty" yaml:"recordsPerPage,omitempty"`
	RecordsCount   int  `json:"recordsCount" yaml:"recordsCount"`
	PagesCount     int  `json:"pagesCount" yaml:"pagesCount"`
}

// Page builds a page request.
func Page(page, recordsPerPage int) *Pagination {
	return &Pagination{Page: &page, RecordsPerPage: recordsPerPage}
}

// CurrentPage returns the requested page, defaulting to 1.
func (p *Pagination) CurrentPage() int {
	if p == nil || p.Page == nil {
		return 1
	}
	return *p.Page
}

// PagesFor returns ceil(count / perPage), or 0 when perPage is unset.
func PagesFor(count, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (count + perPage - 1) / perPage
}
