package query

import "github.com/aretw0/strata/pkg/core"

// Paginate slices records to the requested page. The full count is taken
// first, then the page bound is validated, then the page is cut. A nil request
// or one without RecordsPerPage returns every record.
func Paginate(records []core.Record, req *core.Pagination) ([]core.Record, *core.Pagination, error) {
	if req == nil || req.RecordsPerPage <= 0 {
		return records, nil, nil
	}

	count := len(records)
	out := &core.Pagination{
		Page:           req.Page,
		RecordsPerPage: req.RecordsPerPage,
		RecordsCount:   count,
		PagesCount:     core.PagesFor(count, req.RecordsPerPage),
	}
	if err := Check(out); err != nil {
		return nil, out, err
	}

	page := out.CurrentPage()
	start := (page - 1) * req.RecordsPerPage
	if start >= count {
		return []core.Record{}, out, nil
	}
	end := start + req.RecordsPerPage
	if end > count {
		end = count
	}
	return records[start:end], out, nil
}

// Check validates the requested page against the computed page count.
// Pages past the end of an empty result are accepted.
func Check(p *core.Pagination) error {
	if p == nil || p.RecordsPerPage <= 0 {
		return nil
	}
	page := p.CurrentPage()
	if page < 1 {
		return &core.PageError{Page: page, PagesCount: p.PagesCount, Err: core.ErrBeforeFirstPage}
	}
	if p.PagesCount > 0 && page > p.PagesCount {
		return &core.PageError{Page: page, PagesCount: p.PagesCount, Err: core.ErrBeyondLastPage}
	}
	return nil
}
