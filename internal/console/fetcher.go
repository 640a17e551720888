package console

import (
	"context"

	"github.com/canopyops/canopy/internal/remote"
)

// fetchAllCaptures walks the admin capture listing until the whole
// collection is in memory. Pages are fetched sequentially: the stop
// decision for page n+1 depends on what page n reported.
//
// Stop rules, evaluated per page in order: a reported totalPages wins;
// else a reported total item count implies the page count; else a page
// shorter than the page size ends the walk. Any page failure aborts the
// whole fetch — partial results are never returned.
func (c *Console) fetchAllCaptures(ctx context.Context) ([]remote.Capture, error) {
	var all []remote.Capture

	page := 1
	totalPages := 0 // 0 until a backend reports a count
	for {
		p, err := c.captures.List(ctx, remote.ListParams{Page: page, Limit: c.pageSize})
		if err != nil {
			return nil, err
		}
		all = append(all, p.Records...)

		switch {
		case p.Pagination.TotalPages > 0:
			totalPages = p.Pagination.TotalPages
		case p.Pagination.Total > 0:
			totalPages = (p.Pagination.Total + c.pageSize - 1) / c.pageSize
		}

		if totalPages > 0 {
			if page >= totalPages {
				return all, nil
			}
		} else if len(p.Records) < c.pageSize {
			return all, nil
		}
		page++
	}
}
