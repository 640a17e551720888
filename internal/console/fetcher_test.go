package console

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopyops/canopy/internal/remote"
)

// captureRecords builds n records with sequential string ids.
func captureRecords(start, n int) []map[string]any {
	recs := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, map[string]any{"id": fmt.Sprintf("t%d", start+i)})
	}
	return recs
}

func pageParam(r *http.Request) int {
	p, _ := strconv.Atoi(r.URL.Query().Get("page"))
	return p
}

func TestFetchAllCapturesTotalPages(t *testing.T) {
	pages := map[int][]map[string]any{
		1: captureRecords(0, 2),
		2: captureRecords(2, 2),
		3: captureRecords(4, 1),
	}
	captures := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvPage(w, pages[pageParam(r)], &remote.Pagination{TotalPages: 3})
	})
	c := newTestConsole(t, newBackends(t, nil, captures, nil), 2)

	recs, err := c.fetchAllCaptures(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 5)
}

func TestFetchAllCapturesTotalCount(t *testing.T) {
	pages := map[int][]map[string]any{
		1: captureRecords(0, 2),
		2: captureRecords(2, 2),
		3: captureRecords(4, 2),
	}
	captures := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only a total item count; the page count must be derived.
		writeEnvPage(w, pages[pageParam(r)], &remote.Pagination{Total: 5})
	})
	c := newTestConsole(t, newBackends(t, nil, captures, nil), 2)

	recs, err := c.fetchAllCaptures(context.Background())
	require.NoError(t, err)
	// ceil(5/2) = 3 pages requested, no fourth.
	assert.Len(t, recs, 6)
}

func TestFetchAllCapturesShortPageStops(t *testing.T) {
	var requested []int
	captures := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := pageParam(r)
		requested = append(requested, p)
		switch p {
		case 1, 2:
			writeEnvPage(w, captureRecords((p-1)*2, 2), nil)
		default:
			writeEnvPage(w, captureRecords(4, 1), nil)
		}
	})
	c := newTestConsole(t, newBackends(t, nil, captures, nil), 2)

	recs, err := c.fetchAllCaptures(context.Background())
	require.NoError(t, err)
	// Full pages without pagination info keep the walk going; the short
	// third page ends it.
	assert.Len(t, recs, 5)
	assert.Equal(t, []int{1, 2, 3}, requested)
}

func TestFetchAllCapturesPageErrorNoPartial(t *testing.T) {
	captures := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pageParam(r) == 2 {
			writeEnvError(w, http.StatusInternalServerError, "database on fire")
			return
		}
		writeEnvPage(w, captureRecords(0, 2), &remote.Pagination{TotalPages: 3})
	})
	c := newTestConsole(t, newBackends(t, nil, captures, nil), 2)

	recs, err := c.fetchAllCaptures(context.Background())
	require.Error(t, err)
	assert.Nil(t, recs)

	var se *remote.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "capture", se.Service)
}

func TestFetchAllCapturesEmptyCollection(t *testing.T) {
	captures := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvPage(w, []map[string]any{}, nil)
	})
	c := newTestConsole(t, newBackends(t, nil, captures, nil), 2)

	recs, err := c.fetchAllCaptures(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}
