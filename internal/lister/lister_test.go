package lister

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/cityscope-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

const pageOne = `<html><body>
<table>
  <tr><td><a href="FileStream.ashx?DocumentId=101">Council Minutes</a></td></tr>
  <tr><td><a href="/FileStream.ashx?DocumentId=102&amp;lang=en">Committee Minutes</a></td></tr>
  <tr><td><a href="FileStream.ashx?DocumentId=101">Council Minutes (again)</a></td></tr>
  <tr><td><a href="FileStream.ashx?foo=1">Missing id</a></td></tr>
  <tr><td><a href="filestream.ashx?DocumentId=bad%20id">Bad id</a></td></tr>
  <tr><td><a href="/about">About</a></td></tr>
  <tr><td><a>No href</a></td></tr>
</table>
</body></html>`

const pageTwo = `<div class="agenda">
  <ul><li><span><a href="https://portal.example.com/FileStream.ashx?documentid=103">Minutes</a></span></li>
  <li><a href="https://portal.example.com/FileStream.ashx?DocumentId=101">Older copy</a></li></ul>
</div>`

type fakePages struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	delays map[string]time.Duration
	calls  []string
}

func (f *fakePages) Fetch(_ context.Context, pageURL string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pageURL)
	delay := f.delays[pageURL]
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err := f.errs[pageURL]; err != nil {
		return nil, err
	}
	return []byte(f.bodies[pageURL]), nil
}

func newLister(t *testing.T, pages []string, fetcher PageFetcher, newestFirst bool) *Lister {
	t.Helper()
	l, err := New(Config{
		Pages:       pages,
		LinkPattern: "FileStream.ashx",
		IDParam:     "DocumentId",
		Concurrency: 2,
		NewestFirst: newestFirst,
	}, fetcher, nil)
	require.NoError(t, err)
	return l
}

func TestListCollectsPagesInConfiguredOrder(t *testing.T) {
	t.Parallel()

	one := "https://portal.example.com/list/one"
	two := "https://portal.example.com/list/two"
	fetcher := &fakePages{
		bodies: map[string]string{one: pageOne, two: pageTwo},
		// page one finishes last; results must still come first
		delays: map[string]time.Duration{one: 50 * time.Millisecond},
	}

	listing, err := newLister(t, []string{one, two}, fetcher, false).List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []meeting.Candidate{
		{DocumentID: "101", SourceURL: "https://portal.example.com/list/FileStream.ashx?DocumentId=101"},
		{DocumentID: "102", SourceURL: "https://portal.example.com/FileStream.ashx?DocumentId=102&lang=en"},
		{DocumentID: "103", SourceURL: "https://portal.example.com/FileStream.ashx?documentid=103"},
	}, listing.Candidates)
	assert.Equal(t, 2, listing.PagesTotal)
	assert.Equal(t, 0, listing.PagesFailed)
	assert.Equal(t, 2, listing.LinksSkipped)
}

func TestListFailsSoftOnBrokenPage(t *testing.T) {
	t.Parallel()

	one := "https://portal.example.com/list/one"
	broken := "https://portal.example.com/list/broken"
	fetcher := &fakePages{
		bodies: map[string]string{one: pageOne},
		errs:   map[string]error{broken: &meeting.FetchError{URL: broken, StatusCode: 500, Err: errors.New("boom")}},
	}

	listing, err := newLister(t, []string{broken, one}, fetcher, false).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, listing.PagesFailed)
	assert.Len(t, listing.Candidates, 2)
}

func TestListEmptyPage(t *testing.T) {
	t.Parallel()

	page := "https://portal.example.com/list"
	fetcher := &fakePages{bodies: map[string]string{page: "<html><body><p>No meetings</p></body></html>"}}

	listing, err := newLister(t, []string{page}, fetcher, false).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listing.Candidates)
	assert.Equal(t, 0, listing.PagesFailed)
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()

	page := "https://portal.example.com/list"
	body := `<a href="FileStream.ashx?DocumentId=99">a</a>
<a href="FileStream.ashx?DocumentId=draft-1">b</a>
<a href="FileStream.ashx?DocumentId=1000">c</a>
<a href="FileStream.ashx?DocumentId=5">d</a>`
	fetcher := &fakePages{bodies: map[string]string{page: body}}

	listing, err := newLister(t, []string{page}, fetcher, true).List(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(listing.Candidates))
	for _, c := range listing.Candidates {
		ids = append(ids, c.DocumentID)
	}
	assert.Equal(t, []string{"1000", "99", "5", "draft-1"}, ids)
}

func TestListCanceled(t *testing.T) {
	t.Parallel()

	page := "https://portal.example.com/list"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLister(t, []string{page}, &fakePages{}, false).List(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestListWithCollyFetcher(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meetings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(pageOne))
	}))
	t.Cleanup(srv.Close)

	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second})
	l := newLister(t, []string{srv.URL + "/meetings", srv.URL + "/gone"}, fetcher, false)

	listing, err := l.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listing.Candidates, 2)
	assert.Equal(t, srv.URL+"/FileStream.ashx?DocumentId=101", listing.Candidates[0].SourceURL)
	assert.Equal(t, 1, listing.PagesFailed)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Pages: []string{"https://x"}, LinkPattern: "a", IDParam: "id"}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{LinkPattern: "a", IDParam: "id"}, &fakePages{}, nil)
	require.Error(t, err)
	_, err = New(Config{Pages: []string{"https://x"}}, &fakePages{}, nil)
	require.Error(t, err)
}
