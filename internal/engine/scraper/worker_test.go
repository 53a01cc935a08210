package scraper

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rendis/yelptap/internal/logger"
	"github.com/rendis/yelptap/internal/model"
)

type memSink struct {
	mu   sync.Mutex
	recs []model.BusinessRecord
}

func (s *memSink) Emit(rec model.BusinessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r.Name)
	}
	sort.Strings(out)
	return out
}

// fakeYelp serves three search pages (start=0,10,20) and a detail page per slug.
// Slug "b" appears on both of the first two pages.
func fakeYelp(t *testing.T, detailHits *atomic.Int32) *httptest.Server {
	t.Helper()
	pages := map[string]struct {
		slugs []string
		next  string
	}{
		"":   {[]string{"a", "b"}, "10"},
		"10": {[]string{"b", "c"}, "20"},
		"20": {[]string{"d"}, ""},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		p, ok := pages[r.URL.Query().Get("start")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		next := ""
		if p.next != "" {
			next = "/search?find_desc=pizza&start=" + p.next
		}
		hrefs := make([]string, 0, len(p.slugs))
		for _, slug := range p.slugs {
			hrefs = append(hrefs, "/biz/"+slug)
		}
		_, _ = w.Write([]byte(searchHTML(next, hrefs...)))
	})
	mux.HandleFunc("/biz/", func(w http.ResponseWriter, r *http.Request) {
		detailHits.Add(1)
		_, _ = w.Write([]byte(detailHTML(strings.TrimPrefix(r.URL.Path, "/biz/"))))
	})
	return httptest.NewServer(mux)
}

// searchHTML renders one listing card per href, named after the last path
// segment ("/biz/a" -> "Biz a").
func searchHTML(next string, hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, href := range hrefs {
		slug := href[strings.LastIndex(href, "/")+1:]
		fmt.Fprintf(&b, `<div class="toggle__09f24__fZMQ4">
			<a class="css-19v1rkv">Biz %s</a>
			<span class="css-gutk1c">4.0</span>
			<span class="css-chan6m">(12 reviews)</span>
			<a class="css-1jrzyc" href="%s">more</a>
		</div>`, slug, html.EscapeString(href))
	}
	if next != "" {
		fmt.Fprintf(&b, `<a class="next-link" href="%s">Next</a>`, html.EscapeString(next))
	}
	b.WriteString("</body></html>")
	return b.String()
}

func detailHTML(slug string) string {
	return fmt.Sprintf(`<html><body>
		<p class="css-1p9ibgf"><a class="css-1idmmu3" href="/biz_redir?url=https%%3A%%2F%%2F%s.example.com">site</a></p>
		<div id="reviews"><ul>
			<li class="css-1q2nwpv"><a class="css-19v1rkv">Rev</a><span class="css-qgunke">Here</span><span class="css-chan6m">Jan 1, 2026</span></li>
		</ul></div>
	</body></html>`, slug)
}

func runParams(base string, pages int) model.SearchParams {
	return model.SearchParams{
		Query:       model.SearchQuery{Category: "pizza", Location: "Austin, TX"},
		BaseURL:     base,
		MaxPages:    pages,
		Concurrency: 4,
	}
}

func TestRun_PageBudget(t *testing.T) {
	cases := []struct {
		pages int
		want  []string
	}{
		{1, []string{"Biz a", "Biz b"}},
		{2, []string{"Biz a", "Biz b", "Biz c"}},
		{10, []string{"Biz a", "Biz b", "Biz c", "Biz d"}},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("pages=%d", c.pages), func(t *testing.T) {
			var detailHits atomic.Int32
			srv := fakeYelp(t, &detailHits)
			defer srv.Close()

			sink := &memSink{}
			var onRecord atomic.Int32
			stats, err := Run(context.Background(), runParams(srv.URL, c.pages), NewClient("", 0), sink, nil, &RunOptions{
				SuppressStderr: true,
				OnRecord:       func(model.BusinessRecord) { onRecord.Add(1) },
			})
			require.NoError(t, err)
			require.Equal(t, c.want, sink.names())
			require.Equal(t, int32(len(c.want)), onRecord.Load())
			require.Equal(t, int32(len(c.want)), detailHits.Load(), "duplicate detail links are fetched once")
			require.Equal(t, int64(len(c.want)), stats.RecordsEmitted.Load())
			require.Equal(t, stats.JobsQueued.Load(), stats.JobsDone.Load())
			require.Zero(t, stats.Errors.Load())
		})
	}
}

func TestRun_RecordsCarrySummaryAndDetail(t *testing.T) {
	var detailHits atomic.Int32
	srv := fakeYelp(t, &detailHits)
	defer srv.Close()

	sink := &memSink{}
	_, err := Run(context.Background(), runParams(srv.URL, 1), NewClient("", 0), sink, nil, &RunOptions{SuppressStderr: true})
	require.NoError(t, err)
	require.Len(t, sink.recs, 2)

	for _, rec := range sink.recs {
		slug := strings.TrimPrefix(rec.Name, "Biz ")
		require.Equal(t, "4.0", rec.Rating)
		require.Equal(t, 12, rec.NumReviews)
		require.Equal(t, srv.URL+"/biz/"+slug, rec.DetailURL)
		require.Equal(t, slug+".example.com", rec.Website)
		require.Equal(t, []model.ReviewEntry{{ReviewerName: "Rev", ReviewerLocation: "Here", ReviewDate: "Jan 1, 2026"}}, rec.Reviews)
	}
}

type blockingFetcher struct {
	started chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	f.once.Do(func() { close(f.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_Cancellation(t *testing.T) {
	f := &blockingFetcher{started: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-f.started
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, runParams("https://www.yelp.com", 3), f, &memSink{}, nil, &RunOptions{SuppressStderr: true})
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

type failingSink struct{}

func (failingSink) Emit(model.BusinessRecord) error { return errors.New("disk full") }

func TestRun_SinkErrorsAreCounted(t *testing.T) {
	var detailHits atomic.Int32
	srv := fakeYelp(t, &detailHits)
	defer srv.Close()

	stats, err := Run(context.Background(), runParams(srv.URL, 1), NewClient("", 0), failingSink{}, nil, &RunOptions{SuppressStderr: true})
	require.NoError(t, err)
	require.Zero(t, stats.RecordsEmitted.Load())
	require.Equal(t, int64(2), stats.Errors.Load())
}

func TestRun_ExternalStats(t *testing.T) {
	var detailHits atomic.Int32
	srv := fakeYelp(t, &detailHits)
	defer srv.Close()

	stats := &Stats{}
	got, err := Run(context.Background(), runParams(srv.URL, 1), NewClient("", 0), &memSink{}, nil, &RunOptions{SuppressStderr: true, Stats: stats})
	require.NoError(t, err)
	require.Same(t, stats, got)
	require.Equal(t, 1.0, stats.Progress())
	require.Equal(t, int64(1), stats.SearchPages.Load())
	require.Equal(t, int64(2), stats.ListingsFound.Load())
}

func TestIsBlocked(t *testing.T) {
	require.True(t, IsBlocked(fmt.Errorf("scan: %w", errBlocked)))
	require.False(t, IsBlocked(context.Canceled))
}

func TestProgressLine(t *testing.T) {
	s := &Stats{}
	s.JobsQueued.Store(4)
	s.JobsDone.Store(3)
	s.RecordsEmitted.Store(2)
	s.RateLimits.Store(1)
	require.Equal(t, "[3/4 pages] 2 records | 0 errors | 1 rate-limited | 1m5s", progressLine(s, 65*time.Second))
}

type recordingFetcher struct {
	Fetcher
	mu   sync.Mutex
	urls []string
}

func (f *recordingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	f.mu.Unlock()
	return f.Fetcher.Fetch(ctx, rawURL)
}

func TestRun_SkipsOffsiteLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchHTML("https://evil.example.com/search?start=10",
			"/biz/home", "https://evil.example.com/biz/x")))
	})
	mux.HandleFunc("/biz/home", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(detailHTML("home")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	params := runParams(srv.URL, 2)
	f := &recordingFetcher{Fetcher: NewClient("", 0)}
	sink := &memSink{}
	stats, err := Run(context.Background(), params, f, sink, nil, &RunOptions{SuppressStderr: true})
	require.NoError(t, err)

	require.Equal(t, []string{"Biz home"}, sink.names())
	require.Equal(t, int64(2), stats.OffsiteSkipped.Load())
	require.Zero(t, stats.Errors.Load())
	for _, u := range f.urls {
		require.True(t, strings.HasPrefix(u, srv.URL), "fetched off-site url %s", u)
	}
	require.Len(t, f.urls, 2)
}

func TestRun_FollowsSponsoredRedirect(t *testing.T) {
	const adHref = "/adredir?redirect_url=%2Fbiz%2Fad-biz"
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchHTML("", adHref)))
	})
	mux.HandleFunc("/adredir", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Query().Get("redirect_url"), http.StatusFound)
	})
	mux.HandleFunc("/biz/ad-biz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(detailHTML("ad-biz")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &memSink{}
	stats, err := Run(context.Background(), runParams(srv.URL, 1), NewClient("", 0), sink, nil, &RunOptions{SuppressStderr: true})
	require.NoError(t, err)

	require.Equal(t, int64(1), stats.ListingsFound.Load())
	require.Equal(t, int64(1), stats.RecordsEmitted.Load())
	require.Zero(t, stats.Errors.Load())
	require.Zero(t, stats.RateLimits.Load())
	require.Len(t, sink.recs, 1)
	require.Equal(t, srv.URL+adHref, sink.recs[0].DetailURL)
	require.Equal(t, "ad-biz.example.com", sink.recs[0].Website)
}

// throttledFetcher serves one search page and rate limits everything else.
type throttledFetcher struct {
	searchURL string
	page      []byte
}

func (f *throttledFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == f.searchURL {
		return f.page, nil
	}
	return nil, &RateLimitError{StatusCode: http.StatusTooManyRequests}
}

func fastRateLimitDelay(t *testing.T) {
	t.Helper()
	step, maxDelay := rateLimitStep, rateLimitMaxDelay
	rateLimitStep, rateLimitMaxDelay = time.Microsecond, time.Millisecond
	t.Cleanup(func() { rateLimitStep, rateLimitMaxDelay = step, maxDelay })
}

func TestRun_AbortsWhenBlocked(t *testing.T) {
	fastRateLimitDelay(t)

	const listings = 80
	hrefs := make([]string, listings)
	for i := range hrefs {
		hrefs[i] = fmt.Sprintf("/biz/%d", i)
	}
	params := runParams("https://www.yelp.com", 1)
	f := &throttledFetcher{
		searchURL: params.Query.URL(params.BaseURL),
		page:      []byte(searchHTML("", hrefs...)),
	}

	sink := &memSink{}
	stats, err := Run(context.Background(), params, f, sink, nil, &RunOptions{SuppressStderr: true})

	require.True(t, IsBlocked(err), "got %v", err)
	require.Greater(t, stats.RateLimits.Load(), int64(maxConsecutiveRateLimits))
	require.Equal(t, stats.RateLimits.Load(), stats.Errors.Load())
	require.Equal(t, int64(listings+1), stats.JobsQueued.Load())
	require.Less(t, stats.JobsDone.Load(), stats.JobsQueued.Load(), "remaining queue is dropped")
	require.LessOrEqual(t, stats.RateLimits.Load(), int64(maxConsecutiveRateLimits+params.Concurrency))
	require.Zero(t, stats.RecordsEmitted.Load())
	require.Empty(t, sink.recs)
}

func TestWorkerAdjustDelay(t *testing.T) {
	w := &worker{}
	for range 20 {
		w.adjustDelay(true)
	}
	require.Equal(t, rateLimitMaxDelay, w.delay)

	w.adjustDelay(false)
	require.Equal(t, rateLimitMaxDelay-recoveryStep, w.delay)

	for range 100 {
		w.adjustDelay(false)
	}
	require.Zero(t, w.delay)
}

func TestWorkerDumpPageNamesAreUnique(t *testing.T) {
	dir := t.TempDir()
	w := &worker{
		params: model.SearchParams{Output: filepath.Join(dir, "out.json")},
		logger: logger.Discard(),
		stats:  &Stats{},
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.dumpPage(DetailJob{}, []byte(fmt.Sprintf("page %d", i)))
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 8)
}
