package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rendis/yelptap/internal/logger"
	"github.com/rendis/yelptap/internal/model"
)

type Stats struct {
	JobsQueued     atomic.Int64
	JobsDone       atomic.Int64
	SearchPages    atomic.Int64
	DetailPages    atomic.Int64
	ListingsFound  atomic.Int64
	RecordsEmitted atomic.Int64
	Errors         atomic.Int64
	RateLimits     atomic.Int64
	OffsiteSkipped atomic.Int64
}

// Progress returns the fraction of known jobs that have finished.
func (s *Stats) Progress() float64 {
	queued := s.JobsQueued.Load()
	if queued == 0 {
		return 0
	}
	return float64(s.JobsDone.Load()) / float64(queued)
}

// Job is a unit of work for a fetch worker: either a SearchJob or a DetailJob.
type Job interface {
	// URL is the page the worker has to fetch.
	URL() string
}

// SearchJob fetches one page of search results.
type SearchJob struct {
	Query          model.SearchQuery
	PageURL        string
	RemainingPages int
}

func (j SearchJob) URL() string { return j.PageURL }

// DetailJob fetches a business page and carries the summary found for it.
type DetailJob struct {
	Summary model.BusinessSummary
}

func (j DetailJob) URL() string { return j.Summary.DetailURL }

// Sink receives every record the crawl produces.
type Sink interface {
	Emit(rec model.BusinessRecord) error
}

// RunOptions provides optional callbacks for the scraping pipeline.
type RunOptions struct {
	// OnRecord is called for each record after it has been handed to the sink.
	OnRecord func(model.BusinessRecord)
	// SuppressStderr disables the built-in stderr progress reporter.
	SuppressStderr bool
	// Stats allows passing an external Stats object for live progress tracking.
	// If nil, Run() creates its own.
	Stats *Stats
	// Selectors overrides DefaultSelectors; empty fields keep their defaults.
	Selectors Selectors
}

type jobResult struct {
	next        []Job
	rateLimited bool
}

// Run crawls the search described by params: every search page fans out into
// detail jobs and at most one next-page job, every detail page yields one record.
func Run(ctx context.Context, params model.SearchParams, fetcher Fetcher, sink Sink, log *slog.Logger, opts *RunOptions) (*Stats, error) {
	if opts == nil {
		opts = &RunOptions{}
	}
	if log == nil {
		log = slog.Default()
	}
	params.Normalize()

	stats := opts.Stats
	if stats == nil {
		stats = &Stats{}
	}

	w := &worker{
		params:  params,
		fetcher: fetcher,
		sink:    sink,
		logger:  log,
		opts:    opts,
		stats:   stats,
		sel:     opts.Selectors.WithDefaults(),
	}

	startTime := time.Now()
	done := make(chan struct{})
	go reportProgress(stats, log, startTime, !opts.SuppressStderr, done)

	jobs := make(chan Job)
	results := make(chan jobResult)

	g := new(errgroup.Group)
	for range params.Concurrency {
		g.Go(func() error {
			for j := range jobs {
				results <- w.process(ctx, j)
			}
			return nil
		})
	}

	// The dispatcher owns the queue and the seen set; workers never touch them.
	seen := make(map[string]bool)
	var queue []Job
	enqueue := func(j Job) {
		if u := j.URL(); u != "" {
			if !params.AllowsURL(u) {
				stats.OffsiteSkipped.Add(1)
				log.Warn("skipping off-site url", "url", u, "allowed", params.AllowedDomains)
				return
			}
			if seen[u] {
				return
			}
			seen[u] = true
		}
		stats.JobsQueued.Add(1)
		queue = append(queue, j)
	}
	enqueue(SearchJob{
		Query:          params.Query,
		PageURL:        params.Query.URL(params.BaseURL),
		RemainingPages: params.MaxPages,
	})

	var runErr error
	ctxDone := ctx.Done()
	inflight := 0
	consecutiveRL := 0

	for len(queue) > 0 || inflight > 0 {
		var out chan<- Job
		var head Job
		if len(queue) > 0 {
			out = jobs
			head = queue[0]
		}

		select {
		case out <- head:
			queue = queue[1:]
			inflight++
		case r := <-results:
			inflight--
			if r.rateLimited {
				consecutiveRL++
			} else {
				consecutiveRL = 0
			}
			if consecutiveRL > maxConsecutiveRateLimits && runErr == nil {
				log.Error("persistent rate limiting, aborting", "consecutive", consecutiveRL)
				if !opts.SuppressStderr {
					fmt.Fprintf(os.Stderr, "\n[!] Persistent rate limiting detected, aborting. Try again later or lower --rps.\n")
				}
				runErr = errBlocked
				queue = nil
				continue
			}
			if runErr == nil {
				for _, j := range r.next {
					enqueue(j)
				}
			}
		case <-ctxDone:
			runErr = ctx.Err()
			ctxDone = nil
			queue = nil
		}
	}
	close(jobs)
	_ = g.Wait()
	close(done)

	// Final progress line
	if !opts.SuppressStderr {
		fmt.Fprintf(os.Stderr, "\r%s\n", progressLine(stats, time.Since(startTime)))
	}

	return stats, runErr
}

// More rate limits in a row than this means the site has blocked us.
const maxConsecutiveRateLimits = 50

var (
	rateLimitStep     = 500 * time.Millisecond
	rateLimitMaxDelay = 5 * time.Second
	recoveryStep      = 100 * time.Millisecond
)

var errBlocked = errors.New("persistent rate limiting")

// IsBlocked reports whether Run stopped because the site kept rate limiting us.
func IsBlocked(err error) bool {
	return errors.Is(err, errBlocked)
}

type worker struct {
	params  model.SearchParams
	fetcher Fetcher
	sink    Sink
	logger  *slog.Logger
	opts    *RunOptions
	stats   *Stats
	sel     Selectors

	// Adaptive delay: increases when rate limited
	delayMu sync.RWMutex
	delay   time.Duration

	dumpSeq atomic.Int64
}

func (w *worker) process(ctx context.Context, job Job) (res jobResult) {
	defer w.stats.JobsDone.Add(1)

	if err := ctx.Err(); err != nil {
		return res
	}

	w.delayMu.RLock()
	d := w.delay
	w.delayMu.RUnlock()
	if d > 0 {
		select {
		case <-ctx.Done():
			return res
		case <-time.After(d):
		}
	}

	body, err := w.fetcher.Fetch(ctx, job.URL())
	if err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			w.stats.RateLimits.Add(1)
			w.adjustDelay(true)
			res.rateLimited = true
			w.logger.Warn("rate limited", "url", job.URL(), "status", rl.StatusCode)
		} else if !errors.Is(err, context.Canceled) {
			w.logger.Error("fetch failed", "url", job.URL(), "err", err)
		}
		w.stats.Errors.Add(1)
		return res
	}
	w.adjustDelay(false)

	if w.params.Debug {
		w.dumpPage(job, body)
	}

	doc, err := parseHTML(body)
	if err != nil {
		w.logger.Error("parsing html", "url", job.URL(), "err", err)
		w.stats.Errors.Add(1)
		return res
	}

	switch j := job.(type) {
	case SearchJob:
		w.stats.SearchPages.Add(1)
		pageURL, _ := url.Parse(j.PageURL)
		page := ParseSearchPage(ctx, doc, pageURL, j.RemainingPages, w.sel)
		w.stats.ListingsFound.Add(int64(len(page.Summaries)))
		w.logger.Info("search page parsed",
			"url", j.PageURL, "listings", len(page.Summaries), "next", page.NextURL)

		for _, s := range page.Summaries {
			res.next = append(res.next, DetailJob{Summary: s})
		}
		if page.NextURL != "" {
			res.next = append(res.next, SearchJob{
				Query:          j.Query,
				PageURL:        page.NextURL,
				RemainingPages: j.RemainingPages - 1,
			})
		}

	case DetailJob:
		w.stats.DetailPages.Add(1)
		rec := ParseDetailPage(ctx, doc, j.Summary, w.sel)
		if err := w.sink.Emit(rec); err != nil {
			w.logger.Error("emitting record", "url", rec.DetailURL, "err", err)
			w.stats.Errors.Add(1)
			return res
		}
		w.stats.RecordsEmitted.Add(1)
		logger.LogRecord(w.logger, rec)
		if w.opts.OnRecord != nil {
			w.opts.OnRecord(rec)
		}
	}

	return res
}

func (w *worker) adjustDelay(rateLimited bool) {
	w.delayMu.Lock()
	defer w.delayMu.Unlock()
	if rateLimited {
		w.delay = min(w.delay+rateLimitStep, rateLimitMaxDelay)
		return
	}
	w.delay = max(w.delay-recoveryStep, 0)
}

func (w *worker) dumpPage(job Job, body []byte) {
	kind := "detail"
	if _, ok := job.(SearchJob); ok {
		kind = "search"
	}
	name := fmt.Sprintf("debug_%s_%d.html", kind, w.dumpSeq.Add(1))
	path := filepath.Join(filepath.Dir(w.params.Output), name)
	if err := os.WriteFile(path, body, 0644); err != nil {
		w.logger.Warn("writing debug page", "path", path, "err", err)
	}
}

func reportProgress(stats *Stats, log *slog.Logger, startTime time.Time, toStderr bool, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	logTicker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	defer logTicker.Stop()
	for {
		select {
		case <-ticker.C:
			if toStderr {
				fmt.Fprintf(os.Stderr, "\r%s", progressLine(stats, time.Since(startTime)))
			}
		case <-logTicker.C:
			log.Info("progress",
				"jobs_done", stats.JobsDone.Load(), "jobs_queued", stats.JobsQueued.Load(),
				"records", stats.RecordsEmitted.Load(), "errors", stats.Errors.Load(),
				"rate_limits", stats.RateLimits.Load(),
				"elapsed", time.Since(startTime).Truncate(time.Second).String())
		case <-done:
			return
		}
	}
}

func progressLine(stats *Stats, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d pages] %d records | %d errors",
		stats.JobsDone.Load(), stats.JobsQueued.Load(),
		stats.RecordsEmitted.Load(), stats.Errors.Load())
	if rl := stats.RateLimits.Load(); rl > 0 {
		fmt.Fprintf(&b, " | %d rate-limited", rl)
	}
	if off := stats.OffsiteSkipped.Load(); off > 0 {
		fmt.Fprintf(&b, " | %d off-site", off)
	}
	fmt.Fprintf(&b, " | %s", elapsed.Truncate(time.Second))
	return b.String()
}
