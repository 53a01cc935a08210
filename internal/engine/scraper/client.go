package scraper

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	utls "github.com/refraction-networking/utls"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	maxRetries   = 3
	maxRedirects = 10
	baseBackoff  = 2 * time.Second
	maxBackoff   = 30 * time.Second
	jitterFactor = 0.5
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// RateLimitError indicates Yelp is throttling or blocking us.
type RateLimitError struct {
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// ErrEmptyURL is returned when a job has nothing to fetch, e.g. a listing card without a link.
var ErrEmptyURL = errors.New("empty url")

// Fetcher retrieves the raw body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	backoff time.Duration
}

// NewClient builds the HTTP client used for every page fetch. rps <= 0 disables
// client-side rate limiting.
func NewClient(proxyURL string, rps float64) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}

			// Get Chrome TLS spec and force HTTP/1.1 ALPN
			spec, err := utls.UTLSIdToSpec(utls.HelloChrome_Auto)
			if err != nil {
				conn.Close()
				return nil, err
			}
			for i, ext := range spec.Extensions {
				if alpn, ok := ext.(*utls.ALPNExtension); ok {
					alpn.AlpnProtocols = []string{"http/1.1"}
					spec.Extensions[i] = alpn
					break
				}
			}

			tlsConn := utls.UClient(conn, &utls.Config{
				ServerName: host,
			}, utls.HelloCustom)
			if err := tlsConn.ApplyPreset(&spec); err != nil {
				conn.Close()
				return nil, err
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}

			return tlsConn, nil
		},
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	var rt http.RoundTripper = transport
	if proxyURL != "" {
		proxyParsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyParsed)
			// The proxy terminates the connection, so the utls dialer is useless here;
			// fall back to standard TLS shaped to pass Cloudflare's checks.
			transport.DialTLSContext = nil
			transport.TLSClientConfig = &tls.Config{}
			rt = cloudflarebp.AddCloudFlareByPass(transport)
		}
	}

	client := resty.New()
	client.SetTransport(rt)
	client.SetCookieJar(jar)
	client.SetTimeout(15 * time.Second)
	// Sponsored cards go through /adredir and /biz pages redirect to their
	// canonical slug. A hop to a captcha or another site is a block: stop there
	// and let the 3xx surface as a RateLimitError.
	client.SetRedirectPolicy(
		resty.RedirectPolicyFunc(stopOnBlockRedirect),
		resty.FlexibleRedirectPolicy(maxRedirects),
	)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	client.SetHeader("Accept-Encoding", "identity")

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Client{
		http:    client,
		limiter: limiter,
		backoff: baseBackoff,
	}
}

// Fetch performs a GET with retry and exponential backoff on rate limiting.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Client.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	if rawURL == "" {
		span.SetStatus(codes.Error, "empty url")
		return nil, ErrEmptyURL
	}

	var lastErr error
	for attempt := range maxRetries {
		body, err := c.doRequest(ctx, rawURL)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return body, nil
		}

		lastErr = err

		var rl *RateLimitError
		if !errors.As(err, &rl) {
			break
		}

		backoff := c.backoff * time.Duration(1<<uint(attempt))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(float64(backoff) * jitterFactor * rand.Float64())
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return nil, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "fetch failed")
	return nil, lastErr
}

func stopOnBlockRedirect(req *http.Request, via []*http.Request) error {
	if len(via) == 0 {
		return nil
	}
	if strings.Contains(strings.ToLower(req.URL.Path), "captcha") {
		return http.ErrUseLastResponse
	}
	if !sameSite(req.URL.Hostname(), via[0].URL.Hostname()) {
		return http.ErrUseLastResponse
	}
	return nil
}

// sameSite reports whether two hosts share a registrable domain
// (www.yelp.com and m.yelp.com do, yelp.com and yelp.ca do not).
func sameSite(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	if net.ParseIP(a) != nil || net.ParseIP(b) != nil {
		return false
	}
	ea, err := publicsuffix.EffectiveTLDPlusOne(a)
	if err != nil {
		return false
	}
	eb, err := publicsuffix.EffectiveTLDPlusOne(b)
	if err != nil {
		return false
	}
	return ea == eb
}

func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("User-Agent", userAgents[rand.IntN(len(userAgents))]).
		Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	// A 3xx only gets here when stopOnBlockRedirect refused to follow it.
	switch status := resp.StatusCode(); {
	case status == http.StatusTooManyRequests,
		status == http.StatusForbidden,
		status == http.StatusFound,
		status == http.StatusMovedPermanently,
		status == http.StatusSeeOther,
		status == http.StatusTemporaryRedirect,
		status == http.StatusPermanentRedirect:
		return nil, &RateLimitError{StatusCode: status}
	case status != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", status)
	}

	return resp.Body(), nil
}
