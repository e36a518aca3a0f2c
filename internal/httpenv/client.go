// Package httpenv implements the HTTP request envelope (spec.md C2): URL
// construction against a per-environment host table, bearer auth, typed
// response decoding, structured error classification, retry with
// exponential backoff and full jitter, per-host circuit breaking, and
// rate-limit header observability.
//
// Grounded on the original scraper's perform_request/parse_error
// (original_source/src/lib.rs, original_source/gocardless/src/client.rs)
// and on the teacher's gobreaker wrapping in internal/sync/circuit_breaker.go.
package httpenv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/cstorey/bankmirror/internal/logging"
)

// HttpTransport is the seam the core consumes instead of *http.Client
// directly (spec.md §1 Non-goals: "an HttpTransport"). A *http.Client
// satisfies it as-is.
type HttpTransport interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies the current bearer access token. Implemented by
// internal/auth.Authenticator; kept as a narrow interface here to avoid an
// import cycle between the envelope and the authenticator.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// HostTable names the two environments every provider in this system ships
// (spec.md §4.2 step 1: "per-environment host table (sandbox vs live)").
type HostTable struct {
	Sandbox string
	Live    string
}

type Environment int

const (
	Sandbox Environment = iota
	Live
)

func (t HostTable) Host(env Environment) string {
	if env == Live {
		return t.Live
	}
	return t.Sandbox
}

// RetryPolicy configures the exponential-backoff-with-full-jitter retry
// loop (spec.md §4.2 step 4): starts at 1s, stops after MaxAttempts tries.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxAttempts     uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{InitialInterval: time.Second, MaxAttempts: 5}
}

// Client is the authenticated envelope. The unauthenticated variant is the
// same type with a nil TokenSource, used only by the token endpoints
// (spec.md §4.2 step 2).
type Client struct {
	transport HttpTransport
	hosts     HostTable
	env       Environment
	tokens    TokenSource
	retry     RetryPolicy
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	limiter   *rate.Limiter
}

type Option func(*Client)

func WithRetryPolicy(p RetryPolicy) Option { return func(c *Client) { c.retry = p } }

func WithTokenSource(ts TokenSource) Option { return func(c *Client) { c.tokens = ts } }

// New builds an envelope client for the given host table. name is used as
// the circuit breaker identity and log field (e.g. "gocardless", "truelayer").
func New(name string, transport HttpTransport, hosts HostTable, env Environment, opts ...Option) *Client {
	if transport == nil {
		transport = http.DefaultClient
	}
	c := &Client{
		transport: transport,
		hosts:     hosts,
		env:       env,
		retry:     DefaultRetryPolicy(),
		limiter:   rate.NewLimiter(rate.Inf, 1),
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(bname string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", bname).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c
}

func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var zero T
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()
	return decode[T](resp)
}

func Post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var zero T
	buf, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("marshal request body: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(buf), "application/json")
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()
	return decode[T](resp)
}

func Form[T any](ctx context.Context, c *Client, path string, form url.Values) (T, error) {
	var zero T
	resp, err := c.do(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()
	return decode[T](resp)
}

func (c *Client) url(path string) string {
	host := c.hosts.Host(c.env)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "https://" + host + path
}

// do runs the retry/circuit-breaker loop around a single logical request.
// The request is rebuilt from scratch on every attempt, per spec.md §4.2
// step 4 ("a pure function of the request builder").
func (c *Client) do(ctx context.Context, method, path string, body io.ReadSeeker, contentType string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: "rate limit wait", Err: err}
	}

	build := func() (*http.Request, error) {
		var r io.Reader
		if body != nil {
			if _, err := body.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
			r = body
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(path), r)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.tokens != nil {
			tok, err := c.tokens.AccessToken(ctx)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		return req, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialInterval
	bo.RandomizationFactor = 1.0 // full jitter
	bo.Multiplier = 2.0
	// MaxAttempts counts the first try; WithMaxRetries counts only the
	// retries after it.
	retries := c.retry.MaxAttempts
	if retries > 0 {
		retries--
	}
	bounded := backoff.WithMaxRetries(bo, retries)

	var result *http.Response
	attempt := func() error {
		attemptStart := time.Now()
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			resp, err := c.transport.Do(req)
			if err != nil {
				return nil, &TransportError{Op: method + " " + path, Err: err}
			}
			return resp, nil
		})
		if err != nil {
			if errIsCircuitOpen(err) {
				return backoff.Permanent(err) // not retried further within this call; breaker itself is the backoff
			}
			return err // TransportError: retryable
		}

		c.observeRateLimit(resp, attemptStart)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			result = resp
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			// Rate limited: the only 4xx that is retried with backoff.
			excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return &HttpStatusError{Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Excerpt: string(excerpt)}
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			defer resp.Body.Close()
			return backoff.Permanent(classifyClientError(resp))
		case resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return &ServerError{Status: resp.StatusCode, Body: string(body)}
		default:
			defer resp.Body.Close()
			return backoff.Permanent(&HttpStatusError{Status: resp.StatusCode})
		}
	}

	if err := backoff.Retry(attempt, bounded); err != nil {
		return nil, err
	}
	return result, nil
}

func errIsCircuitOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

func classifyClientError(resp *http.Response) error {
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		var apiErr ApiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
			apiErr.StatusCode = resp.StatusCode
			return &apiErr
		}
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HttpStatusError{Status: resp.StatusCode, ContentType: ct, Excerpt: string(excerpt)}
}

func decode[T any](resp *http.Response) (T, error) {
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, &DecodeError{Err: err}
	}
	return out, nil
}

var rateLimitHeader = regexp.MustCompile(`(?i)^X-Ratelimit(?:-([A-Za-z]+(?:-[A-Za-z]+)*))?-(Limit|Remaining|Reset)$`)

// observeRateLimit parses X-RateLimit-{Limit,Remaining,Reset} and their
// per-account variants (spec.md §4.2 step 5), emits them to the
// observability stream, and paces c.limiter from the unscoped
// Remaining/Reset pair so later requests back off before the bank starts
// rejecting them. Reset is a count of seconds relative to when this
// attempt's request was sent, not a Unix timestamp; it is recorded both as
// the raw seconds value and as the resulting absolute instant, relative to
// requestStart, so dashboards don't need to reconstruct one from the other.
// Missing headers are warned but not errors.
func (c *Client) observeRateLimit(resp *http.Response, requestStart time.Time) {
	found := false
	var remaining, reset *int
	for name, values := range resp.Header {
		m := rateLimitHeader.FindStringSubmatch(name)
		if m == nil || len(values) == 0 {
			continue
		}
		found = true
		n, err := strconv.Atoi(values[0])
		if err != nil {
			logging.Warn().Str("header", name).Str("value", values[0]).Msg("rate limit header not an integer")
			continue
		}
		scope := m[1]
		field := strings.ToLower(m[2])
		RateLimitGauge(scope, field, n)
		if scope != "" {
			// Per-account variants are reported as metrics only; the shared
			// client-level limiter paces against the unscoped header pair.
			continue
		}
		switch field {
		case "remaining":
			v := n
			remaining = &v
		case "reset":
			v := n
			reset = &v
			resetAt := requestStart.Add(time.Duration(n) * time.Second)
			logging.Debug().Str("scope", scope).Time("reset_at", resetAt).Msg("rate limit reset computed relative to request start")
		}
	}
	if !found {
		logging.Warn().Msg("no rate limit headers present on response")
		return
	}
	if remaining != nil && reset != nil {
		c.paceLimiter(*remaining, *reset)
	}
}

// paceLimiter sets the limiter's rate so that the remaining quota is spread
// evenly across the seconds left until it resets, rather than spent in a
// single burst. A remaining count of zero paces to one request per reset
// window instead of blocking outright.
func (c *Client) paceLimiter(remaining, resetSeconds int) {
	if resetSeconds <= 0 {
		c.limiter.SetBurst(1)
		c.limiter.SetLimit(rate.Inf)
		return
	}
	if remaining <= 0 {
		c.limiter.SetBurst(1)
		c.limiter.SetLimit(rate.Every(time.Duration(resetSeconds) * time.Second))
		return
	}
	burst := remaining
	c.limiter.SetBurst(burst)
	c.limiter.SetLimit(rate.Limit(float64(remaining) / float64(resetSeconds)))
}
