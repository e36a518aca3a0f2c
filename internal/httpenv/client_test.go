package httpenv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type okBody struct {
	Value string `json:"value"`
}

func TestGetDecodes2xx(t *testing.T) {
	c, closeFn := newPlainHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "99")
		json.NewEncoder(w).Encode(okBody{Value: "hi"})
	}))
	defer closeFn()

	got, err := Get[okBody](context.Background(), c, "/thing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value != "hi" {
		t.Fatalf("got %+v", got)
	}
}

func TestGetSurfacesApiErrorWithoutRetry(t *testing.T) {
	var calls int32
	c, closeFn := newPlainHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(ApiError{Summary: "bad", Detail: "nope", StatusCode: 401})
	}))
	defer closeFn()

	_, err := Get[okBody](context.Background(), c, "/thing")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*ApiError)
	if !ok {
		t.Fatalf("expected *ApiError, got %T: %v", err, err)
	}
	if apiErr.Summary != "bad" {
		t.Fatalf("got %+v", apiErr)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt for a 4xx, got %d", calls)
	}
}

func Test429ThenRetrySucceeds(t *testing.T) {
	var calls int32
	c, closeFn := newPlainHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(okBody{Value: "ok"})
	}))
	defer closeFn()

	// A 429 is the one 4xx the envelope retries: the second attempt gets
	// the 200 and decodes it.
	got, err := Get[okBody](context.Background(), c, "/thing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value != "ok" {
		t.Fatalf("got %+v", got)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts (429 then 200), got %d", calls)
	}
}

func Test5xxThenSuccessIsRetried(t *testing.T) {
	var calls int32
	c, closeFn := newPlainHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(okBody{Value: "ok"})
	}))
	defer closeFn()

	got, err := Get[okBody](context.Background(), c, "/thing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value != "ok" {
		t.Fatalf("got %+v", got)
	}
	if calls < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", calls)
	}
}

// TestObserveRateLimitPacesLimiterFromHeaders confirms the shared limiter
// actually changes in response to the unscoped X-RateLimit-Remaining/Reset
// header pair, rather than staying pinned at rate.Inf forever.
func TestObserveRateLimitPacesLimiterFromHeaders(t *testing.T) {
	c, closeFn := newPlainHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "2")
		w.Header().Set("X-RateLimit-Reset", "60")
		json.NewEncoder(w).Encode(okBody{Value: "ok"})
	}))
	defer closeFn()

	if _, err := Get[okBody](context.Background(), c, "/thing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := c.limiter.Limit(); got != 2.0/60.0 {
		t.Fatalf("limiter rate = %v, want %v", got, 2.0/60.0)
	}
	if got := c.limiter.Burst(); got != 2 {
		t.Fatalf("limiter burst = %d, want 2", got)
	}
}

// TestObserveRateLimitPacesToOneRequestPerWindowWhenExhausted confirms a
// Remaining of zero paces future requests to the reset window instead of
// leaving the limiter at its initial rate.Inf no-op setting.
func TestObserveRateLimitPacesToOneRequestPerWindowWhenExhausted(t *testing.T) {
	c, closeFn := newPlainHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "30")
		json.NewEncoder(w).Encode(okBody{Value: "ok"})
	}))
	defer closeFn()

	if _, err := Get[okBody](context.Background(), c, "/thing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := 1.0 / 30.0
	if got := c.limiter.Limit(); got != rate.Limit(want) {
		t.Fatalf("limiter rate = %v, want %v", got, want)
	}
	if got := c.limiter.Burst(); got != 1 {
		t.Fatalf("limiter burst = %d, want 1", got)
	}
}

type fixedTokenSource struct{ token string }

func (f fixedTokenSource) AccessToken(ctx context.Context) (string, error) { return f.token, nil }

func TestAuthenticatedClientAttachesBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(okBody{Value: "ok"})
	}))
	defer srv.Close()

	c := New(t.Name(), srv.Client(), HostTable{Sandbox: srv.Listener.Addr().String()}, Sandbox,
		WithTokenSource(fixedTokenSource{token: "secret-access"}))
	c.transport = testTransport{srv: srv}

	_, err := Get[okBody](context.Background(), c, "/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret-access" {
		t.Fatalf("got Authorization=%q", gotAuth)
	}
}

// testTransport rewrites our https://host/path URL to the httptest server's
// actual http:// URL, since the envelope always builds https URLs.
type testTransport struct{ srv *httptest.Server }

func (t testTransport) Do(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.srv.Listener.Addr().String()
	return http.DefaultClient.Do(req)
}

func newPlainHTTPTestClient(t *testing.T, handler http.Handler) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(t.Name(), srv.Client(), HostTable{Sandbox: srv.Listener.Addr().String()}, Sandbox,
		WithRetryPolicy(RetryPolicy{InitialInterval: time.Millisecond, MaxAttempts: 3}))
	c.transport = testTransport{srv: srv}
	return c, srv.Close
}
