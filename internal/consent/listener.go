// Package consent implements the ephemeral consent-callback listener
// (spec.md C5): a small HTTP server on a loopback port (an info page at /
// and the /callback route) that waits
// for the bank's OAuth/requisition redirect, validates it against the
// identifier the caller minted before redirecting the user, and then shuts
// itself down.
//
// Grounded on the teacher's chi-based routing style
// (tomtom215-cartographus/internal/api/chi_router.go) applied to a single
// ephemeral route instead of a long-lived API surface.
package consent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cstorey/bankmirror/internal/logging"
)

// ErrClosed is returned if the underlying server stops (e.g. the port is
// torn down by the OS) before a matching callback ever arrives.
var ErrClosed = errors.New("consent: listener closed before a matching callback arrived")

// Config parameterizes the single callback route over the two provider
// shapes this system speaks: provider B sends back ?code=...&state=...
// (CompareParam "state", CaptureParam "code"); provider A sends back
// ?ref=... alone, where the same value is both compared and captured
// (CompareParam == CaptureParam == "ref").
type Config struct {
	CompareParam string
	Expected     string
	CaptureParam string
}

// Listener owns one bound loopback socket and serves exactly one
// successful callback before shutting itself down.
type Listener struct {
	ln  net.Listener
	srv *http.Server
}

// Listen binds addr (typically "127.0.0.1:0" to let the OS pick a free
// port) without yet serving traffic. Callers read Addr() to build the
// redirect_uri handed to the provider -- and, for flows where the
// provider hands back an id only after the redirect_uri was submitted
// (provider A's requisition creation), to learn that id before Await is
// ever called, since Config.Expected is only needed once serving starts.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound loopback address (host:port).
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// Await serves until a request to /callback has cfg.CompareParam equal to
// cfg.Expected, then returns cfg.CaptureParam from that same request. A
// non-matching callback (wrong id, or an unrelated browser probe like
// /favicon.ico) gets a 404 and does NOT stop the listener -- only an
// exact match, ctx cancellation, or an unexpected server failure ends the
// wait (spec.md §4.5).
func (l *Listener) Await(ctx context.Context, cfg Config) (string, error) {
	matched := make(chan string, 1)
	var once sync.Once

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("Waiting for bank consent to complete. You may close this window once your bank redirects you back.\n"))
	})
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		got := req.URL.Query().Get(cfg.CompareParam)
		if got == "" || got != cfg.Expected {
			logging.Warn().Str("param", cfg.CompareParam).Msg("consent callback id mismatch, ignoring")
			http.NotFound(w, req)
			return
		}
		captured := req.URL.Query().Get(cfg.CaptureParam)
		w.Write([]byte("Consent received. You can close this window.\n"))
		once.Do(func() { matched <- captured })
	})

	l.srv = &http.Server{Handler: r}
	serveErr := make(chan error, 1)
	go func() { serveErr <- l.srv.Serve(l.ln) }()

	select {
	case captured := <-matched:
		l.shutdown()
		return captured, nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return "", ErrClosed
		}
		return "", err
	case <-ctx.Done():
		l.shutdown()
		return "", ctx.Err()
	}
}

func (l *Listener) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("consent listener shutdown did not complete cleanly")
	}
}
