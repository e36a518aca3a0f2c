// Package supervisor runs one supervised, cron-scheduled sync service per
// enabled provider underneath a suture tree, so a failing provider service
// only restarts that provider rather than taking down the whole process.
// An error or panic from a single sync run is logged by the service itself
// and does not restart it (see ProviderService.Serve).
//
// Grounded on the teacher's internal/supervisor/tree.go (suture.Supervisor
// + sutureslog.Handler event bridge) and internal/supervisor/services
// (the Start/Stop-to-Serve adapter pattern), generalized from cartographus's
// fixed three-layer tree (data/messaging/api) to one flat root holding a
// dynamic set of per-provider services, since bankmirror has no comparable
// layering to preserve.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/cstorey/bankmirror/internal/logging"
)

// TreeConfig holds supervisor tree tuning, identical in spirit to the
// teacher's TreeConfig (internal/supervisor/tree.go).
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig mirrors suture's own built-in defaults, same as the
// teacher's DefaultTreeConfig.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the root supervisor: every provider's ProviderService is added
// directly to it, so each provider crashes and restarts independently.
type Tree struct {
	root *suture.Supervisor
}

// NewTree builds a root supervisor with a sutureslog event bridge, so
// service add/remove/panic/backoff events flow through the same zerolog
// sink as the rest of the process (internal/logging.NewSlogLogger).
func NewTree(config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}

	root := suture.New("bankmirror", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	})

	return &Tree{root: root}
}

// Add registers a service with the root supervisor.
func (t *Tree) Add(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
