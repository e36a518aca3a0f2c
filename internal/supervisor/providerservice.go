package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	bmconfig "github.com/cstorey/bankmirror/internal/config"
	"github.com/cstorey/bankmirror/internal/clock"
	"github.com/cstorey/bankmirror/internal/httpenv"
	"github.com/cstorey/bankmirror/internal/jobpool"
	"github.com/cstorey/bankmirror/internal/logging"
	"github.com/cstorey/bankmirror/internal/providerstate"
	"github.com/cstorey/bankmirror/internal/store"
	"github.com/cstorey/bankmirror/internal/sync"
)

// RunSync builds one fully-wired Orchestrator run (job pool plus
// orchestrator) for a single provider and blocks until it completes.
// Extracted so ProviderService can call it on every cron tick without
// re-wiring per call.
type RunSync func(ctx context.Context) error

// NewOrchestratorRunner closes over everything an Orchestrator needs and
// returns a RunSync that builds a fresh job pool for every tick -- a pool
// is single-use (spec.md §4.3: "a pool terminates once every handle it
// issued has been closed and its queue is empty"), so it cannot be reused
// across cron runs.
func NewOrchestratorRunner(providerConfig bmconfig.ProviderConfig, client *httpenv.Client, endpoints sync.Endpoints, states *providerstate.Store) RunSync {
	return func(ctx context.Context) error {
		// Provider A's consent artifact is the requisition id persisted by
		// the consent subcommand; provider B's ConsentStatus ignores the
		// field entirely (its access token alone is the consent), so no
		// provider state file is required for it.
		var consentID string
		if providerConfig.Grant == bmconfig.GrantClientCredential {
			st, ok, err := states.Load()
			if err != nil {
				return fmt.Errorf("provider %s: load provider state: %w", providerConfig.Name, err)
			}
			if !ok {
				return fmt.Errorf("provider %s: consent has not been completed (run the consent subcommand first)", providerConfig.Name)
			}
			consentID = st.RequisitionID.String()
		}

		pool, handle := jobpool.New(providerConfig.Name, 4)

		orch := &sync.Orchestrator{
			Config: sync.ProviderConfig{
				Name:          providerConfig.Name,
				ConsentID:     consentID,
				OutputDir:     providerConfig.OutputDir,
				HistoryDays:   providerConfig.HistoryDays,
				FetchInfo:     providerConfig.FetchInfo,
				FetchAccounts: providerConfig.FetchAccounts,
				FetchCards:    providerConfig.FetchCards,
				FreshSession:  providerConfig.FreshSession,
				MonthStrategy: monthStrategyFromConfig(providerConfig.MonthStrategy),
			},
			Client:    client,
			Endpoints: endpoints,
			Clock:     clock.Real(),
			Store:     store.New(store.OS{}),
			Handle:    handle,
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- orch.Run(ctx)
		}()

		poolErr := pool.Run(ctx)
		orchErr := <-errCh
		if orchErr != nil {
			return fmt.Errorf("provider %s: sync run: %w", providerConfig.Name, orchErr)
		}
		if poolErr != nil {
			return fmt.Errorf("provider %s: job pool: %w", providerConfig.Name, poolErr)
		}
		return nil
	}
}

func monthStrategyFromConfig(name bmconfig.MonthStrategyName) sync.MonthStrategy {
	if name == bmconfig.MonthStrategyRangeThenBucket {
		return sync.RangeThenBucket
	}
	return sync.PerMonthCalls
}

// ProviderService adapts a cron-scheduled sync run to suture's Serve
// pattern, the same shape as the teacher's services.SyncService
// (internal/supervisor/services/sync_service.go): it starts a scheduler on
// Serve, blocks on context cancellation, and stops the scheduler before
// returning.
type ProviderService struct {
	name     string
	schedule string
	run      RunSync
	timeout  time.Duration

	cron *cron.Cron
}

// NewProviderService builds a ProviderService that runs run on the given
// interval (spec.md §3's Provider configuration "sync_interval" field),
// expressed to robfig/cron as an "@every" schedule since the interval is a
// plain duration rather than a calendar expression. That schedule has
// one-second granularity: an interval under a second runs once a second,
// and any sub-second remainder of a longer interval is dropped.
func NewProviderService(name string, interval time.Duration, run RunSync) *ProviderService {
	return &ProviderService{
		name:     name,
		schedule: fmt.Sprintf("@every %s", interval.String()),
		run:      run,
		timeout:  interval,
	}
}

// Serve implements suture.Service. A panic or error from one run is caught
// by the cron job wrapper and logged; it does not stop the scheduler, so a
// single bad tick never takes the provider off its schedule permanently --
// only a failure of the scheduler itself propagates to suture for a
// service-level restart.
func (s *ProviderService) Serve(ctx context.Context) error {
	lg := logging.Logger()
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(&lg))))
	s.cron = c

	_, err := c.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.run(runCtx); err != nil {
			logging.Error().Err(err).Str("provider", s.name).Msg("scheduled sync run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("provider %s: schedule sync: %w", s.name, err)
	}

	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()

	return ctx.Err()
}

// String implements fmt.Stringer; suture uses it to identify the service
// in log messages.
func (s *ProviderService) String() string {
	return s.name
}
