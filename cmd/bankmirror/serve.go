package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cstorey/bankmirror/internal/providerstate"
	"github.com/cstorey/bankmirror/internal/store"
	"github.com/cstorey/bankmirror/internal/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run every configured provider's sync on its own schedule until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("no providers configured")
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())

	for _, p := range cfg.Providers {
		client, _, err := newAuthenticatedClient(p)
		if err != nil {
			return fmt.Errorf("provider %q: %w", p.Name, err)
		}
		endpoints, err := endpointsFor(p)
		if err != nil {
			return fmt.Errorf("provider %q: %w", p.Name, err)
		}
		states := providerstate.New(store.OS{}, p.StatePath)
		run := supervisor.NewOrchestratorRunner(p, client, endpoints, states)
		tree.Add(supervisor.NewProviderService(p.Name, p.SyncInterval, run))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- tree.Serve(ctx) }()

	select {
	case <-sigCh:
		fmt.Println("shutting down...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("supervisor tree stopped: %w", err)
		}
	}
	return nil
}
