package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cstorey/bankmirror/internal/config"
	"github.com/cstorey/bankmirror/internal/providerstate"
	"github.com/cstorey/bankmirror/internal/store"
	"github.com/cstorey/bankmirror/internal/supervisor"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync pass for one provider (or every configured provider)",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().String("provider", "", "Provider name (default: every configured provider)")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	providerName, _ := cmd.Flags().GetString("provider")

	var targets []config.ProviderConfig
	if providerName == "" {
		targets = cfg.Providers
	} else {
		p, err := findProvider(cfg, providerName)
		if err != nil {
			return err
		}
		targets = []config.ProviderConfig{*p}
	}
	if len(targets) == 0 {
		return fmt.Errorf("no providers configured")
	}

	ctx := context.Background()
	var failed []string
	for _, p := range targets {
		if err := runOneSync(ctx, p); err != nil {
			fmt.Printf("provider %q: sync failed: %v\n", p.Name, err)
			failed = append(failed, p.Name)
			continue
		}
		fmt.Printf("provider %q: sync complete\n", p.Name)
	}
	if len(failed) > 0 {
		return fmt.Errorf("sync failed for: %v", failed)
	}
	return nil
}

func runOneSync(ctx context.Context, p config.ProviderConfig) error {
	client, _, err := newAuthenticatedClient(p)
	if err != nil {
		return err
	}
	endpoints, err := endpointsFor(p)
	if err != nil {
		return err
	}
	states := providerstate.New(store.OS{}, p.StatePath)
	run := supervisor.NewOrchestratorRunner(p, client, endpoints, states)
	return run(ctx)
}
