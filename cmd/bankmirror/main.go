// Command bankmirror mirrors a user's banking data from one of two
// consent-protected aggregator APIs into a local directory tree of
// newline-delimited JSON files.
//
// Grounded on the cuemby-warren cobra CLI layout (cmd/warren/main.go): a
// persistent root command carrying global flags, one file per subcommand,
// each wiring config/logging before doing its own work.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cstorey/bankmirror/internal/config"
	"github.com/cstorey/bankmirror/internal/logging"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "bankmirror",
	Short:   "Mirror banking data from a consent-protected aggregator API to local JSONL files",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("bankmirror version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("config", "", "Path to bankmirror config file (overrides "+config.ConfigPathEnvVar+")")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(consentCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads config honoring the --config flag, then initializes the
// global zerolog logger from its logging block, per spec.md's config ->
// logging startup ordering.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		os.Setenv(config.ConfigPathEnvVar, path)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

// findProvider locates the named provider's config entry, or every
// provider if name is empty and there is exactly one configured.
func findProvider(cfg *config.Config, name string) (*config.ProviderConfig, error) {
	if name == "" {
		if len(cfg.Providers) == 1 {
			return &cfg.Providers[0], nil
		}
		return nil, fmt.Errorf("multiple providers configured, pass --provider")
	}
	for i := range cfg.Providers {
		if cfg.Providers[i].Name == name {
			return &cfg.Providers[i], nil
		}
	}
	return nil, fmt.Errorf("no provider named %q in config", name)
}
