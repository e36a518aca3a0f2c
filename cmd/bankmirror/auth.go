package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cstorey/bankmirror/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Run the client-credentials grant (no browser step) and cache the provider's token",
	RunE:  runAuth,
}

func init() {
	authCmd.Flags().String("provider", "", "Provider name (required if more than one is configured)")
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	providerName, _ := cmd.Flags().GetString("provider")
	p, err := findProvider(cfg, providerName)
	if err != nil {
		return err
	}
	if p.Grant != config.GrantClientCredential {
		return fmt.Errorf("provider %q uses the %q grant, which only authenticates via the consent subcommand", p.Name, p.Grant)
	}

	_, authr, err := newAuthenticatedClient(*p)
	if err != nil {
		return err
	}
	if err := authr.Authenticate(context.Background(), nil); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	fmt.Printf("provider %q authenticated, token cached at %s\n", p.Name, p.TokenPath)
	return nil
}
