package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate runs struct-tag validation over every provider and the logging
// block, then checks the cross-field invariant spec.md §3 states in prose
// ("output and state paths are distinct") which a `validate` struct tag
// can't express on its own, plus the grant-specific credential
// requirements (authcode needs client_id/client_secret; client_credentials
// needs secret_id/secret_key).
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	seen := map[string]bool{}
	for _, p := range c.Providers {
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true

		if err := p.validatePaths(); err != nil {
			return err
		}
		if err := p.validateCredentials(); err != nil {
			return err
		}
	}
	return nil
}

// validatePaths enforces that OutputDir, TokenPath and StatePath are
// pairwise distinct (spec.md §3's Provider configuration invariant).
func (p *ProviderConfig) validatePaths() error {
	if p.OutputDir == p.StatePath {
		return fmt.Errorf("config: provider %q: output_dir and state_path must be distinct", p.Name)
	}
	if p.OutputDir == p.TokenPath {
		return fmt.Errorf("config: provider %q: output_dir and token_path must be distinct", p.Name)
	}
	if p.TokenPath == p.StatePath {
		return fmt.Errorf("config: provider %q: token_path and state_path must be distinct", p.Name)
	}
	return nil
}

func (p *ProviderConfig) validateCredentials() error {
	switch p.Grant {
	case GrantAuthCode:
		if p.ClientID == "" || p.ClientSecret == "" {
			return fmt.Errorf("config: provider %q: client_id and client_secret are required for grant %q", p.Name, p.Grant)
		}
		if p.AuthHost == "" {
			return fmt.Errorf("config: provider %q: auth_host is required for grant %q", p.Name, p.Grant)
		}
	case GrantClientCredential:
		if p.SecretID == "" || p.SecretKey == "" {
			return fmt.Errorf("config: provider %q: secret_id and secret_key are required for grant %q", p.Name, p.Grant)
		}
		if p.InstitutionID == "" {
			return fmt.Errorf("config: provider %q: institution_id is required for grant %q", p.Name, p.Grant)
		}
	}
	return nil
}
