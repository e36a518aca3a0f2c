// Package config loads the bank mirror's Provider configuration set
// (spec.md §3 "Provider configuration") and the ambient logging knobs, the
// way the teacher's internal/config loads its own Config: defaults, then an
// optional YAML file, then environment overrides, reflected into a typed
// struct (internal/config/koanf.go in the teacher).
package config

import "time"

// Config is the top-level decoded configuration: the set of named
// providers to drive plus ambient logging settings. Non-goals (spec.md §1)
// exclude command-line *semantics* from the core, but the core still needs
// somewhere to land the decoded provider list -- that's this struct.
type Config struct {
	Providers []ProviderConfig `koanf:"providers" validate:"dive"`
	Logging   LoggingConfig    `koanf:"logging"`
}

// Grant names the OAuth-like grant strategy a provider authenticates with
// (spec.md §4.4/SPEC_FULL.md §4's two supplemented provider strategies).
type Grant string

const (
	GrantAuthCode         Grant = "authcode"
	GrantClientCredential Grant = "client_credentials"
)

// MonthStrategyName is the config-file spelling of sync.MonthStrategy.
type MonthStrategyName string

const (
	MonthStrategyPerMonth        MonthStrategyName = "per_month"
	MonthStrategyRangeThenBucket MonthStrategyName = "range_then_bucket"
)

// ProviderConfig is one named provider entry (spec.md §3's "Provider
// configuration"): an output directory, a retention window in days, a
// state file path distinct from the output directory, and scrape-class
// toggles, plus the grant credentials and upstream base URL needed to
// drive internal/auth and internal/sync for this provider.
type ProviderConfig struct {
	Name  string `koanf:"name" validate:"required"`
	Grant Grant  `koanf:"grant" validate:"required,oneof=authcode client_credentials"`
	// BaseURL is the upstream API origin, e.g. "https://api.example-bank.com".
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// ClientID/ClientSecret back GrantAuthCode; SecretID/SecretKey back
	// GrantClientCredential. Exactly one pair is populated, depending on
	// Grant, but validation only requires the fields the selected grant
	// actually needs (see Config.Validate).
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	SecretID     string `koanf:"secret_id"`
	SecretKey    string `koanf:"secret_key"`

	// TokenPath is where internal/tokenstore persists this provider's
	// Token. StatePath is where internal/providerstate persists its
	// consent artifact identifier. Invariant (spec.md §3): OutputDir,
	// TokenPath and StatePath are pairwise distinct.
	TokenPath string `koanf:"token_path" validate:"required"`
	StatePath string `koanf:"state_path" validate:"required"`
	OutputDir string `koanf:"output_dir" validate:"required"`

	// ConsentID seeds the initial consent artifact identifier for
	// providers that mint one out of band; providers that only learn it
	// via internal/providerstate after the consent flow leave this empty.
	ConsentID string `koanf:"consent_id"`

	// InstitutionID names the target bank for provider A's requisition
	// creation (spec.md §4.5's consent flow); unused by provider B, whose
	// institution is implied by its client credentials.
	InstitutionID string `koanf:"institution_id"`
	// AuthHost is the host the browser is sent to for provider B's
	// authorization-code grant (distinct from BaseURL's API host, e.g.
	// "auth.example-bank.com" vs "api.example-bank.com"); unused by
	// provider A, whose consent flow stays entirely server-to-server
	// until the user follows the requisition link.
	AuthHost string `koanf:"auth_host"`

	HistoryDays   int  `koanf:"history_days" validate:"min=1,max=3650"`
	FetchInfo     bool `koanf:"fetch_info"`
	FetchAccounts bool `koanf:"fetch_accounts"`
	FetchCards    bool `koanf:"fetch_cards"`
	FreshSession  bool `koanf:"fresh_session"`

	MonthStrategy MonthStrategyName `koanf:"month_strategy" validate:"omitempty,oneof=per_month range_then_bucket"`

	// SyncInterval drives the cron schedule internal/supervisor installs
	// for this provider's periodic sync run.
	SyncInterval time.Duration `koanf:"sync_interval" validate:"min=1m"`

	// ConsentListenAddr/ConsentCompareParam/ConsentCaptureParam
	// parameterize internal/consent.Listener for this provider's callback
	// (spec.md §4.5); provider B compares "state", provider A compares and
	// captures the same "ref" param (SPEC_FULL.md's consent.Config doc
	// comment).
	ConsentListenAddr   string `koanf:"consent_listen_addr"`
	ConsentCompareParam string `koanf:"consent_compare_param"`
	ConsentCaptureParam string `koanf:"consent_capture_param"`
}

// LoggingConfig mirrors the teacher's LoggingConfig (internal/config/config.go).
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}
