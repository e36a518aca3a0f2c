package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cstorey/bankmirror/internal/config"
	"github.com/cstorey/bankmirror/internal/consent"
	"github.com/cstorey/bankmirror/internal/providerstate"
	"github.com/cstorey/bankmirror/internal/store"
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Run the browser-mediated consent flow for a provider and persist its consent artifact",
	RunE:  runConsent,
}

func init() {
	consentCmd.Flags().String("provider", "", "Provider name (required if more than one is configured)")
}

func runConsent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	providerName, _ := cmd.Flags().GetString("provider")
	p, err := findProvider(cfg, providerName)
	if err != nil {
		return err
	}

	listenAddr := p.ConsentListenAddr
	if listenAddr == "" {
		listenAddr = "127.0.0.1:0"
	}

	ctx := context.Background()
	states := providerstate.New(store.OS{}, p.StatePath)

	switch p.Grant {
	case config.GrantClientCredential:
		return runProviderAConsent(ctx, *p, listenAddr, states)
	case config.GrantAuthCode:
		return runProviderBConsent(ctx, *p, listenAddr)
	default:
		return fmt.Errorf("unknown grant %q", p.Grant)
	}
}

// runProviderAConsent mints a requisition, prints its link for the user to
// open, waits for the bank's redirect carrying the same requisition id
// back (CompareParam == CaptureParam == "ref"), and persists it.
func runProviderAConsent(ctx context.Context, p config.ProviderConfig, listenAddr string, states *providerstate.Store) error {
	client, authr, err := newAuthenticatedClient(p)
	if err != nil {
		return err
	}
	// Provider A's requisition-creation call itself requires a bearer
	// token, so make sure one is cached before minting the requisition.
	if _, err := authr.AccessToken(ctx); err != nil {
		return fmt.Errorf("provider %q has no cached token; run the auth subcommand first: %w", p.Name, err)
	}

	listener, err := consent.Listen(listenAddr)
	if err != nil {
		return fmt.Errorf("bind consent listener: %w", err)
	}
	redirectURI := "http://" + listener.Addr() + "/callback"

	requisitionID, link, err := consent.CreateRequisition(ctx, client, p.InstitutionID, redirectURI)
	if err != nil {
		return err
	}

	compareParam := p.ConsentCompareParam
	if compareParam == "" {
		compareParam = "ref"
	}
	captureParam := p.ConsentCaptureParam
	if captureParam == "" {
		captureParam = "ref"
	}

	fmt.Printf("Open this link to link %q: %s\n", p.Name, link)
	fmt.Println("Waiting for the bank to redirect back...")

	if _, err := listener.Await(ctx, consent.Config{
		CompareParam: compareParam,
		Expected:     requisitionID.String(),
		CaptureParam: captureParam,
	}); err != nil {
		return fmt.Errorf("await consent callback: %w", err)
	}

	if err := states.Save(&providerstate.State{RequisitionID: requisitionID}); err != nil {
		return fmt.Errorf("persist provider state: %w", err)
	}
	fmt.Printf("provider %q linked, requisition %s persisted to %s\n", p.Name, requisitionID, p.StatePath)
	return nil
}

// runProviderBConsent builds the authorize URL with a freshly minted state
// nonce, waits for the authorization code on the matching callback, and
// exchanges it for a token via the Authenticator (which persists it).
func runProviderBConsent(ctx context.Context, p config.ProviderConfig, listenAddr string) error {
	listener, err := consent.Listen(listenAddr)
	if err != nil {
		return fmt.Errorf("bind consent listener: %w", err)
	}

	state := uuid.New().String()
	redirectURI := "http://" + listener.Addr() + "/callback"
	authorizeURL := consent.AuthorizeURL(p.AuthHost, p.ClientID, redirectURI, state)

	fmt.Printf("Open this link to link %q: %s\n", p.Name, authorizeURL)
	fmt.Println("Waiting for the bank to redirect back...")

	code, err := listener.Await(ctx, consent.Config{
		CompareParam: "state",
		Expected:     state,
		CaptureParam: "code",
	})
	if err != nil {
		return fmt.Errorf("await consent callback: %w", err)
	}

	_, authr, err := newAuthenticatedClient(p)
	if err != nil {
		return err
	}
	if err := authr.Authenticate(ctx, map[string]string{"code": code, "redirect_uri": redirectURI}); err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	fmt.Printf("provider %q authenticated, token cached at %s\n", p.Name, p.TokenPath)
	return nil
}
