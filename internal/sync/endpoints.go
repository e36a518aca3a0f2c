package sync

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cstorey/bankmirror/internal/httpenv"
)

// Endpoints hides the two upstreams' differing path shapes behind one
// surface the Orchestrator drives uniformly. Every method's Record return
// is the opaque JSON body, passed straight to the Atomic Store.
type Endpoints interface {
	// ConsentStatus fetches the consent artifact and reports whether it is
	// linked, together with the account ids it grants access to (for
	// providers, like A, where the consent payload already enumerates
	// them).
	ConsentStatus(ctx context.Context, client *httpenv.Client, consentID string) (linked bool, accountIDs []string, err error)
	// Accounts lists account ids when the provider exposes them through a
	// separate endpoint rather than the consent payload (provider B).
	Accounts(ctx context.Context, client *httpenv.Client) ([]string, error)
	UserInfo(ctx context.Context, client *httpenv.Client) (Record, error)
	AccountDetails(ctx context.Context, client *httpenv.Client, accountID string) (Record, error)
	AccountBalance(ctx context.Context, client *httpenv.Client, accountID string) (Record, error)
	AccountPending(ctx context.Context, client *httpenv.Client, accountID string) (Record, error)
	// AccountStandingOrders/AccountDirectDebits: ok is false when the
	// provider has no such endpoint at all (not merely an empty result).
	AccountStandingOrders(ctx context.Context, client *httpenv.Client, accountID string) (rec Record, ok bool, err error)
	AccountDirectDebits(ctx context.Context, client *httpenv.Client, accountID string) (rec Record, ok bool, err error)
	AccountTransactions(ctx context.Context, client *httpenv.Client, accountID string, from, to time.Time) (booked, pending []Record, err error)
	Cards(ctx context.Context, client *httpenv.Client) ([]string, error)
	CardBalance(ctx context.Context, client *httpenv.Client, cardID string) (Record, error)
	CardPending(ctx context.Context, client *httpenv.Client, cardID string) (Record, error)
	CardTransactions(ctx context.Context, client *httpenv.Client, cardID string, from, to time.Time) (booked, pending []Record, err error)
}

func encodePathSegment(s string) string { return url.PathEscape(s) }

func dateQuery(from, to time.Time, fromKey, toKey string) string {
	v := url.Values{}
	v.Set(fromKey, from.Format("2006-01-02"))
	v.Set(toKey, to.Format("2006-01-02"))
	return v.Encode()
}

// --- Provider A: GoCardless-style requisition/account-data aggregator ----
//
// Grounded on original_source/gocardless/src/{connect,accounts,transactions}.rs.

type requisitionStatus struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Accounts []string `json:"accounts"`
}

type transactionsEnvelope struct {
	Transactions struct {
		Booked  []Record `json:"booked"`
		Pending []Record `json:"pending"`
	} `json:"transactions"`
}

// ProviderAEndpoints implements Endpoints for the consent/requisition-based
// aggregator. It has no cards surface and no standing-orders/direct-debits
// endpoints in the original (original_source/gocardless has no
// cards.rs/standing_orders equivalent).
type ProviderAEndpoints struct{}

func (ProviderAEndpoints) ConsentStatus(ctx context.Context, client *httpenv.Client, consentID string) (bool, []string, error) {
	req, err := httpenv.Get[requisitionStatus](ctx, client, fmt.Sprintf("/api/v2/requisitions/%s/", encodePathSegment(consentID)))
	if err != nil {
		return false, nil, err
	}
	return req.Status == "LN", req.Accounts, nil
}

func (ProviderAEndpoints) Accounts(ctx context.Context, client *httpenv.Client) ([]string, error) {
	return nil, fmt.Errorf("sync: provider A lists accounts via the requisition payload, not a separate endpoint")
}

func (ProviderAEndpoints) UserInfo(ctx context.Context, client *httpenv.Client) (Record, error) {
	return nil, fmt.Errorf("sync: provider A has no user-info endpoint")
}

func (ProviderAEndpoints) AccountDetails(ctx context.Context, client *httpenv.Client, accountID string) (Record, error) {
	return httpenv.Get[Record](ctx, client, fmt.Sprintf("/api/v2/accounts/%s/", encodePathSegment(accountID)))
}

func (ProviderAEndpoints) AccountBalance(ctx context.Context, client *httpenv.Client, accountID string) (Record, error) {
	return httpenv.Get[Record](ctx, client, fmt.Sprintf("/api/v2/accounts/%s/balances/", encodePathSegment(accountID)))
}

func (ProviderAEndpoints) AccountPending(ctx context.Context, client *httpenv.Client, accountID string) (Record, error) {
	return httpenv.Get[Record](ctx, client, fmt.Sprintf("/api/v2/accounts/%s/transactions/?status=pending", encodePathSegment(accountID)))
}

func (ProviderAEndpoints) AccountStandingOrders(ctx context.Context, client *httpenv.Client, accountID string) (Record, bool, error) {
	return nil, false, nil
}

func (ProviderAEndpoints) AccountDirectDebits(ctx context.Context, client *httpenv.Client, accountID string) (Record, bool, error) {
	return nil, false, nil
}

func (ProviderAEndpoints) AccountTransactions(ctx context.Context, client *httpenv.Client, accountID string, from, to time.Time) ([]Record, []Record, error) {
	path := fmt.Sprintf("/api/v2/accounts/%s/transactions/?%s", encodePathSegment(accountID), dateQuery(from, to, "date_from", "date_to"))
	env, err := httpenv.Get[transactionsEnvelope](ctx, client, path)
	if err != nil {
		return nil, nil, err
	}
	return env.Transactions.Booked, env.Transactions.Pending, nil
}

func (ProviderAEndpoints) Cards(ctx context.Context, client *httpenv.Client) ([]string, error) {
	return nil, nil
}

func (ProviderAEndpoints) CardBalance(ctx context.Context, client *httpenv.Client, cardID string) (Record, error) {
	return nil, fmt.Errorf("sync: provider A has no cards surface")
}

func (ProviderAEndpoints) CardPending(ctx context.Context, client *httpenv.Client, cardID string) (Record, error) {
	return nil, fmt.Errorf("sync: provider A has no cards surface")
}

func (ProviderAEndpoints) CardTransactions(ctx context.Context, client *httpenv.Client, cardID string, from, to time.Time) ([]Record, []Record, error) {
	return nil, nil, fmt.Errorf("sync: provider A has no cards surface")
}

// --- Provider B: TrueLayer-style partner-credential aggregator ----------
//
// Grounded on original_source/src/client.rs's fetch_info/fetch_accounts/
// account_balance/account_transactions/cards family (/data/v1/... paths).

type accountsEnvelope struct {
	Results []struct {
		AccountID string `json:"account_id"`
	} `json:"results"`
}

type cardsEnvelope struct {
	Results []struct {
		AccountID string `json:"account_id"`
	} `json:"results"`
}

type providerBTransactionsEnvelope struct {
	Results []Record `json:"results"`
}

type ProviderBEndpoints struct{}

func (ProviderBEndpoints) ConsentStatus(ctx context.Context, client *httpenv.Client, consentID string) (bool, []string, error) {
	// Provider B's authorization-code grant itself IS the consent; a
	// successful access_token() is the only "linked" signal, so this is a
	// pure liveness probe against the accounts list.
	ids, err := ProviderBEndpoints{}.Accounts(ctx, client)
	if err != nil {
		return false, nil, err
	}
	return true, ids, nil
}

func (ProviderBEndpoints) Accounts(ctx context.Context, client *httpenv.Client) ([]string, error) {
	env, err := httpenv.Get[accountsEnvelope](ctx, client, "/data/v1/accounts")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(env.Results))
	for _, r := range env.Results {
		ids = append(ids, r.AccountID)
	}
	return ids, nil
}

func (ProviderBEndpoints) UserInfo(ctx context.Context, client *httpenv.Client) (Record, error) {
	return httpenv.Get[Record](ctx, client, "/data/v1/info")
}

func (ProviderBEndpoints) AccountDetails(ctx context.Context, client *httpenv.Client, accountID string) (Record, error) {
	return httpenv.Get[Record](ctx, client, fmt.Sprintf("/data/v1/accounts/%s", encodePathSegment(accountID)))
}

func (ProviderBEndpoints) AccountBalance(ctx context.Context, client *httpenv.Client, accountID string) (Record, error) {
	return httpenv.Get[Record](ctx, client, fmt.Sprintf("/data/v1/accounts/%s/balance", encodePathSegment(accountID)))
}

func (ProviderBEndpoints) AccountPending(ctx context.Context, client *httpenv.Client, accountID string) (Record, error) {
	return httpenv.Get[Record](ctx, client, fmt.Sprintf("/data/v1/accounts/%s/transactions/pending", encodePathSegment(accountID)))
}

func (ProviderBEndpoints) AccountStandingOrders(ctx context.Context, client *httpenv.Client, accountID string) (Record, bool, error) {
	rec, err := httpenv.Get[Record](ctx, client, fmt.Sprintf("/data/v1/accounts/%s/standing_orders", encodePathSegment(accountID)))
	if err != nil {
		return nil, true, err
	}
	return rec, true, nil
}

func (ProviderBEndpoints) AccountDirectDebits(ctx context.Context, client *httpenv.Client, accountID string) (Record, bool, error) {
	rec, err := httpenv.Get[Record](ctx, client, fmt.Sprintf("/data/v1/accounts/%s/direct_debits", encodePathSegment(accountID)))
	if err != nil {
		return nil, true, err
	}
	return rec, true, nil
}

func (ProviderBEndpoints) AccountTransactions(ctx context.Context, client *httpenv.Client, accountID string, from, to time.Time) ([]Record, []Record, error) {
	path := fmt.Sprintf("/data/v1/accounts/%s/transactions?%s", encodePathSegment(accountID), dateQuery(from, to, "from", "to"))
	env, err := httpenv.Get[providerBTransactionsEnvelope](ctx, client, path)
	if err != nil {
		return nil, nil, err
	}
	return env.Results, nil, nil
}

func (ProviderBEndpoints) Cards(ctx context.Context, client *httpenv.Client) ([]string, error) {
	env, err := httpenv.Get[cardsEnvelope](ctx, client, "/data/v1/cards")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(env.Results))
	for _, r := range env.Results {
		ids = append(ids, r.AccountID)
	}
	return ids, nil
}

func (ProviderBEndpoints) CardBalance(ctx context.Context, client *httpenv.Client, cardID string) (Record, error) {
	return httpenv.Get[Record](ctx, client, fmt.Sprintf("/data/v1/cards/%s/balance", encodePathSegment(cardID)))
}

func (ProviderBEndpoints) CardPending(ctx context.Context, client *httpenv.Client, cardID string) (Record, error) {
	return httpenv.Get[Record](ctx, client, fmt.Sprintf("/data/v1/cards/%s/transactions/pending", encodePathSegment(cardID)))
}

func (ProviderBEndpoints) CardTransactions(ctx context.Context, client *httpenv.Client, cardID string, from, to time.Time) ([]Record, []Record, error) {
	path := fmt.Sprintf("/data/v1/cards/%s/transactions?%s", encodePathSegment(cardID), dateQuery(from, to, "from", "to"))
	env, err := httpenv.Get[providerBTransactionsEnvelope](ctx, client, path)
	if err != nil {
		return nil, nil, err
	}
	return env.Results, nil, nil
}
