package consent

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/cstorey/bankmirror/internal/httpenv"
)

// requisitionRequest/requisitionResponse mirror provider A's
// /api/v2/requisitions/ POST body and response, grounded on
// original_source/gocardless/src/connect.rs's RequisitionReq/RequisitionResp.
type requisitionRequest struct {
	InstitutionID string `json:"institution_id"`
	Redirect      string `json:"redirect"`
}

type requisitionResponse struct {
	ID   uuid.UUID `json:"id"`
	Link string    `json:"link"`
}

// CreateRequisition starts provider A's consent flow: it registers a new
// requisition against the given institution with redirectURI as the
// callback, and returns the requisition id (the value the caller must
// later persist to the provider state file) together with the link the
// end user must open in a browser.
func CreateRequisition(ctx context.Context, client *httpenv.Client, institutionID, redirectURI string) (uuid.UUID, string, error) {
	resp, err := httpenv.Post[requisitionResponse](ctx, client, "/api/v2/requisitions/", requisitionRequest{
		InstitutionID: institutionID,
		Redirect:      redirectURI,
	})
	if err != nil {
		return uuid.UUID{}, "", fmt.Errorf("consent: create requisition: %w", err)
	}
	return resp.ID, resp.Link, nil
}

// AuthorizeURL builds provider B's authorization-code grant URL, grounded
// on original_source/src/auth/start.rs's handle_index: a static scope
// covering every data surface this system ever fetches, the given
// redirectURI as the callback the bank sends the user's browser back to,
// and clientID/authHost pulled from provider configuration (authHost is
// "auth.truelayer-sandbox.com" vs "auth.truelayer.com" in the original;
// here it is just another per-provider config value since sandbox/live
// selection already lives in httpenv.Environment). state is the nonce the
// caller minted before building this URL; it comes back unchanged on the
// callback and is what the consent Listener compares against (Config.
// CompareParam "state"), since an authorization code itself can't be
// known in advance.
func AuthorizeURL(authHost, clientID, redirectURI, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("scope", "info accounts balance cards transactions direct_debits standing_orders offline_access")

	u := url.URL{Scheme: "https", Host: authHost, Path: "/", RawQuery: q.Encode()}
	return u.String()
}
