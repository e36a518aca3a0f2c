package auth

import (
	"context"
	"time"

	"github.com/cstorey/bankmirror/internal/httpenv"
	"github.com/cstorey/bankmirror/internal/tokenstore"
)

// ClientCredentialsBackend implements provider A's token/new + token/refresh
// pair, grounded on original_source/gocardless/src/auth.rs's Token,
// TokenPair and TokenRefreshResp. Unlike AuthCodeBackend, this provider
// states both expiries explicitly (in seconds, relative to the request),
// and refresh never rotates the refresh token itself -- mirroring the
// original's Token::refreshed, which keeps self.refresh unchanged.
type ClientCredentialsBackend struct {
	Client   *httpenv.Client
	SecretID string
	SecretKey string
}

type tokenPairResponse struct {
	Access         string `json:"access"`
	AccessExpires  int64  `json:"access_expires"`
	Refresh        string `json:"refresh"`
	RefreshExpires int64  `json:"refresh_expires"`
}

type tokenRefreshResponse struct {
	Access        string `json:"access"`
	AccessExpires int64  `json:"access_expires"`
}

type newTokenRequest struct {
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
}

type tokenRefreshRequest struct {
	Refresh string `json:"refresh"`
}

func (b *ClientCredentialsBackend) Authenticate(ctx context.Context, now time.Time, _ map[string]string) (*tokenstore.Token, error) {
	resp, err := httpenv.Post[tokenPairResponse](ctx, b.Client, "/api/v2/token/new/", newTokenRequest{
		SecretID:  b.SecretID,
		SecretKey: b.SecretKey,
	})
	if err != nil {
		return nil, err
	}
	authedAt := now
	return &tokenstore.Token{
		AccessToken:      resp.Access,
		AccessExpiresAt:  now.Add(time.Duration(resp.AccessExpires) * time.Second),
		RefreshToken:     resp.Refresh,
		RefreshExpiresAt: now.Add(time.Duration(resp.RefreshExpires) * time.Second),
		AuthedAt:         &authedAt,
	}, nil
}

func (b *ClientCredentialsBackend) Refresh(ctx context.Context, now time.Time, current *tokenstore.Token) (*tokenstore.Token, error) {
	resp, err := httpenv.Post[tokenRefreshResponse](ctx, b.Client, "/api/v2/token/refresh/", tokenRefreshRequest{
		Refresh: current.RefreshToken,
	})
	if err != nil {
		return nil, err
	}
	return &tokenstore.Token{
		AccessToken:      resp.Access,
		AccessExpiresAt:  now.Add(time.Duration(resp.AccessExpires) * time.Second),
		RefreshToken:     current.RefreshToken,
		RefreshExpiresAt: current.RefreshExpiresAt,
		AuthedAt:         current.AuthedAt,
	}, nil
}
