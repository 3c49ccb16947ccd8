package tokens

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthSource fetches tokens with the OAuth2 client-credentials grant.
type OAuthSource struct {
	config     clientcredentials.Config
	httpClient *http.Client
}

// NewOAuthSource configures a client-credentials Source against tokenURL.
func NewOAuthSource(tokenURL, clientID, clientSecret string, httpClient *http.Client) *OAuthSource {
	return &OAuthSource{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
	}
}

// Token performs the grant. Tokens without an expiry are treated as already
// expired so they are never cached.
func (s *OAuthSource) Token(ctx context.Context) (string, time.Time, error) {
	if s.config.ClientID == "" {
		return "", time.Time{}, errors.New("tokens: client id not configured")
	}
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	tok, err := s.config.Token(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok.AccessToken, tok.Expiry, nil
}
