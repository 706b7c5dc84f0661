package client

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"
)

// DefaultScope requests every Business Central API permission granted to
// the app registration.
const DefaultScope = "https://api.businesscentral.dynamics.com/.default"

// tokenURLFormat is the Microsoft identity platform v2 token endpoint.
const tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// Credentials identify an Azure AD app registration using the client
// credentials grant.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// Scopes defaults to DefaultScope
	Scopes []string

	// TokenURL overrides the Microsoft token endpoint (tests)
	TokenURL string
}

// NewOAuth2HTTPClient returns an *http.Client that attaches a bearer token
// to every request and refreshes it when it expires. ctx governs token
// fetches, not individual API requests.
func NewOAuth2HTTPClient(ctx context.Context, creds Credentials) (*http.Client, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("client id and client secret are required")
	}

	tokenURL := creds.TokenURL
	if tokenURL == "" {
		if creds.TenantID == "" {
			return nil, fmt.Errorf("tenant id is required")
		}
		tokenURL = fmt.Sprintf(tokenURLFormat, creds.TenantID)
	}

	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}

	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}

	return cfg.Client(ctx), nil
}
