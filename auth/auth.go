package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCred fetches and caches client credentials tokens.
type ClientCred struct {
	conf clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

func NewClientCred(conf Conf) *ClientCred {
	return &ClientCred{conf: conf.toOauth2Config()}
}

// GetToken returns the cached access token, fetching a new one when it is
// missing or expired.
func (c *ClientCred) GetToken(ctx context.Context) (string, error) {
	tok, err := c.valid(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// ForceRefresh drops the cached token and fetches a new one.
func (c *ClientCred) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
	return c.GetToken(ctx)
}

// SetAuthHeader sets the bearer header on r using the request context.
func (c *ClientCred) SetAuthHeader(r *http.Request) error {
	tok, err := c.valid(r.Context())
	if err != nil {
		return err
	}
	tok.SetAuthHeader(r)
	return nil
}

func (c *ClientCred) valid(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.Valid() {
		return c.token, nil
	}
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	c.token = tok
	return tok, nil
}
