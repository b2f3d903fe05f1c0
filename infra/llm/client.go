package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/peakguard/auth"
	"github.com/kilianp07/peakguard/core/allocation"
	"github.com/kilianp07/peakguard/core/logger"
	"github.com/kilianp07/peakguard/core/model"
	infralogger "github.com/kilianp07/peakguard/infra/logger"
)

// Config describes the remote allocator endpoint.
type Config struct {
	Enabled   bool   `json:"enabled"`
	URL       string `json:"url"`
	APIKey    string `json:"api_key"`
	TimeoutMS int    `json:"timeout_ms"`
	// OAuth replaces APIKey with client credentials tokens when set.
	OAuth auth.Conf `json:"oauth"`
}

// SetDefaults applies the default call budget.
func (c *Config) SetDefaults() {
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 4000
	}
}

// Validate checks mandatory fields when the allocator is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("external: url is required when enabled")
	}
	if c.OAuth.Enabled() && c.OAuth.ClientID == "" {
		return fmt.Errorf("external: oauth.client_id is required with oauth.token_url")
	}
	if c.TimeoutMS < 0 {
		return fmt.Errorf("external: timeout_ms must be non-negative")
	}
	return nil
}

// Timeout returns the configured call budget.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// maxBody bounds how much of a reply is read.
const maxBody = 1 << 20

// Client posts allocation requests to a remote allocator and decodes its
// proposal. It implements allocation.ExternalAllocator.
type Client struct {
	url    string
	apiKey string
	creds  *auth.ClientCred
	http   *http.Client
	log    logger.Logger
}

var _ allocation.ExternalAllocator = (*Client)(nil)

// NewClient creates a client for cfg. The deadline comes from the caller's
// context, so the underlying http.Client carries no timeout of its own.
func NewClient(cfg Config) *Client {
	c := &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   &http.Client{},
		log:    infralogger.New("llm-client"),
	}
	if cfg.OAuth.Enabled() {
		c.creds = auth.NewClientCred(cfg.OAuth)
	}
	return c
}

// Allocate sends req and returns the decoded proposal. Any transport
// failure, non 2xx status or malformed body is an error.
func (c *Client) Allocate(ctx context.Context, req model.AllocationRequest) (model.AllocationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.AllocationResponse{}, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return model.AllocationResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	switch {
	case c.creds != nil:
		if err := c.creds.SetAuthHeader(httpReq); err != nil {
			return model.AllocationResponse{}, err
		}
	case c.apiKey != "":
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.AllocationResponse{}, fmt.Errorf("call allocator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return model.AllocationResponse{}, fmt.Errorf("allocator returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	var out model.AllocationResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return model.AllocationResponse{}, fmt.Errorf("decode proposal: %w", err)
	}
	c.log.Debugf("proposal received for %d chargers", len(out.Allocations))
	return out, nil
}
