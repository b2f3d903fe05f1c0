package config

import "fmt"

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token protects the event query endpoint when set.
	Token string `json:"token"`
}

// SetDefaults applies the default listen address.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Validate checks the listen address.
func (c HTTPConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("http: addr is required")
	}
	return nil
}
