// Package vault reads journal login credentials from a HashiCorp Vault KV v2
// mount, so the daemon and CLI can sign in without a password on the
// command line.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"trade-journal/config"

	"github.com/hashicorp/vault/api"
)

var ErrNoCredentials = errors.New("vault: no login credentials stored")

// Credentials is the login pair stored in Vault
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Client wraps the HashiCorp Vault client. When Vault is disabled it keeps
// credentials in memory only.
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *Credentials
}

func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// Credentials returns the stored login pair
func (c *Client) Credentials(ctx context.Context) (*Credentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		creds := *c.cached
		c.mu.RUnlock()
		return &creds, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, ErrNoCredentials
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.dataPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrNoCredentials
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &Credentials{
		Email:    getString(data, "email"),
		Password: getString(data, "password"),
	}
	if creds.Email == "" || creds.Password == "" {
		return nil, ErrNoCredentials
	}

	c.mu.Lock()
	cp := *creds
	c.cached = &cp
	c.mu.Unlock()

	return creds, nil
}

// StoreCredentials writes the login pair
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if c.config.Enabled {
		payload := map[string]interface{}{
			"data": map[string]interface{}{
				"email":    creds.Email,
				"password": creds.Password,
			},
		}
		if _, err := c.client.Logical().WriteWithContext(ctx, c.dataPath(), payload); err != nil {
			return fmt.Errorf("failed to store credentials in vault: %w", err)
		}
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}

// ClearCache drops the in-memory copy
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) dataPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
