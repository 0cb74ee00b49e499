package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

// ExchangeCredentials is the API key set stored per exchange account
type ExchangeCredentials struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
}

// Client reads and writes exchange credentials in Vault's KV v2 engine.
// When disabled it serves only the local cache, which lets the rest of
// the app treat env-sourced credentials uniformly.
type Client struct {
	client  *api.Client
	mount   string
	enabled bool
	logger  zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*ExchangeCredentials
}

// Config holds Vault connection settings
type Config struct {
	Enabled bool
	Address string
	Token   string
	Mount   string
}

// NewClient creates a Vault client. A disabled config returns a
// cache-only client and no error.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		mount:   cfg.Mount,
		enabled: cfg.Enabled,
		logger:  logger.With().Str("component", "vault").Logger(),
		cache:   make(map[string]*ExchangeCredentials),
	}
	if c.mount == "" {
		c.mount = "secret"
	}

	if !cfg.Enabled {
		c.logger.Info().Msg("vault disabled, using local credential cache")
		return c, nil
	}

	apiConfig := api.DefaultConfig()
	if cfg.Address != "" {
		apiConfig.Address = cfg.Address
	}

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	c.client = client
	return c, nil
}

func (c *Client) secretPath(account string) string {
	return fmt.Sprintf("%s/data/trading-bot/exchange/%s", c.mount, account)
}

// StoreCredentials writes credentials for an account and caches them
func (c *Client) StoreCredentials(ctx context.Context, account string, creds *ExchangeCredentials) error {
	c.mu.Lock()
	c.cache[account] = creds
	c.mu.Unlock()

	if !c.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"passphrase": creds.Passphrase,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(account), payload); err != nil {
		return fmt.Errorf("writing credentials for %s: %w", account, err)
	}

	c.logger.Info().Str("account", account).Msg("credentials stored in vault")
	return nil
}

// GetCredentials reads credentials for an account, serving the cache
// when possible.
func (c *Client) GetCredentials(ctx context.Context, account string) (*ExchangeCredentials, error) {
	c.mu.RLock()
	if creds, ok := c.cache[account]; ok {
		c.mu.RUnlock()
		return creds, nil
	}
	c.mu.RUnlock()

	if !c.enabled {
		return nil, fmt.Errorf("no credentials cached for account %s", account)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(account))
	if err != nil {
		return nil, fmt.Errorf("reading credentials for %s: %w", account, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credentials stored for account %s", account)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format for account %s", account)
	}

	creds := &ExchangeCredentials{
		APIKey:     asString(data["api_key"]),
		SecretKey:  asString(data["secret_key"]),
		Passphrase: asString(data["passphrase"]),
	}

	c.mu.Lock()
	c.cache[account] = creds
	c.mu.Unlock()

	return creds, nil
}

// SeedFromEnv primes the cache with env-sourced credentials. Used when
// Vault is disabled or as a bootstrap before first storage.
func (c *Client) SeedFromEnv(account, apiKey, secretKey, passphrase string) {
	if apiKey == "" && secretKey == "" {
		return
	}

	c.mu.Lock()
	c.cache[account] = &ExchangeCredentials{
		APIKey:     apiKey,
		SecretKey:  secretKey,
		Passphrase: passphrase,
	}
	c.mu.Unlock()
}

// Health reports whether Vault is reachable. A disabled client is
// always healthy.
func (c *Client) Health(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check: %w", err)
	}
	if !health.Initialized || health.Sealed {
		return fmt.Errorf("vault not ready (initialized=%v sealed=%v)", health.Initialized, health.Sealed)
	}

	return nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
