package checkoutsdk

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/slogx"
)

// Client is a client for the embedded checkout gateway. Every call is
// authenticated with the merchant public key sent as x-api-key.
type Client struct {
	BaseURL    string
	PublicKey  string
	HTTPClient *http.Client

	// Logger receives debug diagnostics. Request bodies are never logged
	// verbatim since they carry card token identifiers.
	Logger *slog.Logger
}

// NewClient creates a gateway client for the given API base URL.
func NewClient(baseURL, publicKey string) *Client {
	return &Client{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		PublicKey: publicKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Logger: slogx.Discard(),
	}
}

// NewClientForEnvironment creates a client pointed at env's API base.
func NewClientForEnvironment(env Environment, publicKey string) *Client {
	return NewClient(env.APIBase, publicKey)
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slogx.Discard()
	}
	return c.Logger
}

// Ping checks the gateway is reachable via its liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/livez", nil)
	if err != nil {
		return err
	}

	var health HealthResponse
	return decodeJSON(resp, &health, "liveness check")
}
