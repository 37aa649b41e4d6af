package checkoutsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// CreateSession asks the gateway for a new checkout session. The session id
// correlates every later call and the duplex notification channel.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/session", nil)
	if err != nil {
		return "", err
	}

	var out createSessionResponse
	if err := decodeJSON(resp, &out, "create session"); err != nil {
		return "", err
	}

	sessionID := strings.TrimSpace(out.SessionID)
	if sessionID == "" {
		return "", ErrEmptySession
	}

	c.logger().Debug("session created", "session_id", sessionID)
	return sessionID, nil
}

// GetAccessKey resolves the merchant details behind the client's public key.
func (c *Client) GetAccessKey(ctx context.Context) (*AccessKeyDetails, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/key/"+url.PathEscape(c.PublicKey), nil)
	if err != nil {
		return nil, err
	}

	var out AccessKeyDetails
	if err := decodeJSON(resp, &out, "access key lookup"); err != nil {
		return nil, err
	}

	return &out, nil
}
