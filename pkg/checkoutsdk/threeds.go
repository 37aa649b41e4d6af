package checkoutsdk

import (
	"context"
	"net/http"
)

// Start3DS registers the card token for 3DS and returns the issuer's method
// URL and data, if any.
func (c *Client) Start3DS(ctx context.Context, cardTokenID, sessionID string) (*Start3DSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/3ds", Start3DSRequest{
		CardTokenID: cardTokenID,
		SessionID:   sessionID,
	})
	if err != nil {
		return nil, err
	}

	var out Start3DSResponse
	if err := decodeJSON(resp, &out, "3DS start"); err != nil {
		return nil, err
	}

	c.logger().Debug("3DS started",
		"session_id", sessionID,
		"scheme", out.ThreeDSRequest.Scheme,
		"has_method", out.ThreeDSRequest.MethodURL != "",
	)
	return &out, nil
}

// Authenticate submits the authentication request. A populated ErrorMessage
// in the response is returned as-is; callers decide whether it is fatal.
func (c *Client) Authenticate(ctx context.Context, req AuthenticationRequest) (*AuthenticationResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/3ds/authenticate", req)
	if err != nil {
		return nil, err
	}

	var out AuthenticationResponse
	if err := decodeJSON(resp, &out, "3DS authenticate"); err != nil {
		return nil, err
	}

	c.logger().Debug("3DS authenticate answered",
		"session_id", req.SessionID,
		"result", out.Result,
		"challenge", out.Challenge != nil && out.Challenge.ACSURL != "",
	)
	return &out, nil
}
