/*
Package checkoutsdk provides a client for the embedded checkout gateway.

# Overview

The gateway exposes a small REST surface used while taking a card payment
from a page that embeds the hosted card frame. Every call carries the
merchant public key in the x-api-key header; no other credential is needed
since card data only ever travels as an opaque token.

	client := checkoutsdk.NewClientForEnvironment(checkoutsdk.Prod, publicKey)

	sessionID, err := client.CreateSession(ctx)

	start, err := client.Start3DS(ctx, cardTokenID, sessionID)
	auth, err := client.Authenticate(ctx, checkoutsdk.AuthenticationRequest{...})
	payment, err := client.Pay(ctx, checkoutsdk.PaymentRequest{...})

# Environments

Dev and Prod carry the API, websocket and frame base URLs. DetectEnvironment
picks one from the embedding page URL; ResolveEnvironment picks one by name.

# Errors

Non-2xx answers are returned as *APIError whose message has the form
"<operation> failed (<status>)":

	var apiErr *checkoutsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		// bad public key
	}

Transport failures are wrapped with "failed to send request: %w".

# Payment classification

Classify maps a PaymentResponse onto approved, retryable (the shopper may try
another card) or blocked (do not retry). Unknown result codes are blocked.

# Response casing

Gateway responses are emitted with either PascalCase or camelCase keys.
encoding/json matches keys case-insensitively, so the wire types decode both.
*/
package checkoutsdk
