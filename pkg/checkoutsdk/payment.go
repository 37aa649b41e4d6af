package checkoutsdk

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Pay submits a payment. An empty IdempotencyToken is filled with a random
// UUID so retries of the same request object are deduplicated upstream.
func (c *Client) Pay(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if req.IdempotencyToken == "" {
		req.IdempotencyToken = uuid.NewString()
	}

	log := c.logger().With("session_id", req.SessionID, "idempotency_token", req.IdempotencyToken)
	log.Debug("payment request built", "minor_amount", req.MinorAmount, "currency", req.CurrencyCode)

	resp, err := c.doRequest(ctx, http.MethodPost, "/payment", req)
	if err != nil {
		log.Debug("payment request failed to send", "error", err)
		return nil, err
	}

	var out PaymentResponse
	if err := decodeJSON(resp, &out, "payment"); err != nil {
		return nil, err
	}

	log.Debug("payment answered", "result", out.Result, "error_code", out.ErrorCode)
	return &out, nil
}

// PaymentStatus is the coarse classification of a payment result.
type PaymentStatus string

const (
	PaymentApproved  PaymentStatus = "approved"
	PaymentRetryable PaymentStatus = "retryable"
	PaymentBlocked   PaymentStatus = "blocked"
)

// Gateway result codes.
const (
	ResultSuccess            = "Success"
	ResultReferred           = "Referred"
	ResultUnknownRetailer    = "UnknownRetailer"
	ResultDeclinedKeep       = "DeclinedKeep"
	ResultDeclined           = "Declined"
	ResultInvalidCardDetails = "InvalidCardDetails"
	ResultInvalidRequest     = "InvalidRequest"
	ResultException          = "Exception"
)

// Classification is a PaymentResponse mapped onto what the shopper can do
// next.
type Classification struct {
	Status PaymentStatus

	// Reason is the gateway result the status was derived from.
	Reason   string
	Message  string
	Code     string
	AuthCode string
}

// Approved reports whether the payment went through.
func (c Classification) Approved() bool { return c.Status == PaymentApproved }

// Classify maps a payment response onto approved, retryable or blocked.
// Unknown results are blocked.
func Classify(resp PaymentResponse) Classification {
	out := Classification{
		Reason:   resp.Result,
		Message:  resp.Message,
		Code:     resp.ErrorCode,
		AuthCode: resp.AuthCode,
	}

	switch resp.Result {
	case ResultSuccess:
		out.Status = PaymentApproved
	case ResultDeclined, ResultReferred, ResultException, ResultInvalidCardDetails:
		out.Status = PaymentRetryable
	default:
		// UnknownRetailer, InvalidRequest, DeclinedKeep and anything new.
		out.Status = PaymentBlocked
	}

	return out
}
