package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
)

// BuildPaymentRequest assembles the payment for a tokenised, authenticated
// card. It enforces the same preconditions as authentication.
func BuildPaymentRequest(ctx context.Context, cfg Config, sessionID, cardTokenID, expiry, sourceIP string) (checkoutsdk.PaymentRequest, error) {
	cfg.applyDefaults()

	details, err := cfg.Transaction.Resolve(ctx)
	if err != nil {
		return checkoutsdk.PaymentRequest{}, err
	}

	month, year, err := threeds.SplitExpiry(expiry)
	if err != nil {
		return checkoutsdk.PaymentRequest{}, err
	}

	return checkoutsdk.PaymentRequest{
		SessionID: sessionID,
		TokenID:   cardTokenID,

		SettlementType: cfg.SettlementType,
		CardEntry:      cfg.CardEntry,
		Intent:         cfg.Intent,
		Order:          cfg.Order,

		CurrencyCode: details.Amount.CurrencyCode,
		MinorAmount:  details.Amount.MinorUnits(),
		CountryCode:  cfg.CountryCode,

		Card:       checkoutsdk.PaymentCard{ExpiryMonth: month, ExpiryYear: year},
		CardHolder: checkoutsdk.NewPaymentCardholder(details.Cardholder),

		StoreCardDetails: cfg.StoreCardDetails,

		Source:          cfg.Source,
		SourceIPAddress: sourceIP,
		URL:             cfg.PageURL,

		BasketDescription: details.Description,
		ValidityID:        cfg.ValidityID,
		Channel:           cfg.Channel,
		PaymentReference:  cfg.PaymentReference,
	}, nil
}

// complete runs the configured completion mode after authentication.
func (c *Controller) complete(ctx context.Context, log *slog.Logger, h *Helpers, cc CompletionContext, expiry string) error {
	opts := c.cfg.Completion

	switch opts.Mode {
	case ModeNone:
		log.Info("completion mode none, stopping after 3DS")
		return nil

	case ModeForm:
		return h.SubmitForm(ctx, map[string]string{
			"CardTokenID": cc.CardTokenID,
			"SessionID":   cc.SessionID,
		})
	}

	var sourceIP string
	if c.deps.SourceIP != nil {
		sourceIP = c.deps.SourceIP(ctx)
	}

	req, err := BuildPaymentRequest(ctx, c.cfg, cc.SessionID, cc.CardTokenID, expiry, sourceIP)
	if err != nil {
		return err
	}

	resp, err := c.deps.Gateway.Pay(ctx, req)
	if err != nil {
		return err
	}

	class := checkoutsdk.Classify(*resp)
	cc.Payment = resp
	cc.Classification = &class
	log.Info("payment classified", "status", class.Status, "reason", class.Reason)

	if class.Approved() {
		if opts.OnSuccess == nil {
			return ErrNoSuccessHook
		}
		return runHook(ctx, opts.OnSuccess, cc, h)
	}

	if opts.OnError == nil {
		return fmt.Errorf("payment error: %s", class.Status)
	}
	return runHook(ctx, opts.OnError, cc, h)
}
