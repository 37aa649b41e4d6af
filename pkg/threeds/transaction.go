package threeds

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
)

// PreconditionError reports a transaction detail that was neither passed in
// nor provided by a callback.
type PreconditionError struct {
	// Field is the missing detail, e.g. "amount".
	Field string

	// Provider names the callback that could have supplied it.
	Provider string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("missing %s: pass in or provide %s", e.Field, e.Provider)
}

type (
	AmountFunc      func(ctx context.Context) (checkoutsdk.Amount, error)
	CardholderFunc  func(ctx context.Context) (*checkoutsdk.Cardholder, error)
	DescriptionFunc func(ctx context.Context) (string, error)
)

// Transaction holds the details authentication and payment need. Each is
// either passed in directly or provided by a callback; a direct value wins.
type Transaction struct {
	Amount     *checkoutsdk.Amount
	AmountFunc AmountFunc

	Cardholder     *checkoutsdk.Cardholder
	CardholderFunc CardholderFunc

	Description     string
	DescriptionFunc DescriptionFunc
}

// TransactionDetails are resolved transaction details.
type TransactionDetails struct {
	Amount      checkoutsdk.Amount
	Cardholder  checkoutsdk.Cardholder
	Description string
}

// Resolve collects the details in order amount, cardholder, description and
// stops at the first one missing. A zero amount counts as missing.
func (t Transaction) Resolve(ctx context.Context) (TransactionDetails, error) {
	var out TransactionDetails

	switch {
	case t.Amount != nil:
		out.Amount = *t.Amount
	case t.AmountFunc != nil:
		a, err := t.AmountFunc(ctx)
		if err != nil {
			return out, fmt.Errorf("amount provider: %w", err)
		}
		out.Amount = a
	}
	if out.Amount.Value == 0 {
		return out, &PreconditionError{Field: "amount", Provider: "AmountFunc"}
	}

	var holder *checkoutsdk.Cardholder
	switch {
	case t.Cardholder != nil:
		holder = t.Cardholder
	case t.CardholderFunc != nil:
		h, err := t.CardholderFunc(ctx)
		if err != nil {
			return out, fmt.Errorf("cardholder provider: %w", err)
		}
		holder = h
	}
	if holder == nil || holder.IsZero() {
		return out, &PreconditionError{Field: "cardholder information", Provider: "CardholderFunc"}
	}
	out.Cardholder = *holder

	out.Description = strings.TrimSpace(t.Description)
	if out.Description == "" && t.DescriptionFunc != nil {
		d, err := t.DescriptionFunc(ctx)
		if err != nil {
			return out, fmt.Errorf("description provider: %w", err)
		}
		out.Description = strings.TrimSpace(d)
	}
	if out.Description == "" {
		return out, &PreconditionError{Field: "description", Provider: "DescriptionFunc"}
	}

	return out, nil
}
