package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
)

// Redirect describes a navigation. Method defaults to GET; GET merges
// Parameters into the query and POST submits them as form fields.
type Redirect struct {
	URL        string
	Method     string
	Parameters map[string]string
}

// AuthEvidence is what the hooks learn about 3DS.
type AuthEvidence struct {
	Result *threeds.AuthenticationResult

	// Challenge is set when a challenge ran, so "ACS declined" and "shopper
	// closed the challenge" can be told apart.
	Challenge *threeds.ChallengeOutcome
}

// Kind is the challenge outcome kind when a challenge ran, otherwise the
// authentication result.
func (a *AuthEvidence) Kind() string {
	if a == nil {
		return ""
	}
	if a.Challenge != nil {
		return string(a.Challenge.Kind)
	}
	if a.Result != nil {
		return string(a.Result.Result)
	}
	return ""
}

// CompletionContext is handed to a hook. It is built fresh per call.
type CompletionContext struct {
	SessionID   string
	CardTokenID string
	Auth        *AuthEvidence

	Payment        *checkoutsdk.PaymentResponse
	Classification *checkoutsdk.Classification

	Err error
}

// HookFunc runs merchant code on an outcome. Returning a non-nil Redirect
// performs it.
type HookFunc func(ctx context.Context, cc CompletionContext, h *Helpers) (*Redirect, error)

// Hook is either a declarative redirect or a function.
type Hook struct {
	Redirect *Redirect
	Func     HookFunc
}

// RedirectTo is a hook that navigates to url with GET.
func RedirectTo(url string) *Hook {
	return &Hook{Redirect: &Redirect{URL: url}}
}

// HookOf wraps fn.
func HookOf(fn HookFunc) *Hook {
	return &Hook{Func: fn}
}

func (h *Hook) validate() error {
	if h == nil {
		return nil
	}
	if h.Redirect == nil && h.Func == nil {
		return errors.New("hook has neither a redirect nor a func")
	}
	if h.Redirect != nil && h.Func != nil {
		return errors.New("hook has both a redirect and a func")
	}
	if r := h.Redirect; r != nil {
		if strings.TrimSpace(r.URL) == "" {
			return errors.New("redirect needs a url")
		}
		switch strings.ToUpper(r.Method) {
		case "", http.MethodGet, http.MethodPost:
		default:
			return fmt.Errorf("unsupported redirect method %q", r.Method)
		}
	}
	return nil
}

// runHook performs a declarative redirect, or calls the func and performs
// the redirect it returns. A nil hook does nothing.
func runHook(ctx context.Context, hook *Hook, cc CompletionContext, h *Helpers) error {
	if hook == nil {
		return nil
	}

	if hook.Func == nil {
		if hook.Redirect == nil {
			return nil
		}
		return h.Redirect(ctx, *hook.Redirect)
	}

	r, err := hook.Func(ctx, cc, h)
	if err != nil {
		return err
	}
	if r != nil {
		return h.Redirect(ctx, *r)
	}
	return nil
}
