package checkout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/threeds"
)

// CompletionMode decides what happens after a successful authentication.
type CompletionMode string

const (
	// ModeClient pays from the SDK and routes the result to OnSuccess or
	// OnError.
	ModeClient CompletionMode = "client"

	// ModeForm attaches the token and session to the host form and submits
	// it to the merchant server.
	ModeForm CompletionMode = "form"

	// ModeNone stops after 3DS.
	ModeNone CompletionMode = "none"
)

// Transaction shape defaults.
const (
	DefaultSettlementType = "Auto"
	DefaultIntent         = "Purchase"
	DefaultCardEntry      = "ECommerce"
	DefaultOrder          = "Checkout"
	DefaultChannel        = "Web"
	DefaultSource         = "EmbeddedCheckout"
)

// CompletionOptions are the merchant hooks.
type CompletionOptions struct {
	Mode CompletionMode

	OnSuccess *Hook
	OnError   *Hook
	OnCancel  *Hook
	OnClosed  *Hook
}

// ChallengeOptions control the challenge surface.
type ChallengeOptions struct {
	Display threeds.ChallengeDisplay
	Size    threeds.ChallengeSize

	// OnCancel runs when the shopper dismisses the surface.
	OnCancel func()

	HardTimeout  time.Duration
	FallbackWait time.Duration
}

// Config is the merchant configuration of a checkout. It is validated once
// by New.
type Config struct {
	// Transaction supplies amount, cardholder and description.
	Transaction threeds.Transaction

	SettlementType   string
	Intent           string
	CardEntry        string
	Order            string
	CountryCode      string
	Channel          string
	PaymentReference string
	ValidityID       string
	StoreCardDetails bool

	// Source identifies the integration in payment requests.
	Source string

	// PageURL is the embedding page. It resolves relative redirects and is
	// sent with payments.
	PageURL string

	Challenge  ChallengeOptions
	Completion CompletionOptions

	MethodTimeout      time.Duration
	ChannelOpenTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SettlementType == "" {
		c.SettlementType = DefaultSettlementType
	}
	if c.Intent == "" {
		c.Intent = DefaultIntent
	}
	if c.CardEntry == "" {
		c.CardEntry = DefaultCardEntry
	}
	if c.Order == "" {
		c.Order = DefaultOrder
	}
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.Completion.Mode == "" {
		c.Completion.Mode = ModeForm
	}
	if c.Challenge.Display == "" {
		c.Challenge.Display = threeds.DisplayPopup
	}
	if c.Challenge.Size == "" {
		c.Challenge.Size = threeds.SizeMedium
	}
	if c.MethodTimeout <= 0 {
		c.MethodTimeout = threeds.DefaultMethodTimeout
	}
	if c.ChannelOpenTimeout <= 0 {
		c.ChannelOpenTimeout = 10 * time.Second
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Completion.Mode {
	case "", ModeClient, ModeForm, ModeNone:
	default:
		errs = append(errs, fmt.Errorf("unknown completion mode %q", c.Completion.Mode))
	}

	switch c.Challenge.Display {
	case "", threeds.DisplayPopup, threeds.DisplayFullscreen:
	default:
		errs = append(errs, fmt.Errorf("unknown challenge display %q", c.Challenge.Display))
	}

	switch c.Challenge.Size {
	case "", threeds.SizeSmall, threeds.SizeMedium, threeds.SizeLarge:
	default:
		errs = append(errs, fmt.Errorf("unknown challenge size %q", c.Challenge.Size))
	}

	hooks := []struct {
		name string
		hook *Hook
	}{
		{"OnSuccess", c.Completion.OnSuccess},
		{"OnError", c.Completion.OnError},
		{"OnCancel", c.Completion.OnCancel},
		{"OnClosed", c.Completion.OnClosed},
	}
	for _, h := range hooks {
		if err := h.hook.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}

	t := c.Transaction
	if t.Amount != nil && t.Amount.Value < 0 {
		errs = append(errs, errors.New("amount must not be negative"))
	}
	if t.Amount != nil && strings.TrimSpace(t.Amount.CurrencyCode) == "" {
		errs = append(errs, errors.New("amount needs a currency code"))
	}

	if c.MethodTimeout < 0 || c.ChannelOpenTimeout < 0 ||
		c.Challenge.HardTimeout < 0 || c.Challenge.FallbackWait < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}

	return errors.Join(errs...)
}
