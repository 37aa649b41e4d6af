package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/framemsg"
	"github.com/aussiebroadwan/checkout/pkg/slogx"
)

// CardCapture is the sandboxed card frame as the orchestrator sees it.
type CardCapture interface {
	RequestToken(ctx context.Context) (string, error)

	// RequestExpiry returns the captured expiry as MM/YY.
	RequestExpiry(ctx context.Context) (string, error)
}

// StaticCapture is a card already tokenised elsewhere, e.g. by a server
// integration or a test harness.
type StaticCapture struct {
	Token  string
	Expiry string
}

func (s StaticCapture) RequestToken(context.Context) (string, error)  { return s.Token, nil }
func (s StaticCapture) RequestExpiry(context.Context) (string, error) { return s.Expiry, nil }

// FrameCapture implements CardCapture over frame messages.
type FrameCapture struct {
	m   *framemsg.Messenger
	log *slog.Logger

	// Timeout bounds each request, framemsg.DefaultTimeout when zero.
	Timeout time.Duration
}

var _ CardCapture = (*FrameCapture)(nil)

// NewFrameCapture talks to the card frame through m.
func NewFrameCapture(m *framemsg.Messenger, logger *slog.Logger) *FrameCapture {
	if logger == nil {
		logger = slogx.Discard()
	}
	return &FrameCapture{m: m, log: slogx.Named(logger, "frame")}
}

func isType(t string) func(framemsg.Message) bool {
	return func(msg framemsg.Message) bool { return msg.Type == t }
}

// Handshake pings the frame until it reports ready. The ping also lets the
// frame learn the parent origin.
func (f *FrameCapture) Handshake(ctx context.Context) error {
	_, err := framemsg.Request(ctx, f.m, framemsg.Ping(), isType(framemsg.TypeReady),
		func(framemsg.Message) struct{} { return struct{}{} },
		"Card frame did not become ready", f.Timeout)
	if err != nil {
		return err
	}
	f.log.Debug("frame ready")
	return nil
}

// ConfigureTheme sends theme variables to the frame.
func (f *FrameCapture) ConfigureTheme(vars map[string]string) error {
	return f.m.Post(framemsg.ConfigureTheme(vars))
}

// ConfigureApplePay tells the frame whether wallet buttons are allowed.
func (f *FrameCapture) ConfigureApplePay(enabled bool) error {
	return f.m.Post(framemsg.ConfigureApplePay(enabled))
}

// ConfigureLogger controls the frame's own log forwarding.
func (f *FrameCapture) ConfigureLogger(enabled bool, level, namespaceBase, sessionID string) error {
	return f.m.Post(framemsg.ConfigureLogger(enabled, level, namespaceBase, sessionID))
}

// RequestToken asks the frame to tokenise the captured card.
func (f *FrameCapture) RequestToken(ctx context.Context) (string, error) {
	return framemsg.Request(ctx, f.m, framemsg.Tokenise(), isType(framemsg.TypeTokenised),
		func(msg framemsg.Message) string { return msg.CardToken },
		"Tokenisation timed out", f.Timeout)
}

// RequestExpiry asks the frame for the captured expiry.
func (f *FrameCapture) RequestExpiry(ctx context.Context) (string, error) {
	return framemsg.Request(ctx, f.m, framemsg.GetExpiry(), isType(framemsg.TypeExpiry),
		func(msg framemsg.Message) string { return msg.Expiry },
		"Expiry request timed out", f.Timeout)
}
