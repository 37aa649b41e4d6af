package threeds

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/duplex"
	"github.com/aussiebroadwan/checkout/pkg/slogx"
)

const (
	// DefaultChallengeHardTimeout bounds every challenge, whatever else
	// happens.
	DefaultChallengeHardTimeout = 5 * time.Minute

	// DefaultChallengeFallbackWait settles a challenge as timed out when
	// there is no channel to report its result.
	DefaultChallengeFallbackWait = 120 * time.Second
)

// ChallengeKind is how a challenge ended.
type ChallengeKind string

const (
	ChallengeClosed  ChallengeKind = "closed"
	ChallengeTimeout ChallengeKind = "timeout"
	ChallengePolled  ChallengeKind = "polled"
)

// ChallengeOutcome is the single terminal result of a challenge. Data is
// only set for ChallengePolled.
type ChallengeOutcome struct {
	Kind ChallengeKind
	Data duplex.Event
}

// ChallengeDisplay is how the host presents the challenge surface.
type ChallengeDisplay string

const (
	DisplayPopup      ChallengeDisplay = "popup"
	DisplayFullscreen ChallengeDisplay = "fullscreen"
)

// ChallengeSize is a preset challenge window size.
type ChallengeSize string

const (
	SizeSmall  ChallengeSize = "small"
	SizeMedium ChallengeSize = "medium"
	SizeLarge  ChallengeSize = "large"
)

// Pixels is the edge length of the square challenge window.
func (s ChallengeSize) Pixels() int {
	switch s {
	case SizeSmall:
		return 250
	case SizeLarge:
		return 600
	default:
		return 500
	}
}

// ChallengeRequest is handed to the Renderer.
type ChallengeRequest struct {
	ACSURL string
	CReq   string

	Display ChallengeDisplay
	Size    ChallengeSize

	// Document is the auto-posting page for browser surfaces.
	Document string
}

// Surface is a rendered challenge. Closed fires when the shopper dismisses
// it (close control or Escape). Remove tears it down; it is called exactly
// once.
type Surface interface {
	Closed() <-chan struct{}
	Remove()
}

// Renderer shows the challenge surface and starts the ACS post. Render is
// called synchronously by StartChallenge.
type Renderer interface {
	Render(req ChallengeRequest) Surface
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(req ChallengeRequest) Surface

func (f RendererFunc) Render(req ChallengeRequest) Surface { return f(req) }

// ChallengeOptions tune a challenge.
type ChallengeOptions struct {
	// Channel delivers 3ds.challenge.result for SessionID. Without it the
	// challenge times out after FallbackWait.
	Channel   EventChannel
	SessionID string

	// OnCancel runs when the shopper closes the surface and that close
	// settles the challenge.
	OnCancel func()

	HardTimeout  time.Duration
	FallbackWait time.Duration

	Logger *slog.Logger
}

// Challenge is a running challenge. Whichever trigger fires first settles
// it; the rest are ignored.
type Challenge struct {
	log      *slog.Logger
	onCancel func()
	surface  Surface

	settleOnce sync.Once
	outcome    ChallengeOutcome
	done       chan struct{}

	cleanupOnce sync.Once
	stop        context.CancelFunc

	mu     sync.Mutex // guards timers while StartChallenge arms them
	timers []*time.Timer
}

// StartChallenge renders the challenge surface and races the shopper
// closing it, the back-channel result and the hard timeout. Cancelling ctx
// settles the challenge as closed.
func StartChallenge(ctx context.Context, r Renderer, req ChallengeRequest, opts ChallengeOptions) *Challenge {
	log := opts.Logger
	if log == nil {
		log = slogx.Discard()
	}
	hard := opts.HardTimeout
	if hard <= 0 {
		hard = DefaultChallengeHardTimeout
	}
	fallback := opts.FallbackWait
	if fallback <= 0 {
		fallback = DefaultChallengeFallbackWait
	}
	if req.Display == "" {
		req.Display = DisplayPopup
	}
	if req.Size == "" {
		req.Size = SizeMedium
	}
	if req.Document == "" {
		doc, err := ChallengeDocument(req.ACSURL, req.CReq)
		if err != nil {
			log.Warn("challenge document not rendered", "error", err)
		}
		req.Document = doc
	}

	raceCtx, stop := context.WithCancel(ctx)
	c := &Challenge{
		log:      log,
		onCancel: opts.OnCancel,
		done:     make(chan struct{}),
		stop:     stop,
	}

	c.surface = r.Render(req)
	log.Debug("challenge rendered", "display", req.Display, "size", req.Size)

	// Triggers firing while the rest are armed wait for mu in cleanup.
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timers = append(c.timers, time.AfterFunc(hard, func() {
		c.settle(ChallengeOutcome{Kind: ChallengeTimeout}, false)
	}))

	if c.surface != nil {
		go func() {
			select {
			case <-c.surface.Closed():
				c.settle(ChallengeOutcome{Kind: ChallengeClosed}, true)
			case <-raceCtx.Done():
			}
		}()
	}

	if opts.Channel != nil && opts.SessionID != "" {
		go c.awaitResult(raceCtx, opts.Channel, opts.SessionID, hard)
	} else {
		c.timers = append(c.timers, time.AfterFunc(fallback, func() {
			c.settle(ChallengeOutcome{Kind: ChallengeTimeout}, false)
		}))
	}

	go func() {
		select {
		case <-ctx.Done():
			c.settle(ChallengeOutcome{Kind: ChallengeClosed}, false)
		case <-c.done:
		}
	}()

	return c
}

func (c *Challenge) awaitResult(ctx context.Context, ch EventChannel, sessionID string, timeout time.Duration) {
	match := func(ev duplex.Event) bool {
		return ev.SessionID() == sessionID && IsPositiveStatus(ev.Status())
	}

	ev, err := ch.WaitFor(ctx, TopicChallengeResult, match, timeout)
	if err != nil {
		// The surface stays up; the hard timeout still applies.
		if ctx.Err() == nil {
			c.log.Debug("challenge result wait failed", "error", err)
		}
		return
	}
	c.settle(ChallengeOutcome{Kind: ChallengePolled, Data: ev}, false)
}

func (c *Challenge) settle(o ChallengeOutcome, byShopper bool) {
	c.settleOnce.Do(func() {
		c.outcome = o
		if byShopper && c.onCancel != nil {
			c.runOnCancel()
		}
		c.cleanup()
		c.log.Info("challenge settled", "kind", o.Kind)
		close(c.done)
	})
}

func (c *Challenge) runOnCancel() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("challenge cancel callback panicked", "panic", r)
		}
	}()
	c.onCancel()
}

func (c *Challenge) cleanup() {
	c.cleanupOnce.Do(func() {
		c.mu.Lock()
		for _, t := range c.timers {
			t.Stop()
		}
		c.mu.Unlock()
		c.stop()
		if c.surface != nil {
			c.surface.Remove()
		}
	})
}

// Close settles the challenge as closed without running OnCancel. It is a
// no-op once the challenge has settled.
func (c *Challenge) Close() {
	c.settle(ChallengeOutcome{Kind: ChallengeClosed}, false)
}

// Done is closed once the challenge has settled.
func (c *Challenge) Done() <-chan struct{} { return c.done }

// Wait blocks until the challenge settles and returns its outcome.
func (c *Challenge) Wait() ChallengeOutcome {
	<-c.done
	return c.outcome
}

// Outcome returns the outcome if the challenge has settled.
func (c *Challenge) Outcome() (ChallengeOutcome, bool) {
	select {
	case <-c.done:
		return c.outcome, true
	default:
		return ChallengeOutcome{}, false
	}
}
