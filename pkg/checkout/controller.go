package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/idx"
	"github.com/aussiebroadwan/checkout/pkg/slogx"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
)

var (
	// ErrAlreadySubmitting rejects a run started while another is active.
	ErrAlreadySubmitting = errors.New("already submitting")

	ErrNoSuccessHook = errors.New("payment approved but no onSuccess handler")
	ErrNoRenderer    = errors.New("challenge required but no renderer configured")
	ErrNoACS         = errors.New("challenge required but no ACS URL returned")

	// The challenge errors surface to the shopper verbatim.
	ErrChallengeClosed   = errors.New("Challenge closed by user") //nolint:staticcheck
	ErrChallengeTimedOut = errors.New("Challenge timed out")      //nolint:staticcheck
)

// Status is the terminal status of one run.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusNotAuthenticated Status = "not-authenticated"
	StatusError            Status = "error"
	StatusCancel           Status = "cancel"
)

// Outcome is the result of RunOnce. Message is set for StatusError.
type Outcome struct {
	Status  Status
	Message string
}

// Gateway is the set of gateway calls a run makes. *checkoutsdk.Client
// implements it.
type Gateway interface {
	Start3DS(ctx context.Context, cardTokenID, sessionID string) (*checkoutsdk.Start3DSResponse, error)
	threeds.API
	Pay(ctx context.Context, req checkoutsdk.PaymentRequest) (*checkoutsdk.PaymentResponse, error)
}

var _ Gateway = (*checkoutsdk.Client)(nil)

// Dependencies are the collaborators of a Controller. Gateway, Capture and
// Sessions are required.
type Dependencies struct {
	Gateway  Gateway
	Capture  CardCapture
	Sessions SessionProvider

	// Channels is optional; without it every wait uses its fallback.
	Channels ChannelOpener

	Renderer        threeds.Renderer
	MethodSubmitter threeds.MethodSubmitter

	Form      Form
	Navigator Navigator

	SourceIP    threeds.SourceIPFunc
	BrowserInfo threeds.BrowserInfoFunc

	Logger *slog.Logger
}

// Controller runs submissions, one at a time.
type Controller struct {
	cfg  Config
	deps Dependencies
	log  *slog.Logger

	mu      sync.Mutex
	busy    bool
	channel Channel
	helpers *Helpers

	cancelled atomic.Bool

	bindMu sync.Mutex
	unbind func()
}

// New validates cfg and returns a controller.
func New(cfg Config, deps Dependencies) (*Controller, error) {
	var errs []error
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if deps.Gateway == nil {
		errs = append(errs, errors.New("gateway is required"))
	}
	if deps.Capture == nil {
		errs = append(errs, errors.New("card capture is required"))
	}
	if deps.Sessions == nil {
		errs = append(errs, errors.New("session provider is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid checkout config: %w", err)
	}

	cfg.applyDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slogx.Discard()
	}

	return &Controller{
		cfg:  cfg,
		deps: deps,
		log:  slogx.Named(logger, "submit"),
	}, nil
}

// IsBusy reports whether a run is in progress.
func (c *Controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	c.cancelled.Store(false)
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	c.busy = false
	c.helpers = nil
	c.mu.Unlock()
}

// RunOnce runs one submission: tokenise, 3DS, then completion. A call made
// while another run is active fails at once with ErrAlreadySubmitting. The
// error is non-nil exactly when the outcome is StatusError.
func (c *Controller) RunOnce(ctx context.Context) (Outcome, error) {
	if !c.acquire() {
		c.log.Debug("blocked: already submitting")
		return Outcome{Status: StatusError, Message: ErrAlreadySubmitting.Error()}, ErrAlreadySubmitting
	}

	log := c.log.With("run_id", idx.NewPrefixed("run"))
	log.Info("start")
	overall := slogx.Time(log, "overall")

	h := newHelpers(c.deps.Form, c.deps.Navigator, c.cfg.PageURL, log)
	c.mu.Lock()
	c.helpers = h
	c.mu.Unlock()
	h.Disable()

	defer func() {
		h.Enable()
		c.closeChannel(log)
		overall()
		log.Info("end")
		c.release()
	}()

	out, err := c.run(ctx, log, h)
	if err != nil {
		log.Error("submission error", "error", err)
		if c.cancelled.Load() {
			return Outcome{Status: StatusCancel}, nil
		}
		return Outcome{Status: StatusError, Message: err.Error()}, err
	}

	log.Info("submission finished", "status", out.Status)
	return out, nil
}

func (c *Controller) run(ctx context.Context, log *slog.Logger, h *Helpers) (Outcome, error) {
	sessionID, err := resolveSession(ctx, c.deps.Sessions)
	if err != nil {
		return Outcome{}, err
	}
	log = log.With("session_id", sessionID)

	c.openChannel(ctx, log, sessionID)

	done := slogx.Time(log, "tokenise")
	token, err := c.deps.Capture.RequestToken(ctx)
	if err != nil {
		return Outcome{}, err
	}
	expiry, err := c.deps.Capture.RequestExpiry(ctx)
	if err != nil {
		return Outcome{}, err
	}
	done("card_token", maskToken(token))

	if c.cancelled.Load() {
		return Outcome{Status: StatusCancel}, nil
	}

	done = slogx.Time(log, "3ds")
	auth, handled, err := c.runThreeDS(ctx, log, h, sessionID, token, expiry)
	if err != nil {
		return Outcome{}, err
	}
	done("result", auth.Result.Result, "kind", auth.Kind())

	if c.cancelled.Load() {
		return Outcome{Status: StatusCancel}, nil
	}

	// A challenge hook already ran.
	if handled {
		return Outcome{Status: StatusNotAuthenticated}, nil
	}

	cc := CompletionContext{SessionID: sessionID, CardTokenID: token, Auth: auth}

	if auth.Result.Result == threeds.ResultNotAuthenticated {
		if hook := c.cfg.Completion.OnError; hook != nil {
			log.Warn("not authenticated, running onError")
			if err := runHook(ctx, hook, cc, h); err != nil {
				return Outcome{}, err
			}
		} else {
			log.Error("not authenticated with no onError hook")
		}
		return Outcome{Status: StatusNotAuthenticated}, nil
	}

	log.Info("proceeding to completion", "mode", c.cfg.Completion.Mode)
	done = slogx.Time(log, "completion")
	if err := c.complete(ctx, log, h, cc, expiry); err != nil {
		return Outcome{}, err
	}
	done()

	return Outcome{Status: StatusSuccess}, nil
}

// runThreeDS runs method, authenticate and any challenge. handled reports
// that a challenge hook consumed a closed or timed out challenge.
func (c *Controller) runThreeDS(ctx context.Context, log *slog.Logger, h *Helpers, sessionID, token, expiry string) (auth *AuthEvidence, handled bool, err error) {
	log = slogx.Named(log, "threeds")

	start, err := c.deps.Gateway.Start3DS(ctx, token, sessionID)
	if err != nil {
		return nil, false, err
	}

	var events threeds.EventChannel
	if ch := c.currentChannel(); ch != nil {
		events = ch
	}

	method := threeds.RunMethod(ctx, threeds.MethodRequest{
		URL:       start.ThreeDSRequest.MethodURL,
		Data:      start.ThreeDSRequest.MethodData,
		Timeout:   c.cfg.MethodTimeout,
		Channel:   events,
		SessionID: sessionID,
		Submitter: c.deps.MethodSubmitter,
		Logger:    log,
	})
	log.Debug("method step finished", "outcome", method)

	result, err := threeds.Authenticate(ctx, c.deps.Gateway, threeds.AuthenticateRequest{
		SessionID:     sessionID,
		CardTokenID:   token,
		Expiry:        expiry,
		Transaction:   c.cfg.Transaction,
		Intent:        c.cfg.Intent,
		ChallengeSize: c.cfg.Challenge.Size,
		BrowserInfo:   c.deps.BrowserInfo,
		SourceIP:      c.deps.SourceIP,
		Logger:        log,
	})
	if err != nil {
		return nil, false, err
	}

	auth = &AuthEvidence{Result: result}
	if result.Result != threeds.ResultChallenge {
		return auth, false, nil
	}

	if c.deps.Renderer == nil {
		return auth, false, ErrNoRenderer
	}
	if result.Challenge == nil || result.Challenge.ACSURL == "" {
		return auth, false, ErrNoACS
	}

	challenge := threeds.StartChallenge(ctx, c.deps.Renderer, threeds.ChallengeRequest{
		ACSURL:  result.Challenge.ACSURL,
		CReq:    result.Challenge.CReq,
		Display: c.cfg.Challenge.Display,
		Size:    c.cfg.Challenge.Size,
	}, threeds.ChallengeOptions{
		Channel:      events,
		SessionID:    sessionID,
		OnCancel:     c.cfg.Challenge.OnCancel,
		HardTimeout:  c.cfg.Challenge.HardTimeout,
		FallbackWait: c.cfg.Challenge.FallbackWait,
		Logger:       log,
	})
	out := challenge.Wait()
	auth.Challenge = &out

	return c.reconcileChallenge(ctx, log, h, auth, sessionID, token)
}

func (c *Controller) reconcileChallenge(ctx context.Context, log *slog.Logger, h *Helpers, auth *AuthEvidence, sessionID, token string) (*AuthEvidence, bool, error) {
	opts := c.cfg.Completion

	var hook *Hook
	switch auth.Challenge.Kind {
	case threeds.ChallengePolled:
		log.Info("challenge result received", "status", auth.Challenge.Data.Status())
		auth.Result.Result = threeds.ResultAuthenticated
		return auth, false, nil

	case threeds.ChallengeClosed:
		hook = opts.OnClosed
		if hook == nil {
			hook = opts.OnCancel
		}
		if hook == nil {
			return auth, false, ErrChallengeClosed
		}

	default:
		hook = opts.OnCancel
		if hook == nil {
			return auth, false, ErrChallengeTimedOut
		}
	}

	auth.Result.Result = threeds.ResultNotAuthenticated
	log.Info("challenge not completed, running hook", "kind", auth.Challenge.Kind)

	cc := CompletionContext{SessionID: sessionID, CardTokenID: token, Auth: auth}
	if err := runHook(ctx, hook, cc, h); err != nil {
		return auth, false, err
	}
	return auth, true, nil
}

func (c *Controller) openChannel(ctx context.Context, log *slog.Logger, sessionID string) {
	if c.deps.Channels == nil {
		log.Debug("no channel configured, using timeouts only")
		return
	}

	openCtx, cancel := context.WithTimeout(ctx, c.cfg.ChannelOpenTimeout)
	defer cancel()

	done := slogx.Time(log, "channel")
	ch, err := c.deps.Channels.OpenChannel(openCtx, sessionID)
	if err != nil {
		done("connected", false)
		log.Warn("channel failed to open, continuing without it", "error", err)
		return
	}
	done("connected", true)

	c.mu.Lock()
	c.channel = ch
	c.mu.Unlock()
}

func (c *Controller) currentChannel() Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Controller) closeChannel(log *slog.Logger) {
	c.mu.Lock()
	ch := c.channel
	c.channel = nil
	c.mu.Unlock()

	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		log.Warn("channel close failed", "error", err)
	}
}

// Cancel asks the active run to stop at its next checkpoint. In-flight calls
// are not aborted; the run then ends with StatusCancel.
func (c *Controller) Cancel() {
	c.cancelled.Store(true)

	c.mu.Lock()
	h := c.helpers
	c.mu.Unlock()
	if h != nil {
		h.Enable()
	}

	c.closeChannel(c.log)
	c.log.Info("cancel requested")
}

// SubmitEvent is a host form submission.
type SubmitEvent interface {
	PreventDefault()
}

// SubmitSource delivers submit events. The returned func stops delivery.
type SubmitSource interface {
	OnSubmit(fn func(SubmitEvent)) (remove func())
}

// Attach intercepts submissions from src: each one is prevented and starts
// a run in the background under ctx. Attaching twice is a no-op.
func (c *Controller) Attach(ctx context.Context, src SubmitSource) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	if c.unbind != nil {
		return
	}
	c.unbind = src.OnSubmit(func(ev SubmitEvent) {
		ev.PreventDefault()
		go func() {
			_, _ = c.RunOnce(ctx)
		}()
	})
	c.log.Debug("listener attached")
}

// Unbind stops intercepting submissions.
func (c *Controller) Unbind() {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	if c.unbind == nil {
		return
	}
	c.unbind()
	c.unbind = nil
	c.log.Debug("listener removed")
}

// maskToken keeps the last four characters of a card token for logs.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
