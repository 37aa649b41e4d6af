package checkout_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/checkout"
	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/duplex"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
	"github.com/stretchr/testify/require"
)

func newController(t *testing.T, cfg checkout.Config, deps checkout.Dependencies) *checkout.Controller {
	t.Helper()
	c, err := checkout.New(cfg, deps)
	require.NoError(t, err)
	return c
}

func TestFrictionlessClientPayment(t *testing.T) {
	t.Parallel()

	g := frictionless()
	form := newRecordingForm()

	var got checkout.CompletionContext
	cfg := baseConfig()
	cfg.Completion = checkout.CompletionOptions{
		Mode: checkout.ModeClient,
		OnSuccess: checkout.HookOf(func(_ context.Context, cc checkout.CompletionContext, _ *checkout.Helpers) (*checkout.Redirect, error) {
			got = cc
			return nil, nil
		}),
	}

	deps := baseDeps(g)
	deps.Form = form
	deps.SourceIP = func(context.Context) string { return "203.0.113.7" }

	out, err := newController(t, cfg, deps).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, checkout.StatusSuccess, out.Status)

	require.NotNil(t, got.Payment)
	require.Equal(t, "123456", got.Payment.AuthCode)
	require.True(t, got.Classification.Approved())
	require.Equal(t, "authenticated", got.Auth.Kind())
	require.Equal(t, testSession, got.SessionID)

	pays := g.payments()
	require.Len(t, pays, 1)
	require.EqualValues(t, 1050, pays[0].MinorAmount)
	require.Equal(t, "07", pays[0].Card.ExpiryMonth)
	require.Equal(t, "29", pays[0].Card.ExpiryYear)
	require.Equal(t, "203.0.113.7", pays[0].SourceIPAddress)
	require.Equal(t, checkout.DefaultSource, pays[0].Source)

	_, _, enabled := form.snapshot()
	require.Equal(t, []bool{false, true}, enabled)
}

func TestIntentReachesAuthentication(t *testing.T) {
	t.Parallel()

	g := frictionless()
	cfg := baseConfig()
	cfg.Intent = "Refund"
	cfg.Completion = checkout.CompletionOptions{
		Mode: checkout.ModeClient,
		OnSuccess: checkout.HookOf(func(context.Context, checkout.CompletionContext, *checkout.Helpers) (*checkout.Redirect, error) {
			return nil, nil
		}),
	}

	_, err := newController(t, cfg, baseDeps(g)).RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, g.authReqs, 1)
	require.Equal(t, "Refund", g.authReqs[0].Intent)
	require.Equal(t, "Refund", g.payments()[0].Intent)
}

func TestChallengeClosedRunsHook(t *testing.T) {
	t.Parallel()

	var shopperCancels atomic.Int32
	var got checkout.CompletionContext

	cfg := baseConfig()
	cfg.Challenge.OnCancel = func() { shopperCancels.Add(1) }
	cfg.Completion = checkout.CompletionOptions{
		Mode: checkout.ModeClient,
		OnCancel: checkout.HookOf(func(_ context.Context, cc checkout.CompletionContext, _ *checkout.Helpers) (*checkout.Redirect, error) {
			got = cc
			return nil, nil
		}),
	}

	g := challenged()
	renderer := newClosingRenderer(20 * time.Millisecond)
	deps := baseDeps(g)
	deps.Renderer = renderer

	out, err := newController(t, cfg, deps).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, checkout.StatusNotAuthenticated, out.Status)

	require.Equal(t, "closed", got.Auth.Kind())
	require.Equal(t, threeds.ResultNotAuthenticated, got.Auth.Result.Result)
	require.EqualValues(t, 1, shopperCancels.Load())
	require.EqualValues(t, 1, renderer.surface.removed.Load())
	require.Empty(t, g.payments())
}

func TestChallengeClosedPrefersOnClosed(t *testing.T) {
	t.Parallel()

	var closedCalls, cancelCalls atomic.Int32
	cfg := baseConfig()
	cfg.Completion = checkout.CompletionOptions{
		Mode: checkout.ModeNone,
		OnClosed: checkout.HookOf(func(context.Context, checkout.CompletionContext, *checkout.Helpers) (*checkout.Redirect, error) {
			closedCalls.Add(1)
			return nil, nil
		}),
		OnCancel: checkout.HookOf(func(context.Context, checkout.CompletionContext, *checkout.Helpers) (*checkout.Redirect, error) {
			cancelCalls.Add(1)
			return nil, nil
		}),
	}

	deps := baseDeps(challenged())
	deps.Renderer = newClosingRenderer(10 * time.Millisecond)

	out, err := newController(t, cfg, deps).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, checkout.StatusNotAuthenticated, out.Status)
	require.EqualValues(t, 1, closedCalls.Load())
	require.Zero(t, cancelCalls.Load())
}

func TestChallengeClosedWithoutHook(t *testing.T) {
	t.Parallel()

	deps := baseDeps(challenged())
	deps.Renderer = newClosingRenderer(10 * time.Millisecond)

	out, err := newController(t, baseConfig(), deps).RunOnce(context.Background())
	require.ErrorIs(t, err, checkout.ErrChallengeClosed)
	require.Equal(t, checkout.StatusError, out.Status)
	require.Equal(t, "Challenge closed by user", out.Message)
}

func TestChallengeTimeout(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, hook *checkout.Hook) (checkout.Outcome, error) {
		cfg := baseConfig()
		cfg.Challenge.FallbackWait = 30 * time.Millisecond
		cfg.Completion.OnCancel = hook

		deps := baseDeps(challenged())
		deps.Renderer = newClosingRenderer(time.Hour)
		return newController(t, cfg, deps).RunOnce(context.Background())
	}

	t.Run("with hook", func(t *testing.T) {
		t.Parallel()

		var kind string
		out, err := run(t, checkout.HookOf(func(_ context.Context, cc checkout.CompletionContext, _ *checkout.Helpers) (*checkout.Redirect, error) {
			kind = cc.Auth.Kind()
			return nil, nil
		}))
		require.NoError(t, err)
		require.Equal(t, checkout.StatusNotAuthenticated, out.Status)
		require.Equal(t, "timeout", kind)
	})

	t.Run("without hook", func(t *testing.T) {
		t.Parallel()

		out, err := run(t, nil)
		require.ErrorIs(t, err, checkout.ErrChallengeTimedOut)
		require.Equal(t, "Challenge timed out", out.Message)
	})
}

func TestChallengePolledCompletes(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel(
		duplex.Event{"type": threeds.TopicChallengeResult, "sessionId": "other", "status": "Y"},
		duplex.Event{"type": threeds.TopicChallengeResult, "sessionId": testSession, "status": "Y"},
	)

	cfg := baseConfig()
	cfg.Completion.Mode = checkout.ModeNone

	renderer := newClosingRenderer(time.Hour)
	deps := baseDeps(challenged())
	deps.Renderer = renderer
	deps.Channels = &fakeOpener{ch: ch}

	out, err := newController(t, cfg, deps).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, checkout.StatusSuccess, out.Status)
	require.EqualValues(t, 1, renderer.surface.removed.Load())
	require.True(t, ch.closed.Load())
}

func TestChallengeWithoutRenderer(t *testing.T) {
	t.Parallel()

	_, err := newController(t, baseConfig(), baseDeps(challenged())).RunOnce(context.Background())
	require.ErrorIs(t, err, checkout.ErrNoRenderer)
}

func TestNotAuthenticatedRunsOnError(t *testing.T) {
	t.Parallel()

	g := frictionless()
	g.auth = &checkoutsdk.AuthenticationResponse{Result: "not-authenticated"}

	cfg := baseConfig()
	cfg.Completion = checkout.CompletionOptions{
		Mode:    checkout.ModeClient,
		OnError: checkout.RedirectTo("/failed"),
	}

	nav := &recordingNavigator{}
	deps := baseDeps(g)
	deps.Navigator = nav

	out, err := newController(t, cfg, deps).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, checkout.StatusNotAuthenticated, out.Status)
	require.Equal(t, []string{"https://shop.example/failed"}, nav.visited())
	require.Empty(t, g.payments())
}

func TestAuthenticationErrorIsFatal(t *testing.T) {
	t.Parallel()

	g := frictionless()
	g.auth = &checkoutsdk.AuthenticationResponse{Result: "not-authenticated", ErrorMessage: "Card not enrolled"}

	out, err := newController(t, baseConfig(), baseDeps(g)).RunOnce(context.Background())
	require.ErrorIs(t, err, threeds.ErrAuthentication)
	require.Equal(t, "3DS authentication error: Card not enrolled", out.Message)
}

func TestPaymentOutcomes(t *testing.T) {
	t.Parallel()

	t.Run("declined without onError", func(t *testing.T) {
		t.Parallel()

		g := frictionless()
		g.pay = &checkoutsdk.PaymentResponse{Result: checkoutsdk.ResultDeclined}
		cfg := baseConfig()
		cfg.Completion.Mode = checkout.ModeClient

		out, err := newController(t, cfg, baseDeps(g)).RunOnce(context.Background())
		require.EqualError(t, err, "payment error: retryable")
		require.Equal(t, checkout.StatusError, out.Status)
	})

	t.Run("declined with onError", func(t *testing.T) {
		t.Parallel()

		g := frictionless()
		g.pay = &checkoutsdk.PaymentResponse{Result: checkoutsdk.ResultUnknownRetailer}

		var status checkoutsdk.PaymentStatus
		cfg := baseConfig()
		cfg.Completion = checkout.CompletionOptions{
			Mode: checkout.ModeClient,
			OnError: checkout.HookOf(func(_ context.Context, cc checkout.CompletionContext, _ *checkout.Helpers) (*checkout.Redirect, error) {
				status = cc.Classification.Status
				return nil, nil
			}),
		}

		out, err := newController(t, cfg, baseDeps(g)).RunOnce(context.Background())
		require.NoError(t, err)
		require.Equal(t, checkout.StatusSuccess, out.Status)
		require.Equal(t, checkoutsdk.PaymentBlocked, status)
	})

	t.Run("approved without onSuccess", func(t *testing.T) {
		t.Parallel()

		cfg := baseConfig()
		cfg.Completion.Mode = checkout.ModeClient

		_, err := newController(t, cfg, baseDeps(frictionless())).RunOnce(context.Background())
		require.ErrorIs(t, err, checkout.ErrNoSuccessHook)
	})

	t.Run("hook error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("merchant hook failed")
		cfg := baseConfig()
		cfg.Completion = checkout.CompletionOptions{
			Mode: checkout.ModeClient,
			OnSuccess: checkout.HookOf(func(context.Context, checkout.CompletionContext, *checkout.Helpers) (*checkout.Redirect, error) {
				return nil, boom
			}),
		}

		out, err := newController(t, cfg, baseDeps(frictionless())).RunOnce(context.Background())
		require.ErrorIs(t, err, boom)
		require.Equal(t, "merchant hook failed", out.Message)
	})
}

func TestPreconditionStopsBeforeAuthenticate(t *testing.T) {
	t.Parallel()

	g := frictionless()
	cfg := baseConfig()
	cfg.Transaction.Amount = nil

	out, err := newController(t, cfg, baseDeps(g)).RunOnce(context.Background())
	var pe *threeds.PreconditionError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "missing amount: pass in or provide AmountFunc", out.Message)

	g.mu.Lock()
	defer g.mu.Unlock()
	require.Empty(t, g.authReqs)
}

func TestMissingSession(t *testing.T) {
	t.Parallel()

	deps := baseDeps(frictionless())
	deps.Sessions = checkout.StaticSession("  ")

	_, err := newController(t, baseConfig(), deps).RunOnce(context.Background())
	require.ErrorIs(t, err, checkout.ErrMissingSession)
}

func TestChannelFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Completion.Mode = checkout.ModeNone

	deps := baseDeps(frictionless())
	deps.Channels = &fakeOpener{err: errors.New("dial refused")}

	out, err := newController(t, cfg, deps).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, checkout.StatusSuccess, out.Status)
}

func TestRunOnceRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	g := frictionless()
	g.gate = make(chan struct{})

	cfg := baseConfig()
	cfg.Completion.Mode = checkout.ModeNone
	c := newController(t, cfg, baseDeps(g))

	var (
		wg    sync.WaitGroup
		first checkout.Outcome
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = c.RunOnce(context.Background())
	}()

	require.Eventually(t, c.IsBusy, time.Second, 5*time.Millisecond)

	out, err := c.RunOnce(context.Background())
	require.ErrorIs(t, err, checkout.ErrAlreadySubmitting)
	require.Equal(t, checkout.StatusError, out.Status)

	close(g.gate)
	wg.Wait()
	require.Equal(t, checkout.StatusSuccess, first.Status)
	require.False(t, c.IsBusy())
}

func TestCancelStopsAtCheckpoint(t *testing.T) {
	t.Parallel()

	g := frictionless()
	g.gate = make(chan struct{})
	ch := newFakeChannel()
	form := newRecordingForm()

	cfg := baseConfig()
	cfg.Completion = checkout.CompletionOptions{
		Mode:      checkout.ModeClient,
		OnSuccess: checkout.RedirectTo("/done"),
	}

	deps := baseDeps(g)
	deps.Channels = &fakeOpener{ch: ch}
	deps.Form = form
	c := newController(t, cfg, deps)

	done := make(chan checkout.Outcome, 1)
	go func() {
		out, _ := c.RunOnce(context.Background())
		done <- out
	}()

	require.Eventually(t, g.started.Load, time.Second, 5*time.Millisecond)
	c.Cancel()
	require.True(t, ch.closed.Load())
	close(g.gate)

	select {
	case out := <-done:
		require.Equal(t, checkout.StatusCancel, out.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
	require.Empty(t, g.payments())

	_, _, enabled := form.snapshot()
	require.NotEmpty(t, enabled)
	require.True(t, enabled[len(enabled)-1])
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := checkout.New(checkout.Config{}, checkout.Dependencies{})
	require.ErrorContains(t, err, "gateway is required")
	require.ErrorContains(t, err, "card capture is required")
	require.ErrorContains(t, err, "session provider is required")

	cfg := baseConfig()
	cfg.Completion.Mode = "carrier-pigeon"
	_, err = checkout.New(cfg, baseDeps(frictionless()))
	require.ErrorContains(t, err, `unknown completion mode "carrier-pigeon"`)
}

type fakeSubmitEvent struct{ prevented atomic.Bool }

func (e *fakeSubmitEvent) PreventDefault() { e.prevented.Store(true) }

type fakeSource struct {
	mu      sync.Mutex
	fn      func(checkout.SubmitEvent)
	removed int
}

func (s *fakeSource) OnSubmit(fn func(checkout.SubmitEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fn = nil
		s.removed++
	}
}

func (s *fakeSource) submit(ev checkout.SubmitEvent) bool {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ev)
	return true
}

func TestAttachInterceptsSubmit(t *testing.T) {
	t.Parallel()

	var successes atomic.Int32
	cfg := baseConfig()
	cfg.Completion = checkout.CompletionOptions{
		Mode: checkout.ModeClient,
		OnSuccess: checkout.HookOf(func(context.Context, checkout.CompletionContext, *checkout.Helpers) (*checkout.Redirect, error) {
			successes.Add(1)
			return nil, nil
		}),
	}

	c := newController(t, cfg, baseDeps(frictionless()))
	src := &fakeSource{}
	c.Attach(context.Background(), src)
	c.Attach(context.Background(), src)

	ev := &fakeSubmitEvent{}
	require.True(t, src.submit(ev))
	require.True(t, ev.prevented.Load())
	require.Eventually(t, func() bool { return successes.Load() == 1 }, time.Second, 5*time.Millisecond)

	c.Unbind()
	c.Unbind()
	require.False(t, src.submit(&fakeSubmitEvent{}))
	require.Equal(t, 1, src.removed)
}
