package threeds_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/duplex"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
	"github.com/stretchr/testify/require"
)

var acsRequest = threeds.ChallengeRequest{ACSURL: "https://acs.example/", CReq: "eyJhY3NUcmFuc0lEIjoiMSJ9"}

func waitOutcome(t *testing.T, c *threeds.Challenge) threeds.ChallengeOutcome {
	t.Helper()
	select {
	case <-c.Done():
		out, ok := c.Outcome()
		require.True(t, ok)
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("challenge did not settle")
		return threeds.ChallengeOutcome{}
	}
}

func TestChallengeRendersSynchronously(t *testing.T) {
	t.Parallel()

	r := &recordingRenderer{surface: newFakeSurface()}
	c := threeds.StartChallenge(t.Context(), r, acsRequest, threeds.ChallengeOptions{})
	t.Cleanup(c.Close)

	req := r.rendered()
	require.Equal(t, threeds.DisplayPopup, req.Display)
	require.Equal(t, threeds.SizeMedium, req.Size)
	require.Contains(t, req.Document, `name="creq"`)
	require.Contains(t, req.Document, `method="POST"`)
	require.Contains(t, req.Document, acsRequest.CReq)

	_, settled := c.Outcome()
	require.False(t, settled)
}

func TestChallengeClosedByShopper(t *testing.T) {
	t.Parallel()

	var cancels atomic.Int32
	surface := newFakeSurface()
	c := threeds.StartChallenge(t.Context(), &recordingRenderer{surface: surface}, acsRequest, threeds.ChallengeOptions{
		Channel:   newFakeChannel(),
		SessionID: "sess_1",
		OnCancel:  func() { cancels.Add(1) },
	})

	surface.close()

	out := waitOutcome(t, c)
	require.Equal(t, threeds.ChallengeClosed, out.Kind)
	require.Nil(t, out.Data)
	require.EqualValues(t, 1, cancels.Load())
	require.EqualValues(t, 1, surface.removed.Load())

	c.Close()
	require.Equal(t, out, c.Wait(), "settled outcome is final")
	require.EqualValues(t, 1, surface.removed.Load())
}

func TestChallengePolled(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	surface := newFakeSurface()
	c := threeds.StartChallenge(t.Context(), &recordingRenderer{surface: surface}, acsRequest, threeds.ChallengeOptions{
		Channel:   ch,
		SessionID: "sess_1",
	})

	ch.events <- duplex.Event{"type": threeds.TopicChallengeResult, "sessionId": "sess_1", "status": "N"}
	ch.events <- duplex.Event{"type": threeds.TopicChallengeResult, "sessionId": "other", "status": "Y"}
	ch.events <- duplex.Event{"type": threeds.TopicChallengeResult, "sessionId": "sess_1", "status": "Y", "data": "summary"}

	out := waitOutcome(t, c)
	require.Equal(t, threeds.ChallengePolled, out.Kind)
	require.Equal(t, "summary", out.Data.String("data"))
	require.EqualValues(t, 1, surface.removed.Load())
}

func TestChallengeFallbackWithoutChannel(t *testing.T) {
	t.Parallel()

	surface := newFakeSurface()
	start := time.Now()
	c := threeds.StartChallenge(t.Context(), &recordingRenderer{surface: surface}, acsRequest, threeds.ChallengeOptions{
		FallbackWait: 30 * time.Millisecond,
	})

	out := waitOutcome(t, c)
	require.Equal(t, threeds.ChallengeTimeout, out.Kind)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.EqualValues(t, 1, surface.removed.Load())
}

func TestChallengeHardTimeout(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.err = duplex.ErrClosed // a broken back-channel leaves the hard timeout in charge

	surface := newFakeSurface()
	start := time.Now()
	c := threeds.StartChallenge(t.Context(), &recordingRenderer{surface: surface}, acsRequest, threeds.ChallengeOptions{
		Channel:      ch,
		SessionID:    "sess_1",
		HardTimeout:  40 * time.Millisecond,
		FallbackWait: time.Millisecond, // ignored with a channel
	})

	out := waitOutcome(t, c)
	require.Equal(t, threeds.ChallengeTimeout, out.Kind)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	require.EqualValues(t, 1, surface.removed.Load())
}

func TestChallengeContextCancelled(t *testing.T) {
	t.Parallel()

	var cancels atomic.Int32
	ctx, cancel := context.WithCancel(t.Context())
	surface := newFakeSurface()
	c := threeds.StartChallenge(ctx, &recordingRenderer{surface: surface}, acsRequest, threeds.ChallengeOptions{
		OnCancel: func() { cancels.Add(1) },
	})

	cancel()

	out := waitOutcome(t, c)
	require.Equal(t, threeds.ChallengeClosed, out.Kind)
	require.Zero(t, cancels.Load())
	require.EqualValues(t, 1, surface.removed.Load())
}

func TestChallengeSettlesOnceUnderRace(t *testing.T) {
	t.Parallel()

	for range 50 {
		var cancels atomic.Int32

		ch := newFakeChannel()
		ch.events <- duplex.Event{"type": threeds.TopicChallengeResult, "sessionId": "sess_1", "status": "complete"}

		surface := newFakeSurface()
		surface.close()

		c := threeds.StartChallenge(t.Context(), &recordingRenderer{surface: surface}, acsRequest, threeds.ChallengeOptions{
			Channel:     ch,
			SessionID:   "sess_1",
			HardTimeout: time.Nanosecond,
			OnCancel:    func() { cancels.Add(1) },
		})
		go c.Close()

		out := c.Wait()
		require.Contains(t, []threeds.ChallengeKind{threeds.ChallengeClosed, threeds.ChallengeTimeout, threeds.ChallengePolled}, out.Kind)

		// Let the losing triggers run.
		time.Sleep(5 * time.Millisecond)

		require.EqualValues(t, 1, surface.removed.Load())
		require.LessOrEqual(t, cancels.Load(), int32(1))
		if out.Kind != threeds.ChallengeClosed {
			require.Zero(t, cancels.Load())
		}

		again, _ := c.Outcome()
		require.Equal(t, out, again)
	}
}

func TestIsPositiveStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"complete", "Completed", "SUCCESS", "succeeded", "authenticated", "ok", "Y", "a", " Y "} {
		require.True(t, threeds.IsPositiveStatus(s), s)
	}
	for _, s := range []string{"", "N", "R", "failed", "timeout", "U"} {
		require.False(t, threeds.IsPositiveStatus(s), s)
	}
}

func TestChallengeSizePixels(t *testing.T) {
	t.Parallel()

	require.Equal(t, 250, threeds.SizeSmall.Pixels())
	require.Equal(t, 500, threeds.SizeMedium.Pixels())
	require.Equal(t, 600, threeds.SizeLarge.Pixels())
	require.Equal(t, 500, threeds.ChallengeSize("").Pixels())
}
