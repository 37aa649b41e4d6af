package threeds

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/duplex"
	"github.com/aussiebroadwan/checkout/pkg/slogx"
)

// MethodOutcome is informational; no outcome stops the flow.
type MethodOutcome string

const (
	MethodSkipped   MethodOutcome = "skipped"
	MethodPerformed MethodOutcome = "performed"
	MethodTimeout   MethodOutcome = "timeout"
)

const (
	// DefaultMethodTimeout is the hard deadline of the method step.
	DefaultMethodTimeout = 10 * time.Second

	// MethodHeuristicDelay is how long the step assumes the silent post
	// needs when no completion event can be observed.
	MethodHeuristicDelay = 6 * time.Second
)

// MethodFrame is the hidden context a method submission runs in.
type MethodFrame interface {
	Remove()
}

// MethodSubmitter posts threeDSMethodData to the issuer's method URL from a
// hidden context. The returned frame is removed when the step ends.
type MethodSubmitter interface {
	SubmitMethod(ctx context.Context, methodURL, methodData string) (MethodFrame, error)
}

// MethodRequest configures RunMethod.
type MethodRequest struct {
	URL  string
	Data string

	// Timeout is the hard deadline, DefaultMethodTimeout when zero.
	Timeout time.Duration

	// Channel and SessionID enable the precise completion signal.
	Channel   EventChannel
	SessionID string

	Submitter MethodSubmitter
	Logger    *slog.Logger
}

// RunMethod performs the 3DS method step. It never fails: without a URL or
// data it is skipped, otherwise it resolves performed or timeout.
//
// With a channel the step waits for a matching 3ds.method.result until the
// deadline. Without one, or when the channel breaks early, it assumes the
// post completed after min(MethodHeuristicDelay, Timeout) from the start.
// The heuristic wins a tie with the deadline.
func RunMethod(ctx context.Context, req MethodRequest) MethodOutcome {
	if req.URL == "" || req.Data == "" {
		return MethodSkipped
	}

	log := req.Logger
	if log == nil {
		log = slogx.Discard()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultMethodTimeout
	}
	start := time.Now()

	if req.Submitter != nil {
		frame, err := req.Submitter.SubmitMethod(ctx, req.URL, req.Data)
		if err != nil {
			log.Warn("method submission failed", "error", err)
		} else if frame != nil {
			defer frame.Remove()
		}
	}

	if req.Channel != nil && req.SessionID != "" {
		ev, err := req.Channel.WaitFor(ctx, TopicMethodResult, forSession(req.SessionID), timeout)
		if err == nil {
			log.Debug("method result received", "status", ev.Status())
			return MethodPerformed
		}
		if errors.Is(err, duplex.ErrTimeout) || ctx.Err() != nil || time.Since(start) >= timeout {
			log.Debug("method result not received", "error", err)
			return MethodTimeout
		}
		log.Debug("method channel failed, using heuristic", "error", err)
	}

	wait := min(MethodHeuristicDelay, timeout) - time.Since(start)
	if wait <= 0 {
		return MethodPerformed
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return MethodPerformed
	case <-ctx.Done():
		return MethodTimeout
	}
}
