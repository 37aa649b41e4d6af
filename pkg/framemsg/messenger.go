package framemsg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds WaitFor when the caller passes zero.
const DefaultTimeout = 20 * time.Second

// ErrTimeout is matched by every WaitFor timeout error.
var ErrTimeout = errors.New("framemsg: timed out")

// FrameError is an error message reported by the frame.
type FrameError struct {
	Code    string
	Message string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type timeoutError struct{ msg string }

func (e *timeoutError) Error() string { return e.msg }
func (e *timeoutError) Unwrap() error { return ErrTimeout }

// Target receives posted messages, e.g. a frame's content window.
type Target interface {
	PostMessage(data []byte, targetOrigin string) error
}

// TargetFunc adapts a function to Target.
type TargetFunc func(data []byte, targetOrigin string) error

func (f TargetFunc) PostMessage(data []byte, targetOrigin string) error {
	return f(data, targetOrigin)
}

// Envelope is one inbound message with the origin it came from.
type Envelope struct {
	Origin string
	Data   []byte
}

// Listener handles inbound envelopes.
type Listener func(Envelope)

// Source delivers inbound envelopes to subscribed listeners.
type Source interface {
	Subscribe(l Listener) (unsubscribe func())
}

// Messenger posts to a frame and waits for its answers. The target is
// resolved on every Post since the frame may not exist yet.
type Messenger struct {
	target         func() Target
	origin         string
	source         Source
	defaultTimeout time.Duration
}

// NewMessenger creates a messenger for a frame served from origin. A
// defaultTimeout of zero means DefaultTimeout.
func NewMessenger(target func() Target, origin string, source Source, defaultTimeout time.Duration) *Messenger {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Messenger{
		target:         target,
		origin:         origin,
		source:         source,
		defaultTimeout: defaultTimeout,
	}
}

// Origin is the only origin the messenger talks to.
func (m *Messenger) Origin() string { return m.origin }

// Post sends msg to the frame. It is a no-op when the target is not
// available.
func (m *Messenger) Post(msg Message) error {
	if m.target == nil {
		return nil
	}
	t := m.target()
	if t == nil {
		return nil
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return t.PostMessage(data, m.origin)
}

type outcome[T any] struct {
	val T
	err error
}

// subscribe registers the WaitFor listener and returns the channel the
// first outcome lands on.
func subscribe[T any](m *Messenger, match func(Message) bool, mapFn func(Message) T) (<-chan outcome[T], func()) {
	done := make(chan outcome[T], 1)
	var once sync.Once
	settle := func(o outcome[T]) {
		once.Do(func() { done <- o })
	}

	unsubscribe := m.source.Subscribe(func(env Envelope) {
		if env.Origin != m.origin {
			return
		}

		msg := Decode(env.Data)
		if msg.Type == TypeError {
			fe := &FrameError{Code: msg.Code, Message: msg.Message}
			if fe.Code == "" {
				fe.Code = DefaultErrorCode
			}
			if fe.Message == "" {
				fe.Message = "Operation failed"
			}
			settle(outcome[T]{err: fe})
			return
		}

		if match(msg) {
			settle(outcome[T]{val: mapFn(msg)})
		}
	})

	return done, unsubscribe
}

func await[T any](ctx context.Context, m *Messenger, done <-chan outcome[T], timeoutMessage string, timeout time.Duration) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.val, o.err
	case <-timer.C:
		return zero, &timeoutError{msg: timeoutMessage}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// WaitFor resolves with mapFn of the first message from the messenger's
// origin satisfying match. An error message from that origin fails the wait
// immediately with a *FrameError. Messages from any other origin are
// ignored. On timeout the error text is timeoutMessage and it matches
// ErrTimeout. The listener is removed on every exit path.
func WaitFor[T any](
	ctx context.Context,
	m *Messenger,
	match func(Message) bool,
	mapFn func(Message) T,
	timeoutMessage string,
	timeout time.Duration,
) (T, error) {
	done, unsubscribe := subscribe(m, match, mapFn)
	defer unsubscribe()

	return await(ctx, m, done, timeoutMessage, timeout)
}

// Request posts msg and waits for the reply like WaitFor. The listener is
// registered before posting so a fast reply cannot be missed.
func Request[T any](
	ctx context.Context,
	m *Messenger,
	msg Message,
	match func(Message) bool,
	mapFn func(Message) T,
	timeoutMessage string,
	timeout time.Duration,
) (T, error) {
	done, unsubscribe := subscribe(m, match, mapFn)
	defer unsubscribe()

	if err := m.Post(msg); err != nil {
		var zero T
		return zero, fmt.Errorf("framemsg: post %s: %w", msg.Type, err)
	}

	return await(ctx, m, done, timeoutMessage, timeout)
}
