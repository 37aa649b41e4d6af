package threeds_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/duplex"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
)

// fakeChannel delivers events pushed on events to a single waiter, or
// fails every wait with err.
type fakeChannel struct {
	events chan duplex.Event
	err    error

	mu     sync.Mutex
	topics []string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan duplex.Event, 8)}
}

func (f *fakeChannel) WaitFor(ctx context.Context, topic string, match func(duplex.Event) bool, timeout time.Duration) (duplex.Event, error) {
	f.mu.Lock()
	f.topics = append(f.topics, topic)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-f.events:
			if ev.Type() == topic && (match == nil || match(ev)) {
				return ev, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s", duplex.ErrTimeout, topic)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *fakeChannel) waitedOn() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

// fakeSurface counts removals; close() simulates the shopper dismissing it.
type fakeSurface struct {
	closed    chan struct{}
	closeOnce sync.Once
	removed   atomic.Int32
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{closed: make(chan struct{})}
}

func (s *fakeSurface) Closed() <-chan struct{} { return s.closed }
func (s *fakeSurface) Remove()                 { s.removed.Add(1) }
func (s *fakeSurface) close()                  { s.closeOnce.Do(func() { close(s.closed) }) }

// recordingRenderer hands out one surface and keeps the request.
type recordingRenderer struct {
	surface *fakeSurface

	mu  sync.Mutex
	req threeds.ChallengeRequest
}

func (r *recordingRenderer) Render(req threeds.ChallengeRequest) threeds.Surface {
	r.mu.Lock()
	r.req = req
	r.mu.Unlock()
	return r.surface
}

func (r *recordingRenderer) rendered() threeds.ChallengeRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.req
}

// fakeSubmitter records submissions and removals.
type fakeSubmitter struct {
	submitted atomic.Int32
	removed   atomic.Int32
	err       error
}

func (s *fakeSubmitter) SubmitMethod(context.Context, string, string) (threeds.MethodFrame, error) {
	s.submitted.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return frameFunc(func() { s.removed.Add(1) }), nil
}

type frameFunc func()

func (f frameFunc) Remove() { f() }
