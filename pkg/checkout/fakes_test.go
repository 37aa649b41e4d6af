package checkout_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/checkout"
	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/duplex"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
)

const testSession = "sess_123"

// fakeGateway answers with canned responses and records what it was sent.
type fakeGateway struct {
	start *checkoutsdk.Start3DSResponse
	auth  *checkoutsdk.AuthenticationResponse
	pay   *checkoutsdk.PaymentResponse

	startErr error

	// gate, when set, blocks Start3DS until closed.
	gate    chan struct{}
	started atomic.Bool

	mu       sync.Mutex
	authReqs []checkoutsdk.AuthenticationRequest
	payReqs  []checkoutsdk.PaymentRequest
}

func frictionless() *fakeGateway {
	return &fakeGateway{
		start: &checkoutsdk.Start3DSResponse{SessionID: testSession},
		auth:  &checkoutsdk.AuthenticationResponse{Result: "authenticated", Scheme: "visa"},
		pay:   &checkoutsdk.PaymentResponse{Result: checkoutsdk.ResultSuccess, AuthCode: "123456"},
	}
}

func challenged() *fakeGateway {
	g := frictionless()
	g.auth = &checkoutsdk.AuthenticationResponse{
		Result:    "challenge",
		Challenge: &checkoutsdk.ChallengeData{ACSURL: "https://acs.example/challenge", CReq: "creq-1"},
	}
	return g
}

func (g *fakeGateway) Start3DS(ctx context.Context, _, _ string) (*checkoutsdk.Start3DSResponse, error) {
	g.started.Store(true)
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.startErr != nil {
		return nil, g.startErr
	}
	return g.start, nil
}

func (g *fakeGateway) Authenticate(_ context.Context, req checkoutsdk.AuthenticationRequest) (*checkoutsdk.AuthenticationResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authReqs = append(g.authReqs, req)
	return g.auth, nil
}

func (g *fakeGateway) Pay(_ context.Context, req checkoutsdk.PaymentRequest) (*checkoutsdk.PaymentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payReqs = append(g.payReqs, req)
	if g.pay == nil {
		return nil, errors.New("pay not expected")
	}
	return g.pay, nil
}

func (g *fakeGateway) payments() []checkoutsdk.PaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]checkoutsdk.PaymentRequest(nil), g.payReqs...)
}

type fakeCapture struct {
	token, expiry string
}

func (c fakeCapture) RequestToken(context.Context) (string, error)  { return c.token, nil }
func (c fakeCapture) RequestExpiry(context.Context) (string, error) { return c.expiry, nil }

// fakeSurface counts removals; close() simulates the shopper dismissing it.
type fakeSurface struct {
	closed  chan struct{}
	once    sync.Once
	removed atomic.Int32
}

func (s *fakeSurface) Closed() <-chan struct{} { return s.closed }
func (s *fakeSurface) Remove()                 { s.removed.Add(1) }
func (s *fakeSurface) close()                  { s.once.Do(func() { close(s.closed) }) }

// closingRenderer renders a surface the shopper dismisses shortly after.
type closingRenderer struct {
	after   time.Duration
	surface *fakeSurface
}

func newClosingRenderer(after time.Duration) *closingRenderer {
	return &closingRenderer{after: after, surface: &fakeSurface{closed: make(chan struct{})}}
}

func (r *closingRenderer) Render(threeds.ChallengeRequest) threeds.Surface {
	time.AfterFunc(r.after, r.surface.close)
	return r.surface
}

// recordingForm is a checkout.Form that remembers everything.
type recordingForm struct {
	mu        sync.Mutex
	fields    map[string]string
	method    string
	action    string
	submits   int
	enabled   []bool
	submitErr error
}

func newRecordingForm() *recordingForm {
	return &recordingForm{fields: map[string]string{}}
}

func (f *recordingForm) SetField(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[name] = value
}

func (f *recordingForm) SetTarget(method, action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method, f.action = method, action
}

func (f *recordingForm) Submit(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return f.submitErr
}

func (f *recordingForm) SetControlsEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = append(f.enabled, enabled)
}

func (f *recordingForm) snapshot() (fields map[string]string, submits int, enabled []bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields = make(map[string]string, len(f.fields))
	for k, v := range f.fields {
		fields[k] = v
	}
	return fields, f.submits, append([]bool(nil), f.enabled...)
}

type recordingNavigator struct {
	mu   sync.Mutex
	urls []string
}

func (n *recordingNavigator) Navigate(_ context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, url)
	return nil
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}

// fakeOpener hands out a channel that replays events.
type fakeOpener struct {
	ch  *fakeChannel
	err error
}

func (o *fakeOpener) OpenChannel(context.Context, string) (checkout.Channel, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.ch, nil
}

type fakeChannel struct {
	events chan duplex.Event
	closed atomic.Bool
}

func newFakeChannel(events ...duplex.Event) *fakeChannel {
	ch := &fakeChannel{events: make(chan duplex.Event, len(events)+1)}
	for _, ev := range events {
		ch.events <- ev
	}
	return ch
}

func (c *fakeChannel) WaitFor(ctx context.Context, topic string, match func(duplex.Event) bool, timeout time.Duration) (duplex.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-c.events:
			if ev.Type() == topic && (match == nil || match(ev)) {
				return ev, nil
			}
		case <-timer.C:
			return nil, duplex.ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *fakeChannel) Close() error {
	c.closed.Store(true)
	return nil
}

func amount(v float64) *checkoutsdk.Amount {
	return &checkoutsdk.Amount{Value: v, CurrencyCode: "826"}
}

func baseConfig() checkout.Config {
	return checkout.Config{
		Transaction: threeds.Transaction{
			Amount:      amount(10.50),
			Cardholder:  &checkoutsdk.Cardholder{Name: "A Shopper", Email: "a@example.com"},
			Description: "Order #1",
		},
		PageURL: "https://shop.example/checkout",
	}
}

func baseDeps(g *fakeGateway) checkout.Dependencies {
	return checkout.Dependencies{
		Gateway:  g,
		Capture:  fakeCapture{token: "tok_abcdef1234", expiry: "07/29"},
		Sessions: checkout.StaticSession(testSession),
	}
}
