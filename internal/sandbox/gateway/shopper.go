package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/slogx"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
)

// Shopper is a threeds.Renderer that answers sandbox challenges without a
// browser. It loads the ACS page, waits Think, then submits Outcome.
type Shopper struct {
	HTTPClient *http.Client
	Logger     *slog.Logger

	// Outcome is the transStatus to answer with. Defaults to Y.
	Outcome string
	Think   time.Duration
}

// Render implements threeds.Renderer. A positive answer settles through the
// session channel; after any other answer the shopper closes the surface.
func (s *Shopper) Render(req threeds.ChallengeRequest) threeds.Surface {
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	log := s.Logger
	if log == nil {
		log = slogx.Discard()
	}
	outcome := s.Outcome
	if outcome == "" {
		outcome = "Y"
	}
	think := s.Think
	if think <= 0 {
		think = 50 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	surface := &shopperSurface{closed: make(chan struct{}), cancel: cancel}

	go func() {
		form := url.Values{threeds.FieldCReq: {req.CReq}}
		if err := post(ctx, client, req.ACSURL, form); err != nil {
			log.Warn("challenge page failed", "error", err)
			return
		}

		select {
		case <-time.After(think):
		case <-ctx.Done():
			return
		}

		form.Set("outcome", outcome)
		if err := post(ctx, client, req.ACSURL+"/complete", form); err != nil {
			log.Warn("challenge answer failed", "error", err)
			return
		}
		log.Debug("challenge answered", "outcome", outcome)

		if !threeds.IsPositiveStatus(outcome) {
			surface.close()
		}
	}()

	return surface
}

func post(ctx context.Context, client *http.Client, target string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

type shopperSurface struct {
	closed    chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
}

func (s *shopperSurface) close() { s.closeOnce.Do(func() { close(s.closed) }) }

func (s *shopperSurface) Closed() <-chan struct{} { return s.closed }
func (s *shopperSurface) Remove()                 { s.cancel() }
