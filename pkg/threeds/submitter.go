package threeds

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aussiebroadwan/checkout/pkg/slogx"
)

// HTTPMethodSubmitter posts the method form directly for hosts without a
// browser. The post runs in the background; removing the frame cancels it.
type HTTPMethodSubmitter struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// SubmitMethod implements MethodSubmitter.
func (s *HTTPMethodSubmitter) SubmitMethod(ctx context.Context, methodURL, methodData string) (MethodFrame, error) {
	form := url.Values{FieldMethodData: {methodData}}
	req, err := http.NewRequest(http.MethodPost, methodURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	log := s.Logger
	if log == nil {
		log = slogx.Discard()
	}

	postCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &httpMethodFrame{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(f.done)

		resp, err := client.Do(req.WithContext(postCtx))
		if err != nil {
			log.Debug("method post failed", "error", err)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		log.Debug("method post answered", "status", resp.StatusCode)
	}()

	return f, nil
}

type httpMethodFrame struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Remove cancels the post if it is still running and waits for it to stop.
func (f *httpMethodFrame) Remove() {
	f.once.Do(func() {
		f.cancel()
		<-f.done
	})
}
