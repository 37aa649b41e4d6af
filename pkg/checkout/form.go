package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/aussiebroadwan/checkout/pkg/slogx"
)

var (
	ErrNoForm      = errors.New("no form to submit")
	ErrNoNavigator = errors.New("no navigator to redirect with")
)

// Form is the host form the checkout is attached to.
type Form interface {
	// SetField adds a hidden field or overwrites an existing one.
	SetField(name, value string)

	// SetTarget changes where Submit sends the form.
	SetTarget(method, action string)

	// Submit performs the native submission.
	Submit(ctx context.Context) error

	// SetControlsEnabled toggles the submit buttons.
	SetControlsEnabled(enabled bool)
}

// Navigator moves the host to another page.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Helpers are handed to hooks.
type Helpers struct {
	form Form
	nav  Navigator
	base string
	log  *slog.Logger
}

func newHelpers(form Form, nav Navigator, pageURL string, log *slog.Logger) *Helpers {
	return &Helpers{form: form, nav: nav, base: pageURL, log: log}
}

// Redirect navigates per r. A redirect without a URL is logged and
// ignored so the shopper stays on the page.
func (h *Helpers) Redirect(ctx context.Context, r Redirect) error {
	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		h.log.Error("redirect without url ignored")
		return nil
	}

	target, err := h.resolve(raw)
	if err != nil {
		return fmt.Errorf("redirect: %w", err)
	}

	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	if method == http.MethodGet {
		if h.nav == nil {
			return ErrNoNavigator
		}
		q := target.Query()
		for k, v := range r.Parameters {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()

		h.log.Info("redirecting", "method", method, "url", target.Redacted())
		return h.nav.Navigate(ctx, target.String())
	}

	if h.form == nil {
		return ErrNoForm
	}
	h.form.SetTarget(http.MethodPost, target.String())
	for _, k := range sortedKeys(r.Parameters) {
		h.form.SetField(k, r.Parameters[k])
	}

	h.log.Info("redirecting", "method", method, "url", target.Redacted())
	return h.form.Submit(ctx)
}

// RedirectURL is Redirect with GET and no parameters.
func (h *Helpers) RedirectURL(ctx context.Context, u string) error {
	return h.Redirect(ctx, Redirect{URL: u})
}

// SubmitForm sets fields on the host form and submits it.
func (h *Helpers) SubmitForm(ctx context.Context, fields map[string]string) error {
	if h.form == nil {
		return ErrNoForm
	}
	for _, k := range sortedKeys(fields) {
		h.form.SetField(k, fields[k])
	}
	return h.form.Submit(ctx)
}

// Enable re-enables the submit controls.
func (h *Helpers) Enable() {
	if h.form != nil {
		h.form.SetControlsEnabled(true)
	}
}

// Disable disables the submit controls.
func (h *Helpers) Disable() {
	if h.form != nil {
		h.form.SetControlsEnabled(false)
	}
}

func (h *Helpers) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if h.base == "" {
		return ref, nil
	}
	base, err := url.Parse(h.base)
	if err != nil {
		return ref, nil
	}
	return base.ResolveReference(ref), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// HTTPForm is a Form for hosts without a DOM: Submit sends the fields to
// the action URL as an HTML form would.
type HTTPForm struct {
	HTTPClient *http.Client
	Logger     *slog.Logger

	mu       sync.Mutex
	method   string
	action   string
	fields   url.Values
	disabled bool
}

// NewHTTPForm creates a form posting to action.
func NewHTTPForm(action string) *HTTPForm {
	return &HTTPForm{
		HTTPClient: http.DefaultClient,
		method:     http.MethodPost,
		action:     action,
		fields:     url.Values{},
	}
}

// SetField implements Form.
func (f *HTTPForm) SetField(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields.Set(name, value)
}

// Field returns the current value of a field.
func (f *HTTPForm) Field(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fields.Get(name)
}

// SetTarget implements Form.
func (f *HTTPForm) SetTarget(method, action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method = strings.ToUpper(method)
	f.action = action
}

// SetControlsEnabled implements Form.
func (f *HTTPForm) SetControlsEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled = !enabled
}

// ControlsEnabled reports the state last set by SetControlsEnabled.
func (f *HTTPForm) ControlsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disabled
}

// Submit implements Form.
func (f *HTTPForm) Submit(ctx context.Context) error {
	f.mu.Lock()
	method, action, body := f.method, f.action, f.fields.Encode()
	f.mu.Unlock()

	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		u, perr := url.Parse(action)
		if perr != nil {
			return fmt.Errorf("form action: %w", perr)
		}
		u.RawQuery = body
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("form submit: %w", err)
	}

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("form submit: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	log := f.Logger
	if log == nil {
		log = slogx.Discard()
	}
	log.Debug("form submitted", "method", method, "status", resp.StatusCode)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("form submit: %s answered %d", method, resp.StatusCode)
	}
	return nil
}
