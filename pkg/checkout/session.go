package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/duplex"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
	"github.com/jellydator/ttlcache/v3"
)

// ErrMissingSession is returned when the host has no session id.
var ErrMissingSession = errors.New("missing session id")

// SessionProvider supplies the checkout session id.
type SessionProvider interface {
	SessionID(ctx context.Context) (string, error)
}

// StaticSession is a session id created elsewhere, typically by the
// merchant server.
type StaticSession string

func (s StaticSession) SessionID(context.Context) (string, error) {
	return string(s), nil
}

// SessionCreator creates sessions. *checkoutsdk.Client implements it.
type SessionCreator interface {
	CreateSession(ctx context.Context) (string, error)
}

// CreatedSession creates a session on first use and keeps it for TTL, so a
// retry after a failed challenge reuses the same session id.
type CreatedSession struct {
	api   SessionCreator
	cache *ttlcache.Cache[string, string]
	mu    sync.Mutex
}

const sessionCacheKey = "session"

// NewCreatedSession returns a provider backed by api. A ttl of zero keeps
// the session until Reset.
func NewCreatedSession(api SessionCreator, ttl time.Duration) *CreatedSession {
	return &CreatedSession{
		api: api,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, string](ttl),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

// SessionID implements SessionProvider.
func (s *CreatedSession) SessionID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.cache.Get(sessionCacheKey); item != nil {
		return item.Value(), nil
	}

	id, err := s.api.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	s.cache.Set(sessionCacheKey, id, ttlcache.DefaultTTL)
	return id, nil
}

// Reset forgets the session; the next call creates a new one.
func (s *CreatedSession) Reset() {
	s.cache.Delete(sessionCacheKey)
}

func resolveSession(ctx context.Context, p SessionProvider) (string, error) {
	if p == nil {
		return "", ErrMissingSession
	}
	id, err := p.SessionID(ctx)
	if err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrMissingSession
	}
	return id, nil
}

// Channel is an open session channel.
type Channel interface {
	threeds.EventChannel
	Close() error
}

// ChannelOpener opens the session channel for a run.
type ChannelOpener interface {
	OpenChannel(ctx context.Context, sessionID string) (Channel, error)
}

// DuplexOpener opens duplex websocket channels under a base URL.
type DuplexOpener struct {
	BaseURL string
	Options []duplex.Option
}

// NewDuplexOpener opens channels against env's websocket endpoint.
func NewDuplexOpener(env checkoutsdk.Environment, opts ...duplex.Option) *DuplexOpener {
	return &DuplexOpener{BaseURL: env.WSBase, Options: opts}
}

// OpenChannel implements ChannelOpener.
func (o *DuplexOpener) OpenChannel(ctx context.Context, sessionID string) (Channel, error) {
	c := duplex.New(checkoutsdk.WithSessionID(o.BaseURL, sessionID), o.Options...)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
