// Package gateway is a local stand-in for the checkout gateway, the issuer
// ACS and the session notification service. It speaks the same REST and
// websocket contract as production so the SDK can run end to end offline.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/checkout/internal/sandbox/ledger"
	"github.com/aussiebroadwan/checkout/pkg/httpx"
	"github.com/aussiebroadwan/checkout/pkg/slogx"
	"github.com/jellydator/ttlcache/v3"
)

// Options configure a Gateway.
type Options struct {
	// PublicURL prefixes the ACS and method URLs handed to the SDK.
	PublicURL string

	PublicKeys     []string
	AllowedOrigins []string

	SessionTTL time.Duration
	MethodStep bool
	Version    string
}

// session is the gateway's view of a checkout session.
type session struct {
	ID        string
	PublicKey string
	CreatedAt time.Time

	// ServerTransID is set by Start3DS and reused by authenticate.
	ServerTransID string
}

type Gateway struct {
	Mux *http.ServeMux

	// handler is Mux behind the global middleware chain.
	handler http.Handler

	opts      Options
	ledger    *ledger.Store
	hub       *Hub
	logger    *slog.Logger
	startTime time.Time

	mu       sync.Mutex
	sessions *ttlcache.Cache[string, session]

	// txns maps a 3DS server transaction id to its session id.
	txns *ttlcache.Cache[string, string]
}

// New builds the gateway and registers its routes.
func New(opts Options, store *ledger.Store, logger *slog.Logger) *Gateway {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	opts.PublicURL = strings.TrimSuffix(opts.PublicURL, "/")

	g := &Gateway{
		Mux:       http.NewServeMux(),
		opts:      opts,
		ledger:    store,
		hub:       NewHub(slogx.Named(logger, "hub")),
		logger:    logger,
		startTime: time.Now(),
		sessions: ttlcache.New(
			ttlcache.WithTTL[string, session](opts.SessionTTL),
		),
		txns: ttlcache.New(
			ttlcache.WithTTL[string, string](opts.SessionTTL),
		),
	}

	g.registerRoutes()
	g.handler = httpx.Chain(g.Mux,
		slogx.HTTPMiddleware(logger),
		httpx.CORS(opts.AllowedOrigins),
	)
	return g
}

// ServeHTTP applies the global middleware chain.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

// Hub exposes the notification hub.
func (g *Gateway) Hub() *Hub { return g.hub }

func (g *Gateway) registerRoutes() {
	keyed := func(h http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(h,
			httpx.RateLimitByIP(limit),
			g.requireKey,
		)
	}
	public := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, httpx.RateLimitByIP(httpx.PublicLimit))
	}

	g.Mux.Handle("POST /session", keyed(g.handleCreateSession, httpx.SessionLimit))
	g.Mux.Handle("GET /key/{publicKey}", keyed(g.handleAccessKey, httpx.SessionLimit))
	g.Mux.Handle("POST /3ds", keyed(g.handleStart3DS, httpx.PaymentLimit))
	g.Mux.Handle("POST /3ds/authenticate", keyed(g.handleAuthenticate, httpx.PaymentLimit))
	g.Mux.Handle("POST /payment", httpx.Chain(http.HandlerFunc(g.handlePayment),
		httpx.RateLimitByAPIKey(httpx.PaymentLimit),
		g.requireKey,
	))

	g.Mux.Handle("POST /acs/method", public(g.handleMethod))
	g.Mux.Handle("POST /acs/challenge", public(g.handleChallenge))
	g.Mux.Handle("POST /acs/challenge/complete", public(g.handleChallengeComplete))

	g.Mux.Handle("GET /ws", g.hub)
	g.Mux.Handle("GET /livez", public(g.handleLivez))
	g.Mux.Handle("GET /ip", public(g.handleSourceIP))
}

// requireKey rejects calls without a known x-api-key.
func (g *Gateway) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(httpx.APIKeyHeader))
		if !slices.Contains(g.opts.PublicKeys, key) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_key", "unknown or missing public key")
			return
		}
		next.ServeHTTP(w, r.WithContext(slogx.With(r.Context(), "public_key", key)))
	})
}

func (g *Gateway) createSession(publicKey string) session {
	s := session{
		ID:        newID("sess"),
		PublicKey: publicKey,
		CreatedAt: time.Now(),
	}
	g.sessions.Set(s.ID, s, ttlcache.DefaultTTL)
	return s
}

func (g *Gateway) session(id string) (session, bool) {
	item := g.sessions.Get(strings.TrimSpace(id))
	if item == nil {
		return session{}, false
	}
	return item.Value(), true
}

// updateSession applies fn to a live session.
func (g *Gateway) updateSession(id string, fn func(*session)) (session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.session(id)
	if !ok {
		return session{}, false
	}
	fn(&s)
	g.sessions.Set(s.ID, s, ttlcache.DefaultTTL)
	return s, true
}

func (g *Gateway) bindTransaction(txn, sessionID string) {
	g.txns.Set(txn, sessionID, ttlcache.DefaultTTL)
}

func (g *Gateway) sessionForTransaction(txn string) (string, bool) {
	item := g.txns.Get(txn)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Janitor evicts expired sessions until ctx is done.
func (g *Gateway) Janitor(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		g.sessions.Stop()
		g.txns.Stop()
	}()

	go g.txns.Start()
	g.sessions.Start()
	return nil
}

// Shutdown closes every open notification socket.
func (g *Gateway) Shutdown() {
	g.hub.CloseAll()
}
