package httpx

import (
	"net/http"

	"github.com/rs/cors"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first one listed is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// CORS allows the listed origins to call the gateway from a browser. A
// single "*" allows any origin. Preflight requests are answered directly.
func CORS(allowedOrigins []string) Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", APIKeyHeader, "X-Request-ID"},
	})
	return c.Handler
}
