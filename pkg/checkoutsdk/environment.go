package checkoutsdk

import (
	"fmt"
	"net/url"
	"strings"
)

// Environment groups the base URLs of one gateway deployment.
type Environment struct {
	Name string

	// APIBase is the REST base for session, 3DS and payment calls.
	APIBase string
	// WSBase is the duplex notification endpoint; the session id is added
	// as a query parameter.
	WSBase string
	// FramesBase is the origin serving the card capture frame.
	FramesBase string
}

var (
	Dev = Environment{
		Name:       "dev",
		APIBase:    "https://api-dev.monek.com/embedded-checkout",
		WSBase:     "wss://dev-ws.monek.com/v1/",
		FramesBase: "https://dev-checkout-js.monek.com",
	}

	Prod = Environment{
		Name:       "prod",
		APIBase:    "https://api.monek.com/embedded-checkout",
		WSBase:     "wss://wqen1zbhll.execute-api.eu-west-2.amazonaws.com/v1/",
		FramesBase: "https://checkout-js.monek.com",
	}
)

// EnvQueryParam lets a page force an environment, e.g. ?checkout-env=dev.
const EnvQueryParam = "checkout-env"

// ResolveEnvironment returns the named environment.
func ResolveEnvironment(name string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dev":
		return Dev, nil
	case "prod", "":
		return Prod, nil
	default:
		return Environment{}, fmt.Errorf("unknown environment %q", name)
	}
}

// DetectEnvironment picks an environment from the embedding page URL: an
// explicit query override wins, then local and dev- hosts map to Dev.
// Everything else is Prod.
func DetectEnvironment(pageURL string) Environment {
	u, err := url.Parse(pageURL)
	if err != nil {
		return Prod
	}

	if forced := strings.ToLower(u.Query().Get(EnvQueryParam)); forced == "dev" || forced == "prod" {
		env, _ := ResolveEnvironment(forced)
		return env
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || strings.HasPrefix(host, "dev-") {
		return Dev
	}

	return Prod
}

// SessionURL returns the duplex endpoint for a session.
func (e Environment) SessionURL(sessionID string) string {
	return WithSessionID(e.WSBase, sessionID)
}

// WithSessionID adds sessionId=<id> to a websocket base URL.
func WithSessionID(base, sessionID string) string {
	u, err := url.Parse(base)
	if err != nil {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return base + sep + "sessionId=" + url.QueryEscape(sessionID)
	}

	q := u.Query()
	q.Set("sessionId", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}
