package checkoutsdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultIPEndpoints are queried in order by IPLookup.
var DefaultIPEndpoints = []string{
	"https://api.ipify.org?format=json",
	"https://api64.ipify.org?format=json",
}

// IPLookup discovers the shopper's public IP address. It is best-effort:
// every failure yields an empty string.
type IPLookup struct {
	HTTPClient *http.Client
	Endpoints  []string

	// Timeout bounds each endpoint attempt, defaulting to 1.5s.
	Timeout time.Duration
}

// NewIPLookup returns a lookup against the public ipify endpoints.
func NewIPLookup() *IPLookup {
	return &IPLookup{
		HTTPClient: http.DefaultClient,
		Endpoints:  DefaultIPEndpoints,
		Timeout:    1500 * time.Millisecond,
	}
}

// SourceIP tries each endpoint in turn and returns the first address found.
func (l *IPLookup) SourceIP(ctx context.Context) string {
	for _, endpoint := range l.Endpoints {
		if ip := l.query(ctx, endpoint); ip != "" {
			return ip
		}
		if ctx.Err() != nil {
			return ""
		}
	}
	return ""
}

func (l *IPLookup) query(ctx context.Context, endpoint string) string {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Cache-Control", "no-store")

	client := l.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.IP)
}
