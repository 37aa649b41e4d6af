// Package framemsg is the message protocol between a host page and the
// sandboxed card capture frame.
//
// Messages are JSON objects tagged by "type". The parent sends ping,
// configuration, tokenise and getExpiry requests; the frame answers with
// ready, tokenised, expiry or error, and may forward its own log entries.
package framemsg

import (
	"encoding/json"
	"fmt"
)

// Parent to frame.
const (
	TypePing            = "PING_FROM_PARENT"
	TypeConfigure       = "configure"
	TypeConfigureLogger = "configureLogger"
	TypeTokenise        = "tokenise"
	TypeGetExpiry       = "getExpiry"
)

// Frame to parent.
const (
	TypeReady     = "ready"
	TypeError     = "error"
	TypeTokenised = "tokenised"
	TypeExpiry    = "expiry"
	TypeLog       = "log"
)

// DefaultErrorCode is used when a frame error message carries no code.
const DefaultErrorCode = "IFRAME_ERROR"

// Message is the union of every message in either direction. Only the
// fields relevant to Type are set.
type Message struct {
	Type string `json:"type"`

	// configure
	ThemeVars       map[string]string `json:"themeVars,omitempty"`
	ApplePayEnabled *bool             `json:"applePayEnabled,omitempty"`

	// configureLogger
	Enabled       *bool  `json:"enabled,omitempty"`
	Level         string `json:"level,omitempty"`
	NamespaceBase string `json:"namespaceBase,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// tokenised / expiry
	CardToken string `json:"cardToken,omitempty"`
	Expiry    string `json:"expiry,omitempty"`

	// log
	Entry *LogEntry `json:"entry,omitempty"`
}

// LogEntry is a log line emitted inside the frame.
type LogEntry struct {
	TimestampMs int64           `json:"timestampMs"`
	Level       string          `json:"level"`
	Namespace   string          `json:"namespace"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
}

func Ping() Message      { return Message{Type: TypePing} }
func Tokenise() Message  { return Message{Type: TypeTokenise} }
func GetExpiry() Message { return Message{Type: TypeGetExpiry} }

// ConfigureTheme passes computed CSS variables to the frame.
func ConfigureTheme(vars map[string]string) Message {
	return Message{Type: TypeConfigure, ThemeVars: vars}
}

// ConfigureApplePay toggles the wallet button inside the frame.
func ConfigureApplePay(enabled bool) Message {
	return Message{Type: TypeConfigure, ApplePayEnabled: &enabled}
}

// ConfigureLogger mirrors the parent's log settings into the frame. Level
// is one of debug, info, warn, error or silent.
func ConfigureLogger(enabled bool, level, namespaceBase, sessionID string) Message {
	return Message{
		Type:          TypeConfigureLogger,
		Enabled:       &enabled,
		Level:         level,
		NamespaceBase: namespaceBase,
		SessionID:     sessionID,
	}
}

func Ready() Message { return Message{Type: TypeReady} }

func Tokenised(cardToken string) Message {
	return Message{Type: TypeTokenised, CardToken: cardToken}
}

func ExpiryReply(expiry string) Message {
	return Message{Type: TypeExpiry, Expiry: expiry}
}

func Error(code, message string) Message {
	return Message{Type: TypeError, Code: code, Message: message}
}

// Encode marshals m for posting.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("framemsg: encode %s: %w", m.Type, err)
	}
	return b, nil
}

// Decode parses an inbound payload. Payloads that are not JSON objects yield
// an empty Message rather than an error, matching how unrelated window
// messages are ignored.
func Decode(data []byte) Message {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}
	}
	return m
}
