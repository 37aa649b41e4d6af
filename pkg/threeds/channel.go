// Package threeds runs the browser side of EMV 3-D Secure: the silent
// method step, the authentication call and the interactive challenge.
//
// None of the steps touch a DOM. Hidden browsing contexts are host
// capabilities (MethodSubmitter, Renderer); the package produces the
// auto-posting documents the EMV3DS wire contract requires and decides how
// the racing completion signals settle.
package threeds

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/duplex"
)

// Duplex channel topics.
const (
	TopicMethodResult    = "3ds.method.result"
	TopicChallengeResult = "3ds.challenge.result"
)

// EventChannel is the part of the session channel the steps wait on.
// *duplex.Client implements it.
type EventChannel interface {
	WaitFor(ctx context.Context, topic string, match func(duplex.Event) bool, timeout time.Duration) (duplex.Event, error)
}

var _ EventChannel = (*duplex.Client)(nil)

func forSession(sessionID string) func(duplex.Event) bool {
	return func(ev duplex.Event) bool { return ev.SessionID() == sessionID }
}

// positiveStatuses are the challenge result markers that count as a
// completed challenge.
var positiveStatuses = []string{
	"complete", "completed", "success", "succeeded", "authenticated", "ok", "Y", "A",
}

// IsPositiveStatus reports whether status marks a completed challenge.
func IsPositiveStatus(status string) bool {
	status = strings.TrimSpace(status)
	for _, s := range positiveStatuses {
		if strings.EqualFold(status, s) {
			return true
		}
	}
	return false
}
