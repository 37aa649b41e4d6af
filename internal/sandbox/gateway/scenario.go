package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
)

// Scenarios are picked by the last two digits of the minor amount, so a
// test selects a path through the amount it charges:
//
//	xx02  challenge
//	xx03  not authenticated
//	xx04  authentication error ("Card not enrolled")
//	xx05  payment declined (retryable)
//	xx06  payment blocked (UnknownRetailer)
//	xx07  payment referred (retryable)
//
// Everything else authenticates frictionlessly and pays.
type scenario struct {
	auth    string
	authErr string
	payment string
	message string
}

func scenarioFor(minor int64) scenario {
	s := scenario{auth: "authenticated", payment: checkoutsdk.ResultSuccess}

	switch minor % 100 {
	case 2:
		s.auth = "challenge"
	case 3:
		s.auth = "not-authenticated"
	case 4:
		s.auth = "not-authenticated"
		s.authErr = "Card not enrolled"
	case 5:
		s.payment = checkoutsdk.ResultDeclined
		s.message = "Do not honour"
	case 6:
		s.payment = checkoutsdk.ResultUnknownRetailer
		s.message = "Unknown retailer"
	case 7:
		s.payment = checkoutsdk.ResultReferred
		s.message = "Refer to card issuer"
	}
	return s
}

// methodData is the EMV3DS threeDSMethodData payload.
type methodData struct {
	ServerTransID   string `json:"threeDSServerTransID"`
	NotificationURL string `json:"threeDSMethodNotificationURL"`
}

// challengeRequest is the EMV3DS CReq payload.
type challengeRequest struct {
	ServerTransID       string `json:"threeDSServerTransID"`
	ACSTransID          string `json:"acsTransID"`
	MessageType         string `json:"messageType"`
	MessageVersion      string `json:"messageVersion"`
	ChallengeWindowSize string `json:"challengeWindowSize"`
}

const messageVersion = "2.2.0"

var errBadPayload = errors.New("malformed 3DS payload")

func encodePayload(v any) string {
	b, _ := json.Marshal(v)
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodePayload accepts padded and unpadded base64url, which issuers mix.
func decodePayload(s string, dst any) error {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(s), "="))
	if err != nil {
		return errBadPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errBadPayload
	}
	return nil
}

// windowSizeCode maps the SDK's challenge size preset onto the EMV3DS
// challengeWindowSize code.
func windowSizeCode(size string) string {
	switch strings.ToLower(size) {
	case "small":
		return "01"
	case "large":
		return "04"
	default:
		return "03"
	}
}
