package threeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/slogx"
)

var (
	// ErrAuthentication wraps an errorMessage returned by the authentication
	// endpoint. It always stops the flow.
	ErrAuthentication = errors.New("3DS authentication error")

	// ErrInvalidExpiry is returned when the captured expiry is not MM/YY.
	ErrInvalidExpiry = errors.New("invalid card expiry: want MM/YY")
)

// AuthResult is the verdict tag of an authentication.
type AuthResult string

const (
	ResultAuthenticated    AuthResult = "authenticated"
	ResultChallenge        AuthResult = "challenge"
	ResultNotAuthenticated AuthResult = "not-authenticated"
)

// ChallengePayload is what the ACS needs to start a challenge.
type ChallengePayload struct {
	ACSURL string
	CReq   string
}

// AuthenticationResult is the interpreted authentication response. The
// orchestrator rewrites Result once a challenge settles.
type AuthenticationResult struct {
	Result              AuthResult
	ErrorMessage        string
	Scheme              string
	ProtocolVersion     string
	ServerTransactionID string

	// Challenge is only set when Result is ResultChallenge.
	Challenge *ChallengePayload
}

// API is the gateway call the step needs. *checkoutsdk.Client implements it.
type API interface {
	Authenticate(ctx context.Context, req checkoutsdk.AuthenticationRequest) (*checkoutsdk.AuthenticationResponse, error)
}

// BrowserInfoFunc collects the device fingerprint.
type BrowserInfoFunc func(ctx context.Context) checkoutsdk.BrowserInformation

// SourceIPFunc returns the shopper's public IP, or "" when unknown.
type SourceIPFunc func(ctx context.Context) string

// DefaultBrowserInfo describes a generic client: JavaScript on, Java off,
// English, 32-bit colour and the local timezone offset in hours.
func DefaultBrowserInfo(context.Context) checkoutsdk.BrowserInformation {
	_, offset := time.Now().Zone()
	return checkoutsdk.BrowserInformation{
		AcceptHeader:        "*/*",
		IsJavascriptEnabled: true,
		IsJavaEnabled:       false,
		Language:            "en",
		ColourDepth:         "32",
		ScreenHeight:        "0",
		ScreenWidth:         "0",
		Timezone:            strconv.FormatFloat(float64(offset)/3600, 'f', -1, 64),
		UserAgent:           "SDK",
	}
}

// AuthenticateRequest carries everything Authenticate sends.
type AuthenticateRequest struct {
	SessionID   string
	CardTokenID string

	// Expiry is the captured card expiry as MM/YY.
	Expiry string

	Transaction Transaction

	// Intent defaults to "purchase".
	Intent        string
	ChallengeSize ChallengeSize

	BrowserInfo BrowserInfoFunc
	SourceIP    SourceIPFunc
	Logger      *slog.Logger
}

// SplitExpiry splits "MM/YY" into month and year.
func SplitExpiry(expiry string) (month, year string, err error) {
	month, year, ok := strings.Cut(expiry, "/")
	month, year = strings.TrimSpace(month), strings.TrimSpace(year)
	if !ok || month == "" || year == "" {
		return "", "", ErrInvalidExpiry
	}
	return month, year, nil
}

// Authenticate resolves the transaction details, calls the authentication
// endpoint and interprets the answer. Missing details fail before any
// network call with a *PreconditionError. An errorMessage in the response
// fails with ErrAuthentication; the interpreted result is still returned.
func Authenticate(ctx context.Context, api API, req AuthenticateRequest) (*AuthenticationResult, error) {
	log := req.Logger
	if log == nil {
		log = slogx.Discard()
	}

	details, err := req.Transaction.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	month, year, err := SplitExpiry(req.Expiry)
	if err != nil {
		return nil, err
	}

	browserInfo := req.BrowserInfo
	if browserInfo == nil {
		browserInfo = DefaultBrowserInfo
	}
	browser := browserInfo(ctx)

	var sourceIP string
	if req.SourceIP != nil {
		sourceIP = req.SourceIP(ctx)
	}
	if browser.IPAddress == "" {
		browser.IPAddress = sourceIP
	}

	intent := req.Intent
	if intent == "" {
		intent = "purchase"
	}

	body := checkoutsdk.AuthenticationRequest{
		SessionID:             req.SessionID,
		CardTokenID:           req.CardTokenID,
		Amount:                details.Amount,
		Intent:                intent,
		CardholderInformation: details.Cardholder,
		BrowserInformation:    browser,
		Description:           details.Description,
		CardExpiryMonth:       month,
		CardExpiryYear:        year,
		ChallengeWindowSize:   string(req.ChallengeSize),
		SourceIPAddress:       sourceIP,
	}

	resp, err := api.Authenticate(ctx, body)
	if err != nil {
		return nil, err
	}

	result := interpret(resp)
	log.Debug("authentication interpreted",
		"result", result.Result,
		"scheme", result.Scheme,
		"protocol_version", result.ProtocolVersion,
	)

	if result.ErrorMessage != "" {
		return result, fmt.Errorf("%w: %s", ErrAuthentication, result.ErrorMessage)
	}
	return result, nil
}

func interpret(resp *checkoutsdk.AuthenticationResponse) *AuthenticationResult {
	out := &AuthenticationResult{
		Result:              AuthResult(strings.TrimSpace(resp.Result)),
		ErrorMessage:        strings.TrimSpace(resp.ErrorMessage),
		Scheme:              resp.Scheme,
		ProtocolVersion:     resp.ProtocolVersion,
		ServerTransactionID: resp.ServerTransactionID,
	}
	if out.Result == ResultChallenge && resp.Challenge != nil {
		out.Challenge = &ChallengePayload{
			ACSURL: resp.Challenge.ACSURL,
			CReq:   resp.Challenge.CReq,
		}
	}
	return out
}
