package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/checkout/internal/sandbox/ledger"
	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/httpx"
	"github.com/aussiebroadwan/checkout/pkg/idx"
	"github.com/aussiebroadwan/checkout/pkg/slogx"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
)

var newID = idx.NewPrefixed

// handleCreateSession answers POST /session.
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := g.createSession(r.Header.Get(httpx.APIKeyHeader))
	slogx.FromContext(r.Context()).Info("session created", "session_id", s.ID)

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"sessionId": s.ID})
}

// handleAccessKey answers GET /key/{publicKey}.
func (g *Gateway) handleAccessKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("publicKey")
	if key != r.Header.Get(httpx.APIKeyHeader) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "unknown public key")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, checkoutsdk.AccessKeyDetails{
		PublicKey:       key,
		MerchantName:    "Sandbox Merchant",
		CountryCode:     "826",
		ApplePayEnabled: false,
	})
}

// handleStart3DS answers POST /3ds.
func (g *Gateway) handleStart3DS(w http.ResponseWriter, r *http.Request) {
	var req checkoutsdk.Start3DSRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.CardTokenID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "CardTokenID is required")
		return
	}

	txn := newID("txn")
	s, ok := g.updateSession(req.SessionID, func(s *session) { s.ServerTransID = txn })
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "unknown_session", "session not found or expired")
		return
	}
	g.bindTransaction(txn, s.ID)

	out := checkoutsdk.Start3DSResponse{
		SessionID:      s.ID,
		ThreeDSRequest: checkoutsdk.ThreeDSRequest{Scheme: "visa"},
	}
	if g.opts.MethodStep {
		out.ThreeDSRequest.MethodURL = g.opts.PublicURL + "/acs/method"
		out.ThreeDSRequest.MethodData = encodePayload(methodData{
			ServerTransID:   txn,
			NotificationURL: g.opts.PublicURL + "/acs/method",
		})
	}

	slogx.FromContext(r.Context()).Info("3DS started", "session_id", s.ID, "txn", txn, "method", g.opts.MethodStep)
	httpx.WriteJSON(w, http.StatusOK, out)
}

// handleAuthenticate answers POST /3ds/authenticate.
func (g *Gateway) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req checkoutsdk.AuthenticationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if msg := validateAuthentication(req); msg != "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	s, ok := g.session(req.SessionID)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "unknown_session", "session not found or expired")
		return
	}

	txn := s.ServerTransID
	if txn == "" {
		txn = newID("txn")
		g.bindTransaction(txn, s.ID)
		g.updateSession(s.ID, func(s *session) { s.ServerTransID = txn })
	}

	minor := req.Amount.MinorUnits()
	sc := scenarioFor(minor)

	out := checkoutsdk.AuthenticationResponse{
		Result:              sc.auth,
		ErrorMessage:        sc.authErr,
		Scheme:              "visa",
		ProtocolVersion:     messageVersion,
		ServerTransactionID: txn,
	}
	if sc.auth == string(threeds.ResultChallenge) {
		out.Challenge = &checkoutsdk.ChallengeData{
			ACSURL: g.opts.PublicURL + "/acs/challenge",
			CReq: encodePayload(challengeRequest{
				ServerTransID:       txn,
				ACSTransID:          newID("acs"),
				MessageType:         "CReq",
				MessageVersion:      messageVersion,
				ChallengeWindowSize: windowSizeCode(req.ChallengeWindowSize),
			}),
		}
	}

	err := g.ledger.CreateAuthentication(r.Context(), ledger.Authentication{
		ID:                  newID("auth"),
		SessionID:           s.ID,
		CardTokenID:         req.CardTokenID,
		MinorAmount:         minor,
		CurrencyCode:        req.Amount.CurrencyCode,
		Result:              sc.auth,
		ServerTransactionID: txn,
		ErrorMessage:        sc.authErr,
		CreatedAt:           time.Now(),
	})
	if err != nil {
		log.Error("failed to record authentication", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to record authentication")
		return
	}

	log.Info("authentication answered", "session_id", s.ID, "result", sc.auth, "minor_amount", minor)
	httpx.WriteJSON(w, http.StatusOK, out)
}

func validateAuthentication(req checkoutsdk.AuthenticationRequest) string {
	switch {
	case strings.TrimSpace(req.CardTokenID) == "":
		return "cardTokenId is required"
	case req.Amount.Value <= 0:
		return "amount must be positive"
	case strings.TrimSpace(req.Amount.CurrencyCode) == "":
		return "amount.currencyCode is required"
	case req.CardExpiryMonth == "" || req.CardExpiryYear == "":
		return "card expiry is required"
	}
	return ""
}

// handlePayment answers POST /payment. A repeated idempotency token
// returns the recorded answer.
func (g *Gateway) handlePayment(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())
	ctx := r.Context()

	var req checkoutsdk.PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.IdempotencyToken == "" || req.TokenID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "tokenId and idempotencyToken are required")
		return
	}
	if _, ok := g.session(req.SessionID); !ok {
		httpx.WriteError(w, http.StatusNotFound, "unknown_session", "session not found or expired")
		return
	}

	var (
		out      ledger.Payment
		replayed bool
	)
	err := g.ledger.WithTx(ctx, func(tx *ledger.Store) error {
		prev, err := tx.PaymentByIdempotencyToken(ctx, req.IdempotencyToken)
		if err == nil {
			out, replayed = prev, true
			return nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("payment lookup: %w", err)
		}

		p, err := decidePayment(ctx, tx, req)
		if err != nil {
			return err
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})

	// A concurrent request with the same token committed first.
	if errors.Is(err, ledger.ErrAlreadyExists) {
		if prev, lerr := g.ledger.PaymentByIdempotencyToken(ctx, req.IdempotencyToken); lerr == nil {
			out, replayed, err = prev, true, nil
		}
	}
	if err != nil {
		log.Error("failed to record payment", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to record payment")
		return
	}

	if replayed {
		log.Info("payment replayed", "session_id", req.SessionID, "payment_id", out.ID)
	} else {
		log.Info("payment answered", "session_id", req.SessionID, "payment_id", out.ID, "result", out.Result)
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse(out))
}

// decidePayment answers a new payment from the session's latest
// authentication and the amount scenario.
func decidePayment(ctx context.Context, tx *ledger.Store, req checkoutsdk.PaymentRequest) (ledger.Payment, error) {
	p := ledger.Payment{
		ID:               newID("pay"),
		SessionID:        req.SessionID,
		TokenID:          req.TokenID,
		IdempotencyToken: req.IdempotencyToken,
		MinorAmount:      req.MinorAmount,
		CurrencyCode:     req.CurrencyCode,
		CreatedAt:        time.Now(),
	}

	auth, err := tx.LatestAuthentication(ctx, req.SessionID)
	switch {
	case errors.Is(err, ledger.ErrNotFound) || (err == nil && auth.Result != string(threeds.ResultAuthenticated)):
		p.Result = checkoutsdk.ResultInvalidRequest
		p.Message = "session is not authenticated"
	case err != nil:
		return ledger.Payment{}, fmt.Errorf("authentication lookup: %w", err)
	default:
		sc := scenarioFor(req.MinorAmount)
		p.Result, p.Message = sc.payment, sc.message
		if p.Result == checkoutsdk.ResultSuccess {
			p.AuthCode = fmt.Sprintf("%06d", rand.IntN(1_000_000))
		}
	}
	return p, nil
}

func paymentResponse(p ledger.Payment) checkoutsdk.PaymentResponse {
	return checkoutsdk.PaymentResponse{
		Result:   p.Result,
		AuthCode: p.AuthCode,
		Message:  p.Message,
	}
}

type healthResponse struct {
	checkoutsdk.HealthResponse
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// handleLivez answers GET /livez.
func (g *Gateway) handleLivez(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		HealthResponse: checkoutsdk.HealthResponse{Status: "ok"},
		Uptime:         time.Since(g.startTime).Round(time.Second).String(),
		Version:        g.opts.Version,
	})
}

// handleSourceIP answers GET /ip in the ipify format, so an IP lookup can
// run against the sandbox offline.
func (g *Gateway) handleSourceIP(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"ip": host})
}
