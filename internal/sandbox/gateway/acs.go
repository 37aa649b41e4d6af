package gateway

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/checkout/pkg/slogx"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
)

var challengePage = template.Must(template.New("challenge").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Sandbox ACS</title></head>
<body>
<h1>Sandbox issuer challenge</h1>
<p>Transaction {{.Txn}}</p>
<form method="POST" action="{{.Action}}">
<input type="hidden" name="creq" value="{{.CReq}}">
<input type="hidden" name="outcome" value="Y">
<button type="submit">Complete authentication</button>
</form>
<form method="POST" action="{{.Action}}">
<input type="hidden" name="creq" value="{{.CReq}}">
<input type="hidden" name="outcome" value="N">
<button type="submit">Fail authentication</button>
</form>
</body>
</html>
`))

const donePage = `<!DOCTYPE html><html><body><p>Done. You can close this window.</p></body></html>`

func writeHTML(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// handleMethod is the issuer's method URL. The device fingerprint is not
// inspected; receiving the post completes the method step.
func (g *Gateway) handleMethod(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var data methodData
	if err := decodePayload(r.PostFormValue(threeds.FieldMethodData), &data); err != nil {
		writeHTML(w, http.StatusBadRequest, "bad threeDSMethodData")
		return
	}

	sessionID, ok := g.sessionForTransaction(data.ServerTransID)
	if !ok {
		writeHTML(w, http.StatusNotFound, "unknown transaction")
		return
	}

	log.Info("method completed", "session_id", sessionID, "txn", data.ServerTransID)
	g.hub.Publish(sessionID, threeds.TopicMethodResult, map[string]any{
		"status":               "complete",
		"threeDSServerTransID": data.ServerTransID,
	})

	writeHTML(w, http.StatusOK, donePage)
}

// handleChallenge renders the challenge page for a CReq.
func (g *Gateway) handleChallenge(w http.ResponseWriter, r *http.Request) {
	creq := r.PostFormValue(threeds.FieldCReq)

	var req challengeRequest
	if err := decodePayload(creq, &req); err != nil || req.MessageType != "CReq" {
		writeHTML(w, http.StatusBadRequest, "bad creq")
		return
	}
	if _, ok := g.sessionForTransaction(req.ServerTransID); !ok {
		writeHTML(w, http.StatusNotFound, "unknown transaction")
		return
	}

	var b strings.Builder
	err := challengePage.Execute(&b, struct {
		Txn, Action, CReq string
	}{
		Txn:    req.ServerTransID,
		Action: g.opts.PublicURL + "/acs/challenge/complete",
		CReq:   creq,
	})
	if err != nil {
		writeHTML(w, http.StatusInternalServerError, "render failed")
		return
	}
	writeHTML(w, http.StatusOK, b.String())
}

// handleChallengeComplete records the shopper's answer and notifies the
// session. outcome defaults to Y.
func (g *Gateway) handleChallengeComplete(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req challengeRequest
	if err := decodePayload(r.PostFormValue(threeds.FieldCReq), &req); err != nil {
		writeHTML(w, http.StatusBadRequest, "bad creq")
		return
	}

	sessionID, ok := g.sessionForTransaction(req.ServerTransID)
	if !ok {
		writeHTML(w, http.StatusNotFound, "unknown transaction")
		return
	}

	outcome := strings.ToUpper(strings.TrimSpace(r.PostFormValue("outcome")))
	if outcome == "" {
		outcome = "Y"
	}

	result := string(threeds.ResultNotAuthenticated)
	if threeds.IsPositiveStatus(outcome) {
		result = string(threeds.ResultAuthenticated)
	}
	if err := g.ledger.UpdateAuthenticationResult(r.Context(), req.ServerTransID, result); err != nil {
		log.Error("failed to record challenge result", "txn", req.ServerTransID, "error", err)
		writeHTML(w, http.StatusInternalServerError, "failed to record result")
		return
	}

	log.Info("challenge completed", "session_id", sessionID, "txn", req.ServerTransID, "outcome", outcome)
	g.hub.Publish(sessionID, threeds.TopicChallengeResult, map[string]any{
		"status":               outcome,
		"transStatus":          outcome,
		"threeDSServerTransID": req.ServerTransID,
	})

	writeHTML(w, http.StatusOK, donePage)
}
