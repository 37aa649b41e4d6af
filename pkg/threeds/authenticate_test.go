package threeds_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	calls int
	req   checkoutsdk.AuthenticationRequest
	resp  *checkoutsdk.AuthenticationResponse
	err   error
}

func (f *fakeAPI) Authenticate(_ context.Context, req checkoutsdk.AuthenticationRequest) (*checkoutsdk.AuthenticationResponse, error) {
	f.calls++
	f.req = req
	return f.resp, f.err
}

func fullTransaction() threeds.Transaction {
	return threeds.Transaction{
		AmountFunc: func(context.Context) (checkoutsdk.Amount, error) {
			return checkoutsdk.Amount{Value: 10.5, CurrencyCode: "GBP"}, nil
		},
		Cardholder:  &checkoutsdk.Cardholder{Name: "Jo Bloggs", Email: "jo@example.com"},
		Description: "Order #1001",
	}
}

func TestAuthenticatePreconditions(t *testing.T) {
	t.Parallel()

	amount := &checkoutsdk.Amount{Value: 1, CurrencyCode: "GBP"}
	holder := &checkoutsdk.Cardholder{Name: "Jo"}

	tests := []struct {
		name    string
		tx      threeds.Transaction
		field   string
		message string
	}{
		{
			name:    "nothing at all",
			tx:      threeds.Transaction{},
			field:   "amount",
			message: "missing amount: pass in or provide AmountFunc",
		},
		{
			name: "zero amount",
			tx: threeds.Transaction{
				Amount:      &checkoutsdk.Amount{CurrencyCode: "GBP"},
				Cardholder:  holder,
				Description: "x",
			},
			field:   "amount",
			message: "missing amount: pass in or provide AmountFunc",
		},
		{
			name:    "no cardholder",
			tx:      threeds.Transaction{Amount: amount, Description: "x"},
			field:   "cardholder information",
			message: "missing cardholder information: pass in or provide CardholderFunc",
		},
		{
			name: "no description",
			tx: threeds.Transaction{
				Amount:          amount,
				CardholderFunc:  func(context.Context) (*checkoutsdk.Cardholder, error) { return holder, nil },
				DescriptionFunc: func(context.Context) (string, error) { return "  ", nil },
			},
			field:   "description",
			message: "missing description: pass in or provide DescriptionFunc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{}
			_, err := threeds.Authenticate(t.Context(), api, threeds.AuthenticateRequest{
				SessionID:   "sess_1",
				CardTokenID: "tok_1",
				Expiry:      "12/30",
				Transaction: tt.tx,
			})

			var pe *threeds.PreconditionError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, tt.field, pe.Field)
			require.EqualError(t, err, tt.message)
			require.Zero(t, api.calls, "no network call on a failed precondition")
		})
	}
}

func TestAuthenticateBuildsRequest(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{resp: &checkoutsdk.AuthenticationResponse{
		Result:          "challenge",
		Scheme:          "visa",
		ProtocolVersion: "2.2.0",
		Challenge:       &checkoutsdk.ChallengeData{ACSURL: "https://acs.example/", CReq: "eyJ..."},
	}}

	res, err := threeds.Authenticate(t.Context(), api, threeds.AuthenticateRequest{
		SessionID:     "sess_1",
		CardTokenID:   "tok_1",
		Expiry:        "07/29",
		Transaction:   fullTransaction(),
		ChallengeSize: threeds.SizeLarge,
		SourceIP:      func(context.Context) string { return "203.0.113.7" },
	})
	require.NoError(t, err)

	require.Equal(t, threeds.ResultChallenge, res.Result)
	require.Equal(t, &threeds.ChallengePayload{ACSURL: "https://acs.example/", CReq: "eyJ..."}, res.Challenge)
	require.Equal(t, "visa", res.Scheme)

	req := api.req
	require.Equal(t, "sess_1", req.SessionID)
	require.Equal(t, "tok_1", req.CardTokenID)
	require.Equal(t, "07", req.CardExpiryMonth)
	require.Equal(t, "29", req.CardExpiryYear)
	require.Equal(t, "purchase", req.Intent)
	require.Equal(t, "Order #1001", req.Description)
	require.Equal(t, 10.5, req.Amount.Value)
	require.Equal(t, "Jo Bloggs", req.CardholderInformation.Name)
	require.Equal(t, "large", req.ChallengeWindowSize)
	require.Equal(t, "203.0.113.7", req.SourceIPAddress)

	b := req.BrowserInformation
	require.Equal(t, "*/*", b.AcceptHeader)
	require.True(t, b.IsJavascriptEnabled)
	require.False(t, b.IsJavaEnabled)
	require.Equal(t, "SDK", b.UserAgent)
	require.Equal(t, "203.0.113.7", b.IPAddress)
	require.NotEmpty(t, b.Timezone)
}

func TestAuthenticateDropsChallengeUnlessRequired(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{resp: &checkoutsdk.AuthenticationResponse{
		Result:    "authenticated",
		Challenge: &checkoutsdk.ChallengeData{ACSURL: "https://acs.example/"},
	}}

	res, err := threeds.Authenticate(t.Context(), api, threeds.AuthenticateRequest{
		Expiry:      "12/30",
		Transaction: fullTransaction(),
		BrowserInfo: func(context.Context) checkoutsdk.BrowserInformation {
			return checkoutsdk.BrowserInformation{UserAgent: "native/1.0"}
		},
	})
	require.NoError(t, err)
	require.Equal(t, threeds.ResultAuthenticated, res.Result)
	require.Nil(t, res.Challenge)
	require.Equal(t, "native/1.0", api.req.BrowserInformation.UserAgent)
	require.Empty(t, api.req.SourceIPAddress)
}

func TestAuthenticateErrorMessageIsFatal(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{resp: &checkoutsdk.AuthenticationResponse{
		Result:       "authenticated",
		ErrorMessage: "Card not enrolled",
	}}

	res, err := threeds.Authenticate(t.Context(), api, threeds.AuthenticateRequest{Expiry: "12/30", Transaction: fullTransaction()})
	require.ErrorIs(t, err, threeds.ErrAuthentication)
	require.EqualError(t, err, "3DS authentication error: Card not enrolled")
	require.NotNil(t, res)
}

func TestAuthenticateTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := checkoutsdk.NewClient(srv.URL, "pk_test")
	client.HTTPClient = srv.Client()

	_, err := threeds.Authenticate(t.Context(), client, threeds.AuthenticateRequest{Expiry: "12/30", Transaction: fullTransaction()})
	require.True(t, checkoutsdk.IsStatus(err, http.StatusBadGateway))
	require.EqualError(t, err, "3DS authenticate failed (502)")
}

func TestAuthenticateProviderError(t *testing.T) {
	t.Parallel()

	tx := fullTransaction()
	tx.AmountFunc = func(context.Context) (checkoutsdk.Amount, error) { return checkoutsdk.Amount{}, errors.New("basket gone") }

	api := &fakeAPI{}
	_, err := threeds.Authenticate(t.Context(), api, threeds.AuthenticateRequest{Expiry: "12/30", Transaction: tx})
	require.ErrorContains(t, err, "basket gone")
	require.Zero(t, api.calls)
}

func TestSplitExpiry(t *testing.T) {
	t.Parallel()

	m, y, err := threeds.SplitExpiry("12/30")
	require.NoError(t, err)
	require.Equal(t, "12", m)
	require.Equal(t, "30", y)

	m, y, err = threeds.SplitExpiry(" 01 / 27 ")
	require.NoError(t, err)
	require.Equal(t, "01", m)
	require.Equal(t, "27", y)

	for _, bad := range []string{"", "1230", "12/", "/30"} {
		_, _, err := threeds.SplitExpiry(bad)
		require.ErrorIs(t, err, threeds.ErrInvalidExpiry, bad)
	}
}

func TestDocuments(t *testing.T) {
	t.Parallel()

	doc, err := threeds.ChallengeDocument("https://acs.example/challenge?x=1&y=2", `ab"><script>alert(1)</script>`)
	require.NoError(t, err)
	require.Contains(t, doc, `action="https://acs.example/challenge?x=1&amp;y=2"`)
	require.Contains(t, doc, `name="creq"`)
	require.Contains(t, doc, `method="POST"`)
	require.NotContains(t, doc, "<script>alert(1)")
	require.Equal(t, 1, strings.Count(doc, "<script>"))

	doc, err = threeds.MethodDocument("https://acs.example/method", "eyJ0aHJlZURTU2VydmVyVHJhbnNJRCI6IjEifQ")
	require.NoError(t, err)
	require.Contains(t, doc, `name="threeDSMethodData"`)
	require.Contains(t, doc, `value="eyJ0aHJlZURTU2VydmVyVHJhbnNJRCI6IjEifQ"`)

	doc, err = threeds.ChallengeDocument("javascript:alert(1)", "x")
	require.NoError(t, err)
	require.NotContains(t, doc, "javascript:")
}
