package checkoutsdk

import "math"

// ============================================================================
// Shared
// ============================================================================

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// Amount is a transaction amount in major units, e.g. 10.50 GBP.
type Amount struct {
	Value        float64 `json:"value"`
	CurrencyCode string  `json:"currencyCode"`
}

// IsZero reports whether the amount is absent.
func (a Amount) IsZero() bool {
	return a.Value == 0 && a.CurrencyCode == ""
}

// MinorUnits converts Value to minor units assuming two decimal places.
// Currency exponent tables are the host's concern.
func (a Amount) MinorUnits() int64 {
	return int64(math.Round(a.Value * 100))
}

// Address is a cardholder billing address.
type Address struct {
	AddressLine1 string `json:"addressLine1,omitempty"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city,omitempty"`
	Postcode     string `json:"postcode,omitempty"`
	Country      string `json:"country,omitempty"`
}

// Cardholder describes the person paying.
type Cardholder struct {
	Name           string   `json:"name,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	BillingAddress *Address `json:"billingAddress,omitempty"`
}

// IsZero reports whether no cardholder detail was supplied at all.
func (c Cardholder) IsZero() bool {
	return c.Name == "" && c.Email == "" && c.Phone == "" && c.BillingAddress == nil
}

// ============================================================================
// Session
// ============================================================================

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// AccessKeyDetails describes the merchant behind a public key.
type AccessKeyDetails struct {
	PublicKey       string `json:"publicKey"`
	MerchantName    string `json:"merchantName,omitempty"`
	CountryCode     string `json:"countryCode,omitempty"`
	ApplePayEnabled bool   `json:"applePayEnabled"`
}

// ============================================================================
// 3-D Secure
// ============================================================================

// Start3DSRequest begins 3DS for a tokenised card.
type Start3DSRequest struct {
	CardTokenID string `json:"CardTokenID"`
	SessionID   string `json:"SessionID"`
}

// ThreeDSRequest carries the issuer's method URL and payload. Both are empty
// when the issuer has no method step.
type ThreeDSRequest struct {
	Scheme     string `json:"scheme"`
	MethodURL  string `json:"methodUrl,omitempty"`
	MethodData string `json:"methodData,omitempty"`
}

// Start3DSResponse is the answer to Start3DS. Gateway responses use either
// PascalCase or camelCase keys; encoding/json matches both.
type Start3DSResponse struct {
	SessionID      string         `json:"sessionId"`
	ThreeDSRequest ThreeDSRequest `json:"threeDSRequest"`
}

// BrowserInformation is the device fingerprint the ACS uses for risk
// assessment.
type BrowserInformation struct {
	AcceptHeader        string `json:"acceptHeader"`
	IPAddress           string `json:"ipAddress,omitempty"`
	IsJavascriptEnabled bool   `json:"isJavascriptEnabled"`
	IsJavaEnabled       bool   `json:"isJavaEnabled"`
	Language            string `json:"language"`
	ColourDepth         string `json:"colourDepth"`
	ScreenHeight        string `json:"screenHeight"`
	ScreenWidth         string `json:"screenWidth"`
	Timezone            string `json:"timezone"`
	UserAgent           string `json:"userAgent"`
}

// AuthenticationRequest is the body of POST /3ds/authenticate.
type AuthenticationRequest struct {
	SessionID             string             `json:"sessionId"`
	CardTokenID           string             `json:"cardTokenId"`
	Amount                Amount             `json:"amount"`
	Intent                string             `json:"intent"`
	CardholderInformation Cardholder         `json:"cardholderInformation"`
	BrowserInformation    BrowserInformation `json:"browserInformation"`
	Description           string             `json:"description"`
	CardExpiryMonth       string             `json:"cardExpiryMonth"`
	CardExpiryYear        string             `json:"cardExpiryYear"`
	ChallengeWindowSize   string             `json:"challengeWindowSize,omitempty"`
	SourceIPAddress       string             `json:"sourceIpAddress,omitempty"`
}

// ChallengeData is present when the ACS requires a challenge.
type ChallengeData struct {
	CReq   string `json:"cReq"`
	ACSURL string `json:"acsUrl"`
}

// AuthenticationResponse is the gateway's authentication verdict.
type AuthenticationResponse struct {
	Result              string         `json:"result"`
	ErrorMessage        string         `json:"errorMessage,omitempty"`
	Scheme              string         `json:"scheme,omitempty"`
	ProtocolVersion     string         `json:"protocolVersion,omitempty"`
	ServerTransactionID string         `json:"serverTransactionId,omitempty"`
	Challenge           *ChallengeData `json:"challenge,omitempty"`
}

// ============================================================================
// Payment
// ============================================================================

// PaymentCard carries the expiry; the PAN travels only inside the token.
type PaymentCard struct {
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
}

// PaymentCardholder is the flattened cardholder block of a payment.
type PaymentCardholder struct {
	Name            string `json:"name,omitempty"`
	EmailAddress    string `json:"emailAddress,omitempty"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	BillingStreet1  string `json:"billingStreet1,omitempty"`
	BillingStreet2  string `json:"billingStreet2,omitempty"`
	BillingCity     string `json:"billingCity,omitempty"`
	BillingPostcode string `json:"billingPostcode,omitempty"`
}

// PaymentRequest is the body of POST /payment.
type PaymentRequest struct {
	SessionID string `json:"sessionId"`
	TokenID   string `json:"tokenId"`

	SettlementType string `json:"settlementType"`
	CardEntry      string `json:"cardEntry"`
	Intent         string `json:"intent"`
	Order          string `json:"order"`

	CurrencyCode string `json:"currencyCode"`
	MinorAmount  int64  `json:"minorAmount"`
	CountryCode  string `json:"countryCode"`

	Card       PaymentCard       `json:"card"`
	CardHolder PaymentCardholder `json:"cardHolder"`

	StoreCardDetails bool   `json:"storeCardDetails"`
	IdempotencyToken string `json:"idempotencyToken"`

	Source          string `json:"source"`
	SourceIPAddress string `json:"sourceIpAddress,omitempty"`
	URL             string `json:"url,omitempty"`

	BasketDescription string `json:"basketDescription"`
	ValidityID        string `json:"validityId,omitempty"`
	Channel           string `json:"channel,omitempty"`
	PaymentReference  string `json:"paymentReference,omitempty"`
}

// PaymentResponse is the raw payment verdict.
type PaymentResponse struct {
	Result    string `json:"result"`
	ErrorCode string `json:"errorCode,omitempty"`
	AuthCode  string `json:"authCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// NewPaymentCardholder flattens c into the payment shape.
func NewPaymentCardholder(c Cardholder) PaymentCardholder {
	out := PaymentCardholder{
		Name:         c.Name,
		EmailAddress: c.Email,
		PhoneNumber:  c.Phone,
	}
	if b := c.BillingAddress; b != nil {
		out.BillingStreet1 = b.AddressLine1
		out.BillingStreet2 = b.AddressLine2
		out.BillingCity = b.City
		out.BillingPostcode = b.Postcode
	}
	return out
}
