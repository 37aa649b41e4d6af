package threeds

import (
	"bytes"
	"fmt"
	"html/template"
)

// Hidden form fields fixed by EMV3DS.
const (
	FieldCReq       = "creq"
	FieldMethodData = "threeDSMethodData"
)

var autoPostTmpl = template.Must(template.New("autopost").Parse(`<!doctype html><meta charset="utf-8">
<body>
  <form id="{{.FormID}}" action="{{.Action}}" method="POST">
    <input type="hidden" name="{{.Field}}" value="{{.Value}}">
  </form>
  <script>document.getElementById({{.FormID}}).submit();</script>
</body>
`))

type autoPost struct {
	FormID string
	Action string
	Field  string
	Value  string
}

func renderAutoPost(p autoPost) (string, error) {
	var buf bytes.Buffer
	if err := autoPostTmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render %s document: %w", p.Field, err)
	}
	return buf.String(), nil
}

// ChallengeDocument returns the page that posts creq to the ACS as soon as
// it loads in the challenge context.
func ChallengeDocument(acsURL, creq string) (string, error) {
	return renderAutoPost(autoPost{
		FormID: "checkout-3ds-form",
		Action: acsURL,
		Field:  FieldCReq,
		Value:  creq,
	})
}

// MethodDocument returns the page that posts threeDSMethodData to the
// issuer's method URL from a hidden context.
func MethodDocument(methodURL, methodData string) (string, error) {
	return renderAutoPost(autoPost{
		FormID: "threeDSMethodForm",
		Action: methodURL,
		Field:  FieldMethodData,
		Value:  methodData,
	})
}
