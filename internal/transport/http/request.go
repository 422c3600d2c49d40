package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/model"
)

// keyAliases rename legacy or client-specific fields after snake_case keys
// have been camel-cased.
var keyAliases = map[string]string{
	"items":            "cartLines",
	"lines":            "cartLines",
	"cart":             "cartLines",
	"groupId":          "sellingGroupId",
	"shippingOptionId": "shippingRateId",
	"addressLine1":     "line1",
	"addressLine2":     "line2",
	"zip":              "postalCode",
	"countryCode":      "country",
	"stateCode":        "state",
}

// camelCase turns "selling_group_id" into "sellingGroupId". Keys without
// underscores pass through.
func camelCase(k string) string {
	if !strings.Contains(k, "_") {
		return k
	}
	parts := strings.Split(k, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

func normalizeKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			k = camelCase(k)
			if a, ok := keyAliases[k]; ok {
				k = a
			}
			out[k] = normalizeKeys(val)
		}
		return out
	case []any:
		for i := range x {
			x[i] = normalizeKeys(x[i])
		}
		return x
	default:
		return v
	}
}

// decodeCheckout is the one place request spellings are reconciled into a
// model.CheckoutRequest. Top-level contact fields fold into contact.
func decodeCheckout(r io.Reader) (model.CheckoutRequest, error) {
	var raw any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return model.CheckoutRequest{}, apperr.BadRequest("invalid JSON")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return model.CheckoutRequest{}, apperr.BadRequest("invalid JSON")
	}
	top, ok := normalizeKeys(raw).(map[string]any)
	if !ok {
		return model.CheckoutRequest{}, apperr.BadRequest("request body must be a JSON object")
	}
	foldContact(top)

	b, err := json.Marshal(top)
	if err != nil {
		return model.CheckoutRequest{}, apperr.BadRequest("invalid JSON")
	}
	var req model.CheckoutRequest
	strict := json.NewDecoder(bytes.NewReader(b))
	strict.DisallowUnknownFields()
	if err := strict.Decode(&req); err != nil {
		return model.CheckoutRequest{}, apperr.BadRequest(fmt.Sprintf("invalid checkout request: %v", err))
	}
	return req, nil
}

func foldContact(top map[string]any) {
	contact, _ := top["contact"].(map[string]any)
	if contact == nil {
		contact = map[string]any{}
	}
	for from, to := range map[string]string{"email": "email", "contactEmail": "email", "phone": "phone", "contactPhone": "phone"} {
		v, ok := top[from]
		if !ok {
			continue
		}
		delete(top, from)
		if _, set := contact[to]; !set {
			contact[to] = v
		}
	}
	if len(contact) > 0 {
		top["contact"] = contact
	}
}
