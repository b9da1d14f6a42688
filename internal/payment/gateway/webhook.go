package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	paymodels "entrypass/internal/payment/models"
	regmodels "entrypass/internal/registration/models"
	dErrors "entrypass/pkg/domain-errors"
)

// SignatureHeader carries "t=<unix>,te=<test sig>,li=<live sig>".
const SignatureHeader = "Paymongo-Signature"

const (
	EventLinkPaid    = "link.payment.paid"
	EventPaymentPaid = "payment.paid"
	EventPaymentFail = "payment.failed"
)

// Event is a verified, recognized webhook delivery.
type Event struct {
	ID          string
	Type        string
	CheckoutRef string
	Code        string
	Status      paymodels.ProviderStatus
	Amount      regmodels.Amount
}

type webhookEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type     string `json:"type"`
			Livemode bool   `json:"livemode"`
			Data     struct {
				ID         string `json:"id"`
				Type       string `json:"type"`
				Attributes struct {
					Amount      int64             `json:"amount"`
					Status      string            `json:"status"`
					Remarks     string            `json:"remarks"`
					Description string            `json:"description"`
					Metadata    map[string]string `json:"metadata"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// WebhookParser verifies and decodes deliveries. An empty secret skips
// signature verification (local development only).
type WebhookParser struct {
	secret []byte
}

func NewWebhookParser(secret string) *WebhookParser {
	return &WebhookParser{secret: []byte(secret)}
}

// Parse returns ErrUnsupportedEvent for well-formed events we ignore,
// ErrInvalidSignature for bad signatures and CodeBadRequest for malformed bodies.
func (w *WebhookParser) Parse(body []byte, signature string) (*Event, error) {
	if len(w.secret) > 0 {
		if err := w.verify(body, signature); err != nil {
			return nil, err
		}
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed webhook payload")
	}
	attrs := env.Data.Attributes
	if attrs.Type == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "webhook event type is missing")
	}

	resource := attrs.Data
	event := &Event{
		ID:     env.Data.ID,
		Type:   attrs.Type,
		Amount: regmodels.Amount(resource.Attributes.Amount),
	}
	switch attrs.Type {
	case EventLinkPaid:
		event.CheckoutRef = resource.ID
		event.Code = resource.Attributes.Remarks
		event.Status = paymodels.ProviderPaid
	case EventPaymentPaid, EventPaymentFail:
		event.Code = resource.Attributes.Remarks
		if event.Code == "" {
			event.Code = resource.Attributes.Metadata["code"]
		}
		event.CheckoutRef = resource.Attributes.Metadata["checkout_ref"]
		event.Status = paymodels.ProviderPaid
		if attrs.Type == EventPaymentFail {
			event.Status = paymodels.ProviderFailed
		}
	default:
		return nil, fmt.Errorf("%s: %w", attrs.Type, ErrUnsupportedEvent)
	}

	event.Code = strings.ToUpper(strings.TrimSpace(event.Code))
	if event.Code == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "webhook carries no registration code")
	}
	return event, nil
}

func (w *WebhookParser) verify(body []byte, header string) error {
	var ts, test, live string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "te":
			test = v
		case "li":
			live = v
		}
	}
	if ts == "" || (test == "" && live == "") {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, w.secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range []string{live, test} {
		if candidate == "" {
			continue
		}
		got, err := hex.DecodeString(candidate)
		if err == nil && hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign builds a signature header for body, as the provider would.
func Sign(secret string, timestamp int64, body []byte, live bool) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))
	if live {
		return fmt.Sprintf("t=%d,te=,li=%s", timestamp, sig)
	}
	return fmt.Sprintf("t=%d,te=%s,li=", timestamp, sig)
}
