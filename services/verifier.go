package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"plan-delivery-service/models"
)

var (
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrStaleEvent       = errors.New("webhook timestamp outside tolerance window")
	ErrMalformedEvent   = errors.New("malformed webhook payload")
)

// VerifiedEvent is a webhook payload that passed signature and freshness
// checks.
type VerifiedEvent struct {
	Event      models.PaymentEvent
	ReceivedAt time.Time
	Raw        []byte
}

// WebhookVerifier authenticates inbound payment notifications. Verification
// is pure: no state is created or mutated for rejected payloads.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	return &WebhookVerifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify checks the HMAC-SHA256 signature over "<timestamp>.<body>" and the
// timestamp freshness, then parses the event. The signature covers the
// timestamp header, so a replayed body with a fresh timestamp fails the MAC.
func (v *WebhookVerifier) Verify(body []byte, signatureHeader, timestampHeader string) (*VerifiedEvent, error) {
	signature := strings.TrimSpace(signatureHeader)
	timestamp := strings.TrimSpace(timestampHeader)
	if signature == "" || timestamp == "" {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, ErrMalformedEvent
	}
	now := v.now()
	age := now.Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return nil, ErrStaleEvent
	}

	var event models.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ErrMalformedEvent
	}
	if event.TransactionID == "" || event.CustomerEmail == "" {
		return nil, ErrMalformedEvent
	}

	return &VerifiedEvent{Event: event, ReceivedAt: now, Raw: body}, nil
}
