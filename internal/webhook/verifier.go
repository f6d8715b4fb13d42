package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/payconnect/internal/clock"
	providerdomain "github.com/smallbiznis/payconnect/internal/provider/domain"
)

// SignatureHeader is the header carrying the signed timestamp and the
// HMAC signatures, in the form "t=<epoch>,v1=<hex>[,v1=<hex>...]".
const SignatureHeader = "Stripe-Signature"

type Reason string

const (
	ReasonBadTimestamp Reason = "bad_timestamp"
	ReasonStale        Reason = "stale_timestamp"
	ReasonBadSignature Reason = "bad_signature"
	ReasonMalformed    Reason = "malformed_payload"
)

// VerificationError is returned for any webhook that fails authenticity or
// freshness checks. Nothing downstream of the verifier ever sees such an
// event.
type VerificationError struct {
	Reason Reason
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("webhook verification failed: %s", e.Reason)
}

func newVerificationError(reason Reason) error {
	return &VerificationError{Reason: reason}
}

// IsVerificationError reports whether err is a webhook verification failure.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}

// Verifier checks webhook authenticity and freshness. It is stateless and
// side-effect-free; verification happens entirely over the raw request
// bytes, before any JSON transformation.
type Verifier struct {
	secret    string
	tolerance time.Duration
	clock     clock.Clock
}

func NewVerifier(secret string, tolerance time.Duration, clk clock.Clock) *Verifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		clock:     clk,
	}
}

// ConstructEvent verifies the signature header against the raw payload and
// parses the payload into a typed event. The timestamp is bounded to the
// tolerance window to limit replay exposure; signatures are compared in
// constant time.
func (v *Verifier) ConstructEvent(payload []byte, sigHeader string) (providerdomain.Event, error) {
	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return providerdomain.Event{}, newVerificationError(ReasonBadTimestamp)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return providerdomain.Event{}, newVerificationError(ReasonBadTimestamp)
	}

	age := v.clock.Now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return providerdomain.Event{}, newVerificationError(ReasonStale)
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(v.secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	matched := false
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return providerdomain.Event{}, newVerificationError(ReasonBadSignature)
	}

	return parseEvent(payload)
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature_header")
	}
	return timestamp, signatures, nil
}

type wireEvent struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Created int64         `json:"created"`
	Data    wireEventData `json:"data"`
}

type wireEventData struct {
	Object json.RawMessage `json:"object"`
}

type wireAccount struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Country          string `json:"country"`
	DefaultCurrency  string `json:"default_currency"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

type wireCapability struct {
	ID      string `json:"id"`
	Account string `json:"account"`
	Status  string `json:"status"`
}

// parseEvent runs only after signature success, so a parse failure here is
// anomalous for a provider-signed payload and is surfaced, not retried.
func parseEvent(payload []byte) (providerdomain.Event, error) {
	var raw wireEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return providerdomain.Event{}, newVerificationError(ReasonMalformed)
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.Type) == "" {
		return providerdomain.Event{}, newVerificationError(ReasonMalformed)
	}

	event := providerdomain.Event{
		ID:      raw.ID,
		Type:    strings.TrimSpace(raw.Type),
		Created: raw.Created,
	}

	switch event.Type {
	case providerdomain.EventTypeAccountUpdated:
		var account wireAccount
		if err := json.Unmarshal(raw.Data.Object, &account); err != nil {
			return providerdomain.Event{}, newVerificationError(ReasonMalformed)
		}
		if strings.TrimSpace(account.ID) == "" {
			return providerdomain.Event{}, newVerificationError(ReasonMalformed)
		}
		event.Account = providerdomain.Account{
			ID:               account.ID,
			Email:            strings.TrimSpace(account.Email),
			Country:          strings.ToUpper(strings.TrimSpace(account.Country)),
			DefaultCurrency:  strings.ToUpper(strings.TrimSpace(account.DefaultCurrency)),
			ChargesEnabled:   account.ChargesEnabled,
			PayoutsEnabled:   account.PayoutsEnabled,
			DetailsSubmitted: account.DetailsSubmitted,
		}
	case providerdomain.EventTypeCapabilityUpdated:
		var capability wireCapability
		if err := json.Unmarshal(raw.Data.Object, &capability); err != nil {
			return providerdomain.Event{}, newVerificationError(ReasonMalformed)
		}
		if strings.TrimSpace(capability.Account) == "" {
			return providerdomain.Event{}, newVerificationError(ReasonMalformed)
		}
		event.Account = providerdomain.Account{ID: strings.TrimSpace(capability.Account)}
	}

	return event, nil
}
