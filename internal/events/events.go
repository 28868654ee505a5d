package events

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrClassificationUnknown marks a payload that matched no known shape. The event is still
	// returned so it can be logged.
	ErrClassificationUnknown = errors.New("unknown card event")

	// ErrMalformedPayload is returned when the body is not a JSON object.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Kind discriminates card events. Values outside the constants below come verbatim from the
// processor's generic "event" field.
type Kind string

const (
	KindAuthorizationRequest Kind = "authorization_request"
	KindTransactionCreated   Kind = "transaction_created"
	KindTransactionRefund    Kind = "transaction_refund"
	KindTransactionDeclined  Kind = "transaction_declined"
	KindCrossBorder          Kind = "cross_border_transaction"
	KindUnknown              Kind = "unknown"
)

// CardEvent is the canonical form of a processor webhook.
type CardEvent struct {
	ID        string
	Kind      Kind
	CardRef   string
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Status    string
	Narrative string
	// Reason carries the decline reason once an authorization has been decided.
	Reason     string
	RawPayload json.RawMessage
	OwnerID    string
	Processed  bool
	ReceivedAt time.Time
}

// DedupeKey identifies redeliveries of the same event. Events of different kinds that share a
// transaction reference stay distinct.
func (e CardEvent) DedupeKey() string {
	return string(e.Kind) + "|" + e.CardRef + "|" + e.Reference
}

// IsAuthorization reports whether the event needs a synchronous decision.
func (e CardEvent) IsAuthorization() bool {
	return e.Kind == KindAuthorizationRequest
}

// field fallback chains, newest names first
var (
	cardFields      = []string{"card_id", "cardId", "card_reference", "card"}
	amountFields    = []string{"amount", "transaction_amount", "amount_in_usd"}
	referenceFields = []string{"reference", "transaction_reference", "transaction_id", "id"}
	narrativeFields = []string{"narrative", "merchant_name", "description", "merchant"}
	statusFields    = []string{"status", "transaction_status"}
	currencyFields  = []string{"currency"}
)

// Parse decodes a webhook body into a generic object, keeping numbers exact.
func Parse(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload == nil {
		return nil, ErrMalformedPayload
	}
	return payload, nil
}

// Classify maps a parsed payload to a CardEvent. The first matching rule wins: the
// authorization, created and refund marker keys, then the generic "event" field.
func Classify(payload map[string]any) (CardEvent, error) {
	evt := CardEvent{ID: uuid.NewString(), Kind: KindUnknown, ReceivedAt: time.Now().UTC()}

	var scope map[string]any
	switch {
	case has(payload, string(KindAuthorizationRequest)):
		evt.Kind = KindAuthorizationRequest
		scope = nested(payload, string(KindAuthorizationRequest))
	case has(payload, string(KindTransactionCreated)):
		evt.Kind = KindTransactionCreated
		scope = nested(payload, string(KindTransactionCreated))
	case has(payload, string(KindTransactionRefund)):
		evt.Kind = KindTransactionRefund
		scope = nested(payload, string(KindTransactionRefund))
	default:
		if name := stringValue(payload["event"]); name != "" {
			evt.Kind = Kind(name)
			scope = nested(payload, "data")
		}
	}

	evt.CardRef = lookupString(scope, payload, cardFields)
	evt.Reference = lookupString(scope, payload, referenceFields)
	evt.Narrative = lookupString(scope, payload, narrativeFields)
	evt.Currency = strings.ToUpper(lookupString(scope, payload, currencyFields))
	evt.Status = lookupString(scope, payload, statusFields)
	evt.Amount = lookupAmount(scope, payload)

	switch evt.Kind {
	case KindAuthorizationRequest:
		evt.Status = "pending"
	case KindTransactionCreated:
		if evt.Status == "" {
			evt.Status = "success"
		}
	case KindTransactionRefund:
		if evt.Status == "" {
			evt.Status = "refunded"
		}
	case KindUnknown:
		return evt, ErrClassificationUnknown
	}
	return evt, nil
}

// Decode parses and classifies a raw body. A malformed body still yields an unknown event
// carrying the raw bytes, alongside ErrMalformedPayload. Events without a processor reference
// get one derived from the body hash so redeliveries collapse.
func Decode(raw []byte) (CardEvent, error) {
	payload, err := Parse(raw)
	if err != nil {
		evt := CardEvent{
			ID:         uuid.NewString(),
			Kind:       KindUnknown,
			Reference:  bodyReference(raw),
			RawPayload: rawCopy(raw),
			ReceivedAt: time.Now().UTC(),
		}
		return evt, err
	}
	evt, err := Classify(payload)
	evt.RawPayload = rawCopy(raw)
	if evt.Reference == "" {
		evt.Reference = bodyReference(raw)
	}
	return evt, err
}

func bodyReference(raw []byte) string {
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func rawCopy(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return append(json.RawMessage(nil), raw...)
	}
	// keep invalid bodies storable in a jsonb column
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

func has(payload map[string]any, key string) bool {
	v, ok := payload[key]
	return ok && v != nil
}

func nested(payload map[string]any, key string) map[string]any {
	if m, ok := payload[key].(map[string]any); ok {
		return m
	}
	return nil
}

func lookup(scope, top map[string]any, fields []string) any {
	for _, m := range []map[string]any{scope, top} {
		if m == nil {
			continue
		}
		for _, f := range fields {
			if v, ok := m[f]; ok && v != nil && stringValue(v) != "" {
				return v
			}
		}
	}
	return nil
}

func lookupString(scope, top map[string]any, fields []string) string {
	return stringValue(lookup(scope, top, fields))
}

func lookupAmount(scope, top map[string]any) decimal.Decimal {
	switch v := lookup(scope, top, amountFields).(type) {
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return decimal.NewFromFloat(t).String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case map[string]any:
		// a nested card object carries its id
		return stringValue(t["id"])
	default:
		return ""
	}
}
