package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kadirpekel/tabula/pkg/redact"
)

// Envelope is an immutable, versioned event record. Subscribers receive the
// same envelope reference the log holds and must not mutate it.
type Envelope struct {
	EventVersion   string       `json:"eventVersion"`
	RunID          string       `json:"runId"`
	EventID        string       `json:"eventId"`
	Timestamp      time.Time    `json:"timestamp"`
	State          string       `json:"state"`
	Actor          Actor        `json:"actor"`
	Type           Type         `json:"type"`
	CorrelationID  string       `json:"correlationId"`
	Payload        any          `json:"payload"`
	RedactionLevel redact.Level `json:"redactionLevel"`
}

// envelopeWire mirrors Envelope with loose types so structural validation
// can run before anything is trusted.
type envelopeWire struct {
	EventVersion   json.RawMessage `json:"eventVersion"`
	RunID          json.RawMessage `json:"runId"`
	EventID        json.RawMessage `json:"eventId"`
	Timestamp      json.RawMessage `json:"timestamp"`
	State          json.RawMessage `json:"state"`
	Actor          json.RawMessage `json:"actor"`
	Type           json.RawMessage `json:"type"`
	CorrelationID  json.RawMessage `json:"correlationId"`
	Payload        json.RawMessage `json:"payload"`
	RedactionLevel json.RawMessage `json:"redactionLevel"`
}

// Parse deserializes a JSON envelope, accepting it only when the version is
// v1 and all structural fields are present with the correct primitive types.
// A malformed envelope is refused locally with no side effect.
func Parse(data []byte) (*Envelope, error) {
	var wire envelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("envelope is not valid JSON: %w", err)
	}

	fields := map[string]json.RawMessage{
		"eventVersion":  wire.EventVersion,
		"runId":         wire.RunID,
		"eventId":       wire.EventID,
		"timestamp":     wire.Timestamp,
		"state":         wire.State,
		"actor":         wire.Actor,
		"correlationId": wire.CorrelationID,
	}
	for name, raw := range fields {
		var s string
		if raw == nil {
			return nil, fmt.Errorf("envelope field %q is missing", name)
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("envelope field %q must be a string", name)
		}
		if s == "" && name != "correlationId" {
			return nil, fmt.Errorf("envelope field %q is empty", name)
		}
	}
	if wire.Type == nil {
		return nil, fmt.Errorf("envelope field %q is missing", "type")
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("envelope decode: %w", err)
	}
	if env.EventVersion != Version {
		return nil, fmt.Errorf("unsupported event version %q, want %q", env.EventVersion, Version)
	}
	if !Known(env.Type) {
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	return &env, nil
}

// JSON serializes the envelope for the audit trail and external consumers.
func (e *Envelope) JSON() ([]byte, error) {
	return json.Marshal(e)
}
