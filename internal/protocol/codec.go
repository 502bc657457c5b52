package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode wraps a payload in an envelope of the given type.
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode: empty envelope type")
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

// DecodeEnvelope parses the outer envelope without touching the payload.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode: empty message")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// DecodePayload parses an envelope's payload into the given message type.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("decode: empty payload for type %q", env.T)
	}
	if err := json.Unmarshal(env.P, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.T, err)
	}
	return out, nil
}
