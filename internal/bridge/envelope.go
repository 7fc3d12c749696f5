package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion identifies the message vocabulary below. Bump it when a kind
// is added, removed or changes payload shape.
const ProtocolVersion = 1

// Kind names a message type on the wire (the "type" field).
type Kind string

// Panel to host.
const (
	KindReady                  Kind = "ready"
	KindRequestStepDefinitions Kind = "request-step-definitions"
	KindStepChanged            Kind = "step-changed"
	KindParameterChanged       Kind = "parameter-changed"
	KindUpdateParam            Kind = "update-param"
	KindLoadArchetype          Kind = "load-archetype"
	KindGenerate               Kind = "generate"
)

// Host to panel.
const (
	KindStepDefinitions    Kind = "step_definitions"
	KindParameters         Kind = "parameters"
	KindParamsUpdate       Kind = "params_update"
	KindHostStepChanged    Kind = "step_changed"
	KindGenerationProgress Kind = "generation_progress"
	KindProgressUpdate     Kind = "progress_update"
	KindGenerationComplete Kind = "generation_complete"
	KindGenerationFailed   Kind = "generation_failed"
	KindArchetypes         Kind = "archetypes"
	KindArchetypeParams    Kind = "archetype_params"
	KindPreviewReady       Kind = "preview_ready"
)

var inboundKinds = map[Kind]bool{
	KindStepDefinitions:    true,
	KindParameters:         true,
	KindParamsUpdate:       true,
	KindHostStepChanged:    true,
	KindGenerationProgress: true,
	KindProgressUpdate:     true,
	KindGenerationComplete: true,
	KindGenerationFailed:   true,
	KindArchetypes:         true,
	KindArchetypeParams:    true,
	KindPreviewReady:       true,
}

// Inbound reports whether k is a kind the host may push to the panel.
func (k Kind) Inbound() bool {
	return inboundKinds[k]
}

// Envelope is the normalized unit exchanged with the host.
type Envelope struct {
	Kind      Kind            `json:"type"`
	Payload   json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// wireEnvelope accepts either "data" or "payload" for the body.
type wireEnvelope struct {
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

var errMissingType = errors.New("envelope has no type")

// ParseEnvelope decodes a raw wire message.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if w.Type == "" {
		return Envelope{}, errMissingType
	}
	body := w.Data
	if len(body) == 0 || string(body) == "null" {
		body = w.Payload
	}
	return Envelope{Kind: w.Type, Payload: body, Timestamp: w.Timestamp}, nil
}

// Decode unmarshals the envelope payload into T. An absent payload yields the
// zero value.
func Decode[T any](env Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return v, nil
}
