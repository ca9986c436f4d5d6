// Package action defines the serializable state mutations shared between the
// client and the backend. An action declares which state slices it needs and
// applies itself to a private snapshot of those slices.
package action

import (
	"encoding/json"
	"fmt"

	"github.com/hay-kot/vgloss/internal/core/state"
)

// Kind discriminates action variants on the wire.
type Kind string

const (
	KindTagUpdate     Kind = "TagUpdate"
	KindFileTagUpdate Kind = "FileTagUpdate"
	KindTagRemap      Kind = "TagRemap"
)

// Action is a declarative description of one state mutation.
type Action interface {
	// Kind returns the variant discriminator.
	Kind() Kind
	// StateNeeded lists every slice Apply reads and may return. It is a
	// static property of the variant.
	StateNeeded() []state.Slice
	// Apply computes new slice values from a snapshot holding deep copies of
	// the StateNeeded slices. It performs no I/O.
	Apply(snapshot state.Slices) state.Slices
}

// Renamer is implemented by actions that only rename identifiers. They can
// be applied on top of state that queued local actions already changed.
type Renamer interface {
	RenamesOnly() bool
}

// Envelope is the wire form of an action.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// decoders is the closed set of known variants.
var decoders = map[Kind]func(json.RawMessage) (Action, error){
	KindTagUpdate: func(p json.RawMessage) (Action, error) {
		var a TagUpdate
		err := json.Unmarshal(p, &a)
		return a, err
	},
	KindFileTagUpdate: func(p json.RawMessage) (Action, error) {
		var a FileTagUpdate
		err := json.Unmarshal(p, &a)
		return a, err
	},
	KindTagRemap: func(p json.RawMessage) (Action, error) {
		var a TagRemap
		err := json.Unmarshal(p, &a)
		return a, err
	},
}

// Kinds returns every registered action kind.
func Kinds() []Kind {
	return []Kind{KindTagUpdate, KindFileTagUpdate, KindTagRemap}
}

// Serialize encodes an action into its envelope.
func Serialize(a Action) (Envelope, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return Envelope{}, fmt.Errorf("serialize %s: %w", a.Kind(), err)
	}
	return Envelope{Kind: a.Kind(), Payload: payload}, nil
}

// SerializeAll encodes actions in order.
func SerializeAll(actions []Action) ([]Envelope, error) {
	out := make([]Envelope, 0, len(actions))
	for _, a := range actions {
		env, err := Serialize(a)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// Deserialize decodes an envelope into the matching variant. Unknown kinds
// fail with an *UnknownKindError.
func Deserialize(env Envelope) (Action, error) {
	decode, ok := decoders[env.Kind]
	if !ok {
		return nil, &UnknownKindError{Kind: env.Kind}
	}
	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	a, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("deserialize %s: %w", env.Kind, err)
	}
	return a, nil
}

// DeserializeAll decodes envelopes in order, stopping at the first failure.
func DeserializeAll(envs []Envelope) ([]Action, error) {
	out := make([]Action, 0, len(envs))
	for i, env := range envs {
		a, err := Deserialize(env)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}
