package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

type ActionKind string

const (
	ActionNavigation    ActionKind = "navigation"
	ActionManipulation  ActionKind = "manipulation"
	ActionCommunication ActionKind = "communication"
	ActionQuery         ActionKind = "query"
)

// Validate checks if the action kind is valid
func (k ActionKind) Validate() error {
	switch k {
	case ActionNavigation, ActionManipulation, ActionCommunication, ActionQuery:
		return nil
	default:
		return goerr.Wrap(ErrValidation, "invalid action kind", goerr.V("kind", k))
	}
}

type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionLeft     Direction = "left"
	DirectionRight    Direction = "right"
)

// Directions lists directions in matching precedence
var Directions = []Direction{DirectionForward, DirectionBackward, DirectionLeft, DirectionRight}

const (
	UnitMeters = "meters"

	DefaultDistance = 1.0
	UnknownObject   = "unknown"
	GripGrasp       = "grasp"
	DefaultGreeting = "Hello, I received a speech command"
)

// VoiceAction is the structured interpretation of a free-text command.
// Only the fields of its Kind are meaningful.
type VoiceAction struct {
	Kind ActionKind

	// navigation
	Direction Direction
	Distance  float64
	Unit      string

	// manipulation
	Object string
	Grip   string

	// communication
	Text string

	// query
	Query string

	Confidence float64
}

// MarshalJSON emits {"type": kind, ...kind-specific fields}
func (a VoiceAction) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": a.Kind}
	switch a.Kind {
	case ActionNavigation:
		out["direction"] = a.Direction
		out["distance"] = a.Distance
		out["unit"] = a.Unit
	case ActionManipulation:
		out["object"] = a.Object
		out["action"] = a.Grip
	case ActionCommunication:
		out["text"] = a.Text
	case ActionQuery:
		out["query"] = a.Query
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON
func (a *VoiceAction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      ActionKind `json:"type"`
		Direction Direction  `json:"direction"`
		Distance  float64    `json:"distance"`
		Unit      string     `json:"unit"`
		Object    string     `json:"object"`
		Action    string     `json:"action"`
		Text      string     `json:"text"`
		Query     string     `json:"query"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return goerr.Wrap(err, "failed to unmarshal voice action")
	}

	*a = VoiceAction{
		Kind:      raw.Type,
		Direction: raw.Direction,
		Distance:  raw.Distance,
		Unit:      raw.Unit,
		Object:    raw.Object,
		Grip:      raw.Action,
		Text:      raw.Text,
		Query:     raw.Query,
	}
	return nil
}
