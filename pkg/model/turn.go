package model

import "time"

type TurnKind string

const (
	TurnKindChat  TurnKind = "chat"
	TurnKindVoice TurnKind = "voice"
)

// TurnRecord is an analytics row describing one completed turn
type TurnRecord struct {
	SessionID   SessionID
	Kind        TurnKind
	ContextUsed bool
	Degraded    bool
	SourceCount int
	ActionType  ActionKind
	LatencyMS   int64
	CreatedAt   time.Time
}
