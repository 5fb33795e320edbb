package model

import "time"

// FormatTimestamp renders t as an ISO-8601 UTC timestamp
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ChatResponse is the result of a chat turn
type ChatResponse struct {
	SessionID   SessionID `json:"session_id"`
	Response    string    `json:"response"`
	Sources     []Source  `json:"sources"`
	Timestamp   string    `json:"timestamp"`
	ContextUsed bool      `json:"context_used"`
}

// VoiceResponse is the result of a voice command
type VoiceResponse struct {
	SessionID        SessionID   `json:"session_id"`
	OriginalInput    string      `json:"original_input"`
	ProcessedAction  VoiceAction `json:"processed_action"`
	IntentConfidence float64     `json:"intent_confidence"`
	Timestamp        string      `json:"timestamp"`
}
