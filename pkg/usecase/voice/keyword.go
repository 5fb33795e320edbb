package voice

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/m-mizutani/lectern/pkg/model"
)

// DefaultConfidence is reported for every keyword classification
const DefaultConfidence = 0.8

var (
	navigationWords    = []string{"move", "go"}
	manipulationWords  = []string{"pick", "grasp"}
	communicationWords = []string{"say", "speak"}
)

// KeywordClassifier maps commands to actions by whole-word keyword rules
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (x *KeywordClassifier) Classify(ctx context.Context, input string) (*model.VoiceAction, error) {
	return Classify(input), nil
}

// Tokenize lower-cases input and splits it into words with surrounding punctuation removed
func Tokenize(input string) []string {
	fields := strings.Fields(strings.ToLower(input))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := strings.TrimFunc(f, isPunct); w != "" {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// Classify applies the keyword rules in order; the first matching rule wins
func Classify(input string) *model.VoiceAction {
	tokens := Tokenize(input)

	switch {
	case containsAny(tokens, navigationWords...):
		return navigation(input, tokens)

	case containsAny(tokens, manipulationWords...):
		return &model.VoiceAction{
			Kind:       model.ActionManipulation,
			Object:     model.UnknownObject,
			Grip:       model.GripGrasp,
			Confidence: DefaultConfidence,
		}

	case containsAny(tokens, communicationWords...):
		return &model.VoiceAction{
			Kind:       model.ActionCommunication,
			Text:       speechText(input),
			Confidence: DefaultConfidence,
		}

	default:
		return &model.VoiceAction{
			Kind:       model.ActionQuery,
			Query:      input,
			Confidence: DefaultConfidence,
		}
	}
}

func navigation(input string, tokens []string) *model.VoiceAction {
	action := &model.VoiceAction{
		Kind:       model.ActionNavigation,
		Direction:  model.DirectionForward,
		Distance:   model.DefaultDistance,
		Unit:       model.UnitMeters,
		Confidence: DefaultConfidence,
	}

	for _, d := range model.Directions {
		if containsAny(tokens, string(d)) {
			action.Direction = d
			break
		}
	}

	for _, f := range strings.Fields(input) {
		if d, ok := parseDistance(f); ok {
			action.Distance = d
			break
		}
	}

	return action
}

// parseDistance accepts a word that is all digits once dots are removed, e.g. "2" or "1.5".
// Only trailing punctuation is dropped, so signed words like "-3" never match.
func parseDistance(word string) (float64, bool) {
	word = strings.TrimRightFunc(word, func(r rune) bool {
		return r != '.' && isPunct(r)
	})
	word = strings.TrimRight(word, ".")

	digits := strings.ReplaceAll(word, ".", "")
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	d, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

// speechText returns the words after the first "say" (else "speak"), without a leading "to"
func speechText(input string) string {
	fields := strings.Fields(strings.ToLower(input))

	start := -1
	for _, keyword := range communicationWords {
		for i, f := range fields {
			if strings.TrimFunc(f, isPunct) == keyword {
				start = i + 1
				break
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return model.DefaultGreeting
	}

	rest := fields[start:]
	if len(rest) > 0 && strings.TrimFunc(rest[0], isPunct) == "to" {
		rest = rest[1:]
	}

	text := strings.TrimSpace(strings.Join(rest, " "))
	if strings.TrimFunc(text, isPunct) == "" {
		return model.DefaultGreeting
	}
	return text
}

func containsAny(tokens []string, words ...string) bool {
	for _, t := range tokens {
		for _, w := range words {
			if t == w {
				return true
			}
		}
	}
	return false
}

func isPunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
