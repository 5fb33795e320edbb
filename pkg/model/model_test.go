package model_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/model"
)

func TestSessionTitle(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"short", "What is ROS?", "What is ROS?"},
		{"exactly 50", strings.Repeat("a", 50), strings.Repeat("a", 50)},
		{"51 chars", strings.Repeat("b", 51), strings.Repeat("b", 50) + "..."},
		{"multibyte", strings.Repeat("ロ", 60), strings.Repeat("ロ", 50) + "..."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, model.SessionTitle(tc.input), tc.want)
		})
	}
}

func TestInitialSessionTitle(t *testing.T) {
	gt.Equal(t, model.InitialSessionTitle(""), "New Chat Session")
	gt.Equal(t, model.InitialSessionTitle("kinematics"), "kinematics")
}

func TestSortMessages(t *testing.T) {
	now := time.Now()
	msgs := []*model.Message{
		{ID: "c", CreatedAt: now.Add(time.Second), Seq: 3},
		{ID: "b", CreatedAt: now, Seq: 2},
		{ID: "a", CreatedAt: now, Seq: 1},
	}

	model.SortMessages(msgs)
	gt.Equal(t, msgs[0].ID, model.MessageID("a"))
	gt.Equal(t, msgs[1].ID, model.MessageID("b"))
	gt.Equal(t, msgs[2].ID, model.MessageID("c"))
}

func TestMessageValidate(t *testing.T) {
	msg := &model.Message{SessionID: "s", Role: model.RoleUser, Kind: model.MessageKindText}
	gt.NoError(t, msg.Validate())

	msg.Role = "system"
	gt.Error(t, msg.Validate())

	msg.Role = model.RoleAssistant
	msg.Kind = "video"
	gt.Error(t, msg.Validate())
}

func TestRankResults(t *testing.T) {
	older := model.NewRetrievalResult(&model.Passage{ID: "older", Seq: 1}, 0.5)
	newer := model.NewRetrievalResult(&model.Passage{ID: "newer", Seq: 2}, 0.5)
	best := model.NewRetrievalResult(&model.Passage{ID: "best", Seq: 0}, 0.9)

	results := []*model.RetrievalResult{older, best, newer}
	model.RankResults(results)

	gt.Equal(t, results[0].ID, model.PassageID("best"))
	gt.Equal(t, results[1].ID, model.PassageID("newer"))
	gt.Equal(t, results[2].ID, model.PassageID("older"))
}

func TestCosineSimilarity(t *testing.T) {
	gt.Equal(t, model.CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1.0)
	gt.Equal(t, model.CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), -1.0)
	gt.Equal(t, model.CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0)
	gt.Equal(t, model.CosineSimilarity([]float32{0, 0}, []float32{1, 1}), 0.0)
	gt.Equal(t, model.CosineSimilarity([]float32{1}, []float32{1, 1}), 0.0)
}

func TestVoiceActionJSON(t *testing.T) {
	action := model.VoiceAction{
		Kind:      model.ActionNavigation,
		Direction: model.DirectionLeft,
		Distance:  2.5,
		Unit:      model.UnitMeters,
	}

	data, err := json.Marshal(action)
	gt.NoError(t, err)

	var raw map[string]any
	gt.NoError(t, json.Unmarshal(data, &raw))
	gt.Equal(t, raw["type"], "navigation")
	gt.Equal(t, raw["direction"], "left")
	gt.Equal(t, raw["distance"], 2.5)
	gt.Equal(t, raw["unit"], "meters")
	_, hasQuery := raw["query"]
	gt.False(t, hasQuery)

	var decoded model.VoiceAction
	gt.NoError(t, json.Unmarshal(data, &decoded))
	gt.Equal(t, decoded.Kind, model.ActionNavigation)
	gt.Equal(t, decoded.Distance, 2.5)
}
