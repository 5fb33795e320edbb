package voice

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/interfaces"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// PolicyQuery is the rego rule evaluated for each command
const PolicyQuery = "data.voice.action"

// regoPrintHook forwards Rego print() statements to the debug log
type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// PolicyClassifier evaluates Rego policies to classify commands. When the
// policy leaves the action undefined the fallback classifier decides.
type PolicyClassifier struct {
	query    *rego.PreparedEvalQuery
	fallback interfaces.IntentClassifier
}

// NewPolicyClassifier loads all *.rego files in policyDir. With no policy
// files every command goes to fallback.
func NewPolicyClassifier(ctx context.Context, policyDir string, fallback interfaces.IntentClassifier) (*PolicyClassifier, error) {
	query, err := loadPolicy(ctx, policyDir)
	if err != nil {
		return nil, err
	}

	return &PolicyClassifier{
		query:    query,
		fallback: fallback,
	}, nil
}

func (x *PolicyClassifier) Classify(ctx context.Context, input string) (*model.VoiceAction, error) {
	if x.query == nil {
		return x.fallback.Classify(ctx, input)
	}

	evalInput := map[string]any{
		"text":   input,
		"tokens": Tokenize(input),
	}

	rs, err := x.query.Eval(ctx, rego.EvalInput(evalInput), rego.EvalPrintHook(&regoPrintHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate voice policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return x.fallback.Classify(ctx, input)
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("invalid voice policy result: action is not an object",
			goerr.V("value", rs[0].Expressions[0].Value))
	}

	action, err := decodeAction(data, input)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Debug("voice command classified by policy", "type", action.Kind)
	return action, nil
}

func decodeAction(data map[string]any, input string) (*model.VoiceAction, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal voice policy result")
	}

	var action model.VoiceAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return nil, goerr.Wrap(err, "failed to decode voice policy result", goerr.V("result", string(raw)))
	}
	if err := action.Kind.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid voice policy result", goerr.V("result", string(raw)))
	}

	switch action.Kind {
	case model.ActionNavigation:
		if action.Direction == "" {
			action.Direction = model.DirectionForward
		}
		if action.Distance == 0 {
			action.Distance = model.DefaultDistance
		}
		if action.Unit == "" {
			action.Unit = model.UnitMeters
		}
	case model.ActionManipulation:
		if action.Object == "" {
			action.Object = model.UnknownObject
		}
		if action.Grip == "" {
			action.Grip = model.GripGrasp
		}
	case model.ActionCommunication:
		if action.Text == "" {
			action.Text = model.DefaultGreeting
		}
	case model.ActionQuery:
		if action.Query == "" {
			action.Query = input
		}
	}

	action.Confidence = DefaultConfidence
	switch v := data["confidence"].(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			action.Confidence = f
		}
	case float64:
		action.Confidence = v
	}

	return &action, nil
}

// loadPolicy reads all Rego files from policyDir and prepares the action query
func loadPolicy(ctx context.Context, policyDir string) (*rego.PreparedEvalQuery, error) {
	if policyDir == "" {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query(PolicyQuery))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare query", goerr.V("query", PolicyQuery))
	}

	return &prepared, nil
}
