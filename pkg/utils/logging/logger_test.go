package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
)

func TestLevels(t *testing.T) {
	testCases := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"debug", []string{"debug msg", "info msg", "warn msg"}, nil},
		{"info", []string{"info msg", "warn msg"}, []string{"debug msg"}},
		{"WARNING", []string{"warn msg"}, []string{"debug msg", "info msg"}},
		{"error", nil, []string{"debug msg", "info msg", "warn msg"}},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, buf)

			logger.Debug("debug msg")
			logger.Info("info msg")
			logger.Warn("warn msg")

			for _, s := range tc.visible {
				gt.S(t, buf.String()).Contains(s)
			}
			for _, s := range tc.hidden {
				gt.S(t, buf.String()).NotContains(s)
			}
		})
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewWithFormat("verbose", logging.FormatJSON, buf)

	logger.Debug("hidden")
	gt.S(t, buf.String()).Contains("invalid log level")
	gt.S(t, buf.String()).Contains("verbose")
	gt.S(t, buf.String()).NotContains("hidden")
}

func TestJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewWithFormat("info", logging.FormatJSON, buf)

	logger.Info("turn completed", "session_id", "s-1", "context_used", true)

	var record map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	gt.Equal(t, record["msg"], any("turn completed"))
	gt.Equal(t, record["session_id"], any("s-1"))
	gt.Equal(t, record["context_used"], any(true))
}

func TestFromFallsBackToDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	custom := logging.New("warn", buf)
	logging.SetDefault(custom)

	gt.Equal(t, logging.From(context.Background()), custom)
	logging.From(context.Background()).Warn("from default")
	gt.S(t, buf.String()).Contains("from default")
}

func TestWithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logging.With(context.Background(), logging.NewWithFormat("debug", logging.FormatJSON, buf))

	ctx, logger := logging.WithAttrs(ctx, "request_id", "r-1")
	ctx, _ = logging.WithAttrs(ctx, "session_id", "s-9")
	gt.V(t, logger).NotNil()

	logging.From(ctx).Info("session closed")

	var record map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	gt.Equal(t, record["request_id"], any("r-1"))
	gt.Equal(t, record["session_id"], any("s-9"))
}
