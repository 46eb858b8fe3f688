package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestInit_JSONLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	defer Init(Config{})

	Info().Msg("hidden")
	Warn().Str("code", "A1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info event should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"code":"A1"`) {
		t.Errorf("expected structured field in output, got %s", out)
	}
}

func TestCtx_AttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	defer Init(Config{})

	ctx := WithRequestID(context.Background(), "req-42")
	Ctx(ctx).Info().Msg("handled")

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("expected request id in output, got %s", buf.String())
	}
}

func TestRequestID_Missing(t *testing.T) {
	if id := RequestID(context.Background()); id != "" {
		t.Errorf("expected empty request id, got %q", id)
	}
}

func TestWith_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	defer Init(Config{})

	l := With("dispatcher")
	l.Info().Msg("started")

	if !strings.Contains(buf.String(), `"component":"dispatcher"`) {
		t.Errorf("expected component field, got %s", buf.String())
	}
}
