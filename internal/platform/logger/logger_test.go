package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	kit "visawh/internal/platform/testkit"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" info ", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"panic", zerolog.PanicLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			if got := parseLevel(c.in); got != c.want {
				t.Fatalf("parseLevel(%q) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: "json", Service: "visawh", Component: "build", Writer: &buf})
	l.Debug().Str("table", "fact_perm").Msg("partition written")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("bad json: %v (%s)", err, buf.String())
	}
	for k, want := range map[string]string{
		"level":     "debug",
		"service":   "visawh",
		"component": "build",
		"table":     "fact_perm",
		"message":   "partition written",
	} {
		if line[k] != want {
			t.Fatalf("%s = %v, want %q", k, line[k], want)
		}
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: "json", Writer: &buf})
	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn: %s", buf.String())
	}
}

func TestInit_ScopedChildren(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "console", Service: "svc-a", Writer: &buf, WithCaller: true})

	Named("reconcile").Info().Msg("named-msg")
	ctx := WithPartition(WithDomain(WithRun(context.Background(), "run-123"), "perm"), "fiscal_year=2024")
	C(ctx).Info().Msg("ctx-msg")

	out := buf.String()
	if out == "" {
		t.Skip("root logger was initialized earlier in this process")
	}
	for _, s := range []string{"named-msg", "reconcile", "ctx-msg", "run-123", "perm", "fiscal_year=2024", "svc-a"} {
		kit.MustContain(t, out, s)
	}
}

func TestScope(t *testing.T) {
	base := context.Background()
	if WithRun(base, "") != base || WithDomain(base, "") != base || WithPartition(base, "") != base {
		t.Fatalf("empty values should not derive a new context")
	}

	ctx := WithDomain(WithRun(base, "run-1"), "lca")
	child := WithRun(ctx, "run-2")
	if RunID(ctx) != "run-1" || RunID(child) != "run-2" {
		t.Fatalf("run ids = %q %q", RunID(ctx), RunID(child))
	}
	if scopeOf(child).domain != "lca" {
		t.Fatalf("domain should survive a run override")
	}
	if RunID(base) != "" {
		t.Fatalf("empty ctx run id = %q", RunID(base))
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_SERVICE", "svc-b")
	t.Setenv("LOG_COMPONENT", "comp-b")
	t.Setenv("LOG_CALLER", "true")
	t.Setenv("LOG_SAMPLE_EVERY", "5")

	opt := FromEnv()
	if opt.Level != "warn" || opt.Format != "json" || opt.Service != "svc-b" || opt.Component != "comp-b" {
		t.Fatalf("FromEnv fields mismatch: %+v", opt)
	}
	if !opt.WithCaller || opt.SampleEvery != 5 {
		t.Fatalf("FromEnv caller/sample mismatch: %+v", opt)
	}
}
