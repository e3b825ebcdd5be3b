package pg

import (
	"context"
	"strings"

	"visawh/internal/platform/logger"

	"github.com/rs/zerolog"
)

// maxLoggedSQL caps the statement text kept on a trace line
const maxLoggedSQL = 512

// QueryEvent describes one ledger statement after it completed
type QueryEvent struct {
	SQL       string
	Args      any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// QueryTracer receives query events from the sql adapter
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// Tracer logs every ledger statement regardless of the root level.
// Failed statements log at error, slow ones at warn
func Tracer(root logger.Logger) QueryTracer {
	return logTracer{log: root.Level(zerolog.DebugLevel).With().Str("component", "pg").Logger()}
}

type logTracer struct{ log logger.Logger }

func (t logTracer) OnQuery(ctx context.Context, ev QueryEvent) {
	var e *zerolog.Event
	switch {
	case ev.Err != nil:
		e = t.log.Error().Err(ev.Err)
	case ev.Slow:
		e = t.log.Warn()
	default:
		e = t.log.Info()
	}
	if id := logger.RunID(ctx); id != "" {
		e = e.Str("run_id", id)
	}
	sql := oneLine(ev.SQL)
	e.Str("verb", verbOf(sql)).
		Str("sql", sql).
		Interface("args", ev.Args).
		Float64("elapsed_ms", float64(ev.ElapsedUS)/1000).
		Bool("slow", ev.Slow).
		Msg("pg query")
}

// oneLine collapses whitespace runs and truncates long statements
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxLoggedSQL {
		s = s[:maxLoggedSQL] + "..."
	}
	return s
}

func verbOf(sql string) string {
	verb, _, _ := strings.Cut(sql, " ")
	return strings.ToLower(verb)
}
