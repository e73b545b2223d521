package object

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
	slogmulti "github.com/samber/slog-multi"
)

// Reporter is the single diagnostic sink spec.md §7 describes: every
// NONFATAL/WARNING reported here lets emission continue; PanicError aborts
// by returning a non-nil error from the call that triggered it.
type Reporter interface {
	Report(sev Severity, class WarnClass, format string, args ...any)
	// WarningsEnabled reports whether diagnostics of class are currently
	// enabled (spec.md §7's ERR_WARN_GNUELF gate).
	WarningsEnabled(class WarnClass) bool
}

// ReportLogger is the optional capability NewReporter's default Reporter
// implements: a caller (the CLI's --report flag, a test) can pull the
// accumulated JSON diagnostic log and severity tallies back out after a run.
type ReportLogger interface {
	ReportLog() (json string, warnings, nonfatal int)
}

// PanicError is returned (never just logged) by the emitter for PANIC-level
// conditions; Reporter.Report itself never aborts. spec.md §7 reserves
// PANIC for "strange segment conditions"
// and "intra-segment OUT_REL*ADR", both of which indicate an upstream bug.
type PanicError struct {
	Message string
}

func (e *PanicError) Error() string { return e.Message }

// slogReporter is the default Reporter: it fans diagnostics out to a
// human-readable, color-tagged stderr handler and an in-memory JSON sink a
// caller (the CLI's --report flag, or a test) can inspect afterwards, via
// github.com/samber/slog-multi. This mirrors the severity-colorization
// convention in Manu343726/cucaracha's pkg/utils/syntax_highlight.go.
type slogReporter struct {
	logger        *slog.Logger
	warnGNUElf    bool
	sink          *memorySink
	warnCount     int
	nonfatalCount int
}

// NewReporter builds the default Reporter. warnGNUElf gates the 16-bit
// relocation diagnostics spec.md's ERR_WARN_GNUELF class controls.
func NewReporter(warnGNUElf bool) Reporter {
	sink := &memorySink{}
	jsonSink := slog.NewJSONHandler(sink, nil)
	human := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	fanout := slogmulti.Fanout(human, jsonSink)
	return &slogReporter{
		logger:     slog.New(fanout),
		warnGNUElf: warnGNUElf,
		sink:       sink,
	}
}

// memorySink buffers every JSON-formatted record the reporter emits so a
// caller (the CLI's --report flag, or a test) can inspect it after the fact,
// in addition to the human-readable copy written to stderr.
type memorySink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *memorySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *memorySink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func severityColor(sev Severity) *color.Color {
	switch sev {
	case SevWarning:
		return color.New(color.FgYellow)
	case SevPanic:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgHiBlack)
	}
}

func (r *slogReporter) Report(sev Severity, class WarnClass, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	tag := severityColor(sev).Sprint(severityLabel(sev))
	switch sev {
	case SevWarning:
		r.warnCount++
		r.logger.Warn(msg, slog.String("severity", tag), slog.Int("class", int(class)))
	case SevPanic:
		r.logger.Error(msg, slog.String("severity", tag))
	default:
		r.nonfatalCount++
		r.logger.Info(msg, slog.String("severity", tag))
	}
}

func (r *slogReporter) WarningsEnabled(class WarnClass) bool {
	if class == WarnGNUElf {
		return r.warnGNUElf
	}
	return true
}

// ReportLog implements ReportLogger, returning the accumulated JSON
// diagnostic records plus the warning/nonfatal tallies the CLI's --report
// flag prints.
func (r *slogReporter) ReportLog() (json string, warnings, nonfatal int) {
	return r.sink.String(), r.warnCount, r.nonfatalCount
}

func severityLabel(sev Severity) string {
	switch sev {
	case SevWarning:
		return "warning"
	case SevPanic:
		return "panic"
	default:
		return "error"
	}
}
