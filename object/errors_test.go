package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReporterAccumulatesLog(t *testing.T) {
	reporter := NewReporter(true)

	reporter.Report(SevWarning, WarnGNUElf, "16-bit relocation for %q", "x")
	reporter.Report(SevNonFatal, WarnNone, "unrecognized directive %q", "foo")

	logger, ok := reporter.(ReportLogger)
	require.True(t, ok, "default Reporter must implement ReportLogger")

	log, warnings, nonfatal := logger.ReportLog()
	assert.Equal(t, 1, warnings)
	assert.Equal(t, 1, nonfatal)
	// The log holds JSON records, so the quotes inside each message are escaped.
	assert.Contains(t, log, `16-bit relocation for \"x\"`)
	assert.Contains(t, log, `unrecognized directive \"foo\"`)
}

func TestNewReporterWarningsEnabledGatesGNUElfClass(t *testing.T) {
	disabled := NewReporter(false)
	assert.False(t, disabled.WarningsEnabled(WarnGNUElf))
	assert.True(t, disabled.WarningsEnabled(WarnNone))

	enabled := NewReporter(true)
	assert.True(t, enabled.WarningsEnabled(WarnGNUElf))
}
