package bridge

import (
	"github.com/google/uuid"

	"github.com/mrz1836/dappbridge/internal/metrics"
	"github.com/mrz1836/dappbridge/internal/rpc"
)

// DiagnosticKind classifies a captured defect.
type DiagnosticKind string

// Diagnostic kinds.
const (
	// DiagnosticParse is a provider call the bridge could not accept.
	DiagnosticParse DiagnosticKind = "parse"
	// DiagnosticProtocol is a message that does not fit the wire protocol.
	DiagnosticProtocol DiagnosticKind = "protocol"
	// DiagnosticUnexpectedMethod is a call from a page delegated to the
	// alternative provider.
	DiagnosticUnexpectedMethod DiagnosticKind = "unexpected_method"
	// DiagnosticInvariant is a state the bridge should never reach.
	DiagnosticInvariant DiagnosticKind = "invariant"
)

// Diagnostic describes one captured defect.
type Diagnostic struct {
	Kind       DiagnosticKind
	SessionID  string
	Hostname   string
	Method     string
	Suggestion rpc.Method
	Err        error
}

// Capturer records defects for later inspection and returns an event id.
type Capturer interface {
	Capture(d Diagnostic) string
}

// LogCapturer writes diagnostics to the error log and counts them.
type LogCapturer struct {
	logger  Logger
	metrics *metrics.Metrics
}

// NewLogCapturer returns a capturer logging to logger.
func NewLogCapturer(logger Logger, m *metrics.Metrics) *LogCapturer {
	if m == nil {
		m = metrics.Global
	}
	return &LogCapturer{logger: logger, metrics: m}
}

// Capture logs d and returns its event id.
func (c *LogCapturer) Capture(d Diagnostic) string {
	id := uuid.NewString()
	c.metrics.RecordDiagnostic()

	msg := "unknown"
	if d.Err != nil {
		msg = d.Err.Error()
	}
	c.logger.Error("diagnostic %s kind=%s session=%s host=%s method=%s suggestion=%s: %s",
		id, d.Kind, d.SessionID, d.Hostname, d.Method, d.Suggestion, msg)
	return id
}

func (b *Bridge) capture(d Diagnostic) {
	d.SessionID = b.cfg.SessionID
	d.Hostname = b.cfg.Hostname
	b.cfg.Capturer.Capture(d)
}
