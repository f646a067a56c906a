package output

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

// ErrorOutput is the JSON shape of a failed command.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// Describe converts any error into its reportable form.
func Describe(err error) ErrorDetail {
	var be *bridgeerr.BridgeError
	if !errors.As(err, &be) {
		return ErrorDetail{
			Code:     "GENERAL_ERROR",
			Message:  err.Error(),
			ExitCode: bridgeerr.ExitGeneral,
		}
	}

	msg := be.Message
	var inner *bridgeerr.BridgeError
	if be.Cause != nil && !errors.As(be.Cause, &inner) && !strings.Contains(msg, be.Cause.Error()) {
		msg = fmt.Sprintf("%s: %v", msg, be.Cause)
	}
	return ErrorDetail{
		Code:       be.Code,
		Message:    msg,
		Details:    be.Details,
		Suggestion: be.Suggestion,
		ExitCode:   be.ExitCode,
	}
}

// FormatError writes err in the given format. nil writes nothing.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	d := Describe(err)
	if format == FormatJSON {
		return writeJSON(w, ErrorOutput{Error: d})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if len(d.Details) > 0 {
		sb.WriteString("\nDetails:\n")
		for _, k := range slices.Sorted(maps.Keys(d.Details)) {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}

	_, writeErr := io.WriteString(w, sb.String())
	return writeErr
}

// FormatSuccess writes a one-line confirmation.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]string{"status": "success", "message": message})
	}
	Successf(w, "%s", message)
	return nil
}
