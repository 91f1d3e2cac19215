package remote

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// TransportError is returned when the host could not be reached, the
// session could not be established or was lost, or the call timed out.
type TransportError struct {
	Target string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CommandError is returned when the remote command ran and exited non-zero.
type CommandError struct {
	Command    string
	ExitStatus int
	Stderr     string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitStatus)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// IsTransport reports whether err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsCommand reports whether err is, or wraps, a *CommandError.
func IsCommand(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}
