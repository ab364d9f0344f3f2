package bot

import (
	"errors"
	"fmt"

	"github.com/xaenox/advising-bot/internal/advisor"
)

var (
	// ErrTransport marks failures reaching the store, the chat platform or
	// the completion service.
	ErrTransport = errors.New("transport failure")
	// ErrRouting marks a threaded message whose thread is not linked.
	ErrRouting = errors.New("no matching thread")
)

// User-visible replies. They never include error details.
const (
	genericErrorText   = "⚠️ Sorry, something went wrong while processing your message. Please try again later."
	malformedErrorText = "⚠️ There was an error processing your question, please try again."
	routingErrorText   = "⚠️ Error: unable to find a matched thread."
)

type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

type RoutingError struct {
	ThreadID string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("thread %s: %v", e.ThreadID, ErrRouting)
}

func (e *RoutingError) Is(target error) bool { return target == ErrRouting }

// IsMalformed reports whether err came from an unusable completion reply,
// including escalation replies without their payload.
func IsMalformed(err error) bool {
	var malformed *advisor.MalformedError
	return errors.As(err, &malformed) || errors.Is(err, advisor.ErrEscalationPayload)
}

// ErrorReply converts a handling error into the message shown to the user
func ErrorReply(err error) *Outbound {
	switch {
	case errors.Is(err, ErrRouting):
		return &Outbound{Text: routingErrorText}
	case IsMalformed(err):
		return &Outbound{Text: malformedErrorText}
	default:
		return &Outbound{Text: genericErrorText}
	}
}
