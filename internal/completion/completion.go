// Package completion talks to the remote LLM service that answers student
// questions. The reply text is returned untouched; interpreting it is the
// caller's job.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// RAGOptions control retrieval over the documents uploaded to a session
type RAGOptions struct {
	Usage     bool
	Threshold float64
	K         int
}

type Request struct {
	System    string
	Query     string
	SessionID string
	// LastK is how many prior turns the service replays; 0 means stateless.
	LastK int
	RAG   RAGOptions
}

type Result struct {
	Text       string
	RAGContext string
}

type Completer interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}

// ErrInvalidResponse marks a successful call whose body could not be used.
// Repeating the call is not expected to help.
var ErrInvalidResponse = errors.New("invalid completion response")

// StatusError reports an unexpected HTTP status from the completion service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion service returned status %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether a failed call is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidResponse) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	// Network errors from the transport
	return true
}
