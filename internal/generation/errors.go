package generation

import (
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"syscall"
)

var (
	ErrTimeout        = errors.New("generation call timed out")
	ErrRetryExhausted = errors.New("generation retries exhausted")
	ErrNoGenerator    = errors.New("generation: no generator configured")
)

// TransientError marks a failure worth another attempt.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Retryable() bool { return true }

// NonRetryableError is surfaced to the caller without further attempts.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string   { return "generation failed: " + e.Err.Error() }
func (e *NonRetryableError) Unwrap() error   { return e.Err }
func (e *NonRetryableError) Retryable() bool { return false }

// RetryExhaustedError is returned after every attempt failed with a
// retryable error. errors.Is matches both ErrRetryExhausted and the last
// underlying error.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetryExhausted, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Last}
}

// transientPattern is matched case-insensitively, on word boundaries, against
// error text from clients that do not return typed errors.
var transientPattern = regexp.MustCompile(`(?i)\b(` + strings.Join([]string{
	`rate[ -]?limit(ed)?`,
	`too many requests`,
	`resource[ _]exhausted`,
	`429`,
	`service unavailable`,
	`unavailable`,
	`overloaded`,
	`503`,
	`connection reset`,
	`econnreset`,
	`broken pipe`,
	`connection refused`,
	`network is unreachable`,
	`i/o timeout`,
	`unexpected eof`,
	`eof`,
}, "|") + `)\b`)

// IsRetryable reports whether err should be retried. Typed answers
// (Retryable(), net.Error timeouts, syscall and io errors) win over message
// matching.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}

	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return transientPattern.MatchString(err.Error())
}

// Classify wraps err in TransientError or NonRetryableError.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsRetryable(err) {
		var t *TransientError
		if errors.As(err, &t) {
			return err
		}
		return &TransientError{Err: err}
	}
	var n *NonRetryableError
	if errors.As(err, &n) {
		return err
	}
	return &NonRetryableError{Err: err}
}
