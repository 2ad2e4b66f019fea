package syncer

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// FailureKind names the classes of protocol failure the engine recovers
// from. Keeping the classification explicit (instead of matching server
// error strings at each call site) makes the recovery policy testable
// independent of any particular server.
type FailureKind int

const (
	// FailureRejection: the server answered NO/BAD to a command about a
	// specific message. The cause is the message content, so retrying
	// cannot help; the message is skipped.
	FailureRejection FailureKind = iota

	// FailureTransient: a network timeout. Reconnect and retry the same
	// operation, bounded by the configured retry limit.
	FailureTransient

	// FailureSessionTerminated: the peer dropped the connection. Some
	// servers cap failures per session and reset afterwards; recovery is
	// a full reconnect, re-select, and resuming with the next message.
	FailureSessionTerminated
)

func (k FailureKind) String() string {
	switch k {
	case FailureRejection:
		return "rejection"
	case FailureTransient:
		return "transient"
	case FailureSessionTerminated:
		return "session-terminated"
	}
	return "unknown"
}

// Classify sorts a fetch/append error into a FailureKind.
func Classify(err error) FailureKind {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return FailureTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return FailureSessionTerminated
	}
	var operr *net.OpError
	if errors.As(err, &operr) {
		return FailureSessionTerminated
	}
	return FailureRejection
}
