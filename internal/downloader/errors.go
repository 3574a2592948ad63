package downloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ErrorKind int

const (
	kindNone ErrorKind = iota
	// KindTransient errors are retried with a rotated cookie and backoff.
	KindTransient
	// KindSizeExceeded terminates the download immediately, no retry.
	KindSizeExceeded
	// KindCancelled covers user cancellation and stall auto-cancellation.
	KindCancelled
	// KindPermanent covers unsupported URLs, policy violations and missing
	// credentials; never retried.
	KindPermanent
	// KindResolution means the extractor reported success but no artifact
	// was found on disk.
	KindResolution
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindSizeExceeded:
		return "size_exceeded"
	case KindCancelled:
		return "cancelled"
	case KindPermanent:
		return "permanent"
	case KindResolution:
		return "resolution_failure"
	default:
		return "none"
	}
}

// Error carries the classification every attempt-level failure is converted
// to before crossing the orchestration boundary.
type Error struct {
	kind ErrorKind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() ErrorKind { return e.kind }

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func errTransient(msg string, err error) *Error {
	return newError(KindTransient, msg, err)
}

func errSizeExceeded(max int64) *Error {
	return newError(KindSizeExceeded, fmt.Sprintf("file exceeds maximum size of %d bytes", max), nil)
}

func errCancelled(reason string) *Error {
	if reason == "" {
		reason = "download cancelled"
	}
	return newError(KindCancelled, reason, nil)
}

func errPermanent(msg string, err error) *Error {
	return newError(KindPermanent, msg, err)
}

func errResolution(sourceID string) *Error {
	return newError(KindResolution, fmt.Sprintf("download completed but file not found for %s", sourceID), nil)
}

// KindOf classifies any error reaching the attempt machine. Extractor
// errors default to transient; well-known extractor messages for broken
// input are permanent.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	if isUnsupported(err) {
		return KindPermanent
	}
	return KindTransient
}

func isUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"unsupported url",
		"is not a valid url",
		"private video",
		"video unavailable",
		"account has been terminated",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
