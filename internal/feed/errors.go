package feed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind buckets everything that can go wrong during one refresh.
// All kinds are feed-scoped; none of them are fatal to the process.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNetwork
	KindTimeout
	KindHTTPStatus
	KindTooLarge
	KindParse
	KindStore
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http status"
	case KindTooLarge:
		return "response too large"
	case KindParse:
		return "parse"
	case KindStore:
		return "store"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RefreshError wraps an underlying failure with its classification.
// StatusCode is set only for KindHTTPStatus. RetryAfter carries the
// wait a 429 response asked for; zero means no hint.
type RefreshError struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *RefreshError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("%s error: HTTP %d", e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return e.Kind.String() + " error"
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

func refreshErr(kind ErrorKind, err error) *RefreshError {
	return &RefreshError{Kind: kind, Err: err}
}

func httpStatusErr(code int) *RefreshError {
	return &RefreshError{Kind: KindHTTPStatus, StatusCode: code}
}

// KindOf classifies an arbitrary error from the pipeline. Context
// cancellation maps to KindCancelled wherever it surfaces.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var re *RefreshError
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindStore
}
