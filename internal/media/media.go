package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kpai47/katha/internal/timeline"
)

// one search hit a provider can offer for a query
type Candidate struct {
	URL         string
	Kind        timeline.MediaKind
	Orientation timeline.Orientation
}

// interface for media-search backends
type Provider interface {
	Name() timeline.MediaSource
	Search(ctx context.Context, query string, count int) ([]Candidate, error)
}

// provider failure likely to succeed on retry (rate limit, timeout)
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// provider failure where retrying is futile (bad query, auth failure)
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classifies an HTTP status into the retry taxonomy
func statusError(provider string, status int) error {
	err := fmt.Errorf("%s returned status %d", provider, status)
	switch {
	case status == http.StatusTooManyRequests:
		return &TransientError{Err: err}
	case status >= 500:
		return &TransientError{Err: err}
	default:
		return &PermanentError{Err: err}
	}
}

// classifies a transport-level error; timeouts and connection resets
// are worth retrying, anything structural is not
func requestError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: fmt.Errorf("%s: %w", provider, err)}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &TransientError{Err: fmt.Errorf("%s: %w", provider, err)}
	}
	return &PermanentError{Err: fmt.Errorf("%s: %w", provider, err)}
}

// recorded when a scene's whole provider chain is exhausted;
// non-fatal for the run
type ResolutionError struct {
	SceneIndex int
	Exhausted  []timeline.MediaSource
	LastErr    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("scene %d: no media after trying %v", e.SceneIndex, e.Exhausted)
}

func (e *ResolutionError) Unwrap() error { return e.LastErr }
