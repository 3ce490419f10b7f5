// Package publish defines the outbound publishing boundary and the
// error taxonomy the dispatcher keys its retry policy on.
package publish

import (
	"context"
	"errors"
	"fmt"
)

// Publisher delivers one post to the publishing target.
type Publisher interface {
	// Publish sends the text (and optional media reference) and returns
	// the target's reference for the created post.
	Publish(ctx context.Context, text, mediaRef string) (ref string, err error)
}

// Error wraps a publish failure with the target's classification.
// Permanent means the target rejected the content itself and a retry
// with the same payload can never succeed; everything else is treated
// as transient.
type Error struct {
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("publish failed (%s): %v", kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Permanent wraps err as a permanent rejection.
func Permanent(err error) error {
	return &Error{Permanent: true, Err: err}
}

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return &Error{Permanent: false, Err: err}
}

// IsPermanent reports whether err carries a permanent classification.
// Unclassified errors are transient: when in doubt, keep the record
// eligible for retry rather than burying it.
func IsPermanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Permanent
}
