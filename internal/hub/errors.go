package hub

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds surfaced by the engine. Callers map these to protocol
// responses; nothing else escapes the engine's public operations.
var (
	// ErrBadRequest marks malformed or missing input. The caller must
	// fix the request and resend.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound marks an operation referencing a topic that does not
	// exist. Publishers must ping the hub before anyone can subscribe.
	ErrNotFound = errors.New("not found")

	// ErrHandshakeFailed marks a verification challenge that was not
	// echoed correctly, an unreachable callback, or a store-level
	// integrity failure while recording the subscription.
	ErrHandshakeFailed = errors.New("subscription verification failed")
)

// RateLimitedError rejects a publish arriving before the minimum
// re-publish interval has passed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("try after %d minute(s)", e.Minutes())
}

// Minutes returns the whole minutes a publisher should wait, at least 1.
func (e *RateLimitedError) Minutes() int {
	m := int(e.RetryAfter.Minutes()) + 1
	if m < 1 {
		m = 1
	}
	return m
}
