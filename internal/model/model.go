// Package model defines the domain types used across the application.
package model

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Topic represents a feed URL tracked by the hub.
type Topic struct {
	ID        int64
	Key       string // canonical (reversible) encoding of the feed URL
	Dirty     bool   // advisory marker: a diff/fan-out cycle is in flight
	CreatedAt time.Time
	UpdatedAt time.Time
}

// URL decodes the topic's canonical key back to its original URL.
func (t *Topic) URL() (string, error) {
	return DecodeKey(t.Key)
}

// VerifyMode defines how a subscription's callback is verified.
type VerifyMode string

// Supported verification modes.
const (
	VerifySync  VerifyMode = "sync"
	VerifyAsync VerifyMode = "async"
)

// SubState defines the verification state of a subscription.
type SubState string

// Supported subscription states.
const (
	StateVerified SubState = "verified"
	StatePending  SubState = "pending"
)

// Subscription represents a callback endpoint's registration of
// interest in a topic's updates.
type Subscription struct {
	ID          int64
	TopicID     int64
	CallbackKey string // canonical encoding of the callback URL
	VerifyMode  VerifyMode
	State       SubState
	VerifyToken string // opaque caller-supplied token, echoed during verification
	Secret      string // shared secret for signing deliveries, empty if none
	CreatedAt   time.Time
}

// CallbackURL decodes the subscription's callback key back to a URL.
func (s *Subscription) CallbackURL() (string, error) {
	return DecodeKey(s.CallbackKey)
}

// EncodeKey produces the canonical key for a URL. The encoding is
// deterministic, reversible, and safe to use as a snapshot filename stem.
func EncodeKey(url string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(url))
}

// DecodeKey recovers the original URL from a canonical key.
func DecodeKey(key string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("decode key %q: %w", key, err)
	}
	return string(b), nil
}
