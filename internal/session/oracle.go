// Package session wraps the external auth provider behind a small oracle
// interface and implements bounded-retry session discovery on top of it.
package session

import (
	"context"
	"errors"
)

// ErrNoSession is returned by Current when the shopper is anonymous.
var ErrNoSession = errors.New("no active session")

// Session is the authenticated shopper's profile as the auth provider
// reports it. The address fields feed checkout auto-fill.
type Session struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// EventKind enumerates auth-state-change notifications.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Event is delivered to subscribers on every auth state change. Session is
// nil for EventSignedOut. DeviceID names the device whose auth state changed
// and may be empty when the provider does not report it.
type Event struct {
	Kind     EventKind `json:"kind"`
	DeviceID string    `json:"device_id,omitempty"`
	Session  *Session  `json:"session,omitempty"`
}

// Oracle exposes the auth provider: the current session and a subscription
// to session changes. Implementations are external; everything in this
// repository consumes the interface.
type Oracle interface {
	Current(ctx context.Context) (*Session, error)
	// Subscribe registers a handler and returns an unsubscribe func.
	Subscribe(fn func(Event)) func()
}
