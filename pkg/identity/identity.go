// Package identity resolves email + activation code pairs to registered
// accounts. The relay treats this as a read-only collaborator: it never
// mutates an account, it only asks whether a credential pair matches an
// active one.
package identity

import (
	"context"
	"errors"
)

// ErrNotFound means no account matched the credential pair. Callers must not
// tell the client whether the email or the code was wrong.
var ErrNotFound = errors.New("no matching account")

// Identity is a registered account as seen by the relay.
type Identity struct {
	Email         string
	FirstName     string
	LastName      string
	Language      string // stored dictation language preference
	Active        bool
	DaysRemaining int
}

// Lookup finds accounts by credential pair.
type Lookup interface {
	// FindByEmailAndCode returns the account matching both values, or
	// ErrNotFound. An expired or deactivated account is returned with
	// Active == false; the caller decides how much to reveal.
	FindByEmailAndCode(ctx context.Context, email, code string) (*Identity, error)
}
