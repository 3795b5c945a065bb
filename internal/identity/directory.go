// Package identity maps classifier speaker labels to user accounts.
//
// The speaker classifier names voices by label; an account only becomes
// loggable by voice after an explicit bind associates its user ID with one
// label. Labels and users bind one-to-one: a label belongs to at most one
// user and a user holds at most one label.
//
// The primary abstraction is the [Directory] interface. [PostgresDirectory]
// persists bindings in the voice_identities table; [MemDirectory] keeps
// them in memory for tests and database-free deployments.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyBound is returned by [Directory.Bind] when the label or the
// user already participates in a binding. Check with [errors.Is].
var ErrAlreadyBound = errors.New("identity: already bound")

// Identity is one label→user binding.
type Identity struct {
	// Label is the classifier's speaker label. Unique across bindings.
	Label string `json:"label"`

	// UserID is the bound account. Unique across bindings.
	UserID string `json:"user_id"`

	// DisplayName is an optional human-readable name used in greetings.
	// Falls back to Label when empty.
	DisplayName string `json:"display_name,omitempty"`

	// BoundAt is when the binding was created.
	BoundAt time.Time `json:"bound_at"`
}

// Name returns the name to address the user by.
func (id Identity) Name() string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return id.Label
}

// Directory resolves and manages label→user bindings.
// Implementations must be safe for concurrent use.
type Directory interface {
	// Bind creates a new binding. Returns an error wrapping
	// [ErrAlreadyBound] when the label or the user is already bound.
	Bind(ctx context.Context, ident *Identity) error

	// Get resolves a speaker label. Returns (nil, nil) if unbound.
	Get(ctx context.Context, label string) (*Identity, error)

	// GetByUser resolves a user ID to its binding. Returns (nil, nil) if
	// the user has no binding.
	GetByUser(ctx context.Context, userID string) (*Identity, error)

	// Unbind removes a binding by label. Removing an absent binding is
	// not an error.
	Unbind(ctx context.Context, label string) error

	// List returns all bindings ordered by label.
	List(ctx context.Context) ([]Identity, error)
}
