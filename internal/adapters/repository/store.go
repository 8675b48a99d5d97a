// Package repository holds the competitor roster.
package repository

import (
	"context"

	"github.com/okian/pitwall/internal/domain/profile"
)

// Roster owns every competitor profile. Readers get copies; writers get
// exclusive access to one profile for the duration of a callback.
type Roster interface {
	// Get returns a copy of the named profile or ErrNotFound.
	Get(ctx context.Context, name string) (*profile.Profile, error)

	// List returns copies of all profiles ordered by name.
	List(ctx context.Context) []*profile.Profile

	// Count returns the number of competitors.
	Count(ctx context.Context) int

	// Upsert stores p, replacing any profile with the same name.
	Upsert(ctx context.Context, p *profile.Profile) error

	// Remove deletes the named profile or returns ErrNotFound.
	Remove(ctx context.Context, name string) error

	// Update runs fn on a working copy of the named profile while holding
	// that profile's lock. The copy replaces the stored profile only when fn
	// returns nil.
	Update(ctx context.Context, name string, fn func(*profile.Profile) error) error

	// UpdateOrCreate stores create() when name is unknown, otherwise behaves
	// like Update. It reports whether a profile was created.
	UpdateOrCreate(ctx context.Context, name string, create func() *profile.Profile, update func(*profile.Profile) error) (bool, error)

	// Replace swaps the whole roster, typically after loading a snapshot.
	Replace(ctx context.Context, profiles []*profile.Profile) error
}
