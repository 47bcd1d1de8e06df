package profile

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested profile does not exist.
var ErrNotFound = errors.New("profile not found")

// ErrDuplicateID is returned by Add methods when a profile with the same ID
// already exists.
var ErrDuplicateID = errors.New("profile with that ID already exists")

// ErrInvalidImportData is returned by the codec when an import payload is
// malformed or fails field validation.
var ErrInvalidImportData = errors.New("invalid profile import data")

// Store persists voice and noise profiles. It is the injected persistence
// dependency of the calibration manager and noise cancellation engine; the
// pipeline never assumes a particular backend.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// AddVoice creates a new voice profile. A profile with an empty ID gets
	// one generated. Returns [ErrDuplicateID] for an existing non-empty ID.
	AddVoice(ctx context.Context, p VoiceProfile) (VoiceProfile, error)

	// GetVoice retrieves a voice profile by ID.
	// Returns [ErrNotFound] when no profile with that ID exists.
	GetVoice(ctx context.Context, id string) (VoiceProfile, error)

	// ListVoice returns all voice profiles. Result order is not guaranteed.
	ListVoice(ctx context.Context) ([]VoiceProfile, error)

	// UpdateVoice replaces an existing voice profile.
	// Returns [ErrNotFound] when no profile with that ID exists.
	UpdateVoice(ctx context.Context, p VoiceProfile) error

	// RemoveVoice deletes a voice profile by ID.
	// Returns [ErrNotFound] when no profile with that ID exists.
	RemoveVoice(ctx context.Context, id string) error

	// SaveNoise creates or replaces a noise profile keyed by its ID.
	SaveNoise(ctx context.Context, p NoiseProfile) error

	// GetNoise retrieves a noise profile by ID.
	// Returns [ErrNotFound] when no profile with that ID exists.
	GetNoise(ctx context.Context, id string) (NoiseProfile, error)

	// ListNoise returns all noise profiles. Result order is not guaranteed.
	ListNoise(ctx context.Context) ([]NoiseProfile, error)

	// RemoveNoise deletes a noise profile by ID.
	// Returns [ErrNotFound] when no profile with that ID exists.
	RemoveNoise(ctx context.Context, id string) error
}
