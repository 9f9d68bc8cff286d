package identity

import "errors"

var (
	// ErrUnknownFamily is returned by ParseFamily for an unrecognized name.
	ErrUnknownFamily = errors.New("unknown browser family")

	// ErrInconsistentProfile is returned by Profile.Validate when two fields
	// describe different clients.
	ErrInconsistentProfile = errors.New("inconsistent profile")

	// ErrInvalidCatalog is returned by NewGenerator when the injected catalog
	// cannot produce a profile for every family.
	ErrInvalidCatalog = errors.New("invalid identity catalog")
)
