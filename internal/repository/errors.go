package repository

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// Common repository errors that can be checked with errors.Is(). Each wraps
// the matching errdefs class so callers outside this package can classify
// them without importing it.
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = fmt.Errorf("entity %w", errdefs.ErrNotFound)

	// ErrDuplicate is returned when attempting to create an entity that already exists
	ErrDuplicate = fmt.Errorf("entity %w", errdefs.ErrAlreadyExists)

	// ErrInvalidEntity is returned when an entity fails validation
	ErrInvalidEntity = fmt.Errorf("invalid entity: %w", errdefs.ErrInvalidArgument)
)
