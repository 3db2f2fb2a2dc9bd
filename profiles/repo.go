package profiles

import (
	"context"

	apperrors "github.com/jrsteele09/campus-auth/internal/errors"
	"github.com/jrsteele09/campus-auth/users"
)

// ErrProfileNotFound is returned when no profile row exists for a user.
var ErrProfileNotFound = apperrors.ErrProfileNotFound

// Repo is the read side of the data backend's profiles table.
type Repo interface {
	GetByUserID(ctx context.Context, userID string) (*users.Profile, error)
}
