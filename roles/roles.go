// Package roles answers whether an identity is an administrator.
//
// Two strategies exist and one is chosen at configuration time:
//   - StrategyProfile looks the user's profile up in the data backend (authoritative).
//   - StrategyEmail compares the user's email with the designated admin address.
//     It needs no round-trip but treats an email address as a credential, so it is
//     meant for demos only.
package roles

import (
	"context"

	"github.com/jrsteele09/campus-auth/profiles"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
)

// Strategy names an admin determination strategy.
type Strategy string

const (
	StrategyProfile Strategy = "profile"
	StrategyEmail   Strategy = "email"
)

// Resolver decides whether a user is an administrator.
// A nil user is never an administrator. Implementations fail closed: whenever
// an error is returned the boolean is false.
type Resolver interface {
	IsAdmin(ctx context.Context, user *users.User) (bool, error)
}

// New builds the resolver for strategy.
func New(strategy Strategy, adminEmail string, repo profiles.Repo) (Resolver, error) {
	switch strategy {
	case StrategyProfile, "":
		return NewProfileResolver(repo)
	case StrategyEmail:
		return NewEmailResolver(adminEmail)
	}
	return nil, errors.Errorf("[roles.New] unknown strategy %q", strategy)
}

var _ Resolver = (*ProfileResolver)(nil)

// ProfileResolver grants admin when the user's profile role is admin.
type ProfileResolver struct {
	repo profiles.Repo
}

func NewProfileResolver(repo profiles.Repo) (*ProfileResolver, error) {
	if repo == nil {
		return nil, errors.New("[NewProfileResolver] profile repo is required")
	}
	return &ProfileResolver{repo: repo}, nil
}

func (r *ProfileResolver) IsAdmin(ctx context.Context, user *users.User) (bool, error) {
	if user == nil {
		return false, nil
	}
	profile, err := r.repo.GetByUserID(ctx, user.ID)
	if err != nil {
		return false, errors.Wrapf(err, "[ProfileResolver.IsAdmin] lookup %s", user.ID)
	}
	if profile == nil {
		return false, errors.Wrapf(profiles.ErrProfileNotFound, "[ProfileResolver.IsAdmin] lookup %s", user.ID)
	}
	return profile.IsAdmin(), nil
}

// Role returns the user's profile role.
func (r *ProfileResolver) Role(ctx context.Context, user *users.User) (users.RoleType, error) {
	if user == nil {
		return "", errors.New("[ProfileResolver.Role] no user")
	}
	profile, err := r.repo.GetByUserID(ctx, user.ID)
	if err != nil {
		return "", errors.Wrapf(err, "[ProfileResolver.Role] lookup %s", user.ID)
	}
	if profile == nil {
		return "", errors.Wrapf(profiles.ErrProfileNotFound, "[ProfileResolver.Role] lookup %s", user.ID)
	}
	return profile.Role, nil
}

var _ Resolver = (*EmailResolver)(nil)

// EmailResolver grants admin to the one designated email address.
type EmailResolver struct {
	adminEmail string
}

func NewEmailResolver(adminEmail string) (*EmailResolver, error) {
	if adminEmail == "" {
		return nil, errors.New("[NewEmailResolver] admin email is required")
	}
	return &EmailResolver{adminEmail: users.NormaliseEmail(adminEmail)}, nil
}

func (r *EmailResolver) IsAdmin(_ context.Context, user *users.User) (bool, error) {
	return r.Match(user), nil
}

// Match is the synchronous form of IsAdmin.
func (r *EmailResolver) Match(user *users.User) bool {
	return user != nil && users.SameEmail(user.Email, r.adminEmail)
}
