package roles_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/campus-auth/profiles"
	"github.com/jrsteele09/campus-auth/profiles/repofake"
	"github.com/jrsteele09/campus-auth/roles"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const adminEmail = "admin@aimsr.edu.in"

func setupRepo(t *testing.T) *repofake.FakeProfileRepo {
	t.Helper()
	repo := repofake.NewFakeProfileRepo()
	repo.Upsert(&users.Profile{ID: "admin-1", Role: users.RoleAdmin})
	repo.Upsert(&users.Profile{ID: "student-1", Role: users.RoleStudent})
	repo.Upsert(&users.Profile{ID: "organizer-1", Role: users.RoleOrganizer})
	return repo
}

func TestNew_SelectsStrategy(t *testing.T) {
	repo := setupRepo(t)

	r, err := roles.New(roles.StrategyProfile, adminEmail, repo)
	require.NoError(t, err)
	require.IsType(t, &roles.ProfileResolver{}, r)

	r, err = roles.New("", adminEmail, repo)
	require.NoError(t, err)
	require.IsType(t, &roles.ProfileResolver{}, r)

	r, err = roles.New(roles.StrategyEmail, adminEmail, nil)
	require.NoError(t, err)
	require.IsType(t, &roles.EmailResolver{}, r)

	_, err = roles.New("ldap", adminEmail, repo)
	require.ErrorContains(t, err, `[roles.New] unknown strategy "ldap"`)
	_, err = roles.New(roles.StrategyProfile, adminEmail, nil)
	require.Error(t, err)
	_, err = roles.New(roles.StrategyEmail, "", repo)
	require.Error(t, err)
}

func TestProfileResolver_IsAdmin(t *testing.T) {
	repo := setupRepo(t)
	r, err := roles.NewProfileResolver(repo)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		user    *users.User
		want    bool
		wantErr bool
	}{
		{name: "admin", user: &users.User{ID: "admin-1"}, want: true},
		{name: "student", user: &users.User{ID: "student-1"}},
		{name: "organizer", user: &users.User{ID: "organizer-1"}},
		{name: "no user", user: nil},
		{name: "no profile", user: &users.User{ID: "ghost"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.IsAdmin(ctx, tt.user)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestProfileResolver_LookupFailureFailsClosed(t *testing.T) {
	repo := setupRepo(t)
	lookupErr := errors.New("connection reset by peer")
	repo.FailWith("admin-1", lookupErr)
	r, err := roles.NewProfileResolver(repo)
	require.NoError(t, err)

	isAdmin, err := r.IsAdmin(context.Background(), &users.User{ID: "admin-1"})
	require.False(t, isAdmin)
	require.ErrorIs(t, err, lookupErr)

	_, err = r.IsAdmin(context.Background(), &users.User{ID: "ghost"})
	require.ErrorIs(t, err, profiles.ErrProfileNotFound)
}

func TestProfileResolver_IgnoresEmail(t *testing.T) {
	repo := setupRepo(t)
	r, err := roles.NewProfileResolver(repo)
	require.NoError(t, err)

	isAdmin, err := r.IsAdmin(context.Background(), &users.User{ID: "student-1", Email: adminEmail})
	require.NoError(t, err)
	require.False(t, isAdmin)
}

func TestProfileResolver_Role(t *testing.T) {
	repo := setupRepo(t)
	r, err := roles.NewProfileResolver(repo)
	require.NoError(t, err)

	role, err := r.Role(context.Background(), &users.User{ID: "organizer-1"})
	require.NoError(t, err)
	require.Equal(t, users.RoleOrganizer, role)
	require.Equal(t, 1, repo.Lookups("organizer-1"))

	_, err = r.Role(context.Background(), nil)
	require.Error(t, err)
}

func TestEmailResolver(t *testing.T) {
	r, err := roles.NewEmailResolver(adminEmail)
	require.NoError(t, err)

	tests := []struct {
		name string
		user *users.User
		want bool
	}{
		{name: "exact", user: &users.User{ID: "1", Email: adminEmail}, want: true},
		{name: "case and space", user: &users.User{ID: "1", Email: " Admin@AIMSR.edu.in "}, want: true},
		{name: "other", user: &users.User{ID: "2", Email: "student@aimsr.edu.in"}},
		{name: "empty", user: &users.User{ID: "3"}},
		{name: "nil", user: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.IsAdmin(context.Background(), tt.user)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.want, r.Match(tt.user))
		})
	}
}
