package pgrepo_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jrsteele09/campus-auth/profiles"
	"github.com/jrsteele09/campus-auth/profiles/pgrepo"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []string
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*string)) = r.values[i]
	}
	return nil
}

type fakeQuerier struct {
	rows  map[string]fakeRow
	query string
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.query = sql
	row, ok := q.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return row
}

func TestProfileRepository_GetByUserID(t *testing.T) {
	q := &fakeQuerier{rows: map[string]fakeRow{
		"admin-1":  {values: []string{"admin-1", "admin"}},
		"broken-1": {err: errors.New("conn busy")},
	}}
	repo := pgrepo.NewProfileRepository(q)
	ctx := context.Background()

	profile, err := repo.GetByUserID(ctx, "admin-1")
	require.NoError(t, err)
	require.Equal(t, &users.Profile{ID: "admin-1", Role: users.RoleAdmin}, profile)
	require.Contains(t, q.query, "FROM profiles")

	_, err = repo.GetByUserID(ctx, "ghost")
	require.ErrorIs(t, err, profiles.ErrProfileNotFound)

	_, err = repo.GetByUserID(ctx, "broken-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, profiles.ErrProfileNotFound)
}

// Runs against a real database when CAMPUSAUTH_TEST_POSTGRES holds a DSN.
func TestProfileRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("CAMPUSAUTH_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("CAMPUSAUTH_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	pool, err := pgrepo.NewPool(ctx, pgrepo.Config{DSN: dsn, MaxOpen: 1})
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `CREATE TEMP TABLE profiles (id text PRIMARY KEY, role text NOT NULL)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO profiles (id, role) VALUES ('u-admin', 'admin'), ('u-student', 'student')`)
	require.NoError(t, err)

	repo := pgrepo.NewProfileRepository(pool)
	profile, err := repo.GetByUserID(ctx, "u-admin")
	require.NoError(t, err)
	require.True(t, profile.IsAdmin())

	_, err = repo.GetByUserID(ctx, "u-none")
	require.ErrorIs(t, err, profiles.ErrProfileNotFound)
}
