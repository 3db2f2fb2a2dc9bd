package pgrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/campus-auth/profiles"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
)

var _ profiles.Repo = (*ProfileRepository)(nil)

// Config describes the Postgres connection.
type Config struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// Querier is the slice of a pgx pool or connection the repository uses.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// ProfileRepository reads roles from the profiles table.
type ProfileRepository struct {
	db Querier
}

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "[pgrepo.NewPool] parse dsn")
	}

	if cfg.MaxOpen > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpen)
	}
	if cfg.MaxIdle > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdle)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "[pgrepo.NewPool] connect")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "[pgrepo.NewPool] ping")
	}
	return pool, nil
}

func NewProfileRepository(db Querier) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*users.Profile, error) {
	const query = `SELECT id::text, role::text FROM profiles WHERE id = $1`

	var (
		profile users.Profile
		role    string
	)
	if err := r.db.QueryRow(ctx, query, userID).Scan(&profile.ID, &role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, profiles.ErrProfileNotFound
		}
		return nil, errors.Wrapf(err, "[ProfileRepository.GetByUserID] %s", userID)
	}
	profile.Role = users.RoleType(role)
	return &profile, nil
}
