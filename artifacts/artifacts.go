// Package artifacts holds the client side key/value stores where auth tokens
// are persisted between runs, and the cleanup run before every login.
package artifacts

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/pkg/errors"
)

// Naming convention of keys written by the auth client.
const (
	LegacyKeyPrefix = "supabase.auth."
	KeyMarker       = "sb-"
)

// Store is an enumerable key/value store.
type Store interface {
	Keys(ctx context.Context) ([]string, error)
	Get(ctx context.Context, key string) (string, error) // ErrArtifactNotFound when absent
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// IsAuthKey reports whether key follows the auth client's naming convention.
func IsAuthKey(key string) bool {
	return strings.HasPrefix(key, LegacyKeyPrefix) || strings.Contains(key, KeyMarker)
}

// SessionKey returns the key the auth client persists its session under.
func SessionKey(projectRef string) string {
	return KeyMarker + projectRef + "-auth-token"
}

// Cleanup removes every auth key from each store and returns how many were removed.
// A failing store or key does not stop the rest; the failures are joined.
func Cleanup(ctx context.Context, stores ...Store) (int, error) {
	removed := 0
	var errs []error
	for _, store := range stores {
		if store == nil {
			continue
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			errs = append(errs, errors.Wrap(err, "[artifacts.Cleanup] Keys"))
			continue
		}
		for _, key := range keys {
			if !IsAuthKey(key) {
				continue
			}
			if err := store.Remove(ctx, key); err != nil {
				errs = append(errs, errors.Wrapf(err, "[artifacts.Cleanup] Remove %s", key))
				continue
			}
			removed++
		}
	}
	return removed, stderrors.Join(errs...)
}

// Residual returns the auth keys still present across the stores.
func Residual(ctx context.Context, stores ...Store) ([]string, error) {
	var residual []string
	for _, store := range stores {
		if store == nil {
			continue
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "[artifacts.Residual] Keys")
		}
		for _, key := range keys {
			if IsAuthKey(key) {
				residual = append(residual, key)
			}
		}
	}
	return residual, nil
}
