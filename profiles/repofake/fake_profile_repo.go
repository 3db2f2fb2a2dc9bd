package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/campus-auth/profiles"
	"github.com/jrsteele09/campus-auth/users"
)

var _ profiles.Repo = (*FakeProfileRepo)(nil)

type FakeProfileRepo struct {
	profiles map[string]*users.Profile
	failures map[string]error // userID to the error a lookup returns
	lookups  map[string]int
	lock     sync.RWMutex
}

func NewFakeProfileRepo() *FakeProfileRepo {
	return &FakeProfileRepo{
		profiles: make(map[string]*users.Profile),
		failures: make(map[string]error),
		lookups:  make(map[string]int),
	}
}

func (pr *FakeProfileRepo) Upsert(profile *users.Profile) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	p := *profile
	pr.profiles[profile.ID] = &p
}

func (pr *FakeProfileRepo) Delete(userID string) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	delete(pr.profiles, userID)
}

// FailWith makes lookups for userID return err.
func (pr *FakeProfileRepo) FailWith(userID string, err error) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	pr.failures[userID] = err
}

// Lookups returns how many times userID was looked up.
func (pr *FakeProfileRepo) Lookups(userID string) int {
	pr.lock.RLock()
	defer pr.lock.RUnlock()
	return pr.lookups[userID]
}

func (pr *FakeProfileRepo) GetByUserID(_ context.Context, userID string) (*users.Profile, error) {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	pr.lookups[userID]++
	if err, ok := pr.failures[userID]; ok {
		return nil, err
	}
	p, ok := pr.profiles[userID]
	if !ok {
		return nil, profiles.ErrProfileNotFound
	}
	c := *p
	return &c, nil
}
