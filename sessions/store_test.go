package sessions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/stretchr/testify/require"
)

func newSession(userID, token string) *sessions.Session {
	return &sessions.Session{
		AccessToken: token,
		ExpiresAt:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		User:        &users.User{ID: userID, Email: userID + "@aimsr.edu.in"},
	}
}

type notifications struct {
	lock   sync.Mutex
	states []sessions.State
}

func (n *notifications) record(st sessions.State) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.states = append(n.states, st)
}

func (n *notifications) count() int {
	n.lock.Lock()
	defer n.lock.Unlock()
	return len(n.states)
}

func TestStore_StartsLoading(t *testing.T) {
	s := sessions.NewStore()
	st := s.State()
	require.True(t, st.IsLoading)
	require.Nil(t, st.Session)
	require.Nil(t, st.User)
	require.False(t, st.IsAdmin)
	require.Equal(t, uint64(0), s.Generation())
}

func TestStore_SetReplacesSessionAndUserTogether(t *testing.T) {
	s := sessions.NewStore()
	gen := s.Set(newSession("u1", "t1"))
	require.Equal(t, uint64(1), gen)

	st := s.State()
	require.Equal(t, "t1", st.Session.AccessToken)
	require.Equal(t, "u1", st.UserID())
	require.Same(t, st.Session.User, st.User)
}

func TestStore_SetStoresACopy(t *testing.T) {
	s := sessions.NewStore()
	session := newSession("u1", "t1")
	s.Set(session)
	session.User.Email = "changed@aimsr.edu.in"

	require.Equal(t, "u1@aimsr.edu.in", s.State().User.Email)
}

func TestStore_SetWithoutUserClears(t *testing.T) {
	s := sessions.NewStore()
	s.Set(newSession("u1", "t1"))
	s.Set(&sessions.Session{AccessToken: "t2"})
	require.Nil(t, s.State().Session)

	s.Set(newSession("u1", "t1"))
	s.Set(nil)
	require.Nil(t, s.State().User)
}

func TestStore_EqualSessionIsNoOp(t *testing.T) {
	s := sessions.NewStore()
	n := &notifications{}
	s.Subscribe(n.record)

	gen := s.Set(newSession("u1", "t1"))
	require.True(t, s.SetAdmin(gen, true))
	before := s.State()
	count := n.count()

	gen = s.Set(newSession("u1", "t1"))
	require.True(t, s.SetAdmin(gen, true))

	require.Equal(t, count, n.count())
	require.Equal(t, before, s.State())
}

func TestStore_NewUserResetsAdmin(t *testing.T) {
	s := sessions.NewStore()
	gen := s.Set(newSession("u1", "t1"))
	s.SetAdmin(gen, true)
	require.True(t, s.State().IsAdmin)

	s.Set(newSession("u2", "t2"))
	require.False(t, s.State().IsAdmin)
}

func TestStore_RefreshedTokenKeepsAdmin(t *testing.T) {
	s := sessions.NewStore()
	gen := s.Set(newSession("u1", "t1"))
	s.SetAdmin(gen, true)

	s.Set(newSession("u1", "t1-refreshed"))
	st := s.State()
	require.Equal(t, "t1-refreshed", st.Session.AccessToken)
	require.True(t, st.IsAdmin)
}

func TestStore_StaleAdminFlagDiscarded(t *testing.T) {
	s := sessions.NewStore()
	oldGen := s.Set(newSession("admin", "t1"))
	newGen := s.Set(newSession("student", "t2"))

	// The lookup for the superseded session answers late.
	require.False(t, s.SetAdmin(oldGen, true))
	require.False(t, s.State().IsAdmin)

	require.True(t, s.SetAdmin(newGen, false))
	require.Equal(t, "student", s.State().UserID())
}

func TestStore_AdminNeverWithoutSession(t *testing.T) {
	s := sessions.NewStore()
	gen := s.Clear()
	require.True(t, s.SetAdmin(gen, true))
	require.False(t, s.State().IsAdmin)
}

func TestStore_ClearResetsEverything(t *testing.T) {
	s := sessions.NewStore()
	gen := s.Set(newSession("u1", "t1"))
	s.SetAdmin(gen, true)

	s.Clear()
	st := s.State()
	require.Nil(t, st.Session)
	require.Nil(t, st.User)
	require.False(t, st.IsAdmin)
}

func TestStore_LoadingLatchFlipsOnce(t *testing.T) {
	s := sessions.NewStore()
	n := &notifications{}
	s.Subscribe(n.record)

	require.True(t, s.MarkLoaded())
	require.False(t, s.MarkLoaded())
	require.False(t, s.State().IsLoading)
	require.Equal(t, 1, n.count())

	select {
	case <-s.Loaded():
	default:
		t.Fatal("loaded channel not closed")
	}

	s.Set(newSession("u1", "t1"))
	require.False(t, s.State().IsLoading)
}

func TestStore_WaitLoaded(t *testing.T) {
	s := sessions.NewStore()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.WaitLoaded(ctx), context.DeadlineExceeded)

	go s.MarkLoaded()
	require.NoError(t, s.WaitLoaded(context.Background()))
}

func TestStore_WaitForUser(t *testing.T) {
	s := sessions.NewStore()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- s.WaitForUser(ctx, "u2")
	}()

	s.Set(newSession("u1", "t1"))
	s.Set(newSession("u2", "t2"))
	require.NoError(t, <-done)

	// Already present returns immediately.
	require.NoError(t, s.WaitForUser(context.Background(), "u2"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.WaitForUser(ctx, "u3"), context.DeadlineExceeded)
}

func TestStore_Unsubscribe(t *testing.T) {
	s := sessions.NewStore()
	n := &notifications{}
	unsubscribe := s.Subscribe(n.record)

	s.Set(newSession("u1", "t1"))
	require.Equal(t, 1, n.count())

	unsubscribe()
	unsubscribe()
	s.Clear()
	require.Equal(t, 1, n.count())
}

func TestStore_SubscriberSeesConsistentSnapshot(t *testing.T) {
	s := sessions.NewStore()
	var inconsistent bool
	s.Subscribe(func(st sessions.State) {
		if (st.Session == nil) != (st.User == nil) {
			inconsistent = true
		}
		if st.IsAdmin && st.User == nil {
			inconsistent = true
		}
	})

	gen := s.Set(newSession("u1", "t1"))
	s.SetAdmin(gen, true)
	s.Set(newSession("u2", "t2"))
	s.Clear()
	s.MarkLoaded()
	require.False(t, inconsistent)
}

func TestStore_ConcurrentSetsLastWriteWins(t *testing.T) {
	s := sessions.NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			gen := s.Set(newSession(id, id))
			s.SetAdmin(gen, i%2 == 0)
		}(i)
	}
	wg.Wait()

	require.Equal(t, uint64(50), s.Generation())
	st := s.State()
	require.NotNil(t, st.Session)
	require.Equal(t, st.Session.User.ID, st.UserID())
}
