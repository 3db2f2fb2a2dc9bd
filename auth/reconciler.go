package auth

import (
	"context"
	"sync"

	"github.com/jrsteele09/campus-auth/backend"
	"github.com/jrsteele09/campus-auth/internal/metrics"
	"github.com/jrsteele09/campus-auth/roles"
	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sources of a session apply.
const (
	SourceBootstrap = "bootstrap"
	SourceListener  = "listener"
	SourceLogin     = "login"
	SourceSignOut   = "signout"
)

// SessionSource is the part of the auth backend the reconciler watches.
type SessionSource interface {
	GetCurrentSession(ctx context.Context) (*sessions.Session, error)
	OnSessionChange(listener backend.ChangeListener) backend.Subscription
}

// Reconciler keeps a sessions.Store consistent with the backend. It applies the
// bootstrap session and every pushed change, in whatever order they arrive;
// the apply that runs last wins.
type Reconciler struct {
	store    *sessions.Store
	source   SessionSource
	resolver roles.Resolver
	metrics  metrics.Recorder

	applyLock sync.Mutex // serializes applies
	applied   bool       // an apply has completed

	lock         sync.Mutex
	subscription backend.Subscription
	started      bool
	closed       bool
	bootstrapped chan struct{}
	cancel       context.CancelFunc
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerMetrics sets the metrics recorder.
func WithReconcilerMetrics(recorder metrics.Recorder) ReconcilerOption {
	return func(r *Reconciler) {
		r.metrics = recorder
	}
}

// NewReconciler validates its dependencies.
func NewReconciler(store *sessions.Store, source SessionSource, resolver roles.Resolver, options ...ReconcilerOption) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("[NewReconciler] store is required")
	}
	if source == nil {
		return nil, errors.New("[NewReconciler] session source is required")
	}
	if resolver == nil {
		return nil, errors.New("[NewReconciler] resolver is required")
	}
	r := &Reconciler{
		store:        store,
		source:       source,
		resolver:     resolver,
		metrics:      metrics.Nop{},
		bootstrapped: make(chan struct{}),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Start registers the change listener and launches the bootstrap fetch.
// The listener may fire before, during or after the bootstrap resolves.
func (r *Reconciler) Start(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return errors.New("[Reconciler.Start] reconciler is closed")
	}
	if r.started {
		return errors.New("[Reconciler.Start] already started")
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.subscription = r.source.OnSessionChange(func(event backend.ChangeEvent, session *sessions.Session) {
		log.Debug().Str("event", string(event)).Str("user", session.UserID()).Msg("auth state change")
		r.Apply(ctx, SourceListener, session)
	})

	go r.bootstrap(ctx)
	return nil
}

// Bootstrapped is closed once the bootstrap fetch has been handled.
func (r *Reconciler) Bootstrapped() <-chan struct{} {
	return r.bootstrapped
}

// Close releases the listener subscription. It is safe to call more than once.
func (r *Reconciler) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.subscription != nil {
		r.subscription.Unsubscribe()
		r.subscription = nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func (r *Reconciler) bootstrap(ctx context.Context) {
	defer close(r.bootstrapped)

	session, err := r.source.GetCurrentSession(ctx)
	if err != nil {
		log.Err(err).Msg("[Reconciler.bootstrap] session fetch failed, continuing signed out")
		r.applyLock.Lock()
		if !r.applied {
			r.applyLocked(ctx, SourceBootstrap, nil)
		}
		r.applyLock.Unlock()
		r.store.MarkLoaded()
		return
	}
	log.Debug().Str("user", session.UserID()).Msg("initial session check")
	r.Apply(ctx, SourceBootstrap, session)
}

// Apply writes session to the store, recomputes the admin flag and ends the
// store's loading state. Role Resolver failures are logged and leave the user
// a non-admin.
func (r *Reconciler) Apply(ctx context.Context, source string, session *sessions.Session) {
	r.applyLock.Lock()
	r.applyLocked(ctx, source, session)
	r.applyLock.Unlock()
	r.store.MarkLoaded()
}

func (r *Reconciler) applyLocked(ctx context.Context, source string, session *sessions.Session) {
	r.metrics.RecordSessionApply(source)
	r.applied = true

	if session == nil || session.User == nil {
		r.store.Clear()
		return
	}

	generation := r.store.Set(session)
	isAdmin, err := r.resolver.IsAdmin(ctx, session.User)
	if err != nil {
		r.metrics.RecordRoleLookupFailure()
		log.Err(err).Str("user", session.UserID()).Msg("error checking user role")
		isAdmin = false
	}
	r.store.SetAdmin(generation, isAdmin)
}
