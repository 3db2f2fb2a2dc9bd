package auth

import (
	"context"

	"github.com/jrsteele09/campus-auth/backend"
	"github.com/jrsteele09/campus-auth/internal/metrics"
	"github.com/jrsteele09/campus-auth/roles"
	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Provider owns the process wide session store and the reconciler that feeds
// it. Consumers read State, Subscribe to changes and call SignOut.
type Provider struct {
	backend    backend.AuthBackend
	store      *sessions.Store
	reconciler *Reconciler
	navigator  Navigator
}

// ProviderOption configures a Provider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	navigator Navigator
	metrics   metrics.Recorder
	store     *sessions.Store
}

// WithProviderNavigator sets the navigator used after sign out.
func WithProviderNavigator(navigator Navigator) ProviderOption {
	return func(o *providerOptions) {
		o.navigator = navigator
	}
}

// WithProviderMetrics sets the metrics recorder handed to the reconciler.
func WithProviderMetrics(recorder metrics.Recorder) ProviderOption {
	return func(o *providerOptions) {
		o.metrics = recorder
	}
}

// WithStore uses an existing store instead of a new one.
func WithStore(store *sessions.Store) ProviderOption {
	return func(o *providerOptions) {
		o.store = store
	}
}

// NewProvider wires a store and reconciler for authBackend.
func NewProvider(authBackend backend.AuthBackend, resolver roles.Resolver, options ...ProviderOption) (*Provider, error) {
	if authBackend == nil {
		return nil, errors.New("[NewProvider] auth backend is required")
	}
	opts := providerOptions{metrics: metrics.Nop{}}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.store == nil {
		opts.store = sessions.NewStore()
	}

	reconciler, err := NewReconciler(opts.store, authBackend, resolver, WithReconcilerMetrics(opts.metrics))
	if err != nil {
		return nil, errors.Wrap(err, "[NewProvider] NewReconciler")
	}
	return &Provider{
		backend:    authBackend,
		store:      opts.store,
		reconciler: reconciler,
		navigator:  opts.navigator,
	}, nil
}

// Start begins reconciling the store with the backend.
func (p *Provider) Start(ctx context.Context) error {
	return errors.Wrap(p.reconciler.Start(ctx), "[Provider.Start]")
}

// Close stops listening for backend changes and drops store subscribers.
func (p *Provider) Close() error {
	err := p.reconciler.Close()
	p.store.Close()
	return err
}

// Store returns the session store.
func (p *Provider) Store() *sessions.Store {
	return p.store
}

// Reconciler returns the reconciler feeding the store.
func (p *Provider) Reconciler() *Reconciler {
	return p.reconciler
}

// State returns the current snapshot.
func (p *Provider) State() sessions.State {
	return p.store.State()
}

// Subscribe registers fn for every observable store change.
func (p *Provider) Subscribe(fn func(sessions.State)) (unsubscribe func()) {
	return p.store.Subscribe(fn)
}

// SignOut ends the session at the backend, clears the store and navigates home.
// The store is cleared even when the backend call fails.
func (p *Provider) SignOut(ctx context.Context) error {
	signOutErr := p.backend.SignOut(ctx, backend.ScopeGlobal)
	if signOutErr != nil {
		log.Err(signOutErr).Msg("[Provider.SignOut] backend sign out")
	}
	p.reconciler.Apply(ctx, SourceSignOut, nil)

	if p.navigator != nil {
		if err := p.navigator.Navigate(ctx, DestinationHome); err != nil {
			log.Err(err).Msg("[Provider.SignOut] navigate")
		}
	}
	return errors.Wrap(signOutErr, "[Provider.SignOut] backend sign out")
}
