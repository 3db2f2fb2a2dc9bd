package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/campus-auth/artifacts"
	"github.com/jrsteele09/campus-auth/artifacts/redisstore"
	"github.com/jrsteele09/campus-auth/auth"
	"github.com/jrsteele09/campus-auth/backend"
	"github.com/jrsteele09/campus-auth/backend/gotrue"
	"github.com/jrsteele09/campus-auth/backend/memory"
	"github.com/jrsteele09/campus-auth/internal/config"
	"github.com/jrsteele09/campus-auth/internal/metrics"
	"github.com/jrsteele09/campus-auth/mail"
	"github.com/jrsteele09/campus-auth/profiles"
	"github.com/jrsteele09/campus-auth/profiles/pgrepo"
	"github.com/jrsteele09/campus-auth/roles"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	modeMemory = "memory"
	modeGoTrue = "gotrue"

	// demoAdminPassword is seeded for the admin account in memory mode only.
	demoAdminPassword = "123456"
)

// app is everything one command invocation needs.
type app struct {
	cfg        config.Config
	artifacts  artifacts.Store
	backend    backend.AuthBackend
	profiles   profiles.Repo
	provider   *auth.Provider
	controller *auth.LoginController
	registry   *prometheus.Registry
	out        io.Writer

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, out io.Writer) (*app, error) {
	a := &app{cfg: cfg, out: out, registry: prometheus.NewRegistry()}
	collector := metrics.NewCollector(a.registry)

	store, err := a.openArtifacts(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.artifacts = store

	if err := a.openBackend(ctx); err != nil {
		a.Close()
		return nil, err
	}

	resolver, err := roles.New(roles.Strategy(cfg.GetAdminStrategy()), cfg.GetAdminEmail(), a.profiles)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[newApp] roles.New")
	}

	navigator := auth.NavigatorFunc(a.navigate)
	provider, err := auth.NewProvider(a.backend, resolver,
		auth.WithProviderNavigator(navigator),
		auth.WithProviderMetrics(collector),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[newApp] NewProvider")
	}
	a.provider = provider
	a.closers = append(a.closers, func() { _ = provider.Close() })

	policy, err := auth.ParseAdminUnconfirmedPolicy(cfg.GetAdminUnconfirmedPolicy())
	if err != nil {
		a.Close()
		return nil, err
	}
	controller, err := auth.NewLoginController(a.backend, provider.Store(), a.profiles, cfg.GetAdminEmail(),
		auth.WithArtifactStores(store),
		auth.WithNavigator(navigator),
		auth.WithUnconfirmedPolicy(policy),
		auth.WithSettleTimeout(cfg.GetSettleTimeout()),
		auth.WithLoginMetrics(collector),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[newApp] NewLoginController")
	}
	a.controller = controller
	return a, nil
}

func (a *app) openArtifacts(ctx context.Context) (artifacts.Store, error) {
	switch strings.ToLower(a.cfg.GetArtifactsDriver()) {
	case "file", "":
		return artifacts.NewFileStore(a.cfg.GetArtifactsPath()), nil
	case "memory":
		return artifacts.NewMemoryStore(), nil
	case "redis":
		if strings.TrimSpace(a.cfg.GetRedisNamespace()) == "" {
			return nil, errors.New("[app.openArtifacts] storage.redisnamespace must not be empty")
		}
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     a.cfg.GetRedisAddr(),
			Password: a.cfg.GetRedisPassword(),
			DB:       a.cfg.GetRedisDB(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "[app.openArtifacts] redis")
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store, err := redisstore.New(client, a.cfg.GetRedisNamespace(), 0)
		if err != nil {
			return nil, errors.Wrap(err, "[app.openArtifacts] redis")
		}
		return store, nil
	}
	return nil, errors.Errorf("[app.openArtifacts] unknown storage driver %q", a.cfg.GetArtifactsDriver())
}

func (a *app) openBackend(ctx context.Context) error {
	switch strings.ToLower(a.cfg.GetBackendMode()) {
	case modeMemory, "":
		b, err := a.openMemoryBackend(ctx)
		if err != nil {
			return err
		}
		a.backend, a.profiles = b, b
	case modeGoTrue:
		client, err := gotrue.New(gotrue.Config{
			URL:        a.cfg.GetBackendURL(),
			APIKey:     a.cfg.GetBackendAPIKey(),
			ProjectRef: a.cfg.GetProjectRef(),
			Timeout:    a.cfg.GetRequestTimeout(),
		}, a.artifacts)
		if err != nil {
			return errors.Wrap(err, "[app.openBackend] gotrue")
		}
		a.backend, a.profiles = client, client
	default:
		return errors.Errorf("[app.openBackend] unknown backend mode %q", a.cfg.GetBackendMode())
	}

	if dsn := a.cfg.GetPostgresDSN(); dsn != "" {
		pool, err := pgrepo.NewPool(ctx, pgrepo.Config{DSN: dsn})
		if err != nil {
			return errors.Wrap(err, "[app.openBackend] postgres")
		}
		a.closers = append(a.closers, pool.Close)
		a.profiles = pgrepo.NewProfileRepository(pool)
	}
	return nil
}

// openMemoryBackend builds the demo backend with the designated admin account
// already confirmed.
func (a *app) openMemoryBackend(ctx context.Context) (*memory.Backend, error) {
	sender, err := a.mailer(ctx)
	if err != nil {
		return nil, err
	}
	b, err := memory.New(a.artifacts,
		memory.WithMailer(sender),
		memory.WithSiteURL(a.cfg.GetSiteURL()),
		memory.WithProjectRef(a.cfg.GetProjectRef()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[app.openMemoryBackend] memory.New")
	}

	admin, err := b.CreateUser(a.cfg.GetAdminEmail(), demoAdminPassword, users.Metadata{FirstName: "Campus", LastName: "Admin", Role: users.RoleAdmin}, true)
	if err != nil {
		return nil, errors.Wrap(err, "[app.openMemoryBackend] seed admin")
	}
	log.Debug().Str("email", admin.Email).Msg("demo admin seeded")
	return b, nil
}

func (a *app) mailer(ctx context.Context) (mail.Sender, error) {
	if a.cfg.GetMailFrom() == "" {
		return mail.LogSender{}, nil
	}
	sender, err := mail.NewSESSender(ctx, a.cfg.GetSESRegion(), a.cfg.GetMailFrom(), a.cfg.GetMailFromName())
	if err != nil {
		return nil, errors.Wrap(err, "[app.mailer]")
	}
	return sender, nil
}

// navigate prints the destination. The next command run bootstraps from the
// persisted session, like a page load after a full reload.
func (a *app) navigate(_ context.Context, destination auth.Destination) error {
	_, err := fmt.Fprintf(a.out, "-> %s\n", destination)
	return err
}

// start begins reconciling and waits for the first load to finish.
func (a *app) start(ctx context.Context) error {
	if err := a.provider.Start(ctx); err != nil {
		return err
	}
	return errors.Wrap(a.provider.Store().WaitLoaded(ctx), "[app.start] WaitLoaded")
}

// Close releases everything opened, most recent first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
