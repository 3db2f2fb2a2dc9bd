package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/campus-auth/auth"
	"github.com/jrsteele09/campus-auth/internal/metrics"
	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				outcome := a.controller.Login(ctx, auth.Credentials{Email: email, Password: password})
				return printOutcome(a, outcome)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newAdminLoginCommand(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "admin-login",
		Short: "Sign in to the admin dashboard",
		Long: `Sign in as an administrator. The email defaults to the designated admin
address. In memory mode the demo admin password is used when none is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if email == "" {
					email = a.cfg.GetAdminEmail()
				}
				if password == "" && a.cfg.GetBackendMode() == modeMemory {
					password = demoAdminPassword
				}
				if decision := auth.AdminLogin(a.provider.State()); decision.Verdict == auth.Redirect {
					fmt.Fprintln(a.out, "Already signed in as an administrator.")
					return a.navigate(ctx, decision.Destination)
				}
				outcome := a.controller.Login(ctx, auth.Credentials{Email: email, Password: password, IsAdminAttempt: true})
				return printOutcome(a, outcome)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email (default: admin.email)")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}

func newRegisterCommand(opts *rootOptions) *cobra.Command {
	var req auth.SignUpRequest
	var role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account; a confirmation email is sent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				req.Role = users.RoleType(role)
				return printOutcome(a, a.controller.Register(ctx, req))
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&role, "role", string(users.RoleStudent), "student or organizer")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted session and where the guards would send it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app) error {
				state := a.provider.State()
				printState(a, state)
				fmt.Fprintf(a.out, "user pages:  %s\n", describe(auth.RequireUser(state)))
				fmt.Fprintf(a.out, "admin pages: %s\n", describe(auth.RequireAdmin(state)))
				return nil
			})
		},
	}
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out everywhere",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.provider.SignOut(ctx); err != nil {
					fmt.Fprintf(a.out, "Signed out locally; the auth service reported: %s\n", auth.UserMessage(err))
					return nil
				}
				fmt.Fprintln(a.out, "Signed out.")
				return nil
			})
		},
	}
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print session changes until interrupted, serving metrics when metricsaddr is set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				unsubscribe := a.provider.Subscribe(func(state sessions.State) {
					printState(a, state)
				})
				defer unsubscribe()
				printState(a, a.provider.State())

				if addr := a.cfg.GetMetricsAddr(); addr != "" {
					server := &http.Server{Addr: addr, Handler: metrics.Handler(a.registry)}
					go listenAndServe(server)
					defer shutdown(server)
				}

				<-ctx.Done()
				return nil
			})
		},
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("metrics listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Err(err).Msg("[listenAndServe] metrics server")
	}
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Err(err).Msg("[shutdown] metrics server")
	}
}

func printOutcome(a *app, outcome auth.Outcome) error {
	fmt.Fprintln(a.out, outcome.Title)
	if outcome.Description != "" {
		fmt.Fprintln(a.out, outcome.Description)
	}
	if outcome.State != auth.StateSuccess {
		return errors.Errorf("%s", outcome.State)
	}
	return nil
}

func printState(a *app, state sessions.State) {
	switch {
	case state.IsLoading:
		fmt.Fprintln(a.out, "session: loading")
	case state.User == nil:
		fmt.Fprintln(a.out, "session: signed out")
	default:
		fmt.Fprintf(a.out, "session: %s (admin: %t)\n", state.User.Email, state.IsAdmin)
	}
}

func describe(d auth.Decision) string {
	if d.Verdict == auth.Redirect {
		return fmt.Sprintf("%s to %s", d.Verdict, d.Destination)
	}
	return d.Verdict.String()
}
