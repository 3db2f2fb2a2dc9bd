// Package cli is the campusauth command tree.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/campus-auth/internal/config"
	"github.com/jrsteele09/campus-auth/internal/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	quiet      bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "campusauth",
		Short: "Campus events authentication client",
		Long: `campusauth signs users and administrators in to the campus events
platform, keeps the session in the configured artifact store and reports
where the route guards would send it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./campusauth.yaml)")
	root.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "skip the banner")

	root.AddCommand(
		newLoginCommand(opts),
		newAdminLoginCommand(opts),
		newRegisterCommand(opts),
		newStatusCommand(opts),
		newLogoutCommand(opts),
		newWatchCommand(opts),
	)
	return root
}

// ExecuteContext runs the command tree with ctx.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// withApp loads configuration, builds the app, waits for the session to load
// and runs fn.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	logging.NewWithWriter(cfg.GetEnv(), cmd.ErrOrStderr())

	out := cmd.OutOrStdout()
	if !o.quiet {
		displayAppname(out, cfg.GetAppName())
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return errors.Wrap(err, "[cli] start")
	}
	return fn(ctx, a)
}

func displayAppname(out io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(out, myFigure.String())
}
