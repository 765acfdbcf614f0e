// Package cli implements the sessionctl command tree.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile string
	json    bool
	timeout time.Duration
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sessionctl",
		Short: "Drive the EduDash session controller from a terminal",
		Long: `sessionctl signs in against the EduDash auth server, loads the caller's
profile, and reports the resulting session state.

Settings come from EDUDASH_* environment variables, optionally seeded from a
dotenv file. The session is persisted in Redis when EDUDASH_REDIS_ADDR is set,
so later invocations pick it up.

Examples:
  sessionctl signin --email principal@school.example
  sessionctl whoami --json
  sessionctl signout`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading the environment (default ./.env when present)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print machine-readable output")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "upper bound for waiting on the profile load")

	root.AddCommand(
		newSignInCommand(opts),
		newSignUpCommand(opts),
		newSignOutCommand(opts),
		newWhoAmICommand(opts),
		newResetPasswordCommand(opts),
		newUpdatePasswordCommand(opts),
		newWatchCommand(opts),
		newMetricsCommand(opts),
	)
	return root
}

// ExecuteContext runs the command tree with ctx.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
