// Package cli implements the fitsync command line.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

const AppName = "fitsync"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "FitSync - session and chat sync for the fitness marketplace",
		Long:          "FitSync keeps the marketplace session, conversation list and chat threads in sync by polling.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("api-url", "", "marketplace API base URL (mock:// for the in-memory backend)")
	cmd.PersistentFlags().String("state", "", "session state database DSN")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewServeCmd(),
		NewLoginCmd(),
		NewSignupCmd(),
		NewLogoutCmd(),
		NewWhoamiCmd(),
		NewRoleCmd(),
		NewDeleteAccountCmd(),
		NewConversationsCmd(),
		NewOpenCmd(),
		NewChatCmd(),
		NewSendCmd(),
	)

	return cmd
}

func Execute(ctx context.Context) error {
	return NewRootCmd(Version).ExecuteContext(ctx)
}
