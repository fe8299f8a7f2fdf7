package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const watchInterval = 250 * time.Millisecond

// NewConversationsCmd creates the conversations command.
func NewConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")

			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			index := app.Engine.Conversations()
			if !watch {
				if err := index.Refresh(cmd.Context()); err != nil {
					return writeCommandError(cmd, err)
				}
				return printConversations(cmd, app)
			}

			ctx, stop := notifyContext(cmd.Context())
			defer stop()
			if err := app.Engine.EnterConversationList(ctx); err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Engine.LeaveConversationList()

			var shown uint64
			return watchLoop(ctx, func() error {
				if !app.Engine.Session().Current().Authenticated() {
					return writeCommandError(cmd, fmt.Errorf("session expired"))
				}
				if !index.Loaded() || index.Version() == shown {
					return nil
				}
				shown = index.Version()
				if !jsonMode(cmd) {
					fmt.Fprintf(cmd.OutOrStdout(), "-- %s --\n", time.Now().Format(time.Kitchen))
				}
				return printConversations(cmd, app)
			})
		},
	}
	cmd.Flags().BoolP("watch", "w", false, "keep polling and print the list whenever it changes")
	return cmd
}

// NewOpenCmd creates the open command.
func NewOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <user-id>",
		Short: "Get or create the conversation with another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			id, err := app.Engine.Conversations().OpenConversation(cmd.Context(), args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if jsonMode(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"conversation_id": id})
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func printConversations(cmd *cobra.Command, app *App) error {
	index := app.Engine.Conversations()
	if jsonMode(cmd) {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"conversations": index.Conversations(),
			"total_unread":  index.TotalUnread(),
		})
	}
	formatConversations(cmd.OutOrStdout(), index.Conversations(), app.Engine.Session().Current().UserID, time.Now())
	return nil
}

// watchLoop calls check every watchInterval until ctx ends or check fails.
func watchLoop(ctx context.Context, check func() error) error {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	for {
		if err := check(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
