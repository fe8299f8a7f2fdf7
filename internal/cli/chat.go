package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Show the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")

			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			ctx, stop := notifyContext(cmd.Context())
			defer stop()
			if err := enterThread(cmd, app, args[0]); err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Engine.LeaveThread()

			thread := app.Engine.Thread()
			if err := thread.Refresh(ctx); err != nil {
				return writeCommandError(cmd, err)
			}
			selfID := app.Engine.Session().Current().UserID
			if !watch {
				return printMessages(cmd, thread.Messages(), selfID)
			}

			printed := map[string]bool{}
			var shown uint64
			return watchLoop(ctx, func() error {
				if !app.Engine.Session().Current().Authenticated() {
					return writeCommandError(cmd, fmt.Errorf("session expired"))
				}
				if thread.Version() == shown {
					return nil
				}
				shown = thread.Version()
				var fresh []domain.Message
				for _, m := range thread.Messages() {
					if m.Pending() || printed[m.ID] {
						continue
					}
					printed[m.ID] = true
					fresh = append(fresh, m)
				}
				if len(fresh) == 0 {
					return nil
				}
				return printMessages(cmd, fresh, selfID)
			})
		},
	}
	cmd.Flags().BoolP("watch", "w", false, "keep polling and print new messages as they arrive")
	return cmd
}

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversation-id> <message...>",
		Short: "Send a message to a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			if err := enterThread(cmd, app, args[0]); err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Engine.LeaveThread()

			created, err := app.Engine.Send(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if jsonMode(cmd) {
				return writeJSON(cmd.OutOrStdout(), created)
			}
			formatMessage(cmd.OutOrStdout(), *created, app.Engine.Session().Current().UserID, time.Now())
			return nil
		},
	}
}

// enterThread loads the conversation list first so the thread can resolve
// the peer, then binds the thread to conversationID.
func enterThread(cmd *cobra.Command, app *App, conversationID string) error {
	if err := app.Engine.Conversations().Refresh(cmd.Context()); err != nil {
		return err
	}
	if _, ok := app.Engine.Conversations().Get(conversationID); !ok {
		return domain.ValidationError("enter_thread", fmt.Sprintf("unknown conversation %q", conversationID))
	}
	return app.Engine.EnterThread(cmd.Context(), conversationID, "")
}

func printMessages(cmd *cobra.Command, msgs []domain.Message, selfID string) error {
	if jsonMode(cmd) {
		return writeJSON(cmd.OutOrStdout(), msgs)
	}
	if len(msgs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no messages")
		return nil
	}
	formatMessages(cmd.OutOrStdout(), msgs, selfID, time.Now())
	return nil
}
