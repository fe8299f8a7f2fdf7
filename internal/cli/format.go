package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

const previewLength = 60

func jsonMode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ago renders ts relative to now; the zero time renders as "never".
func ago(ts, now time.Time) string {
	if ts.IsZero() {
		return "never"
	}
	return humanize.RelTime(ts, now, "ago", "from now")
}

func formatSession(w io.Writer, sess domain.Session) {
	if sess.State != domain.SessionStateAuthenticated {
		fmt.Fprintf(w, "%s\n", strings.ToLower(string(sess.State)))
		return
	}
	name := sess.UserID
	if sess.User != nil && sess.User.FullName != "" {
		name = fmt.Sprintf("%s <%s>", sess.User.FullName, sess.User.Email)
	}
	fmt.Fprintf(w, "%s\n", name)
	fmt.Fprintf(w, "  id:     %s\n", sess.UserID)
	fmt.Fprintf(w, "  role:   %s\n", sess.ActiveRole)
	fmt.Fprintf(w, "  roles:  %s\n", strings.Join(sess.Roles, ", "))
}

func formatConversations(w io.Writer, convs []domain.Conversation, selfID string, now time.Time) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "no conversations")
		return
	}
	for _, c := range convs {
		peer := "(unknown)"
		for _, p := range c.Participants {
			if p.ID != selfID {
				peer = p.FullName
				break
			}
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" [%s unread]", humanize.Comma(int64(c.UnreadCount)))
		}
		if c.LastMessage == nil {
			fmt.Fprintf(w, "%s  %s%s  (no messages)\n", c.ID, peer, unread)
			continue
		}
		fmt.Fprintf(w, "%s  %s%s  %s: %s\n", c.ID, peer, unread, ago(c.LastMessage.CreatedAt, now), preview(c.LastMessage.Content))
	}
}

func formatMessages(w io.Writer, msgs []domain.Message, selfID string, now time.Time) {
	for _, m := range msgs {
		formatMessage(w, m, selfID, now)
	}
}

func formatMessage(w io.Writer, m domain.Message, selfID string, now time.Time) {
	who := m.SenderID
	if who == selfID {
		who = "me"
	}
	status := ""
	if m.Pending() {
		status = " (sending)"
	}
	fmt.Fprintf(w, "[%s] %s: %s%s\n", ago(m.CreatedAt, now), who, m.Content, status)
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength-1]) + "…"
}
