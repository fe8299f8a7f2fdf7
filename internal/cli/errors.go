package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		fmt.Fprintf(cmd.ErrOrStderr(), "Hint: not signed in. Try: %s login <email>\n", AppName)
	case domain.IsAuth(err):
		fmt.Fprintf(cmd.ErrOrStderr(), "Hint: the session was rejected. Try: %s login <email>\n", AppName)
	case errors.Is(err, domain.ErrTransientNetwork):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the marketplace could not be reached; retry shortly.")
	}

	return err
}
