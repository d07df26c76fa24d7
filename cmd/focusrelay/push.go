package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/focusrelay/internal/textservice"
)

// PushCmd creates the push command
func PushCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "push [text]",
		Short: "Broadcast text to every connected relay",
		Long: `Ask a running text service to send INSERT_TEXT to every connected relay.
Without text the pending note is re-sent; it is not consumed.

Examples:
  focusrelay push "hello"   # insert "hello" into focused fields
  focusrelay push           # re-send the latest note`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := textservice.RemotePush(ctx, ServerConfig.ServiceURL(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %d relay(s)\n", res.Sent)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	return cmd
}
