package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/urisubmit/urisubmit/internal/opkey"
)

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <operation-name>",
		Short: "Print the storage key for an operation name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), opkey.Key(args[0]))
			return nil
		},
	}
}
