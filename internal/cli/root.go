package cli

import (
	"github.com/spf13/cobra"
)

func NewRoot(version string) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "urisubmit",
		Short:         "urisubmit: report suspicious URIs to Web Risk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("urisubmit {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: $URISUBMIT_CONFIG, ./config.yml, ./config.yaml, or /etc/urisubmit/config.yaml)")

	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newOperationsCmd())
	cmd.AddCommand(newKeyCmd())

	return cmd
}

func configFlag(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}
