package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/urisubmit/urisubmit/internal/server"
)

func newOperationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operations",
		Short: "Inspect and repair the local operation store",
	}
	cmd.AddCommand(newOperationsListCmd())
	cmd.AddCommand(newOperationsRecoverCmd())
	return cmd
}

type operationLine struct {
	Key     string          `json:"key,omitempty"`
	Name    string          `json:"name"`
	URL     string          `json:"url,omitempty"`
	Created string          `json:"created,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newOperationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print recorded operations, newest first, as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadLocalConfig(configFlag(cmd))
			if err != nil {
				return err
			}
			st, _, err := server.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range recs {
				line := operationLine{Key: r.Key, Name: r.Name, URL: r.URL, Payload: r.Payload}
				if !r.CreatedAt.IsZero() {
					line.Created = r.CreatedAt.UTC().Format(time.RFC3339)
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newOperationsRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Restore operations found in the name log but missing from the sqlite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadLocalConfig(configFlag(cmd))
			if err != nil {
				return err
			}
			if cfg.Storage.SQLitePath == "" || cfg.Storage.LogPath == "" {
				return exitf(2, "recover needs storage.sqlite_path and storage.log_path")
			}
			st, _, err := server.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if !st.HasLog() {
				return exitf(1, "name log %s not found", cfg.Storage.LogPath)
			}
			n, err := st.Recover(cmd.Context())
			if err != nil {
				return fmt.Errorf("recover (restored %d): %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d operations\n", n)
			return nil
		},
	}
}
