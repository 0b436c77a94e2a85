package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/otusnet/fragmentd/internal/control"
)

// reloadClient is the subset of control.Client that runReload needs.
type reloadClient interface {
	Reload(ctx context.Context) (*control.Response, error)
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload a running fragmentd's safe-to-change configuration",
	Long: `Send a reload command to a running fragmentd daemon over its control
socket. The daemon re-reads --config and applies the local-address set;
mtu, pmtud, and pmtu_timeout are not reloadable and require a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := control.NewClient(socketPath, 10*time.Second)
		return runReload(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}

func runReload(ctx context.Context, client reloadClient, out io.Writer) error {
	resp, err := client.Reload(ctx)
	if err != nil {
		return fmt.Errorf("send reload: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("reload failed: %s", resp.Error.Message)
	}
	fmt.Fprintln(out, "configuration reloaded")
	return nil
}
