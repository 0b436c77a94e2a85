package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/otusnet/fragmentd/internal/control"
)

// statsClient is the subset of control.Client that runStats needs,
// narrow enough to mock in tests.
type statsClient interface {
	Stats(ctx context.Context) (*control.Response, error)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show runtime counters from a running fragmentd",
	Long: `Query a running fragmentd daemon over its control socket for the
§6 counters: emitted fragments, passthrough packets, and PTB message
outcomes, plus the current PMTU cache occupancy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := control.NewClient(socketPath, 10*time.Second)
		return runStats(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(ctx context.Context, client statsClient, out io.Writer) error {
	resp, err := client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("query stats: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("stats failed: %s", resp.Error.Message)
	}

	data, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
