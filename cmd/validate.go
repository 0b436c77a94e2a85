package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otusnet/fragmentd/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file without starting the daemon",
	Long: `Validate the fragmentd configuration file (the one pointed to by
--config) without starting the daemon. Checks the same invariants
construction does: mtu >= 68, no duplicate pmtu_local_addresses, and a
valid log level/format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(out, "INVALID: %v\n", err)
		return err
	}

	localAddrs, err := cfg.Fragmenter.LocalAddresses()
	if err != nil {
		fmt.Fprintf(out, "INVALID: %v\n", err)
		return err
	}

	fmt.Fprintf(out, "VALID: mtu=%d pmtud=%v pmtu_timeout=%ds local_addresses=%d use_alarms=%v\n",
		cfg.Fragmenter.MTU,
		cfg.Fragmenter.PMTUD,
		cfg.Fragmenter.PMTUTimeoutSeconds,
		len(localAddrs),
		cfg.Fragmenter.UseAlarms,
	)
	return nil
}
