// Package cmd implements the fragmentd CLI using the cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fragmentd",
	Short: "IPv4 fragmenter with Path MTU Discovery",
	Long: `fragmentd is a single-purpose dataplane stage: it fragments outbound
IPv4 datagrams that exceed a configured MTU and, when Path MTU Discovery
is enabled, learns smaller per-destination MTUs from ICMP "Fragmentation
Needed" messages and applies them to later traffic.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/fragmentd/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/fragmentd.sock",
		"daemon control socket path")
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
