// Command sabfsctl is a debug tool for the guest-acceleration fast
// path: it wires up an in-process image, SABFS fd table, preload
// cache and process-lifecycle worker exactly as a real worker would,
// runs a small scripted workload against them, and dumps the
// resulting component stats. It exists for exercising and inspecting
// the fast path without a WASM host around it.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tappress/qemu-wasm/internal/config"
	"github.com/tappress/qemu-wasm/internal/rlog"
)

var (
	cfg         = config.Default()
	verbose     bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "sabfsctl",
	Short: "Inspect and exercise the guest-acceleration fast path components",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			rlog.SetLevel(logrus.DebugLevel)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090) while the command runs")
	cfg.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(statsCmd, preloadCmd, lsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
