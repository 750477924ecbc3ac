// Rfidscan serves GET /scan on a Raspberry Pi: each request polls the
// attached RFID reader until a tag is presented or the timeout passes, and
// answers with the tag id and the text stored on it.
//
// Usage:
//
//	rfidscan --log /var/log/rfidscan.log --port 8080 [--timeout 5] [--config rfidscan.yml]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var myBuild string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command line flags.
type options struct {
	logPath    string
	port       int
	timeout    int
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "rfidscan",
		Short: "RFID scan server",
		Long: `Serve GET /scan for an attached RFID reader.

Each request polls the reader until a tag is presented or the timeout
passes. Reader, indicator LEDs and MQTT status reporting are configured in
an optional YAML file; without one an MFRC522 on the first SPI port is used.`,
		Example: `  # Scan with the defaults
  rfidscan --log /var/log/rfidscan.log --port 8080

  # Longer scans, hardware described in a config file
  rfidscan --log rfidscan.log --port 8080 --timeout 10 --config /etc/rfidscan.yml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			return run(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.logPath, "log", "", "Location of the log file")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port on which the server listens (0 picks a free port)")
	cmd.Flags().IntVar(&opts.timeout, "timeout", 5, "Timeout of a scan in seconds")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Hardware config file (optional)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	_ = cmd.MarkFlagRequired("log")
	_ = cmd.MarkFlagRequired("port")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			build := myBuild
			if build == "" {
				build = "dev"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rfidscan build %s\n", build)
		},
	})

	return cmd
}
