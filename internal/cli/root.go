// Package cli implements the kodama admin command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fidde/kodama/internal/adminclient"
	"github.com/fidde/kodama/pkg/client"
)

// Version is set at build time via ldflags.
var Version = "dev"

type options struct {
	adminURL string
	udpAddr  string
	output   string
	timeout  time.Duration
}

func (o *options) admin() *adminclient.Client {
	return adminclient.New(o.adminURL, nil)
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "kodama",
		Short: "Manage a kodama telemetry server",
		Long: `kodama manages projects and services on a kodama server and shows
the latency statistics of the records they push.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != string(FormatTable) && opts.output != string(FormatJSON) {
				return fmt.Errorf("unsupported output format: %s", opts.output)
			}
			return nil
		},
	}

	adminURL := os.Getenv("KODAMA_ADMIN_URL")
	if adminURL == "" {
		adminURL = adminclient.DefaultURL
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.adminURL, "admin-url", adminURL, "admin API base URL (or KODAMA_ADMIN_URL)")
	flags.StringVar(&opts.udpAddr, "udp-addr", client.DefaultAddr, "ingestion address for push commands")
	flags.StringVarP(&opts.output, "output", "o", string(FormatTable), "output format: table or json")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(newProjectCmd(opts))
	root.AddCommand(newServiceCmd(opts))
	root.AddCommand(newRecordCmd(opts))
	root.AddCommand(newMetricCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("kodama version %s\n", Version)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
