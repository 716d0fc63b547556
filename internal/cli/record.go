package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fidde/kodama/pkg/client"
)

const maxGroupWidth = 80

func newRecordCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Inspect and push records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "list PROJECT SERVICE",
		Aliases: []string{"ls"},
		Short:   "List the records of a service",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			records, err := opts.admin().ListRecords(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("listing records: %w", err)
			}
			if OutputFormat(opts.output) == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{strconv.FormatInt(r.ID, 10), r.Name})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "NAME"}, rows)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "data PROJECT SERVICE RECORD",
		Short: "Show per-group statistics of a record, slowest p95 first",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			entries, err := opts.admin().RecordEntries(ctx, args[0], args[1], args[2])
			if err != nil {
				return fmt.Errorf("reading record: %w", err)
			}
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].P95 > entries[j].P95 })

			if OutputFormat(opts.output) == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					FormatMicros(e.ExecutionTime),
					FormatMicros(e.Avg),
					FormatMicros(e.P50),
					FormatMicros(e.P95),
					strconv.FormatInt(e.Count, 10),
					strconv.FormatInt(e.Errors, 10),
					truncate(e.GroupBy, maxGroupWidth),
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"TOTAL", "AVG", "P50", "P95", "COUNT", "ERRORS", "GROUP"}, rows)
		},
	})

	var failed bool
	push := &cobra.Command{
		Use:   "push PROJECT SERVICE RECORD GROUP MICROSECONDS",
		Short: "Push one record observation over UDP",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			us, err := strconv.ParseUint(args[4], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid execution time %q: %w", args[4], err)
			}
			return withClient(opts, args[0], args[1], func(c *client.Client) {
				c.RecordWithError(args[2], args[3], us, failed)
			})
		},
	}
	push.Flags().BoolVar(&failed, "error", false, "flag the observation as an error")
	cmd.AddCommand(push)

	return cmd
}

func newMetricCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metric",
		Short: "Push metrics",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "push PROJECT SERVICE METRIC VALUE",
		Short: "Push one metric value over UDP",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[3], 64)
			if err != nil {
				return fmt.Errorf("invalid metric value %q: %w", args[3], err)
			}
			return withClient(opts, args[0], args[1], func(c *client.Client) {
				c.Metric(args[2], value)
			})
		},
	})
	return cmd
}

// withClient runs fn with a UDP client and closes it, which flushes the
// queued command before returning.
func withClient(opts *options, project, service string, fn func(*client.Client)) error {
	c, err := client.New(project, service, opts.udpAddr)
	if err != nil {
		return err
	}
	fn(c)
	if err := c.Close(); err != nil {
		return err
	}
	if n := c.Dropped(); n > 0 {
		return fmt.Errorf("%d command(s) dropped", n)
	}
	return nil
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
