package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newProjectCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME [DESCRIPTION]",
		Short: "Create a project",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			id, err := opts.admin().CreateProject(ctx, args[0], optionalArg(args, 1))
			if err != nil {
				return fmt.Errorf("creating project: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "project %s created (id %d)\n", args[0], id)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			projects, err := opts.admin().ListProjects(ctx)
			if err != nil {
				return fmt.Errorf("listing projects: %w", err)
			}
			if OutputFormat(opts.output) == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), projects)
			}

			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				rows = append(rows, []string{strconv.FormatInt(p.ID, 10), p.Name, p.Description})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "NAME", "DESCRIPTION"}, rows)
		},
	})
	return cmd
}

func newServiceCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage services",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create PROJECT NAME [DESCRIPTION]",
		Short: "Create a service within a project",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			id, err := opts.admin().CreateService(ctx, args[0], args[1], optionalArg(args, 2))
			if err != nil {
				return fmt.Errorf("creating service: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "service %s/%s created (id %d)\n", args[0], args[1], id)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list PROJECT",
		Aliases: []string{"ls"},
		Short:   "List the services of a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			services, err := opts.admin().ListServices(ctx, args[0])
			if err != nil {
				return fmt.Errorf("listing services: %w", err)
			}
			if OutputFormat(opts.output) == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), services)
			}

			rows := make([][]string, 0, len(services))
			for _, s := range services {
				rows = append(rows, []string{strconv.FormatInt(s.ID, 10), s.Name, s.Description})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "NAME", "DESCRIPTION"}, rows)
		},
	})
	return cmd
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
