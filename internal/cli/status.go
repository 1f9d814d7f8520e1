package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier_mesh/internal/client"
	"courier_mesh/internal/domain"
)

func registerStatusCommands(root *cobra.Command, opts *options) {
	root.AddCommand(newStatusCmd(opts), newObservationsCmd(opts), newReportCmd(opts), newReportLogCmd(opts), newRegistryCmd(opts))
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Dump every worker route and job assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			if opts.json {
				report, err := c.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), report)
			}
			text, err := c.StatusText(cmd.Context())
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newObservationsCmd(opts *options) *cobra.Command {
	var (
		q    client.ObservationQuery
		kind string
	)
	cmd := &cobra.Command{
		Use:     "observations",
		Aliases: []string{"obs"},
		Short:   "Show what the dispatcher decided, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q.Kind = domain.ObservationKind(kind)
			items, err := opts.client().Observations(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("observations: %w", err)
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), items)
			}
			out := cmd.OutOrStdout()
			for _, o := range items {
				fmt.Fprintf(out, "%s %-18s %-12s %s\n", o.CreatedAt.Local().Format("15:04:05"), o.Kind, o.Actor, o.Detail)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only this observation kind (e.g. job_planned)")
	cmd.Flags().StringVar(&q.JobID, "job", "", "only observations about this job")
	cmd.Flags().StringVar(&q.WorkerID, "worker", "", "only observations about this worker")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "maximum number of entries")
	return cmd
}

func newReportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "report [path]",
		Short: "Write the current status into the dispatcher's report directory",
		Long: `Write the current status into the dispatcher's report directory.

A path ending in .txt gets the rendered text dump, anything else JSON.
Without a path the dispatcher names the file after the current time.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			res, err := opts.client().ExportReport(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s (%d bytes)\n", res.Path, res.Bytes)
			return nil
		},
	}
}

func newReportLogCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List report writes, including the ones policy denied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := opts.client().ReportLog(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("reports: %w", err)
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), items)
			}
			out := cmd.OutOrStdout()
			for _, item := range items {
				verdict := "written"
				if !item.Allowed {
					verdict = "denied: " + item.Reason
				}
				fmt.Fprintf(out, "%s %-40s %6d %s\n", item.CreatedAt.Local().Format("15:04:05"), item.Path, item.Bytes, verdict)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	cmd.AddCommand(&cobra.Command{
		Use:   "show <path>",
		Short: "Print an exported report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := opts.client().ReadReport(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("show report %s: %w", args[0], err)
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	})
	return cmd
}

func newRegistryCmd(opts *options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "List the registry as persisted by the dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := opts.client().RegistryMirror(cmd.Context(), domain.AgentKind(kind))
			if err != nil {
				return fmt.Errorf("registry: %w", err)
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%-6s %-38s %-16s %-9s since %s\n", e.Kind, e.ID, e.Name, entryState(e), e.UpdatedAt.Local().Format("15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only worker or job entries")
	return cmd
}
