package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"courier_mesh/internal/domain"
)

func registerAgentCommands(root *cobra.Command, opts *options) {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage workers",
	}
	workerCmd.AddCommand(newWorkerAddCmd(opts))
	workerCmd.AddCommand(newListCmd(opts, domain.AgentKindWorker))
	for _, action := range []string{"activate", "deactivate", "destroy"} {
		workerCmd.AddCommand(newActionCmd(opts, domain.AgentKindWorker, action))
	}

	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Manage delivery jobs",
	}
	jobCmd.AddCommand(newJobAddCmd(opts))
	jobCmd.AddCommand(newListCmd(opts, domain.AgentKindJob))
	for _, action := range []string{"activate", "deactivate", "destroy"} {
		jobCmd.AddCommand(newActionCmd(opts, domain.AgentKindJob, action))
	}

	root.AddCommand(workerCmd, jobCmd)
}

func newWorkerAddCmd(opts *options) *cobra.Command {
	var (
		spec   domain.WorkerSpec
		origin string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := parsePoint(origin)
			if err != nil {
				return fmt.Errorf("--origin: %w", err)
			}
			spec.Origin = loc
			id, err := opts.client().CreateWorker(cmd.Context(), spec)
			if err != nil {
				return fmt.Errorf("create worker: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "worker %s created\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.ID, "id", "", "worker id (generated when empty)")
	cmd.Flags().StringVar(&spec.Name, "name", "", "display name")
	cmd.Flags().StringVar(&origin, "origin", "0,0", "starting location as x,y")
	cmd.Flags().Float64Var(&spec.Capacity, "capacity", 1, "largest job weight the worker can lift")
	cmd.Flags().IntVar(&spec.WorkloadLimit, "workload", 1, "maximum number of jobs on the route")
	cmd.Flags().Float64Var(&spec.CostPerDistance, "cost", 1, "cost per unit of distance")
	return cmd
}

func newJobAddCmd(opts *options) *cobra.Command {
	var (
		spec    domain.JobSpec
		pickup  string
		dropoff string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a delivery job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if spec.Pickup, err = parsePoint(pickup); err != nil {
				return fmt.Errorf("--pickup: %w", err)
			}
			if spec.Dropoff, err = parsePoint(dropoff); err != nil {
				return fmt.Errorf("--dropoff: %w", err)
			}
			id, err := opts.client().CreateJob(cmd.Context(), spec)
			if err != nil {
				return fmt.Errorf("create job: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s created\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.ID, "id", "", "job id (generated when empty)")
	cmd.Flags().StringVar(&pickup, "pickup", "", "pickup location as x,y")
	cmd.Flags().StringVar(&dropoff, "dropoff", "", "dropoff location as x,y")
	cmd.Flags().Float64Var(&spec.Weight, "weight", 1, "job weight")
	cmd.Flags().Float64Var(&spec.Price, "price", 0, "price paid for the delivery")
	_ = cmd.MarkFlagRequired("pickup")
	_ = cmd.MarkFlagRequired("dropoff")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newListCmd(opts *options, kind domain.AgentKind) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List registered %ss", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			var (
				entries []domain.RegistryEntry
				err     error
			)
			if kind == domain.AgentKindWorker {
				entries, err = c.Workers(cmd.Context())
			} else {
				entries, err = c.Jobs(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("list %ss: %w", kind, err)
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "no %ss\n", kind)
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%-38s %-16s %s\n", e.ID, e.Name, entryState(e))
			}
			return nil
		},
	}
}

func newActionCmd(opts *options, kind domain.AgentKind, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: fmt.Sprintf("%s a %s", strings.ToUpper(action[:1])+action[1:], kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			var err error
			if kind == domain.AgentKindWorker {
				err = c.WorkerAction(cmd.Context(), args[0], action)
			} else {
				err = c.JobAction(cmd.Context(), args[0], action)
			}
			if err != nil {
				return fmt.Errorf("%s %s %s: %w", action, kind, args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", kind, args[0], actionDone[action])
			return nil
		},
	}
}

var actionDone = map[string]string{
	"activate":   "activated",
	"deactivate": "release requested",
	"destroy":    "destroyed",
}

func entryState(e domain.RegistryEntry) string {
	switch {
	case e.Releasing:
		return "releasing"
	case e.Active:
		return "active"
	default:
		return "inactive"
	}
}

func parsePoint(raw string) (domain.Location, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 2 {
		return domain.Location{}, fmt.Errorf("expected x,y, got %q", raw)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.Location{}, fmt.Errorf("parse x: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.Location{}, fmt.Errorf("parse y: %w", err)
	}
	return domain.Location{X: x, Y: y}, nil
}
