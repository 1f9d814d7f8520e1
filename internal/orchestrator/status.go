package orchestrator

import (
	"fmt"
	"strings"

	"courier_mesh/internal/domain"
)

const unavailableLabel = "(unavailable)"

// RenderStatus formats a status report as the plain-text dump shown to
// operators. Inactive agents are listed but labelled unavailable.
func RenderStatus(report domain.StatusReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status at %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&b, "workers (%d)\n", len(report.Workers))
	for _, w := range report.Workers {
		name := w.Name
		if name == "" {
			name = w.ID
		}
		if !w.Active || !w.Reachable {
			fmt.Fprintf(&b, "  %s [%s] %s\n", name, w.ID, unavailableLabel)
			continue
		}
		fmt.Fprintf(&b, "  %s [%s] lift=%.2f workload=%d/%d cost=%.2f at %s\n",
			name, w.ID, w.Capacity, len(w.Route), w.WorkloadLimit, w.CostPerDistance, formatLocation(w.Location))
		for i, stop := range w.Route {
			fmt.Fprintf(&b, "    %d. job %s income=%.2f price=%.2f\n", i+1, stop.JobID, stop.Income, stop.Job.Price)
		}
		fmt.Fprintf(&b, "    total=%.2f\n", w.Total)
	}

	fmt.Fprintf(&b, "jobs (%d)\n", len(report.Jobs))
	for _, j := range report.Jobs {
		if !j.Active || !j.Reachable {
			fmt.Fprintf(&b, "  %s %s\n", j.ID, unavailableLabel)
			continue
		}
		holder := "unassigned"
		if j.Assignment != nil {
			holder = "on " + j.Assignment.WorkerID
		}
		fmt.Fprintf(&b, "  %s from %s distance=%.2f weight=%.2f price=%.2f state=%s %s\n",
			j.ID, formatLocation(j.Pickup), j.Distance, j.Weight, j.Price, j.State, holder)
	}
	return b.String()
}

func formatLocation(l domain.Location) string {
	return fmt.Sprintf("(%.2f, %.2f)", l.X, l.Y)
}
