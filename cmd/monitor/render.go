package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"courier_mesh/internal/domain"
)

func renderWorkersTable(table *tview.Table, workers []domain.WorkerStatus, selectedWorkerID string) {
	table.Clear()
	headers := []string{"Worker", "Name", "State", "Stops", "Total"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, w := range workers {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(shortID(w.ID)))
		table.SetCell(row, 1, tview.NewTableCell(trimLine(w.Name, 24)))
		table.SetCell(row, 2, tview.NewTableCell(workerState(w)).SetTextColor(stateColor(workerState(w))))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d/%d", len(w.Route), w.WorkloadLimit)))
		table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%.2f", w.Total)).SetAlign(tview.AlignRight))
		if w.ID == selectedWorkerID {
			table.Select(row, 0)
		}
	}
}

func renderJobsTable(table *tview.Table, jobs []domain.JobStatus) {
	row, _ := table.GetSelection()
	table.Clear()
	headers := []string{"Job", "State", "Holder", "Price", "Weight"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, j := range jobs {
		r := i + 1
		state := jobState(j)
		table.SetCell(r, 0, tview.NewTableCell(shortID(j.ID)))
		table.SetCell(r, 1, tview.NewTableCell(state).SetTextColor(stateColor(state)))
		table.SetCell(r, 2, tview.NewTableCell(jobHolder(j)))
		table.SetCell(r, 3, tview.NewTableCell(fmt.Sprintf("%.2f", j.Price)).SetAlign(tview.AlignRight))
		table.SetCell(r, 4, tview.NewTableCell(fmt.Sprintf("%.2f", j.Weight)).SetAlign(tview.AlignRight))
	}
	if row > 0 && row <= len(jobs) {
		table.Select(row, 0)
	}
}

// renderRoute describes the stops of one worker, in visiting order.
func renderRoute(report domain.StatusReport, workerID string) string {
	if workerID == "" {
		if len(report.Workers) == 0 {
			return "No workers"
		}
		workerID = report.Workers[0].ID
	}
	for _, w := range report.Workers {
		if w.ID != workerID {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[yellow]%s[-] %s\n", tview.Escape(w.Name), tview.Escape("["+w.ID+"]"))
		if !w.Active || !w.Reachable {
			b.WriteString("unavailable\n")
			return b.String()
		}
		fmt.Fprintf(&b, "at (%.2f, %.2f) lift=%.2f cost=%.2f\n", w.Location.X, w.Location.Y, w.Capacity, w.CostPerDistance)
		if len(w.Route) == 0 {
			b.WriteString("route is empty\n")
			return b.String()
		}
		for i, stop := range w.Route {
			fmt.Fprintf(&b, "%d. %s (%.2f, %.2f) -> (%.2f, %.2f) income=%.2f\n",
				i+1,
				shortID(stop.JobID),
				stop.Job.Pickup.X, stop.Job.Pickup.Y,
				stop.Job.Dropoff.X, stop.Job.Dropoff.Y,
				stop.Income,
			)
		}
		fmt.Fprintf(&b, "[green]total %.2f[-]\n", w.Total)
		return b.String()
	}
	return fmt.Sprintf("worker %s is gone", workerID)
}

func renderObservations(items []domain.Observation) string {
	if len(items) == 0 {
		return "No observations"
	}
	var b strings.Builder
	for _, o := range items {
		fmt.Fprintf(&b, "[%s] %s %s\n",
			o.CreatedAt.Local().Format("15:04:05"),
			o.Kind,
			tview.Escape(trimLine(o.Detail, 100)),
		)
		if detail := payloadSummary(o.Payload); detail != "" {
			b.WriteString("  payload: " + tview.Escape(trimLine(detail, 160)) + "\n")
		}
	}
	return b.String()
}

func workerState(w domain.WorkerStatus) string {
	switch {
	case !w.Active:
		return "inactive"
	case !w.Reachable:
		return "unreachable"
	default:
		return "active"
	}
}

func jobState(j domain.JobStatus) string {
	switch {
	case !j.Active:
		return "inactive"
	case !j.Reachable:
		return "unreachable"
	default:
		return string(j.State)
	}
}

func jobHolder(j domain.JobStatus) string {
	if j.Assignment == nil {
		return "-"
	}
	return shortID(j.Assignment.WorkerID)
}

func stateColor(state string) tcell.Color {
	switch state {
	case "active", string(domain.JobStateAssigned):
		return tcell.ColorGreen
	case "inactive", "unreachable":
		return tcell.ColorRed
	default:
		return tview.Styles.PrimaryTextColor
	}
}

func payloadSummary(payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "{}" || trimmed == "null" {
		return ""
	}
	var kv map[string]any
	if err := json.Unmarshal(payload, &kv); err == nil {
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, kv[k]))
		}
		return strings.Join(parts, ", ")
	}
	return trimmed
}

func trimLine(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
