package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"courier_mesh/internal/client"
	"courier_mesh/internal/domain"
)

type embeddedDispatcher struct {
	cmd *exec.Cmd
}

func main() {
	addr := flag.String("addr", client.DefaultBaseURL, "dispatcher base URL")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	embedded := flag.Bool("embedded", false, "start a dispatcher for the lifetime of the monitor")
	dispatcherBinary := flag.String("dispatcher-bin", "", "path to dispatcher binary (optional in embedded mode)")
	configPath := flag.String("config", "", "config file passed to the embedded dispatcher")
	dbPath := flag.String("db", "data/embedded.db", "sqlite db path for the embedded dispatcher")
	flag.Parse()

	c := client.New(*addr, 10*time.Second)

	if *embedded {
		proc, err := startEmbeddedDispatcher(*addr, *dispatcherBinary, *configPath, *dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start embedded dispatcher: %v\n", err)
			os.Exit(1)
		}
		defer proc.Stop()
	}

	if err := c.WaitHealth(context.Background(), 30*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "dispatcher health check failed: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	workersTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	workersTable.SetTitle("Workers (a activate, d deactivate, x destroy)").SetBorder(true)

	jobsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	jobsTable.SetTitle("Jobs (a activate, d deactivate, x destroy)").SetBorder(true)

	routeView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	routeView.SetTitle("Route").SetBorder(true)

	observationsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	observationsView.SetTitle("Observations").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf(
		"Connected to %s | embedded=%t | shortcuts: F10 quit, F5 refresh, Tab switch table, r write report",
		c.BaseURL(),
		*embedded,
	))

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(workersTable, 0, 1, true).
		AddItem(jobsTable, 0, 1, false)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(routeView, 0, 1, false).
		AddItem(observationsView, 0, 2, false)
	mainLayout := tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(right, 0, 1, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, true).
		AddItem(statusView, 3, 0, false)

	var (
		lastReport     domain.StatusReport
		selectedWorker string
		refreshVersion uint64
	)

	setStatusAsync := func(msg string) {
		app.QueueUpdateDraw(func() {
			statusView.SetText(msg)
		})
	}

	refresh := func() {
		version := atomic.AddUint64(&refreshVersion, 1)
		go func(v uint64) {
			ctx := context.Background()
			report, err := c.Status(ctx)
			observations, obsErr := c.Observations(ctx, client.ObservationQuery{Limit: 200})
			if atomic.LoadUint64(&refreshVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if err != nil {
					workersTable.Clear()
					workersTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
					return
				}
				lastReport = report
				renderWorkersTable(workersTable, report.Workers, selectedWorker)
				renderJobsTable(jobsTable, report.Jobs)
				routeView.SetText(renderRoute(report, selectedWorker))
				if obsErr != nil {
					observationsView.SetText(fmt.Sprintf("error: %v", obsErr))
				} else {
					observationsView.SetText(renderObservations(observations))
				}
			})
		}(version)
	}

	runAction := func(kind domain.AgentKind, id, action string) {
		if id == "" {
			return
		}
		go func() {
			var err error
			if kind == domain.AgentKindWorker {
				err = c.WorkerAction(context.Background(), id, action)
			} else {
				err = c.JobAction(context.Background(), id, action)
			}
			if err != nil {
				setStatusAsync(fmt.Sprintf("%s %s %s failed: %v", action, kind, id, err))
				return
			}
			setStatusAsync(fmt.Sprintf("%s %s %s: ok", action, kind, id))
			refresh()
		}()
	}

	selectedRowID := func(table *tview.Table, kind domain.AgentKind) string {
		row, _ := table.GetSelection()
		if kind == domain.AgentKindWorker {
			if row <= 0 || row > len(lastReport.Workers) {
				return ""
			}
			return lastReport.Workers[row-1].ID
		}
		if row <= 0 || row > len(lastReport.Jobs) {
			return ""
		}
		return lastReport.Jobs[row-1].ID
	}

	workersTable.SetSelectionChangedFunc(func(row, _ int) {
		if row <= 0 || row > len(lastReport.Workers) {
			return
		}
		selectedWorker = lastReport.Workers[row-1].ID
		routeView.SetText(renderRoute(lastReport, selectedWorker))
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			refresh()
			statusView.SetText("Manual refresh requested")
			return nil
		case tcell.KeyTAB:
			if app.GetFocus() == workersTable {
				app.SetFocus(jobsTable)
			} else {
				app.SetFocus(workersTable)
			}
			return nil
		case tcell.KeyRune:
		default:
			return event
		}

		table, kind := workersTable, domain.AgentKindWorker
		if app.GetFocus() == jobsTable {
			table, kind = jobsTable, domain.AgentKindJob
		}
		switch event.Rune() {
		case 'a':
			runAction(kind, selectedRowID(table, kind), "activate")
		case 'd':
			runAction(kind, selectedRowID(table, kind), "deactivate")
		case 'x':
			runAction(kind, selectedRowID(table, kind), "destroy")
		case 'r':
			go func() {
				res, err := c.ExportReport(context.Background(), "")
				if err != nil {
					setStatusAsync("Report failed: " + err.Error())
					return
				}
				setStatusAsync(fmt.Sprintf("Report written to %s (%d bytes)", res.Path, res.Bytes))
			}()
		default:
			return event
		}
		return nil
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		refresh()
		for range ticker.C {
			refresh()
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(workersTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func startEmbeddedDispatcher(addr, dispatcherBinary, configPath, dbPath string) (*embeddedDispatcher, error) {
	parsed, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	port := parsed.Port()
	if port == "" {
		return nil, fmt.Errorf("addr must include explicit port, got %q", addr)
	}
	args := []string{"--addr", "127.0.0.1:" + port, "--db", dbPath}
	if strings.TrimSpace(configPath) != "" {
		args = append(args, "--config", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	var cmd *exec.Cmd
	if strings.TrimSpace(dispatcherBinary) != "" {
		cmd = exec.Command(dispatcherBinary, args...)
	} else {
		self, err := os.Executable()
		if err == nil {
			sibling := filepath.Join(filepath.Dir(self), "dispatcher")
			if fileExists(sibling) {
				cmd = exec.Command(sibling, args...)
			}
		}
		if cmd == nil {
			cmd = exec.Command("go", append([]string{"run", "./cmd/dispatcher"}, args...)...)
			cwd, _ := os.Getwd()
			cmd.Dir = cwd
		}
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start dispatcher process: %w", err)
	}
	return &embeddedDispatcher{cmd: cmd}, nil
}

func (e *embeddedDispatcher) Stop() {
	if e == nil || e.cmd == nil || e.cmd.Process == nil {
		return
	}
	_ = e.cmd.Process.Kill()
	_, _ = e.cmd.Process.Wait()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
