// Package cli implements courierctl, the operator command line for a running
// dispatcher.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"courier_mesh/internal/client"
)

type options struct {
	addr    string
	timeout time.Duration
	json    bool
}

// NewRootCommand builds the courierctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "courierctl",
		Short: "Operate a courier_mesh dispatcher",
		Long: `courierctl drives a running dispatcher over its HTTP API.

Workers and jobs are created, activated, deactivated and destroyed here;
the dispatcher negotiates assignments on its own and courierctl only
reports what it decided.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", client.DefaultBaseURL, "dispatcher base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "HTTP request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON")

	registerAgentCommands(root, opts)
	registerStatusCommands(root, opts)
	return root
}

// Execute runs courierctl with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *options) client() *client.Client {
	return client.New(o.addr, o.timeout)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
