package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/desoul99/project-fish/internal/metricsserver"
)

// ServeMetricsOptions defines the options for the `serve-metrics` command.
// Descendant of the teacher's `serve` command, repointed from the job-
// polling HTTP API at the Prometheus + health endpoints.
type ServeMetricsOptions struct {
	Port      int
	Namespace string
}

var (
	serveMetricsLong = templates.LongDesc(`
		Expose Prometheus metrics and a health endpoint as a standalone
		process, for environments that run metrics collection separately
		from the consume worker.`)

	serveMetricsExample = templates.Examples(`
		# Serve metrics on the default port
		scanner serve-metrics

		# Serve on a custom port under a custom namespace
		scanner serve-metrics --port 9091 --namespace project_fish`)
)

// NewServeMetricsOptions provides an initialised ServeMetricsOptions
// instance.
func NewServeMetricsOptions() *ServeMetricsOptions {
	return &ServeMetricsOptions{}
}

// NewServeMetricsCommand builds the `serve-metrics` subcommand.
func NewServeMetricsCommand(o *ServeMetricsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve-metrics",
		Short:   "Expose Prometheus metrics and a health endpoint",
		Long:    serveMetricsLong,
		Example: serveMetricsExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run()
		},
	}

	cmd.Flags().IntVarP(&o.Port, "port", "p", 9090, "Port to listen on")
	cmd.Flags().StringVarP(&o.Namespace, "namespace", "n", "project_fish", "Prometheus metric namespace")

	return cmd
}

func (o *ServeMetricsOptions) Run() error {
	m := metricsserver.New(o.Namespace)
	srv := metricsserver.NewServer(m, nil)

	addr := fmt.Sprintf(":%d", o.Port)
	fmt.Printf("Serving metrics on %s\n", addr)
	return srv.ListenAndServe(addr)
}
