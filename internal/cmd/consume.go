package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/desoul99/project-fish/internal/busconsumer"
	"github.com/desoul99/project-fish/internal/config"
	"github.com/desoul99/project-fish/internal/metricsserver"
	"github.com/desoul99/project-fish/internal/orchestrator"
	"github.com/desoul99/project-fish/internal/scanmodel"
)

// ConsumeOptions defines the options for the `consume` command: the
// long-running bus worker.
type ConsumeOptions struct {
	ConfigPath string

	iooption.IOStreams
}

var (
	consumeLong = templates.LongDesc(`
		Run the scan worker against its configured message bus, pulling
		ScanRequest messages off the queue and running each through the
		full capture-and-persist pipeline.`)

	consumeExample = templates.Examples(`
		# Run the worker against a config file
		scanner consume --config /etc/scanner/config.yaml`)
)

// NewConsumeOptions provides an initialised ConsumeOptions instance.
func NewConsumeOptions(streams iooption.IOStreams) *ConsumeOptions {
	return &ConsumeOptions{IOStreams: streams}
}

// NewConsumeCommand builds the `consume` subcommand.
func NewConsumeCommand(o *ConsumeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "consume",
		Short:   "Run the scan worker against its message bus",
		Long:    consumeLong,
		Example: consumeExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run()
		},
	}

	cmd.Flags().StringVarP(&o.ConfigPath, "config", "c", "config.yaml", "Path to the worker configuration file")

	return cmd
}

func (o *ConsumeOptions) Validate() error {
	if o.ConfigPath == "" {
		return fmt.Errorf("config path is required")
	}
	return nil
}

func (o *ConsumeOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(o.ConfigPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Load(data)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	w, err := buildWiring(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wire components: %w", err)
	}
	defer w.Close(context.Background())

	handler := &scanHandler{
		orchestrator: w.Orchestrator,
		deadlines:    deadlinesFrom(cfg.Browser),
		metrics:      w.Metrics,
	}

	consumer := busconsumer.New(busconsumer.Config{
		URL:        cfg.RabbitMQ.ConnectionURL(),
		Queue:      cfg.RabbitMQ.URLQueue,
		MaxWorkers: cfg.Browser.MaxTabs,
	}, handler, nil)

	if err := consumer.Connect(ctx); err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer consumer.Close()

	if cfg.Metrics.Enabled && w.Metrics != nil {
		srv := metricsserver.NewServer(w.Metrics, nil)
		addr := cfg.Metrics.ListenAddr
		if addr == "" {
			addr = ":9090"
		}
		go func() {
			if err := srv.ListenAndServe(addr); err != nil {
				w.ZapLogger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	w.ZapLogger.Info("worker started", zap.String("queue", cfg.RabbitMQ.URLQueue), zap.Int("max_tabs", cfg.Browser.MaxTabs))
	return consumer.Run(ctx)
}

// scanHandler adapts Orchestrator to busconsumer.ScanHandler, recording the
// outcome metric the teacher's captures never needed (spec §7's "success →
// ack" path is metered here, not inside the consumer itself).
type scanHandler struct {
	orchestrator *orchestrator.Orchestrator
	deadlines    orchestrator.Deadlines
	metrics      *metricsserver.Metrics
}

func (h *scanHandler) Handle(ctx context.Context, req scanmodel.ScanRequest) error {
	if h.metrics != nil {
		h.metrics.ActiveScans.Inc()
		defer h.metrics.ActiveScans.Dec()
	}

	start := time.Now()
	_, err := h.orchestrator.Run(ctx, req, h.deadlines)

	if h.metrics != nil {
		h.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		outcome := "completed"
		if err != nil {
			outcome = "failed"
		}
		h.metrics.ScansTotal.WithLabelValues(outcome).Inc()
	}

	return err
}
