package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/desoul99/project-fish/internal/config"
	"github.com/desoul99/project-fish/internal/scanmodel"
)

// ScanOptions defines the options for the `scan` command: a single
// synchronous capture, bypassing the bus entirely. Direct descendant of
// the teacher's `capture` command.
type ScanOptions struct {
	URL             string
	ConfigPath      string
	EmulationDevice string
	Proxy           string

	iooption.IOStreams
}

var (
	scanLong = templates.LongDesc(`
		Run a single scan synchronously and print the resulting scan
		record as JSON, without touching the message bus.`)

	scanExample = templates.Examples(`
		# Scan a single URL without selecting an emulation device profile
		scanner scan https://example.com --config config.yaml`)
)

// NewScanOptions provides an initialised ScanOptions instance.
func NewScanOptions(streams iooption.IOStreams) *ScanOptions {
	return &ScanOptions{IOStreams: streams}
}

// NewScanCommand builds the `scan` subcommand.
func NewScanCommand(o *ScanOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "scan [URL]",
		DisableFlagsInUseLine: true,
		Short:                 "Run a single scan synchronously and print the result",
		Long:                  scanLong,
		Example:               scanExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run()
		},
	}

	cmd.Flags().StringVarP(&o.ConfigPath, "config", "c", "config.yaml", "Path to the worker configuration file")
	cmd.Flags().StringVarP(&o.EmulationDevice, "device", "d", "", "Emulation device profile name")
	cmd.Flags().StringVar(&o.Proxy, "proxy", "", "Proxy URL to route the scan through")

	return cmd
}

func (o *ScanOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("URL is required")
	}
	o.URL = args[0]
	return nil
}

func (o *ScanOptions) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("URL is required")
	}
	return nil
}

func (o *ScanOptions) Run() error {
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

	fmt.Fprintf(o.Out, "Scanning %s...\n", o.URL)

	req := scanmodel.ScanRequest{
		URL:             o.URL,
		EmulationDevice: o.EmulationDevice,
		Proxy:           o.Proxy,
	}

	record, err := w.Orchestrator.Run(ctx, req, deadlinesFrom(cfg.Browser))
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scan record: %w", err)
	}
	fmt.Fprintln(o.Out, string(out))

	return nil
}
