package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		scanner drives a headless browser through one URL at a time,
		recording every network request and response, capturing and
		size-capping response bodies, and assembling a deduplicated scan
		record for storage.`)

	rootExamples = templates.Examples(``)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// ScannerOptions defines the options shared by the `scanner` command tree.
type ScannerOptions struct {
	iooption.IOStreams
}

// NewScannerOptions provides an initialised ScannerOptions instance.
func NewScannerOptions(streams iooption.IOStreams) *ScannerOptions {
	return &ScannerOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `scanner` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewScannerOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `scanner` command and its nested
// children.
func NewRootCommandWithArgs(o *ScannerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "scanner [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Distributed page-scanner worker",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	cmd.AddCommand(NewConsumeCommand(NewConsumeOptions(o.IOStreams)))
	cmd.AddCommand(NewScanCommand(NewScanOptions(o.IOStreams)))
	cmd.AddCommand(NewServeMetricsCommand(NewServeMetricsOptions()))

	// The global normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
