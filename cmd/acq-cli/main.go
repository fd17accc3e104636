// Command acq-cli is an interactive shell for acquisition devices.
//
// It wires the built-in drivers, input and output formats into one
// context and drives them from a readline prompt: scan for devices,
// configure them, run acquisitions, render the stream with an output
// format and record or replay captures.
//
// Usage:
//
//	acq-cli [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-log-level string  Log level: none, error, warn, info, debug, spew (default "warn")
//	-capture string    Capture database path (default "acq-cli.db")
//
// Examples:
//
//	# Start the shell with debug logging
//	acq-cli -log-level debug
//
//	# Use a shared capture database
//	acq-cli -capture /var/lib/acqkit/captures.db
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/acqkit/acqkit-go/cmd/acq-cli/interactive"
	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/drivers/demo"
	"github.com/acqkit/acqkit-go/pkg/drivers/scpidmm"
	"github.com/acqkit/acqkit-go/pkg/input"
	"github.com/acqkit/acqkit-go/pkg/log"
	"github.com/acqkit/acqkit-go/pkg/output"
)

var cfg = DefaultConfig()

func init() {
	flag.StringVar(&cfg.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: none, error, warn, info, debug, spew")
	flag.StringVar(&cfg.CapturePath, "capture", cfg.CapturePath, "Capture database path")
}

func main() {
	flag.Parse()

	if cfg.ConfigFile != "" {
		if err := cfg.Load(cfg.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "acq-cli: %v\n", err)
			os.Exit(1)
		}
		// Flags given after the file was named still win.
		flag.Parse()
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acq-cli: %v\n", err)
		os.Exit(1)
	}

	c, err := acq.NewContext(
		acq.WithLogger(log.NewWriterLogger(os.Stderr, level)),
		acq.WithDriver(demo.New()),
		acq.WithDriver(scpidmm.New()),
		acq.WithInputFormat(input.Binary{}),
		acq.WithInputFormat(input.CSV{}),
		acq.WithOutputFormat(output.Bits{}),
		acq.WithOutputFormat(output.CSV{}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acq-cli: %v\n", err)
		os.Exit(1)
	}

	sh, err := interactive.New(c, cfg.CapturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acq-cli: %v\n", err)
		os.Exit(1)
	}
	sh.Run()

	if err := c.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "acq-cli: %v\n", err)
		os.Exit(1)
	}
}
