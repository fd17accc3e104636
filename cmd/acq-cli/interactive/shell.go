// Package interactive implements the acq-cli command shell.
package interactive

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/sessionfile"
	"github.com/acqkit/acqkit-go/pkg/units"
)

// Shell drives a context from a readline prompt.
type Shell struct {
	ctx   *acq.Context
	rl    *readline.Instance
	store *sessionfile.Store

	devices []*acq.Device
	outName string
	outFile string
}

// New creates the shell. capturePath names the SQLite database used by
// the record, runs and replay commands.
func New(c *acq.Context, capturePath string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "acq> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	store, err := sessionfile.NewStore(capturePath)
	if err != nil {
		rl.Close()
		return nil, err
	}
	return &Shell{ctx: c, rl: rl, store: store, outName: "bits"}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer { return s.rl.Stdout() }

// Run starts the command loop and blocks until exit.
func (s *Shell) Run() {
	defer s.rl.Close()
	defer s.store.Close()

	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.Stdout(), "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()
		case "drivers":
			s.cmdDrivers()
		case "scan":
			s.cmdScan(args)
		case "devices", "ls":
			s.cmdDevices()
		case "channels":
			s.cmdChannels(args)
		case "open":
			s.cmdOpen(args)
		case "close":
			s.cmdClose(args)
		case "options":
			s.cmdOptions(args)
		case "get":
			s.cmdGet(args)
		case "set":
			s.cmdSet(args)
		case "output":
			s.cmdOutput(args)
		case "run", "start":
			s.cmdRun(args)
		case "runs":
			s.cmdRuns()
		case "replay":
			s.cmdReplay(args)
		case "load":
			s.cmdLoad(args)
		case "quit", "exit", "q":
			fmt.Fprintln(s.Stdout(), "Exiting...")
			return
		default:
			fmt.Fprintf(s.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.Stdout(), `
acq-cli commands:
  Devices:
    drivers                     - List available drivers
    scan <driver> [key=value]   - Scan a driver for devices
    devices                     - List scanned devices
    channels <dev>              - List a device's channels
    open <dev> / close <dev>    - Open or close a device

  Configuration:
    options <dev>               - Show a device's config keys
    get <dev> <key>             - Read a config value
    set <dev> <key> <value>     - Write a config value

  Acquisition:
    output <format> [file]      - Select the output format (bits, csv)
    run <dev>                   - Run an acquisition and record it
    runs                        - List recorded captures
    replay <run-id>             - Replay a recorded capture
    load <file> [format]        - Decode a capture file through an input format

  General:
    help                        - Show this help
    quit                        - Exit`)
}

func (s *Shell) cmdDrivers() {
	for _, name := range s.ctx.Drivers() {
		drv, err := s.ctx.Driver(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(s.Stdout(), "  %-12s %s\n", name, drv.LongName())
	}
}

func (s *Shell) cmdScan(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.Stdout(), "Usage: scan <driver> [key=value ...]")
		return
	}
	opts := config.Options{}
	for _, arg := range args[1:] {
		ident, raw, ok := strings.Cut(arg, "=")
		if !ok {
			fmt.Fprintf(s.Stdout(), "Scan option %q is not key=value\n", arg)
			return
		}
		info, ok := config.KeyByIdent(ident)
		if !ok {
			fmt.Fprintf(s.Stdout(), "Unknown option %q\n", ident)
			return
		}
		value, err := parseValue(info, raw)
		if err != nil {
			fmt.Fprintf(s.Stdout(), "Bad value for %s: %v\n", ident, err)
			return
		}
		opts[info.Key] = value
	}

	devs, err := s.ctx.Scan(args[0], opts)
	if err != nil {
		fmt.Fprintf(s.Stdout(), "Scan failed: %v\n", err)
		return
	}
	if len(devs) == 0 {
		fmt.Fprintln(s.Stdout(), "No devices found")
		return
	}
	for _, dev := range devs {
		s.devices = append(s.devices, dev)
		fmt.Fprintf(s.Stdout(), "  %d: %s (%d channels)\n",
			len(s.devices)-1, dev, len(dev.Channels()))
	}
}

func (s *Shell) cmdDevices() {
	if len(s.devices) == 0 {
		fmt.Fprintln(s.Stdout(), "No devices scanned")
		return
	}
	for i, dev := range s.devices {
		state := "closed"
		if dev.IsOpen() {
			state = "open"
		}
		driver := "virtual"
		if drv := dev.Driver(); drv != nil {
			driver = drv.Name()
		}
		fmt.Fprintf(s.Stdout(), "  %d: %s [%s, %s, %d channels]\n",
			i, dev, driver, state, len(dev.Channels()))
	}
}

func (s *Shell) device(arg string) (*acq.Device, bool) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(s.devices) {
		fmt.Fprintf(s.Stdout(), "No device %q (see 'devices')\n", arg)
		return nil, false
	}
	return s.devices[idx], true
}

func (s *Shell) cmdChannels(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Stdout(), "Usage: channels <dev>")
		return
	}
	dev, ok := s.device(args[0])
	if !ok {
		return
	}
	for _, ch := range dev.Channels() {
		state := "enabled"
		if !ch.Enabled() {
			state = "disabled"
		}
		fmt.Fprintf(s.Stdout(), "  %2d: %-8s %-7s %s\n", ch.Index(), ch.Name(), ch.Type(), state)
	}
	for _, g := range dev.ChannelGroups() {
		fmt.Fprintf(s.Stdout(), "  group %s: %d channel(s)\n", g.Name(), len(g.Channels()))
	}
}

func (s *Shell) cmdOpen(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Stdout(), "Usage: open <dev>")
		return
	}
	if dev, ok := s.device(args[0]); ok {
		if err := dev.Open(); err != nil {
			fmt.Fprintf(s.Stdout(), "Open failed: %v\n", err)
		}
	}
}

func (s *Shell) cmdClose(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Stdout(), "Usage: close <dev>")
		return
	}
	if dev, ok := s.device(args[0]); ok {
		if err := dev.Close(); err != nil {
			fmt.Fprintf(s.Stdout(), "Close failed: %v\n", err)
		}
	}
}

func (s *Shell) cmdOptions(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Stdout(), "Usage: options <dev>")
		return
	}
	dev, ok := s.device(args[0])
	if !ok {
		return
	}
	keys, err := dev.ConfigKeys(nil)
	if err != nil {
		fmt.Fprintf(s.Stdout(), "Listing failed: %v\n", err)
		return
	}
	for key, caps := range keys {
		fmt.Fprintf(s.Stdout(), "  %-16s [%s]\n", key, caps)
	}
}

func (s *Shell) cmdGet(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.Stdout(), "Usage: get <dev> <key>")
		return
	}
	dev, ok := s.device(args[0])
	if !ok {
		return
	}
	info, ok := config.KeyByIdent(args[1])
	if !ok {
		fmt.Fprintf(s.Stdout(), "Unknown key %q\n", args[1])
		return
	}
	value, err := dev.ConfigGet(info.Key, nil)
	if err != nil {
		fmt.Fprintf(s.Stdout(), "Get failed: %v\n", err)
		return
	}
	if info.Key == config.KeySamplerate {
		if rate, ok := value.(uint64); ok {
			fmt.Fprintf(s.Stdout(), "%s = %s\n", info.Ident, units.FormatSamplerate(rate))
			return
		}
	}
	fmt.Fprintf(s.Stdout(), "%s = %v\n", info.Ident, value)
}

func (s *Shell) cmdSet(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(s.Stdout(), "Usage: set <dev> <key> <value>")
		return
	}
	dev, ok := s.device(args[0])
	if !ok {
		return
	}
	info, ok := config.KeyByIdent(args[1])
	if !ok {
		fmt.Fprintf(s.Stdout(), "Unknown key %q\n", args[1])
		return
	}
	value, err := parseValue(info, args[2])
	if err != nil {
		fmt.Fprintf(s.Stdout(), "Bad value: %v\n", err)
		return
	}
	if err := dev.ConfigSet(info.Key, nil, value); err != nil {
		fmt.Fprintf(s.Stdout(), "Set failed: %v\n", err)
	}
}

// parseValue converts a command-line string to a key's value type.
// Samplerates accept the usual suffixed forms like "200k".
func parseValue(info config.Info, raw string) (any, error) {
	switch info.Type {
	case config.TypeUint64:
		if info.Key == config.KeySamplerate {
			return units.ParseSamplerate(raw)
		}
		return strconv.ParseUint(raw, 10, 64)
	case config.TypeBool:
		return strconv.ParseBool(raw)
	case config.TypeFloat64:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

func (s *Shell) cmdOutput(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(s.Stdout(), "Output format: %s", s.outName)
		if s.outFile != "" {
			fmt.Fprintf(s.Stdout(), " -> %s", s.outFile)
		}
		fmt.Fprintln(s.Stdout())
		fmt.Fprintf(s.Stdout(), "Available: %s\n", strings.Join(s.ctx.OutputFormats(), ", "))
		return
	}
	if _, err := s.ctx.OutputFormat(args[0]); err != nil {
		fmt.Fprintf(s.Stdout(), "No output format %q\n", args[0])
		return
	}
	s.outName = args[0]
	s.outFile = ""
	if len(args) > 1 {
		s.outFile = args[1]
	}
}

// outputWriter opens the selected output destination.
func (s *Shell) outputWriter() (io.Writer, func(), error) {
	if s.outFile == "" {
		return s.Stdout(), func() {}, nil
	}
	f, err := os.Create(s.outFile)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// runDevice drives one full acquisition: the stream goes through the
// selected output format and is recorded into the capture store.
func (s *Shell) runDevice(dev *acq.Device, replay *sessionfile.Capture) error {
	sess, err := s.ctx.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.AddDevice(dev); err != nil {
		return err
	}

	format, err := s.ctx.OutputFormat(s.outName)
	if err != nil {
		return err
	}
	out, err := format.New(dev, nil)
	if err != nil {
		return err
	}
	w, closeOut, err := s.outputWriter()
	if err != nil {
		return err
	}
	defer closeOut()

	var rec *sessionfile.Recorder
	if replay == nil {
		rec, err = sessionfile.NewRecorder(s.store, dev)
		if err != nil {
			return err
		}
		if err := sess.AddDatafeedCallback(rec.Callback()); err != nil {
			return err
		}
	}

	var renderErr error
	if err := sess.AddDatafeedCallback(func(d *acq.Device, pkt *acq.Packet) {
		if d != dev || renderErr != nil {
			return
		}
		b, err := out.Receive(pkt)
		if err != nil {
			renderErr = err
			return
		}
		if len(b) > 0 {
			if _, err := w.Write(b); err != nil {
				renderErr = err
			}
		}
	}); err != nil {
		return err
	}

	if replay != nil {
		if err := sess.Start(); err != nil {
			return err
		}
		if err := replay.Replay(); err != nil {
			return err
		}
		if err := sess.Stop(); err != nil {
			return err
		}
		if err := sess.Wait(); err != nil {
			return err
		}
	} else {
		if err := sess.Run(); err != nil {
			return err
		}
		if err := rec.Err(); err != nil {
			return err
		}
		fmt.Fprintf(s.Stdout(), "Recorded run %s\n", rec.RunID())
	}
	return renderErr
}

func (s *Shell) cmdRun(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Stdout(), "Usage: run <dev>")
		return
	}
	dev, ok := s.device(args[0])
	if !ok {
		return
	}
	if err := s.runDevice(dev, nil); err != nil {
		fmt.Fprintf(s.Stdout(), "Run failed: %v\n", err)
	}
}

func (s *Shell) cmdRuns() {
	runs, err := s.store.Runs()
	if err != nil {
		fmt.Fprintf(s.Stdout(), "Listing failed: %v\n", err)
		return
	}
	if len(runs) == 0 {
		fmt.Fprintln(s.Stdout(), "No recorded runs")
		return
	}
	for _, run := range runs {
		fmt.Fprintf(s.Stdout(), "  %s  %s  %s  %d packet(s)\n",
			run.ID, run.CreatedAt.Format("2006-01-02 15:04:05"), run.Device, run.PacketCount)
	}
}

func (s *Shell) cmdReplay(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Stdout(), "Usage: replay <run-id>")
		return
	}
	capture, err := s.store.LoadRun(s.ctx, args[0])
	if err != nil {
		fmt.Fprintf(s.Stdout(), "Load failed: %v\n", err)
		return
	}
	if err := s.runDevice(capture.Device(), capture); err != nil {
		fmt.Fprintf(s.Stdout(), "Replay failed: %v\n", err)
	}
}

func (s *Shell) cmdLoad(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(s.Stdout(), "Usage: load <file> [format]")
		return
	}
	path := args[0]

	var in acq.Input
	var err error
	if len(args) == 2 {
		format, ferr := s.ctx.InputFormat(args[1])
		if ferr != nil {
			fmt.Fprintf(s.Stdout(), "No input format %q\n", args[1])
			return
		}
		in, err = format.New(s.ctx, nil)
	} else {
		in, err = s.ctx.OpenFile(path, nil)
	}
	if err != nil {
		fmt.Fprintf(s.Stdout(), "Load failed: %v\n", err)
		return
	}

	if err := s.streamFile(in, path); err != nil {
		fmt.Fprintf(s.Stdout(), "Load failed: %v\n", err)
	}
}

// streamFile pushes a file through an input decoder inside a running
// session, rendering the decoded stream with the selected output.
func (s *Shell) streamFile(in acq.Input, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Formats that derive channels from the data need a first chunk
	// before the device exists.
	buf := make([]byte, 64*1024)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	if n > 0 {
		if err := in.Send(buf[:n]); err != nil {
			return err
		}
	}
	dev := in.Device()
	if dev == nil {
		return fmt.Errorf("input format could not derive a device from %s", path)
	}

	sess, err := s.ctx.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.AddDevice(dev); err != nil {
		return err
	}

	format, err := s.ctx.OutputFormat(s.outName)
	if err != nil {
		return err
	}
	out, err := format.New(dev, nil)
	if err != nil {
		return err
	}
	w, closeOut, err := s.outputWriter()
	if err != nil {
		return err
	}
	defer closeOut()

	var renderErr error
	if err := sess.AddDatafeedCallback(func(d *acq.Device, pkt *acq.Packet) {
		if renderErr != nil {
			return
		}
		b, err := out.Receive(pkt)
		if err != nil {
			renderErr = err
			return
		}
		if len(b) > 0 {
			if _, err := w.Write(b); err != nil {
				renderErr = err
			}
		}
	}); err != nil {
		return err
	}

	if err := sess.Start(); err != nil {
		return err
	}
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if serr := in.Send(buf[:n]); serr != nil {
				return serr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := in.End(); err != nil {
		return err
	}
	if err := sess.Stop(); err != nil {
		return err
	}
	if err := sess.Wait(); err != nil {
		return err
	}
	return renderErr
}
