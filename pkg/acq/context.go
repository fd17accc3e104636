package acq

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/lifetime"
	"github.com/acqkit/acqkit-go/pkg/log"
)

// Context is the library instance. It holds the registered drivers,
// input and output formats, the resource reader and the log sink.
// Contexts are application-owned; a context cannot be destroyed while
// scanned devices or sessions from it are alive.
type Context struct {
	lifetime.AppOwned

	mu          sync.Mutex
	logger      log.Logger
	drivers     map[string]*driverEntry
	driverOrder []string
	inputs      map[string]InputFormat
	inputOrder  []string
	outputs     map[string]OutputFormat
	outputOrder []string
	resources   ResourceReader
}

// Option configures a Context at creation.
type Option func(*contextConfig)

type contextConfig struct {
	drivers   []Driver
	inputs    []InputFormat
	outputs   []OutputFormat
	logger    log.Logger
	resources ResourceReader
}

// WithDriver registers a driver. A driver whose Init fails is skipped
// with a warning.
func WithDriver(d Driver) Option {
	return func(cfg *contextConfig) { cfg.drivers = append(cfg.drivers, d) }
}

// WithInputFormat registers an input format.
func WithInputFormat(f InputFormat) Option {
	return func(cfg *contextConfig) { cfg.inputs = append(cfg.inputs, f) }
}

// WithOutputFormat registers an output format.
func WithOutputFormat(f OutputFormat) Option {
	return func(cfg *contextConfig) { cfg.outputs = append(cfg.outputs, f) }
}

// WithLogger installs the log sink. The default writes warnings and
// errors to stderr.
func WithLogger(l log.Logger) Option {
	return func(cfg *contextConfig) { cfg.logger = l }
}

// WithResourceReader installs the resource reader drivers load firmware
// through. The default searches the standard firmware directories.
func WithResourceReader(r ResourceReader) Option {
	return func(cfg *contextConfig) { cfg.resources = r }
}

// NewContext creates a library instance and initializes the registered
// drivers.
func NewContext(opts ...Option) (*Context, error) {
	cfg := &contextConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Context{
		logger:    cfg.logger,
		drivers:   make(map[string]*driverEntry),
		inputs:    make(map[string]InputFormat),
		outputs:   make(map[string]OutputFormat),
		resources: cfg.resources,
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.resources == nil {
		c.resources = &FilesystemReader{Dirs: DefaultResourceDirs()}
	}
	c.SetDestructor(c.cleanup)

	for _, d := range cfg.drivers {
		name := d.Name()
		if name == "" {
			return nil, errs.Argf("acq.NewContext", "driver with empty name")
		}
		if _, dup := c.drivers[name]; dup {
			return nil, errs.Argf("acq.NewContext", "driver %q registered twice", name)
		}
		if err := d.Init(c); err != nil {
			c.Logf(log.LevelWarn, "driver %s failed to initialize, skipping: %v", name, err)
			continue
		}
		e := &driverEntry{drv: d}
		if err := e.SetParent(c); err != nil {
			return nil, err
		}
		c.drivers[name] = e
		c.driverOrder = append(c.driverOrder, name)
	}

	for _, f := range cfg.inputs {
		if _, dup := c.inputs[f.Name()]; dup {
			return nil, errs.Argf("acq.NewContext", "input format %q registered twice", f.Name())
		}
		c.inputs[f.Name()] = f
		c.inputOrder = append(c.inputOrder, f.Name())
	}
	for _, f := range cfg.outputs {
		if _, dup := c.outputs[f.Name()]; dup {
			return nil, errs.Argf("acq.NewContext", "output format %q registered twice", f.Name())
		}
		c.outputs[f.Name()] = f
		c.outputOrder = append(c.outputOrder, f.Name())
	}

	return c, nil
}

func (c *Context) cleanup() {
	c.mu.Lock()
	entries := make([]*driverEntry, 0, len(c.drivers))
	for _, name := range c.driverOrder {
		entries = append(entries, c.drivers[name])
	}
	c.mu.Unlock()

	for _, e := range entries {
		e.drv.Cleanup()
	}
}

// Close destroys the context and runs every driver's Cleanup. Closing a
// context that still has live devices or sessions is a Bug.
func (c *Context) Close() error {
	return c.Destroy()
}

// Logger returns the current log sink.
func (c *Context) Logger() log.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// SetLogger replaces the log sink. A nil logger disables logging.
func (c *Context) SetLogger(l log.Logger) {
	if l == nil {
		l = log.NoopLogger{}
	}
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

// Logf formats and logs a message through the context's sink. Drivers
// and formats report through it.
func (c *Context) Logf(level log.Level, format string, args ...any) {
	c.Logger().Log(level, fmt.Sprintf(format, args...))
}

// Drivers returns the names of the successfully initialized drivers in
// registration order.
func (c *Context) Drivers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.driverOrder))
	copy(out, c.driverOrder)
	return out
}

// Driver returns the named driver.
func (c *Context) Driver(name string) (Driver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.drivers[name]
	if !ok {
		return nil, errs.Argf("acq.Context.Driver", "no driver %q", name)
	}
	return e.drv, nil
}

// ScanOptions returns the scan option keys the named driver accepts.
func (c *Context) ScanOptions(name string) ([]config.Key, error) {
	drv, err := c.Driver(name)
	if err != nil {
		return nil, err
	}
	v, err := drv.ConfigList(config.KeyScanOptions, nil, nil)
	if err != nil {
		return nil, err
	}
	keys, ok := v.([]config.Key)
	if !ok {
		return nil, errs.Bugf("acq.Context.ScanOptions", "driver listed scan options as %T", v)
	}
	return keys, nil
}

// Scan asks the named driver to probe for devices. Every returned device
// holds the driver and pins the context until it is destroyed.
func (c *Context) Scan(name string, opts config.Options) ([]*Device, error) {
	c.mu.Lock()
	e, ok := c.drivers[name]
	c.mu.Unlock()
	if !ok {
		return nil, errs.Argf("acq.Context.Scan", "no driver %q", name)
	}

	devs, err := e.drv.Scan(c, opts)
	if err != nil {
		return nil, err
	}
	bound := make([]*Device, 0, len(devs))
	for _, dev := range devs {
		pin, err := e.Retain()
		if err != nil {
			for _, b := range bound {
				_ = b.Destroy()
			}
			return nil, err
		}
		dev.bindDriver(e.drv, pin)
		bound = append(bound, dev)
	}
	c.Logf(log.LevelInfo, "driver %s found %d device(s)", name, len(devs))
	return devs, nil
}

// NewSession creates an acquisition session on this context.
func (c *Context) NewSession() (*Session, error) {
	pin, err := c.Retain()
	if err != nil {
		return nil, err
	}
	return newSession(c, pin), nil
}

// NewTrigger creates a trigger. The name may be empty.
func (c *Context) NewTrigger(name string) *Trigger {
	return newTrigger(name)
}

// NewUserDevice creates a virtual device the application feeds packets
// through.
func (c *Context) NewUserDevice(vendor, model, version string) *Device {
	return newVirtualDevice(KindUser, vendor, model, version)
}

// NewSessionDevice creates a virtual device replaying a stored capture.
// The device pins its owner until the device is destroyed.
func (c *Context) NewSessionDevice(model string, owner lifetime.Owner) (*Device, error) {
	d := newVirtualDevice(KindSession, "", model, "")
	if owner != nil {
		pin, err := owner.Retain()
		if err != nil {
			return nil, err
		}
		d.bindOwner(pin)
	}
	return d, nil
}

// NewInputDevice creates the virtual device behind an input format
// decoder. The device pins its owner until the device is destroyed.
func (c *Context) NewInputDevice(model string, owner lifetime.Owner) (*Device, error) {
	d := newVirtualDevice(KindInput, "", model, "")
	if owner != nil {
		pin, err := owner.Retain()
		if err != nil {
			return nil, err
		}
		d.bindOwner(pin)
	}
	return d, nil
}

// InputFormats returns the registered input format names.
func (c *Context) InputFormats() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.inputOrder))
	copy(out, c.inputOrder)
	return out
}

// InputFormat returns the named input format.
func (c *Context) InputFormat(name string) (InputFormat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.inputs[name]
	if !ok {
		return nil, errs.Argf("acq.Context.InputFormat", "no input format %q", name)
	}
	return f, nil
}

// OutputFormats returns the registered output format names.
func (c *Context) OutputFormats() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.outputOrder))
	copy(out, c.outputOrder)
	return out
}

// OutputFormat returns the named output format.
func (c *Context) OutputFormat(name string) (OutputFormat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.outputs[name]
	if !ok {
		return nil, errs.Argf("acq.Context.OutputFormat", "no output format %q", name)
	}
	return f, nil
}

// DetectInput returns the first registered input format claiming the
// given file header.
func (c *Context) DetectInput(header []byte, filename string) (InputFormat, bool) {
	c.mu.Lock()
	names := make([]string, len(c.inputOrder))
	copy(names, c.inputOrder)
	formats := make([]InputFormat, 0, len(names))
	for _, n := range names {
		formats = append(formats, c.inputs[n])
	}
	c.mu.Unlock()

	for _, f := range formats {
		if f.Detect(header, filename) {
			return f, true
		}
	}
	return nil, false
}

// inputHeaderSize is how much of a file detection gets to look at.
const inputHeaderSize = 4096

// OpenFile detects the input format of a file and returns a decoder for
// it. The caller adds the decoder's device to a session and streams the
// file contents through Send, for example with SendFile.
func (c *Context) OpenFile(path string, opts config.Options) (Input, error) {
	const op = "acq.Context.OpenFile"
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.IO, op, err)
	}
	defer f.Close()

	header := make([]byte, inputHeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errs.Wrap(errs.IO, op, err)
	}
	format, ok := c.DetectInput(header[:n], path)
	if !ok {
		return nil, errs.Newf(errs.NotSupported, op, "no input format recognizes %q", path)
	}
	c.Logf(log.LevelDebug, "input format %s claims %s", format.Name(), path)
	return format.New(c, opts)
}

// OpenStream detects the input format of a stream and returns a decoder
// with the bytes consumed for detection already pushed into it. The
// caller streams the rest of r through Send and calls End. filename is
// only a detection hint and may be empty.
func (c *Context) OpenStream(r io.Reader, filename string, opts config.Options) (Input, error) {
	const op = "acq.Context.OpenStream"
	header := make([]byte, inputHeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errs.Wrap(errs.IO, op, err)
	}
	format, ok := c.DetectInput(header[:n], filename)
	if !ok {
		return nil, errs.Newf(errs.NotSupported, op, "no input format recognizes the stream")
	}
	in, err := format.New(c, opts)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		if err := in.Send(header[:n]); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// SendFile streams a file through an input decoder in chunks and ends
// the stream.
func SendFile(in Input, path string) error {
	const op = "acq.SendFile"
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.IO, op, err)
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := in.Send(chunk); err != nil {
				return err
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errs.Wrap(errs.IO, op, err)
		}
	}
	return in.End()
}

// ResourceReader returns the installed resource reader.
func (c *Context) ResourceReader() ResourceReader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resources
}

// SetResourceReader replaces the resource reader. A nil reader restores
// the default filesystem search.
func (c *Context) SetResourceReader(r ResourceReader) {
	if r == nil {
		r = &FilesystemReader{Dirs: DefaultResourceDirs()}
	}
	c.mu.Lock()
	c.resources = r
	c.mu.Unlock()
}

// OpenResource loads a named resource through the installed reader.
func (c *Context) OpenResource(kind ResourceKind, name string) (io.ReadCloser, error) {
	return c.ResourceReader().Open(kind, name)
}
