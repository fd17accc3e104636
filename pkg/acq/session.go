package acq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/lifetime"
	"github.com/acqkit/acqkit-go/pkg/log"
)

// DatafeedCallback receives every packet of a session's acquisition, in
// order. Callbacks run on the feeding device's goroutine; a slow
// callback slows down that device's stream.
type DatafeedCallback func(dev *Device, pkt *Packet)

type sessionState int

const (
	stateIdle sessionState = iota
	stateStarting
	stateRunning
	stateStopping
)

// Session runs acquisitions. Devices are added while the session is
// idle; Start asks every device to begin capturing and fans the
// resulting packets out to the datafeed callbacks. A session is
// application-owned and pins its context.
type Session struct {
	lifetime.AppOwned

	ctx    *Context
	ctxPin *lifetime.Handle

	mu         sync.Mutex
	state      sessionState
	devices    []*Device
	devicePins map[*Device]*lifetime.Handle
	callbacks  []DatafeedCallback
	stoppedCB  func()
	trigger    *Trigger
	triggerPin *lifetime.Handle

	// Per-run state, valid from Start until the run finalizes.
	runID     uuid.UUID
	runCancel context.CancelFunc
	sources   map[*Device][]Source
	active    []DatafeedCallback
	done      chan struct{}
	runErr    error

	// deliverMu serializes packet delivery and guards the stream
	// bookkeeping below.
	deliverMu  sync.Mutex
	headerSeen map[*Device]bool
	endSeen    map[*Device]bool
}

func newSession(c *Context, pin *lifetime.Handle) *Session {
	s := &Session{
		ctx:        c,
		ctxPin:     pin,
		devicePins: make(map[*Device]*lifetime.Handle),
	}
	s.SetDestructor(s.teardown)
	return s
}

func (s *Session) teardown() {
	s.mu.Lock()
	devices := s.devices
	pins := s.devicePins
	s.devices = nil
	s.devicePins = nil
	trigPin := s.triggerPin
	s.trigger = nil
	s.triggerPin = nil
	ctxPin := s.ctxPin
	s.ctxPin = nil
	s.mu.Unlock()

	for _, dev := range devices {
		dev.detach()
		if pin := pins[dev]; pin != nil {
			_ = pin.Close()
		}
	}
	if trigPin != nil {
		_ = trigPin.Close()
	}
	if ctxPin != nil {
		_ = ctxPin.Close()
	}
}

// Destroy releases the session. A running session cannot be destroyed;
// stop it first or use Close.
func (s *Session) Destroy() error {
	s.mu.Lock()
	running := s.state != stateIdle
	s.mu.Unlock()
	if running {
		return errs.Bugf("acq.Session.Destroy", "session is running")
	}
	return s.AppOwned.Destroy()
}

// Close stops the session if it is running, detaches its devices and
// destroys it.
func (s *Session) Close() error {
	if s.IsRunning() {
		if err := s.Stop(); err != nil {
			return err
		}
		_ = s.Wait()
	}
	return s.Destroy()
}

// Context returns the context the session belongs to.
func (s *Session) Context() *Context { return s.ctx }

// AddDevice attaches a device to the session. A device can be in at
// most one session at a time; the session keeps a handle on it until
// the devices are removed or the session is destroyed.
func (s *Session) AddDevice(dev *Device) error {
	const op = "acq.Session.AddDevice"
	if dev == nil {
		return errs.Argf(op, "nil device")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateIdle {
		return errs.Argf(op, "session is running")
	}
	if err := dev.attach(s); err != nil {
		return err
	}
	pin, err := dev.Retain()
	if err != nil {
		dev.detach()
		return err
	}
	s.devices = append(s.devices, dev)
	s.devicePins[dev] = pin
	return nil
}

// Devices returns the attached devices in attachment order.
func (s *Session) Devices() []*Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// RemoveDevices detaches all devices from the session.
func (s *Session) RemoveDevices() error {
	const op = "acq.Session.RemoveDevices"
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return errs.Argf(op, "session is running")
	}
	devices := s.devices
	pins := s.devicePins
	s.devices = nil
	s.devicePins = make(map[*Device]*lifetime.Handle)
	s.mu.Unlock()

	for _, dev := range devices {
		dev.detach()
		if pin := pins[dev]; pin != nil {
			_ = pin.Close()
		}
	}
	return nil
}

// AddDatafeedCallback registers a callback for the packets of future
// acquisitions. Callbacks cannot be changed while the session runs.
func (s *Session) AddDatafeedCallback(cb DatafeedCallback) error {
	const op = "acq.Session.AddDatafeedCallback"
	if cb == nil {
		return errs.Argf(op, "nil callback")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateIdle {
		return errs.Argf(op, "session is running")
	}
	s.callbacks = append(s.callbacks, cb)
	return nil
}

// RemoveDatafeedCallbacks drops all registered callbacks.
func (s *Session) RemoveDatafeedCallbacks() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateIdle {
		return errs.Argf("acq.Session.RemoveDatafeedCallbacks", "session is running")
	}
	s.callbacks = nil
	return nil
}

// SetStoppedCallback registers a function called exactly once when a
// run ends, whether through Stop, a device limit or the last source
// draining.
func (s *Session) SetStoppedCallback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stoppedCB = fn
}

// SetTrigger installs the trigger for future acquisitions, replacing
// any previous one. A nil trigger clears it. The session keeps a handle
// on the trigger.
func (s *Session) SetTrigger(t *Trigger) error {
	const op = "acq.Session.SetTrigger"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateIdle {
		return errs.Argf(op, "session is running")
	}
	var pin *lifetime.Handle
	if t != nil {
		var err error
		pin, err = t.Retain()
		if err != nil {
			return err
		}
	}
	if s.triggerPin != nil {
		_ = s.triggerPin.Close()
	}
	s.trigger = t
	s.triggerPin = pin
	return nil
}

// Trigger returns the installed trigger, or nil.
func (s *Session) Trigger() *Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trigger
}

// IsRunning reports whether an acquisition is in progress.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != stateIdle
}

// RunID returns the identifier of the current or most recent run.
func (s *Session) RunID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// AddSource registers a packet source for a device. Drivers call it
// from AcquisitionStart; each device's sources run in order on one
// goroutine.
func (s *Session) AddSource(dev *Device, src Source) error {
	const op = "acq.Session.AddSource"
	if dev == nil || src == nil {
		return errs.Argf(op, "nil device or source")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateStarting {
		return errs.Bugf(op, "sources are registered during acquisition start")
	}
	if _, ok := s.devicePins[dev]; !ok {
		return errs.Argf(op, "device %q not in this session", dev)
	}
	s.sources[dev] = append(s.sources[dev], src)
	return nil
}

// Start begins an acquisition: the trigger is verified, every device is
// asked to start capturing, and the packet sources run until they drain
// or Stop is called. Start does not block; use Wait or Run to block
// until the run ends.
func (s *Session) Start() error {
	const op = "acq.Session.Start"
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return errs.Argf(op, "session already started")
	}
	if len(s.devices) == 0 {
		s.mu.Unlock()
		return errs.Argf(op, "session has no devices")
	}
	devices := make([]*Device, len(s.devices))
	copy(devices, s.devices)
	trigger := s.trigger
	s.state = stateStarting
	s.active = append([]DatafeedCallback(nil), s.callbacks...)
	s.sources = make(map[*Device][]Source)
	s.runID = uuid.New()
	s.runErr = nil
	s.mu.Unlock()

	s.deliverMu.Lock()
	s.headerSeen = make(map[*Device]bool)
	s.endSeen = make(map[*Device]bool)
	s.deliverMu.Unlock()

	if trigger != nil {
		if err := trigger.verify(); err != nil {
			s.abortStart()
			return err
		}
	}
	for _, dev := range devices {
		if dev.Driver() != nil && !dev.IsOpen() {
			s.abortStart()
			return errs.Newf(errs.DeviceClosed, op, "device %q is not open", dev)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.runCancel = cancel
	s.mu.Unlock()

	start := time.Now()
	var started []*Device
	for _, dev := range devices {
		drv := dev.Driver()
		if drv == nil {
			// Virtual devices have no driver to open their stream, so
			// the session sends the header and keeps the stream alive
			// until the run ends.
			if err := s.Feed(dev, NewHeaderPacket(start)); err != nil {
				s.failStart(started, cancel)
				return err
			}
			_ = s.AddSource(dev, SourceFunc(func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			}))
			continue
		}
		if err := drv.AcquisitionStart(dev); err != nil {
			s.failStart(started, cancel)
			return errs.Wrap(errs.CodeOf(err), op, err)
		}
		started = append(started, dev)
	}

	s.mu.Lock()
	// Stop may have been requested while the devices were starting; keep
	// that state so the request is not lost.
	pendingStop := s.state == stateStopping
	if !pendingStop {
		s.state = stateRunning
	}
	sources := s.sources
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()
	if pendingStop {
		cancel()
	}

	group, gctx := errgroup.WithContext(runCtx)
	for dev, list := range sources {
		dev, list := dev, list
		group.Go(func() error {
			for _, src := range list {
				if err := src.Run(gctx); err != nil {
					s.ctx.Logf(log.LevelError, "source of %s failed: %v", dev, err)
					s.noteRunError(err)
					break
				}
			}
			// A device whose sources are done without having closed
			// the stream gets its end packet here.
			if s.streamOpen(dev) {
				_ = s.Feed(dev, NewEndPacket())
			}
			return nil
		})
	}
	go func() {
		_ = group.Wait()
		s.finalize(done)
	}()

	s.ctx.Logf(log.LevelInfo, "session run %s started with %d device(s)", s.RunID(), len(devices))
	return nil
}

func (s *Session) abortStart() {
	s.mu.Lock()
	s.state = stateIdle
	s.active = nil
	s.sources = nil
	s.runCancel = nil
	s.mu.Unlock()
}

func (s *Session) failStart(started []*Device, cancel context.CancelFunc) {
	for _, dev := range started {
		if err := dev.Driver().AcquisitionStop(dev); err != nil {
			s.ctx.Logf(log.LevelWarn, "stopping %s after failed start: %v", dev, err)
		}
	}
	cancel()
	s.abortStart()
}

func (s *Session) noteRunError(err error) {
	s.mu.Lock()
	if s.runErr == nil {
		s.runErr = err
	}
	s.mu.Unlock()
}

func (s *Session) streamOpen(dev *Device) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	return s.headerSeen[dev] && !s.endSeen[dev]
}

func (s *Session) finalize(done chan struct{}) {
	s.mu.Lock()
	s.state = stateIdle
	cancel := s.runCancel
	s.runCancel = nil
	s.sources = nil
	s.active = nil
	stopped := s.stoppedCB
	runID := s.runID
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.ctx.Logf(log.LevelInfo, "session run %s stopped", runID)
	if stopped != nil {
		stopped()
	}
	close(done)
}

// Stop requests the end of the running acquisition: every capturing
// device is asked to stop and the sources are canceled. Stop returns
// immediately and may be called from a datafeed callback; the stopped
// callback fires once the streams have drained. Stopping a session that
// is not running does nothing.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == stateIdle {
		s.mu.Unlock()
		s.ctx.Logf(log.LevelDebug, "stop on idle session ignored")
		return nil
	}
	if s.state == stateStopping {
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopping
	devices := make([]*Device, len(s.devices))
	copy(devices, s.devices)
	cancel := s.runCancel
	s.mu.Unlock()

	for _, dev := range devices {
		drv := dev.Driver()
		if drv == nil {
			continue
		}
		if err := drv.AcquisitionStop(dev); err != nil {
			s.ctx.Logf(log.LevelWarn, "stopping %s: %v", dev, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until the current run ends and returns the first source
// error of the run, if any.
func (s *Session) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Run starts an acquisition and blocks until it ends.
func (s *Session) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.Wait()
}

// Feed delivers one packet from a device into the datafeed. Drivers
// usually call Device.Send instead. Delivery is serialized: callbacks
// see all packets of the run in one global order, and each device's
// packets in the order they were fed.
//
// The first packet of a device's stream must be a header and the stream
// is closed by an end packet; packets fed after the end are dropped.
func (s *Session) Feed(dev *Device, pkt *Packet) error {
	const op = "acq.Session.Feed"
	if dev == nil || pkt == nil {
		return errs.Argf(op, "nil device or packet")
	}
	s.mu.Lock()
	_, inSession := s.devicePins[dev]
	state := s.state
	cbs := s.active
	s.mu.Unlock()
	if !inSession {
		return errs.Argf(op, "device %q not in this session", dev)
	}
	if state == stateIdle {
		return errs.Bugf(op, "packet from %q outside an acquisition", dev)
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.endSeen[dev] {
		s.ctx.Logf(log.LevelSpew, "dropping %s packet after end of stream from %s", pkt.Type(), dev)
		return nil
	}
	if !s.headerSeen[dev] {
		if pkt.Type() != PacketHeader {
			return errs.Bugf(op, "first packet from %q must be a header, got %s", dev, pkt.Type())
		}
		s.headerSeen[dev] = true
	} else if pkt.Type() == PacketHeader {
		return errs.Bugf(op, "second header from %q", dev)
	}
	if pkt.Type() == PacketEnd {
		s.endSeen[dev] = true
	}

	for _, cb := range cbs {
		cb(dev, pkt)
	}
	return nil
}
