// Package demo implements a hardware-less driver that generates logic
// and analog test patterns. It exists to exercise the whole acquisition
// path (scan, config, session, datafeed) without an instrument on the
// bench.
package demo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/drivers/swlimits"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/log"
)

const (
	// DefaultLogicChannels is the number of logic channels a scanned
	// device gets unless the scan options say otherwise.
	DefaultLogicChannels = 8
	// DefaultAnalogChannels is the analog channel count default.
	DefaultAnalogChannels = 4

	defaultSamplerate = uint64(200000)
	chunkSamples      = 512
)

// Driver is the demo backend. One instance serves any number of scanned
// devices.
type Driver struct {
	mu  sync.Mutex
	ctx *acq.Context
}

// New returns the demo driver.
func New() *Driver { return &Driver{} }

// Name implements acq.Driver.
func (d *Driver) Name() string { return "demo" }

// LongName implements acq.Driver.
func (d *Driver) LongName() string { return "Demo pattern generator" }

// Init implements acq.Driver.
func (d *Driver) Init(c *acq.Context) error {
	d.mu.Lock()
	d.ctx = c
	d.mu.Unlock()
	return nil
}

// Cleanup implements acq.Driver.
func (d *Driver) Cleanup() {}

func (d *Driver) logf(level log.Level, format string, args ...any) {
	d.mu.Lock()
	c := d.ctx
	d.mu.Unlock()
	if c != nil {
		c.Logf(level, "demo: "+format, args...)
	}
}

// state is the per-device driver data.
type state struct {
	mu           sync.Mutex
	samplerate   uint64
	logicPattern LogicPattern
	unitSize     int
	counter      uint8
	stopped      atomic.Bool
	limits       swlimits.Limits
}

// analogState is the per-group driver data of analog groups.
type analogState struct {
	mu        sync.Mutex
	pattern   AnalogPattern
	amplitude float64
	channel   *acq.Channel
	phase     float64
}

func stateOf(dev *acq.Device) *state {
	return dev.DriverData().(*state)
}

// Scan creates one pattern device. The channel counts come from the
// num-logic-channels and num-analog-channels scan options.
func (d *Driver) Scan(c *acq.Context, opts config.Options) ([]*acq.Device, error) {
	numLogic := int(opts.Uint64(config.KeyNumLogicChannels, DefaultLogicChannels))
	numAnalog := int(opts.Uint64(config.KeyNumAnalogChannels, DefaultAnalogChannels))
	if numLogic < 0 || numLogic > 64 {
		return nil, errs.Argf("demo.Scan", "logic channel count %d out of range", numLogic)
	}
	if numAnalog < 0 || numAnalog > 16 {
		return nil, errs.Argf("demo.Scan", "analog channel count %d out of range", numAnalog)
	}
	if numLogic == 0 && numAnalog == 0 {
		return nil, errs.Argf("demo.Scan", "device needs at least one channel")
	}

	dev := acq.NewDevice("acqkit", "Demo device", "1")

	var logicChans []*acq.Channel
	for i := 0; i < numLogic; i++ {
		ch, err := dev.AddChannel(i, acq.ChannelLogic, fmt.Sprintf("D%d", i))
		if err != nil {
			return nil, err
		}
		logicChans = append(logicChans, ch)
	}
	if numLogic > 0 {
		if _, err := dev.AddChannelGroup("Logic", logicChans); err != nil {
			return nil, err
		}
	}
	for i := 0; i < numAnalog; i++ {
		ch, err := dev.AddChannel(numLogic+i, acq.ChannelAnalog, fmt.Sprintf("A%d", i))
		if err != nil {
			return nil, err
		}
		g, err := dev.AddChannelGroup(fmt.Sprintf("A%d", i), []*acq.Channel{ch})
		if err != nil {
			return nil, err
		}
		g.SetDriverData(&analogState{
			pattern:   PatternSine,
			amplitude: analogAmplitude,
			channel:   ch,
		})
	}

	dev.SetDriverData(&state{
		samplerate:   defaultSamplerate,
		logicPattern: PatternLogo,
		unitSize:     (numLogic + 7) / 8,
	})
	return []*acq.Device{dev}, nil
}

// DevOpen implements acq.Driver. There is no hardware to open.
func (d *Driver) DevOpen(dev *acq.Device) error { return nil }

// DevClose implements acq.Driver.
func (d *Driver) DevClose(dev *acq.Device) error { return nil }

// ConfigGet implements acq.Driver.
func (d *Driver) ConfigGet(key config.Key, dev *acq.Device, group *acq.ChannelGroup) (any, error) {
	const op = "demo.ConfigGet"
	if dev == nil {
		return nil, errs.Newf(errs.NotSupported, op, "key %s", key)
	}
	st := stateOf(dev)

	if group != nil {
		switch key {
		case config.KeyPatternMode:
			if as, ok := group.DriverData().(*analogState); ok {
				as.mu.Lock()
				defer as.mu.Unlock()
				return as.pattern.String(), nil
			}
			st.mu.Lock()
			defer st.mu.Unlock()
			return st.logicPattern.String(), nil
		default:
			return nil, errs.Newf(errs.NotSupported, op, "key %s on group %s", key, group.Name())
		}
	}

	switch key {
	case config.KeySamplerate:
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.samplerate, nil
	case config.KeyLimitSamples, config.KeyLimitMsec:
		return st.limits.ConfigGet(key)
	case config.KeyContinuous:
		return true, nil
	default:
		return nil, errs.Newf(errs.NotSupported, op, "key %s", key)
	}
}

// ConfigSet implements acq.Driver.
func (d *Driver) ConfigSet(key config.Key, value any, dev *acq.Device, group *acq.ChannelGroup) error {
	const op = "demo.ConfigSet"
	if dev == nil {
		return errs.Newf(errs.NotSupported, op, "key %s", key)
	}
	st := stateOf(dev)

	if group != nil {
		switch key {
		case config.KeyPatternMode:
			name, ok := value.(string)
			if !ok {
				return errs.Argf(op, "pattern must be a string, got %T", value)
			}
			if as, isAnalog := group.DriverData().(*analogState); isAnalog {
				p, err := ParseAnalogPattern(name)
				if err != nil {
					return err
				}
				as.mu.Lock()
				as.pattern = p
				as.mu.Unlock()
				return nil
			}
			p, err := ParseLogicPattern(name)
			if err != nil {
				return err
			}
			st.mu.Lock()
			st.logicPattern = p
			st.mu.Unlock()
			return nil
		default:
			return errs.Newf(errs.NotSupported, op, "key %s on group %s", key, group.Name())
		}
	}

	switch key {
	case config.KeySamplerate:
		rate, ok := value.(uint64)
		if !ok {
			return errs.Argf(op, "samplerate must be uint64, got %T", value)
		}
		if !samplerates.Contains(rate) {
			return errs.Newf(errs.SampleRate, op, "samplerate %d out of range", rate)
		}
		st.mu.Lock()
		st.samplerate = rate
		st.mu.Unlock()
		return nil
	case config.KeyLimitSamples, config.KeyLimitMsec:
		return st.limits.ConfigSet(key, value)
	default:
		return errs.Newf(errs.NotSupported, op, "key %s", key)
	}
}

var samplerates = config.Uint64Range{Min: 1, Max: 1000000000}

// ConfigList implements acq.Driver.
func (d *Driver) ConfigList(key config.Key, dev *acq.Device, group *acq.ChannelGroup) (any, error) {
	const op = "demo.ConfigList"
	if group != nil {
		switch key {
		case config.KeyDeviceOptions:
			return []config.KeyCap{
				{Key: config.KeyPatternMode, Cap: config.CapGet | config.CapSet | config.CapList},
			}, nil
		case config.KeyPatternMode:
			if _, isAnalog := group.DriverData().(*analogState); isAnalog {
				return AnalogPatternNames(), nil
			}
			return LogicPatternNames(), nil
		default:
			return nil, errs.Newf(errs.NotSupported, op, "key %s on group %s", key, group.Name())
		}
	}

	switch key {
	case config.KeyScanOptions:
		return []config.Key{config.KeyNumLogicChannels, config.KeyNumAnalogChannels}, nil
	case config.KeyDeviceOptions:
		return []config.KeyCap{
			{Key: config.KeySamplerate, Cap: config.CapGet | config.CapSet | config.CapList},
			{Key: config.KeyLimitSamples, Cap: config.CapGet | config.CapSet},
			{Key: config.KeyLimitMsec, Cap: config.CapGet | config.CapSet},
			{Key: config.KeyContinuous, Cap: config.CapGet},
		}, nil
	case config.KeySamplerate:
		return samplerates, nil
	default:
		return nil, errs.Newf(errs.NotSupported, op, "key %s", key)
	}
}

// AcquisitionStart implements acq.Driver. The device's source paces
// itself by the configured samplerate and runs until a limit is reached
// or the session stops it.
func (d *Driver) AcquisitionStart(dev *acq.Device) error {
	st := stateOf(dev)
	st.stopped.Store(false)
	st.limits.Start()
	st.mu.Lock()
	st.counter = 0
	rate := st.samplerate
	unitSize := st.unitSize
	st.mu.Unlock()

	var logicEnabled bool
	for _, ch := range dev.Channels() {
		if ch.Type() == acq.ChannelLogic && ch.Enabled() {
			logicEnabled = true
			break
		}
	}
	var analogGroups []*analogState
	for _, g := range dev.ChannelGroups() {
		if as, ok := g.DriverData().(*analogState); ok && as.channel.Enabled() {
			analogGroups = append(analogGroups, as)
		}
	}

	interval := time.Duration(uint64(chunkSamples) * uint64(time.Second) / rate)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	return dev.Session().AddSource(dev, acq.SourceFunc(func(ctx context.Context) error {
		if err := dev.Send(acq.NewHeaderPacket(time.Now())); err != nil {
			return err
		}
		meta, err := acq.NewMetaPacket(map[config.Key]any{config.KeySamplerate: rate})
		if err != nil {
			return err
		}
		if err := dev.Send(meta); err != nil {
			return err
		}

		for !st.stopped.Load() && !st.limits.Reached() {
			n := st.limits.Remaining(chunkSamples)
			if n == 0 {
				break
			}
			if logicEnabled && unitSize > 0 {
				pkt, err := acq.NewLogicPacket(unitSize, st.generateLogic(int(n)))
				if err != nil {
					return err
				}
				if err := dev.Send(pkt); err != nil {
					return err
				}
			}
			for _, as := range analogGroups {
				data, mq, unit, flags := as.generate(int(n))
				pkt, err := acq.NewAnalogPacket([]*acq.Channel{as.channel}, data, mq, unit, flags)
				if err != nil {
					return err
				}
				if err := dev.Send(pkt); err != nil {
					return err
				}
			}
			st.limits.AddSamples(n)

			select {
			case <-ctx.Done():
				d.logf(log.LevelDebug, "acquisition canceled")
				return dev.Send(acq.NewEndPacket())
			case <-time.After(interval):
			}
		}
		return dev.Send(acq.NewEndPacket())
	}))
}

// AcquisitionStop implements acq.Driver. It only flags the source; the
// source winds down and ends the stream itself.
func (d *Driver) AcquisitionStop(dev *acq.Device) error {
	stateOf(dev).stopped.Store(true)
	return nil
}

var _ acq.Driver = (*Driver)(nil)
