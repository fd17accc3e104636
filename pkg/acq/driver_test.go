package acq

import (
	"context"
	"sync"
	"time"

	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
)

// fakeDriver is a minimal in-process backend for tests. Each scanned
// device carries a fakeState; acquisition sends a fixed number of logic
// packets and ends the stream.
type fakeDriver struct {
	name    string
	initErr error

	mu       sync.Mutex
	inited   bool
	cleaned  bool
	scans    int
	packets  int // logic packets per acquisition
	unitSize int
}

type fakeState struct {
	mu       sync.Mutex
	settings map[config.Key]any
	stopped  bool
}

func newFakeDriver(name string) *fakeDriver {
	return &fakeDriver{name: name, packets: 4, unitSize: 1}
}

func (d *fakeDriver) Name() string     { return d.name }
func (d *fakeDriver) LongName() string { return "Fake driver " + d.name }

func (d *fakeDriver) Init(*Context) error {
	if d.initErr != nil {
		return d.initErr
	}
	d.mu.Lock()
	d.inited = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Cleanup() {
	d.mu.Lock()
	d.cleaned = true
	d.mu.Unlock()
}

func (d *fakeDriver) Scan(c *Context, opts config.Options) ([]*Device, error) {
	d.mu.Lock()
	d.scans++
	d.mu.Unlock()

	dev := NewDevice("Fake", d.name, "1.0")
	for i := 0; i < 8; i++ {
		if _, err := dev.AddChannel(i, ChannelLogic, ""); err != nil {
			return nil, err
		}
	}
	dev.SetDriverData(&fakeState{settings: map[config.Key]any{
		config.KeySamplerate: uint64(1000000),
	}})
	return []*Device{dev}, nil
}

func (d *fakeDriver) DevOpen(dev *Device) error  { return nil }
func (d *fakeDriver) DevClose(dev *Device) error { return nil }

func (d *fakeDriver) state(dev *Device) *fakeState {
	return dev.DriverData().(*fakeState)
}

func (d *fakeDriver) ConfigGet(key config.Key, dev *Device, group *ChannelGroup) (any, error) {
	st := d.state(dev)
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.settings[key]
	if !ok {
		return nil, errs.Newf(errs.NotSupported, "fake.ConfigGet", "key %s", key)
	}
	return v, nil
}

func (d *fakeDriver) ConfigSet(key config.Key, value any, dev *Device, group *ChannelGroup) error {
	switch key {
	case config.KeySamplerate, config.KeyLimitSamples:
	default:
		return errs.Newf(errs.NotSupported, "fake.ConfigSet", "key %s", key)
	}
	st := d.state(dev)
	st.mu.Lock()
	st.settings[key] = value
	st.mu.Unlock()
	return nil
}

func (d *fakeDriver) ConfigList(key config.Key, dev *Device, group *ChannelGroup) (any, error) {
	switch key {
	case config.KeyScanOptions:
		return []config.Key{config.KeyConn}, nil
	case config.KeyDeviceOptions:
		return []config.KeyCap{
			{Key: config.KeySamplerate, Cap: config.CapGet | config.CapSet | config.CapList},
			{Key: config.KeyLimitSamples, Cap: config.CapGet | config.CapSet},
		}, nil
	case config.KeySamplerate:
		return config.Uint64Range{Min: 1000, Max: 10000000, Step: 1000}, nil
	default:
		return nil, errs.Newf(errs.NotSupported, "fake.ConfigList", "key %s", key)
	}
}

func (d *fakeDriver) AcquisitionStart(dev *Device) error {
	st := d.state(dev)
	st.mu.Lock()
	st.stopped = false
	st.mu.Unlock()

	d.mu.Lock()
	packets := d.packets
	unitSize := d.unitSize
	d.mu.Unlock()

	return dev.Session().AddSource(dev, SourceFunc(func(ctx context.Context) error {
		if err := dev.Send(NewHeaderPacket(time.Now())); err != nil {
			return err
		}
		for i := 0; i < packets; i++ {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			st.mu.Lock()
			stopped := st.stopped
			st.mu.Unlock()
			if stopped {
				break
			}
			pkt, err := NewLogicPacket(unitSize, make([]byte, 16*unitSize))
			if err != nil {
				return err
			}
			if err := dev.Send(pkt); err != nil {
				return err
			}
		}
		return dev.Send(NewEndPacket())
	}))
}

func (d *fakeDriver) AcquisitionStop(dev *Device) error {
	st := d.state(dev)
	st.mu.Lock()
	st.stopped = true
	st.mu.Unlock()
	return nil
}
