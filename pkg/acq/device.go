package acq

import (
	"fmt"
	"strings"
	"sync"

	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/lifetime"
)

// DeviceKind says where a device came from.
type DeviceKind int

const (
	// KindHardware is a device found by a driver scan.
	KindHardware DeviceKind = iota
	// KindUser is a virtual device created by the application, used to
	// feed self-generated packets through a session.
	KindUser
	// KindSession is a virtual device replaying a stored capture.
	KindSession
	// KindInput is a virtual device backed by an input format decoding
	// a file or stream.
	KindInput
)

// String returns the kind name.
func (k DeviceKind) String() string {
	switch k {
	case KindHardware:
		return "hardware"
	case KindUser:
		return "user"
	case KindSession:
		return "session"
	case KindInput:
		return "input"
	default:
		return "unknown"
	}
}

// Device is one instrument, real or virtual. Hardware devices come out
// of Context.Scan and are operated through their driver; virtual devices
// have no driver and exist to carry packets. Devices are
// application-owned; destroying a device closes it and releases its hold
// on the driver.
type Device struct {
	lifetime.AppOwned

	mu       sync.Mutex
	kind     DeviceKind
	drv      Driver
	entryPin *lifetime.Handle // pin on the driver entry, hardware only
	ownerPin *lifetime.Handle // pin on the input/replay owner, virtual only

	vendor  string
	model   string
	version string
	serial  string
	connID  string

	channels []*Channel
	groups   []*ChannelGroup

	open    bool
	session *Session
	priv    any
}

// NewDevice returns a device shell for a driver's scan. The driver adds
// channels and groups; Context.Scan binds the result to the driver.
func NewDevice(vendor, model, version string) *Device {
	d := &Device{kind: KindHardware, vendor: vendor, model: model, version: version}
	d.SetDestructor(d.destroy)
	return d
}

func newVirtualDevice(kind DeviceKind, vendor, model, version string) *Device {
	d := &Device{kind: kind, vendor: vendor, model: model, version: version}
	d.SetDestructor(d.destroy)
	return d
}

func (d *Device) destroy() {
	d.mu.Lock()
	open := d.open
	d.open = false
	drv := d.drv
	entryPin := d.entryPin
	ownerPin := d.ownerPin
	d.entryPin = nil
	d.ownerPin = nil
	d.mu.Unlock()

	if open && drv != nil {
		_ = drv.DevClose(d)
	}
	if entryPin != nil {
		_ = entryPin.Close()
	}
	if ownerPin != nil {
		_ = ownerPin.Close()
	}
}

// bindDriver completes a scanned device: the device holds the driver and
// a pin on its entry, keeping the context alive.
func (d *Device) bindDriver(drv Driver, pin *lifetime.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drv = drv
	d.entryPin = pin
}

func (d *Device) bindOwner(pin *lifetime.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ownerPin = pin
}

// Kind returns where the device came from.
func (d *Device) Kind() DeviceKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kind
}

// Driver returns the device's driver, or nil for virtual devices.
func (d *Device) Driver() Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drv
}

// Vendor returns the vendor string.
func (d *Device) Vendor() string { return d.vendor }

// Model returns the model string.
func (d *Device) Model() string { return d.model }

// Version returns the firmware or hardware version string.
func (d *Device) Version() string { return d.version }

// SerialNumber returns the serial number, if known.
func (d *Device) SerialNumber() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serial
}

// SetSerialNumber records the serial number. Called by drivers during
// scan.
func (d *Device) SetSerialNumber(serial string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serial = serial
}

// ConnectionID returns the connection identifier, if known.
func (d *Device) ConnectionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connID
}

// SetConnectionID records the connection identifier. Called by drivers
// during scan.
func (d *Device) SetConnectionID(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connID = connID
}

// SetDriverData attaches driver-private state to the device.
func (d *Device) SetDriverData(v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.priv = v
}

// DriverData returns the driver-private state, or nil.
func (d *Device) DriverData() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.priv
}

// String returns "vendor model version" with empty parts dropped.
func (d *Device) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.vendor, d.model, d.version} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s device", d.Kind())
	}
	return strings.Join(parts, " ")
}

// AddChannel creates a channel on the device. The channel starts
// enabled.
func (d *Device) AddChannel(index int, ctype ChannelType, name string) (*Channel, error) {
	const op = "acq.Device.AddChannel"
	if ctype != ChannelLogic && ctype != ChannelAnalog {
		return nil, errs.Argf(op, "unknown channel type %d", ctype)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.channels {
		if ch.index == index {
			return nil, errs.Argf(op, "channel index %d already in use", index)
		}
	}
	if name == "" {
		name = fmt.Sprintf("%d", index)
	}
	ch := &Channel{index: index, ctype: ctype, name: name, enabled: true}
	if err := ch.SetParent(d); err != nil {
		return nil, err
	}
	d.channels = append(d.channels, ch)
	return ch, nil
}

// Channels returns the device's channels in creation order.
func (d *Device) Channels() []*Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Channel, len(d.channels))
	copy(out, d.channels)
	return out
}

// AddChannelGroup creates a named channel group over the given channels,
// which must belong to this device.
func (d *Device) AddChannelGroup(name string, channels []*Channel) (*ChannelGroup, error) {
	const op = "acq.Device.AddChannelGroup"
	if name == "" {
		return nil, errs.Argf(op, "empty group name")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, g := range d.groups {
		if g.name == name {
			return nil, errs.Argf(op, "group %q already exists", name)
		}
	}
	for _, ch := range channels {
		if ch == nil {
			return nil, errs.Argf(op, "nil channel in group %q", name)
		}
		found := false
		for _, own := range d.channels {
			if own == ch {
				found = true
				break
			}
		}
		if !found {
			return nil, errs.Argf(op, "channel %q does not belong to this device", ch.Name())
		}
	}
	g := &ChannelGroup{name: name, channels: append([]*Channel(nil), channels...)}
	if err := g.SetParent(d); err != nil {
		return nil, err
	}
	d.groups = append(d.groups, g)
	return g, nil
}

// ChannelGroups returns the device's channel groups in creation order.
func (d *Device) ChannelGroups() []*ChannelGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*ChannelGroup, len(d.groups))
	copy(out, d.groups)
	return out
}

// ChannelGroup returns the named group, or false.
func (d *Device) ChannelGroup(name string) (*ChannelGroup, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, g := range d.groups {
		if g.name == name {
			return g, true
		}
	}
	return nil, false
}

// Open opens the device through its driver.
func (d *Device) Open() error {
	const op = "acq.Device.Open"
	d.mu.Lock()
	if d.drv == nil {
		d.mu.Unlock()
		return errs.Argf(op, "device has no driver")
	}
	if d.open {
		d.mu.Unlock()
		return errs.Argf(op, "device already open")
	}
	drv := d.drv
	d.mu.Unlock()

	if err := drv.DevOpen(d); err != nil {
		return err
	}
	d.mu.Lock()
	d.open = true
	d.mu.Unlock()
	return nil
}

// Close closes the device through its driver. Closing a device that is
// not open fails with a DeviceClosed error.
func (d *Device) Close() error {
	const op = "acq.Device.Close"
	d.mu.Lock()
	if d.drv == nil {
		d.mu.Unlock()
		return errs.Argf(op, "device has no driver")
	}
	if !d.open {
		d.mu.Unlock()
		return errs.New(errs.DeviceClosed, op, "device not open")
	}
	drv := d.drv
	d.open = false
	d.mu.Unlock()

	return drv.DevClose(d)
}

// IsOpen reports whether the device is open.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Session returns the session the device is attached to, or nil.
func (d *Device) Session() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// Send feeds a packet from this device into its session. Drivers call
// it from their acquisition sources.
func (d *Device) Send(pkt *Packet) error {
	d.mu.Lock()
	s := d.session
	d.mu.Unlock()
	if s == nil {
		return errs.Bugf("acq.Device.Send", "device not in a session")
	}
	return s.Feed(d, pkt)
}

func (d *Device) attach(s *Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		return errs.Argf("acq.Session.AddDevice", "device %q already in a session", d.String())
	}
	d.session = s
	return nil
}

func (d *Device) detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = nil
}

// configTarget validates the group argument and returns the driver.
func (d *Device) configTarget(op string, group *ChannelGroup) (Driver, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drv == nil {
		return nil, errs.Argf(op, "device has no driver")
	}
	if group != nil {
		ok := false
		for _, g := range d.groups {
			if g == group {
				ok = true
				break
			}
		}
		if !ok {
			return nil, errs.Argf(op, "group %q does not belong to this device", group.Name())
		}
	}
	return d.drv, nil
}

// ConfigGet reads a configuration value. A nil group addresses the
// device itself.
func (d *Device) ConfigGet(key config.Key, group *ChannelGroup) (any, error) {
	drv, err := d.configTarget("acq.Device.ConfigGet", group)
	if err != nil {
		return nil, err
	}
	return drv.ConfigGet(key, d, group)
}

// ConfigSet writes a configuration value. A nil group addresses the
// device itself.
func (d *Device) ConfigSet(key config.Key, group *ChannelGroup, value any) error {
	drv, err := d.configTarget("acq.Device.ConfigSet", group)
	if err != nil {
		return err
	}
	return drv.ConfigSet(key, value, d, group)
}

// ConfigList enumerates the legal values for a key. A nil group
// addresses the device itself.
func (d *Device) ConfigList(key config.Key, group *ChannelGroup) (any, error) {
	drv, err := d.configTarget("acq.Device.ConfigList", group)
	if err != nil {
		return nil, err
	}
	return drv.ConfigList(key, d, group)
}

// ConfigKeys returns the device's (or group's) whole configuration
// surface, keyed by key.
func (d *Device) ConfigKeys(group *ChannelGroup) (map[config.Key]config.Capability, error) {
	v, err := d.ConfigList(config.KeyDeviceOptions, group)
	if err != nil {
		return nil, err
	}
	caps, ok := v.([]config.KeyCap)
	if !ok {
		return nil, errs.Bugf("acq.Device.ConfigKeys", "driver listed device options as %T", v)
	}
	out := make(map[config.Key]config.Capability, len(caps))
	for _, kc := range caps {
		out[kc.Key] = kc.Cap
	}
	return out, nil
}

// ConfigCheck reports whether the device (or group) supports all the
// given capabilities for a key.
func (d *Device) ConfigCheck(key config.Key, group *ChannelGroup, want config.Capability) bool {
	keys, err := d.ConfigKeys(group)
	if err != nil {
		return false
	}
	return keys[key].Has(want)
}
