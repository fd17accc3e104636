package acq

import (
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/lifetime"
)

// Driver is the interface hardware backends implement. One driver
// instance serves all devices it scans; per-device state lives in the
// device's driver data.
//
// Drivers report their configuration surface through ConfigList: called
// with config.KeyScanOptions and a nil device it lists the accepted scan
// option keys, with config.KeyDeviceOptions it lists the key/capability
// pairs of the device or channel group.
type Driver interface {
	// Name returns the short driver identifier, e.g. "demo".
	Name() string
	// LongName returns the human-readable driver name.
	LongName() string

	// Init prepares the driver for use within the given context. A
	// driver whose Init fails is not registered.
	Init(c *Context) error
	// Cleanup releases everything Init and Scan allocated. Called when
	// the context is destroyed.
	Cleanup()

	// Scan probes for devices matching the scan options and returns
	// them. The returned devices are not yet open.
	Scan(c *Context, opts config.Options) ([]*Device, error)

	// DevOpen and DevClose open and close one scanned device.
	DevOpen(dev *Device) error
	DevClose(dev *Device) error

	// ConfigGet, ConfigSet and ConfigList implement the configuration
	// protocol. A nil device addresses the driver itself; a nil group
	// addresses the device.
	ConfigGet(key config.Key, dev *Device, group *ChannelGroup) (any, error)
	ConfigSet(key config.Key, value any, dev *Device, group *ChannelGroup) error
	ConfigList(key config.Key, dev *Device, group *ChannelGroup) (any, error)

	// AcquisitionStart begins capturing on an open device that is in a
	// running session. The driver registers its packet sources on the
	// device's session and sends the header packet.
	AcquisitionStart(dev *Device) error
	// AcquisitionStop asks a capturing device to stop. The driver's
	// sources wind down and send the end packet.
	AcquisitionStop(dev *Device) error
}

// driverEntry is the context's record of one registered driver. Scanned
// devices pin the entry, so a context cannot be destroyed while devices
// from its drivers are alive.
type driverEntry struct {
	lifetime.ParentOwned[*Context]

	drv Driver
}
