package acq

import (
	"sync"

	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/lifetime"
)

// ChannelType distinguishes logic and analog channels.
type ChannelType uint32

const (
	// ChannelLogic is a single-bit digital channel.
	ChannelLogic ChannelType = 10000 + iota
	// ChannelAnalog is an analog channel.
	ChannelAnalog
)

// String returns the channel type name.
func (t ChannelType) String() string {
	switch t {
	case ChannelLogic:
		return "logic"
	case ChannelAnalog:
		return "analog"
	default:
		return "unknown"
	}
}

// Channel is one input of a device. Channels are created through
// Device.AddChannel and owned by their device.
type Channel struct {
	lifetime.ParentOwned[*Device]

	mu      sync.Mutex
	index   int
	ctype   ChannelType
	name    string
	enabled bool
}

// Index returns the channel's position on the device. Logic channels use
// it as their bit position in logic payloads.
func (c *Channel) Index() int { return c.index }

// Type returns the channel type.
func (c *Channel) Type() ChannelType { return c.ctype }

// Name returns the channel name.
func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// SetName renames the channel.
func (c *Channel) SetName(name string) error {
	if name == "" {
		return errs.Argf("acq.Channel.SetName", "empty name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	return nil
}

// Enabled reports whether the channel participates in acquisition.
func (c *Channel) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled enables or disables the channel. Drivers read the flag at
// acquisition start; changing it mid-acquisition has no effect on the
// running capture.
func (c *Channel) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Device returns the device the channel belongs to.
func (c *Channel) Device() *Device {
	// Channels are always parented at creation, so this cannot fail.
	dev, _ := c.Parent()
	return dev
}

// ChannelGroup is a named set of channels that is configured together,
// for example the two channels of one oscilloscope pod. Groups are
// created through Device.AddChannelGroup and owned by their device.
type ChannelGroup struct {
	lifetime.ParentOwned[*Device]

	name     string
	channels []*Channel
	priv     any
}

// Name returns the group name.
func (g *ChannelGroup) Name() string { return g.name }

// Channels returns the group's channels in device order.
func (g *ChannelGroup) Channels() []*Channel {
	out := make([]*Channel, len(g.channels))
	copy(out, g.channels)
	return out
}

// Device returns the device the group belongs to.
func (g *ChannelGroup) Device() *Device {
	dev, _ := g.Parent()
	return dev
}

// SetDriverData attaches driver-private state to the group.
func (g *ChannelGroup) SetDriverData(v any) { g.priv = v }

// DriverData returns the driver-private state, or nil.
func (g *ChannelGroup) DriverData() any { return g.priv }
