package acq

import (
	"time"

	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/lifetime"
)

// PacketType identifies the kind of datafeed packet.
type PacketType uint16

const (
	// PacketHeader opens a device's stream. Always the first packet.
	PacketHeader PacketType = 10000 + iota
	// PacketEnd closes a device's stream. Always the last packet.
	PacketEnd
	// PacketMeta carries configuration values that changed mid-stream.
	PacketMeta
	// PacketTrigger marks the position at which the trigger fired. It
	// carries no payload.
	PacketTrigger
	// PacketLogic carries raw logic samples.
	PacketLogic
	// PacketFrameBegin opens a frame of related samples. No payload.
	PacketFrameBegin
	// PacketFrameEnd closes a frame. No payload.
	PacketFrameEnd
	// PacketAnalog carries analog samples.
	PacketAnalog
)

// String returns the packet type name.
func (t PacketType) String() string {
	switch t {
	case PacketHeader:
		return "header"
	case PacketEnd:
		return "end"
	case PacketMeta:
		return "meta"
	case PacketTrigger:
		return "trigger"
	case PacketLogic:
		return "logic"
	case PacketFrameBegin:
		return "frame-begin"
	case PacketFrameEnd:
		return "frame-end"
	case PacketAnalog:
		return "analog"
	default:
		return "unknown"
	}
}

// Payload is the typed content of a packet. Trigger, end and frame
// marker packets carry a nil payload.
type Payload interface {
	payloadType() PacketType
}

// Packet is one unit of the datafeed. Packets are application-owned;
// their payload is owned by the packet and keeps it alive while a
// payload handle is outstanding.
type Packet struct {
	lifetime.AppOwned

	ptype   PacketType
	payload Payload
}

// Type returns the packet type.
func (p *Packet) Type() PacketType { return p.ptype }

// Payload returns the packet's payload, or nil for payload-free types.
func (p *Packet) Payload() Payload { return p.payload }

func newPacket(ptype PacketType, payload Payload) *Packet {
	pkt := &Packet{ptype: ptype, payload: payload}
	if payload != nil {
		// Constructors build the payload fresh, so the bind cannot fail.
		if owned, ok := payload.(interface{ SetParent(*Packet) error }); ok {
			_ = owned.SetParent(pkt)
		}
	}
	return pkt
}

// HeaderPayload carries the stream metadata sent at acquisition start.
type HeaderPayload struct {
	lifetime.ParentOwned[*Packet]

	feedVersion int
	startTime   time.Time
}

func (*HeaderPayload) payloadType() PacketType { return PacketHeader }

// FeedVersion returns the datafeed protocol version.
func (h *HeaderPayload) FeedVersion() int { return h.feedVersion }

// StartTime returns the wall-clock time acquisition started.
func (h *HeaderPayload) StartTime() time.Time { return h.startTime }

// MetaPayload carries configuration values announced mid-stream, for
// example a samplerate the device picked on its own.
type MetaPayload struct {
	lifetime.ParentOwned[*Packet]

	items map[config.Key]any
}

func (*MetaPayload) payloadType() PacketType { return PacketMeta }

// Items returns the announced key/value pairs.
func (m *MetaPayload) Items() map[config.Key]any {
	out := make(map[config.Key]any, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out
}

// LogicPayload carries logic samples as a flat byte buffer, unitSize
// bytes per sample, channel 0 in the least significant bit.
type LogicPayload struct {
	lifetime.ParentOwned[*Packet]

	unitSize int
	data     []byte
}

func (*LogicPayload) payloadType() PacketType { return PacketLogic }

// UnitSize returns the number of bytes per sample.
func (l *LogicPayload) UnitSize() int { return l.unitSize }

// Data returns the raw sample buffer. Callers must not modify it.
func (l *LogicPayload) Data() []byte { return l.data }

// SampleCount returns the number of samples in the payload.
func (l *LogicPayload) SampleCount() int { return len(l.data) / l.unitSize }

// Bit returns the state of the given channel index in the given sample.
func (l *LogicPayload) Bit(sample, index int) bool {
	off := sample*l.unitSize + index/8
	return l.data[off]&(1<<(index%8)) != 0
}

// AnalogPayload carries analog samples for one or more channels. The
// data is interleaved per sample: all channels' values for the first
// sample, then all channels' values for the second, and so on.
type AnalogPayload struct {
	lifetime.ParentOwned[*Packet]

	channels []*Channel
	data     []float32
	mq       Quantity
	unit     Unit
	flags    Flag
	digits   int
}

func (*AnalogPayload) payloadType() PacketType { return PacketAnalog }

// Channels returns the channels the samples belong to.
func (a *AnalogPayload) Channels() []*Channel {
	out := make([]*Channel, len(a.channels))
	copy(out, a.channels)
	return out
}

// Data returns the raw interleaved sample buffer. Callers must not
// modify it.
func (a *AnalogPayload) Data() []float32 { return a.data }

// SampleCount returns the number of samples per channel.
func (a *AnalogPayload) SampleCount() int { return len(a.data) / len(a.channels) }

// Sample returns the value of the given channel position in the given
// sample.
func (a *AnalogPayload) Sample(sample, channel int) float32 {
	return a.data[sample*len(a.channels)+channel]
}

// Quantity returns the measured quantity.
func (a *AnalogPayload) Quantity() Quantity { return a.mq }

// Unit returns the unit of the values.
func (a *AnalogPayload) Unit() Unit { return a.unit }

// Flags returns the measurement flags.
func (a *AnalogPayload) Flags() Flag { return a.flags }

// Digits returns the number of significant decimal digits, for display.
func (a *AnalogPayload) Digits() int { return a.digits }

// FeedVersion is the current datafeed protocol version.
const FeedVersion = 1

// NewHeaderPacket returns a header packet with the given start time.
func NewHeaderPacket(start time.Time) *Packet {
	return newPacket(PacketHeader, &HeaderPayload{feedVersion: FeedVersion, startTime: start})
}

// NewEndPacket returns an end-of-stream packet.
func NewEndPacket() *Packet { return newPacket(PacketEnd, nil) }

// NewTriggerPacket returns a trigger marker packet.
func NewTriggerPacket() *Packet { return newPacket(PacketTrigger, nil) }

// NewFrameBeginPacket returns a frame-begin marker packet.
func NewFrameBeginPacket() *Packet { return newPacket(PacketFrameBegin, nil) }

// NewFrameEndPacket returns a frame-end marker packet.
func NewFrameEndPacket() *Packet { return newPacket(PacketFrameEnd, nil) }

// NewMetaPacket returns a meta packet announcing the given values.
func NewMetaPacket(items map[config.Key]any) (*Packet, error) {
	if len(items) == 0 {
		return nil, errs.Argf("acq.NewMetaPacket", "no items")
	}
	copied := make(map[config.Key]any, len(items))
	for k, v := range items {
		copied[k] = v
	}
	return newPacket(PacketMeta, &MetaPayload{items: copied}), nil
}

// NewLogicPacket returns a logic packet over the given sample buffer.
// The buffer is not copied; the caller hands it over.
func NewLogicPacket(unitSize int, data []byte) (*Packet, error) {
	const op = "acq.NewLogicPacket"
	if unitSize < 1 {
		return nil, errs.Argf(op, "unit size %d", unitSize)
	}
	if len(data)%unitSize != 0 {
		return nil, errs.Argf(op, "buffer of %d bytes is not a multiple of unit size %d", len(data), unitSize)
	}
	return newPacket(PacketLogic, &LogicPayload{unitSize: unitSize, data: data}), nil
}

// NewAnalogPacket returns an analog packet over the given sample buffer.
// The buffer is not copied; the caller hands it over.
func NewAnalogPacket(channels []*Channel, data []float32, mq Quantity, unit Unit, flags Flag) (*Packet, error) {
	const op = "acq.NewAnalogPacket"
	if len(channels) == 0 {
		return nil, errs.Argf(op, "no channels")
	}
	for i, ch := range channels {
		if ch == nil {
			return nil, errs.Argf(op, "nil channel at position %d", i)
		}
	}
	if len(data)%len(channels) != 0 {
		return nil, errs.Argf(op, "%d values do not divide over %d channels", len(data), len(channels))
	}
	chs := make([]*Channel, len(channels))
	copy(chs, channels)
	return newPacket(PacketAnalog, &AnalogPayload{
		channels: chs,
		data:     data,
		mq:       mq,
		unit:     unit,
		flags:    flags,
	}), nil
}

// SetDigits sets the display precision. It must be called before the
// packet is fed into a session.
func (a *AnalogPayload) SetDigits(digits int) { a.digits = digits }
