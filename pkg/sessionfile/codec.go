package sessionfile

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
)

// encMode is the CBOR encoder mode for stored packets. Deterministic
// encoding keeps stored captures byte-stable across runs.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for stored packets.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// storedPacket is the on-disk form of one datafeed packet. Marker
// packets carry only the type; exactly one payload field is set for
// the others.
type storedPacket struct {
	Type   uint32         `cbor:"1,keyasint"`
	Header *storedHeader  `cbor:"2,keyasint,omitempty"`
	Meta   map[uint32]any `cbor:"3,keyasint,omitempty"`
	Logic  *storedLogic   `cbor:"4,keyasint,omitempty"`
	Analog *storedAnalog  `cbor:"5,keyasint,omitempty"`
}

type storedHeader struct {
	FeedVersion int       `cbor:"1,keyasint"`
	StartTime   time.Time `cbor:"2,keyasint"`
}

type storedLogic struct {
	UnitSize int    `cbor:"1,keyasint"`
	Data     []byte `cbor:"2,keyasint"`
}

type storedAnalog struct {
	Channels []int     `cbor:"1,keyasint"`
	Data     []float32 `cbor:"2,keyasint"`
	Quantity uint32    `cbor:"3,keyasint"`
	Unit     uint32    `cbor:"4,keyasint"`
	Flags    uint64    `cbor:"5,keyasint"`
	Digits   int       `cbor:"6,keyasint,omitempty"`
}

// encodePacket serializes one packet to CBOR.
func encodePacket(pkt *acq.Packet) ([]byte, error) {
	sp := storedPacket{Type: uint32(pkt.Type())}
	switch p := pkt.Payload().(type) {
	case nil:
	case *acq.HeaderPayload:
		sp.Header = &storedHeader{FeedVersion: p.FeedVersion(), StartTime: p.StartTime()}
	case *acq.MetaPayload:
		sp.Meta = make(map[uint32]any)
		for k, v := range p.Items() {
			sp.Meta[uint32(k)] = v
		}
	case *acq.LogicPayload:
		sp.Logic = &storedLogic{UnitSize: p.UnitSize(), Data: p.Data()}
	case *acq.AnalogPayload:
		indices := make([]int, len(p.Channels()))
		for i, ch := range p.Channels() {
			indices[i] = ch.Index()
		}
		sp.Analog = &storedAnalog{
			Channels: indices,
			Data:     p.Data(),
			Quantity: uint32(p.Quantity()),
			Unit:     uint32(p.Unit()),
			Flags:    uint64(p.Flags()),
			Digits:   p.Digits(),
		}
	default:
		return nil, errs.Newf(errs.NotSupported, "sessionfile.encodePacket",
			"packet type %s", pkt.Type())
	}
	return encMode.Marshal(sp)
}

// decodePacket rebuilds a packet from its stored form. Analog channel
// indices are resolved against the replay device.
func decodePacket(body []byte, dev *acq.Device) (*acq.Packet, error) {
	const op = "sessionfile.decodePacket"
	var sp storedPacket
	if err := decMode.Unmarshal(body, &sp); err != nil {
		return nil, errs.Wrap(errs.DataInvalid, op, err)
	}

	switch acq.PacketType(sp.Type) {
	case acq.PacketHeader:
		if sp.Header == nil {
			return nil, errs.Newf(errs.DataInvalid, op, "header packet without payload")
		}
		return acq.NewHeaderPacket(sp.Header.StartTime), nil
	case acq.PacketEnd:
		return acq.NewEndPacket(), nil
	case acq.PacketTrigger:
		return acq.NewTriggerPacket(), nil
	case acq.PacketFrameBegin:
		return acq.NewFrameBeginPacket(), nil
	case acq.PacketFrameEnd:
		return acq.NewFrameEndPacket(), nil
	case acq.PacketMeta:
		items := make(map[config.Key]any, len(sp.Meta))
		for k, v := range sp.Meta {
			items[config.Key(k)] = v
		}
		return acq.NewMetaPacket(items)
	case acq.PacketLogic:
		if sp.Logic == nil {
			return nil, errs.Newf(errs.DataInvalid, op, "logic packet without payload")
		}
		return acq.NewLogicPacket(sp.Logic.UnitSize, sp.Logic.Data)
	case acq.PacketAnalog:
		if sp.Analog == nil {
			return nil, errs.Newf(errs.DataInvalid, op, "analog packet without payload")
		}
		channels := make([]*acq.Channel, len(sp.Analog.Channels))
		for i, idx := range sp.Analog.Channels {
			ch := channelByIndex(dev, idx)
			if ch == nil {
				return nil, errs.Newf(errs.DataInvalid, op, "no channel with index %d", idx)
			}
			channels[i] = ch
		}
		pkt, err := acq.NewAnalogPacket(channels, sp.Analog.Data,
			acq.Quantity(sp.Analog.Quantity), acq.Unit(sp.Analog.Unit), acq.Flag(sp.Analog.Flags))
		if err != nil {
			return nil, err
		}
		pkt.Payload().(*acq.AnalogPayload).SetDigits(sp.Analog.Digits)
		return pkt, nil
	default:
		return nil, errs.Newf(errs.DataInvalid, op, "unknown packet type %d", sp.Type)
	}
}

func channelByIndex(dev *acq.Device, index int) *acq.Channel {
	for _, ch := range dev.Channels() {
		if ch.Index() == index {
			return ch
		}
	}
	return nil
}
