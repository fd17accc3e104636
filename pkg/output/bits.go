// Package output implements the output formats that encode the
// datafeed into text: an ASCII bit stream per channel and CSV.
//
// An encoder is bound to one device and handed every packet of that
// device's stream in order; it returns the bytes to append to the
// output file or stream.
package output

import (
	"bytes"
	"fmt"
	"time"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/units"
)

// Bits renders logic data as one ASCII bit row per channel, grouped in
// blocks of KeyOutputWidth samples (default 64).
type Bits struct{}

// Name implements acq.OutputFormat.
func (Bits) Name() string { return "bits" }

// Description implements acq.OutputFormat.
func (Bits) Description() string { return "ASCII bit stream" }

// New implements acq.OutputFormat. The encoder covers the device's
// enabled logic channels at creation time.
func (Bits) New(dev *acq.Device, opts config.Options) (acq.Output, error) {
	if dev == nil {
		return nil, errs.Argf("output.Bits.New", "nil device")
	}
	channels := enabledLogic(dev)
	if len(channels) == 0 {
		return nil, errs.Argf("output.Bits.New", "device has no enabled logic channels")
	}
	width := int(opts.Uint64(config.KeyOutputWidth, 64))
	if width < 1 {
		return nil, errs.Argf("output.Bits.New", "width %d out of range", width)
	}
	return &bitsOutput{
		dev:      dev,
		channels: channels,
		width:    width,
		rows:     make([]bytes.Buffer, len(channels)),
	}, nil
}

type bitsOutput struct {
	dev      *acq.Device
	channels []*acq.Channel
	width    int
	rows     []bytes.Buffer
	pending  int
}

// Receive implements acq.Output.
func (o *bitsOutput) Receive(pkt *acq.Packet) ([]byte, error) {
	switch pkt.Type() {
	case acq.PacketHeader:
		hdr, _ := pkt.Payload().(*acq.HeaderPayload)
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "; %s, %d channels\n", o.dev.String(), len(o.channels))
		if hdr != nil {
			fmt.Fprintf(&buf, "; acquired %s\n", hdr.StartTime().Format(time.RFC3339))
		}
		return buf.Bytes(), nil
	case acq.PacketMeta:
		meta := pkt.Payload().(*acq.MetaPayload)
		if rate, ok := meta.Items()[config.KeySamplerate].(uint64); ok {
			return []byte(fmt.Sprintf("; samplerate %s\n", units.FormatSamplerate(rate))), nil
		}
		return nil, nil
	case acq.PacketLogic:
		return o.logic(pkt.Payload().(*acq.LogicPayload)), nil
	case acq.PacketTrigger:
		// Mark the trigger point in every pending row.
		for i := range o.rows {
			o.rows[i].WriteByte('T')
		}
		return nil, nil
	case acq.PacketEnd:
		return o.flush(), nil
	default:
		return nil, nil
	}
}

func (o *bitsOutput) logic(p *acq.LogicPayload) []byte {
	var out bytes.Buffer
	for s := 0; s < p.SampleCount(); s++ {
		for i, ch := range o.channels {
			if p.Bit(s, ch.Index()) {
				o.rows[i].WriteByte('1')
			} else {
				o.rows[i].WriteByte('0')
			}
		}
		o.pending++
		if o.pending == o.width {
			out.Write(o.flush())
		}
	}
	return out.Bytes()
}

// flush emits one block: a labelled bit row per channel plus a blank
// separator line.
func (o *bitsOutput) flush() []byte {
	if o.pending == 0 {
		return nil
	}
	label := 0
	for _, ch := range o.channels {
		if n := len(ch.Name()); n > label {
			label = n
		}
	}
	var out bytes.Buffer
	for i, ch := range o.channels {
		fmt.Fprintf(&out, "%-*s ", label+1, ch.Name()+":")
		out.Write(o.rows[i].Bytes())
		out.WriteByte('\n')
		o.rows[i].Reset()
	}
	out.WriteByte('\n')
	o.pending = 0
	return out.Bytes()
}

func enabledLogic(dev *acq.Device) []*acq.Channel {
	var out []*acq.Channel
	for _, ch := range dev.Channels() {
		if ch.Type() == acq.ChannelLogic && ch.Enabled() {
			out = append(out, ch)
		}
	}
	return out
}
