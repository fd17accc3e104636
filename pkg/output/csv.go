package output

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/units"
)

// CSV renders the stream as comma-separated values, one row per
// sample. Logic channels yield 0/1 columns, analog channels their
// measured value. Logic and analog samples are emitted as separate
// rows in stream order.
type CSV struct{}

var (
	_ acq.OutputFormat = Bits{}
	_ acq.OutputFormat = CSV{}
)

// Name implements acq.OutputFormat.
func (CSV) Name() string { return "csv" }

// Description implements acq.OutputFormat.
func (CSV) Description() string { return "Comma-separated values" }

// New implements acq.OutputFormat.
func (CSV) New(dev *acq.Device, opts config.Options) (acq.Output, error) {
	if dev == nil {
		return nil, errs.Argf("output.CSV.New", "nil device")
	}
	var enabled []*acq.Channel
	for _, ch := range dev.Channels() {
		if ch.Enabled() {
			enabled = append(enabled, ch)
		}
	}
	if len(enabled) == 0 {
		return nil, errs.Argf("output.CSV.New", "device has no enabled channels")
	}
	return &csvOutput{dev: dev, channels: enabled}, nil
}

type csvOutput struct {
	dev      *acq.Device
	channels []*acq.Channel
}

// Receive implements acq.Output.
func (o *csvOutput) Receive(pkt *acq.Packet) ([]byte, error) {
	switch pkt.Type() {
	case acq.PacketHeader:
		return o.header(pkt.Payload().(*acq.HeaderPayload)), nil
	case acq.PacketMeta:
		meta := pkt.Payload().(*acq.MetaPayload)
		if rate, ok := meta.Items()[config.KeySamplerate].(uint64); ok {
			return []byte(fmt.Sprintf("; samplerate: %s\n", units.FormatSamplerate(rate))), nil
		}
		return nil, nil
	case acq.PacketLogic:
		return o.logic(pkt.Payload().(*acq.LogicPayload)), nil
	case acq.PacketAnalog:
		return o.analog(pkt.Payload().(*acq.AnalogPayload)), nil
	default:
		return nil, nil
	}
}

func (o *csvOutput) header(hdr *acq.HeaderPayload) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "; device: %s\n", o.dev.String())
	if hdr != nil {
		fmt.Fprintf(&buf, "; acquired: %s\n", hdr.StartTime().Format(time.RFC3339))
	}
	for i, ch := range o.channels {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(ch.Name())
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// logic emits one row per sample with a column for every enabled logic
// channel of the device.
func (o *csvOutput) logic(p *acq.LogicPayload) []byte {
	var buf bytes.Buffer
	for s := 0; s < p.SampleCount(); s++ {
		first := true
		for _, ch := range o.channels {
			if ch.Type() != acq.ChannelLogic {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if p.Bit(s, ch.Index()) {
				buf.WriteByte('1')
			} else {
				buf.WriteByte('0')
			}
		}
		if !first {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// analog emits one row per sample with a column for every channel the
// payload covers.
func (o *csvOutput) analog(p *acq.AnalogPayload) []byte {
	var buf bytes.Buffer
	channels := p.Channels()
	prec := p.Digits()
	if prec <= 0 {
		prec = -1
	}
	for s := 0; s < p.SampleCount(); s++ {
		for i := range channels {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.FormatFloat(float64(p.Sample(s, i)), 'g', prec, 32))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
