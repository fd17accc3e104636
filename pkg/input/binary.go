// Package input implements the input formats that decode stored
// captures into the datafeed: raw binary logic data and CSV.
//
// Decoders buffer pushed data until their device sits in a running
// session, then emit packets through it. The usual sequence is: create
// the decoder (or let Context.OpenFile detect it), push a first chunk,
// add the decoder's device to a session, start the session, push the
// rest and call End.
package input

import (
	"fmt"
	"sync"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/lifetime"
)

// Binary decodes headerless logic data: unitSize bytes per sample,
// channel 0 in the least significant bit. It cannot be auto-detected
// and must be selected by name.
type Binary struct{}

// Name implements acq.InputFormat.
func (Binary) Name() string { return "binary" }

// Description implements acq.InputFormat.
func (Binary) Description() string { return "Raw binary logic data" }

// Extensions implements acq.InputFormat.
func (Binary) Extensions() []string { return []string{"bin", "raw"} }

// Detect implements acq.InputFormat. Raw data has no signature.
func (Binary) Detect(header []byte, filename string) bool { return false }

// New implements acq.InputFormat. Options: num-logic-channels (default
// 8) and samplerate (announced as meta when non-zero).
func (Binary) New(c *acq.Context, opts config.Options) (acq.Input, error) {
	numChannels := int(opts.Uint64(config.KeyNumLogicChannels, 8))
	if numChannels < 1 || numChannels > 64 {
		return nil, errs.Argf("input.Binary.New", "channel count %d out of range", numChannels)
	}

	in := &binaryInput{
		unitSize:   (numChannels + 7) / 8,
		samplerate: opts.Uint64(config.KeySamplerate, 0),
	}
	dev, err := c.NewInputDevice("Raw binary", in)
	if err != nil {
		return nil, err
	}
	for i := 0; i < numChannels; i++ {
		if _, err := dev.AddChannel(i, acq.ChannelLogic, fmt.Sprintf("D%d", i)); err != nil {
			return nil, err
		}
	}
	in.dev = dev
	return in, nil
}

type binaryInput struct {
	lifetime.AppOwned

	mu         sync.Mutex
	dev        *acq.Device
	unitSize   int
	samplerate uint64
	buf        []byte
	metaSent   bool
	ended      bool
}

// Device implements acq.Input.
func (in *binaryInput) Device() *acq.Device { return in.dev }

// Send implements acq.Input.
func (in *binaryInput) Send(data []byte) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ended {
		return errs.Bugf("input.Binary.Send", "send after end")
	}
	in.buf = append(in.buf, data...)
	return in.flushLocked(false)
}

// End implements acq.Input.
func (in *binaryInput) End() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ended {
		return nil
	}
	in.ended = true
	if err := in.flushLocked(true); err != nil {
		return err
	}
	if s := in.dev.Session(); s != nil && s.IsRunning() {
		return in.dev.Send(acq.NewEndPacket())
	}
	return nil
}

func (in *binaryInput) flushLocked(final bool) error {
	s := in.dev.Session()
	if s == nil || !s.IsRunning() {
		if final && len(in.buf) > 0 {
			return errs.Newf(errs.DataInvalid, "input.Binary.End",
				"%d buffered bytes but the device is not in a running session", len(in.buf))
		}
		return nil
	}
	if !in.metaSent && in.samplerate > 0 {
		meta, err := acq.NewMetaPacket(map[config.Key]any{config.KeySamplerate: in.samplerate})
		if err != nil {
			return err
		}
		if err := in.dev.Send(meta); err != nil {
			return err
		}
	}
	in.metaSent = true

	n := len(in.buf) / in.unitSize * in.unitSize
	if n == 0 {
		return nil
	}
	chunk := in.buf[:n]
	in.buf = append([]byte(nil), in.buf[n:]...)
	pkt, err := acq.NewLogicPacket(in.unitSize, chunk)
	if err != nil {
		return err
	}
	return in.dev.Send(pkt)
}
