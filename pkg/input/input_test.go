package input

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/log"
)

type capture struct {
	mu      sync.Mutex
	types   []acq.PacketType
	packets []*acq.Packet
}

func (c *capture) cb(dev *acq.Device, pkt *acq.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, pkt.Type())
	c.packets = append(c.packets, pkt)
}

func (c *capture) logicData(t *testing.T) []byte {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, pkt := range c.packets {
		if pkt.Type() != acq.PacketLogic {
			continue
		}
		p, ok := pkt.Payload().(*acq.LogicPayload)
		require.True(t, ok)
		out = append(out, p.Data()...)
	}
	return out
}

func newTestContext(t *testing.T) *acq.Context {
	t.Helper()
	c, err := acq.NewContext(
		acq.WithInputFormat(Binary{}),
		acq.WithInputFormat(CSV{}),
		acq.WithLogger(log.NoopLogger{}),
	)
	require.NoError(t, err)
	return c
}

func runDecoder(t *testing.T, c *acq.Context, in acq.Input, chunks [][]byte) *capture {
	t.Helper()
	s, err := c.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.AddDevice(in.Device()))
	rec := &capture{}
	require.NoError(t, s.AddDatafeedCallback(rec.cb))
	require.NoError(t, s.Start())
	for _, chunk := range chunks {
		require.NoError(t, in.Send(chunk))
	}
	require.NoError(t, in.End())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Wait())
	require.NoError(t, s.Close())
	return rec
}

func TestBinaryDecodesSamples(t *testing.T) {
	c := newTestContext(t)
	in, err := Binary{}.New(c, config.Options{
		config.KeyNumLogicChannels: uint64(4),
		config.KeySamplerate:       uint64(1000),
	})
	require.NoError(t, err)

	dev := in.Device()
	require.NotNil(t, dev)
	assert.Len(t, dev.Channels(), 4)
	assert.Equal(t, "D0", dev.Channels()[0].Name())

	rec := runDecoder(t, c, in, [][]byte{{0x01, 0x02, 0x03}, {0x04, 0x05}})

	assert.Equal(t, []acq.PacketType{
		acq.PacketHeader, acq.PacketMeta, acq.PacketLogic, acq.PacketLogic, acq.PacketEnd,
	}, rec.types)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05}, rec.logicData(t))
	require.NoError(t, c.Close())
}

func TestBinaryBuffersUntilRunning(t *testing.T) {
	c := newTestContext(t)
	in, err := Binary{}.New(c, config.Options{config.KeyNumLogicChannels: uint64(8)})
	require.NoError(t, err)

	// Pushed before the session runs, the data must not be dropped.
	require.NoError(t, in.Send([]byte{0xaa, 0xbb}))

	s, err := c.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.AddDevice(in.Device()))
	rec := &capture{}
	require.NoError(t, s.AddDatafeedCallback(rec.cb))
	require.NoError(t, s.Start())
	require.NoError(t, in.Send([]byte{0xcc}))
	require.NoError(t, in.End())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Wait())

	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, rec.logicData(t))
	// No samplerate option, so no meta packet.
	assert.NotContains(t, rec.types, acq.PacketMeta)
}

func TestBinaryMultiByteUnits(t *testing.T) {
	c := newTestContext(t)
	in, err := Binary{}.New(c, config.Options{config.KeyNumLogicChannels: uint64(16)})
	require.NoError(t, err)

	// 3 bytes is one full 2-byte sample plus a partial that must be
	// held back until its second byte arrives.
	rec := runDecoder(t, c, in, [][]byte{{0x11, 0x22, 0x33}, {0x44}})
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, rec.logicData(t))
}

func TestBinaryRejectsBadChannelCount(t *testing.T) {
	c := newTestContext(t)
	_, err := Binary{}.New(c, config.Options{config.KeyNumLogicChannels: uint64(0)})
	assert.Equal(t, errs.Arg, errs.CodeOf(err))
}

func TestBinaryNeverDetects(t *testing.T) {
	assert.False(t, Binary{}.Detect([]byte("anything at all"), "capture.bin"))
}

func TestCSVHeaderRowNamesChannels(t *testing.T) {
	c := newTestContext(t)
	in, err := CSV{}.New(c, config.Options{})
	require.NoError(t, err)
	assert.Nil(t, in.Device())

	require.NoError(t, in.Send([]byte("CLK,DATA,CS\n")))
	dev := in.Device()
	require.NotNil(t, dev)
	require.Len(t, dev.Channels(), 3)
	assert.Equal(t, "CLK", dev.Channels()[0].Name())
	assert.Equal(t, "DATA", dev.Channels()[1].Name())
	assert.Equal(t, "CS", dev.Channels()[2].Name())

	rec := runDecoder(t, c, in, [][]byte{
		[]byte("1,0,1\n0,1"),
		[]byte(",1\n"),
	})
	assert.Equal(t, []byte{0x05, 0x06}, rec.logicData(t))
}

func TestCSVWithoutHeaderUsesIndexNames(t *testing.T) {
	c := newTestContext(t)
	in, err := CSV{}.New(c, config.Options{})
	require.NoError(t, err)

	require.NoError(t, in.Send([]byte("0,1\n")))
	dev := in.Device()
	require.NotNil(t, dev)
	require.Len(t, dev.Channels(), 2)
	assert.Equal(t, "0", dev.Channels()[0].Name())

	rec := runDecoder(t, c, in, [][]byte{[]byte("1,1\n")})
	// The first line is data, not a header, and both lines are kept.
	assert.Equal(t, []byte{0x02, 0x03}, rec.logicData(t))
}

func TestCSVColumnMismatch(t *testing.T) {
	c := newTestContext(t)
	in, err := CSV{}.New(c, config.Options{})
	require.NoError(t, err)

	require.NoError(t, in.Send([]byte("a,b\n")))
	err = in.Send([]byte("1,0,1\n"))
	assert.Equal(t, errs.DataInvalid, errs.CodeOf(err))
}

func TestCSVRejectsNonBitValue(t *testing.T) {
	c := newTestContext(t)
	in, err := CSV{}.New(c, config.Options{})
	require.NoError(t, err)

	require.NoError(t, in.Send([]byte("a,b\n")))
	err = in.Send([]byte("1,2\n"))
	assert.Equal(t, errs.DataInvalid, errs.CodeOf(err))
}

func TestCSVFinalLineWithoutNewline(t *testing.T) {
	c := newTestContext(t)
	in, err := CSV{}.New(c, config.Options{})
	require.NoError(t, err)

	require.NoError(t, in.Send([]byte("x,y\n1,0\n")))
	rec := runDecoder(t, c, in, [][]byte{[]byte("0,1")})
	assert.Equal(t, []byte{0x01, 0x02}, rec.logicData(t))
}

func TestCSVDetect(t *testing.T) {
	// Bit rows are claimed regardless of filename.
	assert.True(t, CSV{}.Detect([]byte("0,1,0\n1,1,1\n"), "capture.dat"))
	// A header row counts when a bit row of the same width follows,
	// even without a filename hint.
	assert.True(t, CSV{}.Detect([]byte("CLK,DATA\n0,1\n"), "capture.dat"))
	assert.True(t, CSV{}.Detect([]byte("CLK,DATA\n0,1\n"), ""))
	assert.True(t, CSV{}.Detect([]byte("CLK,DATA\n0,1\n"), "capture.csv"))
	// Without a complete bit row the filename hint decides.
	assert.True(t, CSV{}.Detect([]byte("CLK,DATA\nincomplete"), "capture.csv"))
	assert.False(t, CSV{}.Detect([]byte("CLK,DATA\nincomplete"), "capture.dat"))
	assert.False(t, CSV{}.Detect([]byte("CLK,DATA\nfoo,bar\n"), "capture.dat"))
	assert.False(t, CSV{}.Detect([]byte("CLK,DATA,EN\n0,1\n"), "capture.dat"))
	assert.False(t, CSV{}.Detect([]byte{0x00, 0x01, 0x02, 0x0a}, "capture.csv"))
	assert.False(t, CSV{}.Detect([]byte("no newline here"), "capture.csv"))
}

func TestCSVEndWithoutData(t *testing.T) {
	c := newTestContext(t)
	in, err := CSV{}.New(c, config.Options{})
	require.NoError(t, err)
	err = in.End()
	assert.Equal(t, errs.DataInvalid, errs.CodeOf(err))
}

func TestContextDetectsCSV(t *testing.T) {
	c := newTestContext(t)
	f, ok := c.DetectInput([]byte("SCL,SDA\n1,1\n0,1\n"), "trace.csv")
	require.True(t, ok)
	assert.Equal(t, "csv", f.Name())
}

func TestContextOpenStream(t *testing.T) {
	c := newTestContext(t)
	in, err := c.OpenStream(strings.NewReader("SCL,SDA\n1,1\n0,1\n"), "", nil)
	require.NoError(t, err)

	// The detection bytes were already pushed; the header row is enough
	// to derive the device.
	dev := in.Device()
	require.NotNil(t, dev)
	require.Len(t, dev.Channels(), 2)
	assert.Equal(t, "SCL", dev.Channels()[0].Name())

	var rec capture
	s, err := c.NewSession()
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.AddDevice(dev))
	require.NoError(t, s.AddDatafeedCallback(rec.cb))
	require.NoError(t, s.Start())
	require.NoError(t, in.End())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Wait())

	assert.Equal(t, []byte{0x03, 0x02}, rec.logicData(t))
}

func TestContextOpenStreamUnknownFormat(t *testing.T) {
	c := newTestContext(t)
	_, err := c.OpenStream(strings.NewReader("\x00\x01\x02"), "", nil)
	require.Error(t, err)
	assert.Equal(t, errs.NotSupported, errs.CodeOf(err))
}
