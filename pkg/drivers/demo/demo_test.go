package demo

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/log"
)

func newDemoContext(t *testing.T) *acq.Context {
	t.Helper()
	c, err := acq.NewContext(acq.WithDriver(New()), acq.WithLogger(log.NoopLogger{}))
	require.NoError(t, err)
	return c
}

func scanDemo(t *testing.T, c *acq.Context, opts config.Options) *acq.Device {
	t.Helper()
	devs, err := c.Scan("demo", opts)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	return devs[0]
}

func TestScanChannelLayout(t *testing.T) {
	c := newDemoContext(t)
	dev := scanDemo(t, c, nil)

	chans := dev.Channels()
	require.Len(t, chans, DefaultLogicChannels+DefaultAnalogChannels)
	assert.Equal(t, "D0", chans[0].Name())
	assert.Equal(t, acq.ChannelLogic, chans[0].Type())
	assert.Equal(t, "A0", chans[DefaultLogicChannels].Name())
	assert.Equal(t, acq.ChannelAnalog, chans[DefaultLogicChannels].Type())

	groups := dev.ChannelGroups()
	require.Len(t, groups, 1+DefaultAnalogChannels)
	logic, ok := dev.ChannelGroup("Logic")
	require.True(t, ok)
	assert.Len(t, logic.Channels(), DefaultLogicChannels)
	a0, ok := dev.ChannelGroup("A0")
	require.True(t, ok)
	assert.Len(t, a0.Channels(), 1)
}

func TestScanHonorsChannelCounts(t *testing.T) {
	c := newDemoContext(t)
	dev := scanDemo(t, c, config.Options{
		config.KeyNumLogicChannels:  uint64(4),
		config.KeyNumAnalogChannels: uint64(0),
	})
	assert.Len(t, dev.Channels(), 4)
	_, ok := dev.ChannelGroup("A0")
	assert.False(t, ok)

	_, err := c.Scan("demo", config.Options{
		config.KeyNumLogicChannels:  uint64(0),
		config.KeyNumAnalogChannels: uint64(0),
	})
	assert.ErrorIs(t, err, errs.ErrArg)
}

func TestConfigSurface(t *testing.T) {
	c := newDemoContext(t)
	dev := scanDemo(t, c, nil)

	v, err := dev.ConfigGet(config.KeySamplerate, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultSamplerate, v)

	require.NoError(t, dev.ConfigSet(config.KeySamplerate, nil, uint64(1000000)))
	err = dev.ConfigSet(config.KeySamplerate, nil, uint64(0))
	assert.ErrorIs(t, err, errs.ErrSampleRate)

	assert.True(t, dev.ConfigCheck(config.KeySamplerate, nil, config.CapGet|config.CapSet|config.CapList))
	assert.True(t, dev.ConfigCheck(config.KeyLimitSamples, nil, config.CapSet))

	rng, err := dev.ConfigList(config.KeySamplerate, nil)
	require.NoError(t, err)
	assert.Equal(t, samplerates, rng)

	opts, err := c.ScanOptions("demo")
	require.NoError(t, err)
	assert.Equal(t, []config.Key{config.KeyNumLogicChannels, config.KeyNumAnalogChannels}, opts)
}

func TestPatternModePerGroup(t *testing.T) {
	c := newDemoContext(t)
	dev := scanDemo(t, c, nil)
	require.NoError(t, dev.Open())

	logic, _ := dev.ChannelGroup("Logic")
	a0, _ := dev.ChannelGroup("A0")

	v, err := dev.ConfigGet(config.KeyPatternMode, logic)
	require.NoError(t, err)
	assert.Equal(t, "logo", v)

	require.NoError(t, dev.ConfigSet(config.KeyPatternMode, logic, "all-high"))
	v, _ = dev.ConfigGet(config.KeyPatternMode, logic)
	assert.Equal(t, "all-high", v)

	err = dev.ConfigSet(config.KeyPatternMode, logic, "sine")
	assert.ErrorIs(t, err, errs.ErrArg, "analog pattern on logic group")

	require.NoError(t, dev.ConfigSet(config.KeyPatternMode, a0, "sawtooth"))
	v, _ = dev.ConfigGet(config.KeyPatternMode, a0)
	assert.Equal(t, "sawtooth", v)

	names, err := dev.ConfigList(config.KeyPatternMode, logic)
	require.NoError(t, err)
	assert.Equal(t, LogicPatternNames(), names)
	names, err = dev.ConfigList(config.KeyPatternMode, a0)
	require.NoError(t, err)
	assert.Equal(t, AnalogPatternNames(), names)
}

func TestAcquisitionRespectsSampleLimit(t *testing.T) {
	c := newDemoContext(t)
	dev := scanDemo(t, c, nil)
	require.NoError(t, dev.Open())
	require.NoError(t, dev.ConfigSet(config.KeySamplerate, nil, uint64(1000000)))
	require.NoError(t, dev.ConfigSet(config.KeyLimitSamples, nil, uint64(2000)))

	s, err := c.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.AddDevice(dev))

	var mu sync.Mutex
	var logicSamples, analogPackets int
	var sawHeader, sawMeta, sawEnd bool
	require.NoError(t, s.AddDatafeedCallback(func(d *acq.Device, pkt *acq.Packet) {
		mu.Lock()
		defer mu.Unlock()
		switch pl := pkt.Payload().(type) {
		case *acq.HeaderPayload:
			sawHeader = true
		case *acq.MetaPayload:
			sawMeta = true
			assert.Equal(t, uint64(1000000), pl.Items()[config.KeySamplerate])
		case *acq.LogicPayload:
			logicSamples += pl.SampleCount()
		case *acq.AnalogPayload:
			analogPackets++
			assert.Equal(t, acq.QuantityVoltage, pl.Quantity())
			assert.Equal(t, acq.UnitVolt, pl.Unit())
		default:
			if pkt.Type() == acq.PacketEnd {
				sawEnd = true
			}
		}
	}))

	require.NoError(t, s.Run())

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawHeader)
	assert.True(t, sawMeta)
	assert.True(t, sawEnd)
	assert.Equal(t, 2000, logicSamples, "sample limit honored exactly")
	assert.Greater(t, analogPackets, 0)
}

func TestStopEndsContinuousAcquisition(t *testing.T) {
	c := newDemoContext(t)
	dev := scanDemo(t, c, nil)
	require.NoError(t, dev.Open())

	s, err := c.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.AddDevice(dev))

	var mu sync.Mutex
	var chunks int
	var sawEnd bool
	require.NoError(t, s.AddDatafeedCallback(func(d *acq.Device, pkt *acq.Packet) {
		mu.Lock()
		defer mu.Unlock()
		switch pkt.Type() {
		case acq.PacketLogic:
			chunks++
			if chunks == 3 {
				_ = s.Stop()
			}
		case acq.PacketEnd:
			sawEnd = true
		}
	}))

	require.NoError(t, s.Run())

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, chunks, 3)
	assert.True(t, sawEnd, "driver ends the stream on stop")
}

func TestLogicPatterns(t *testing.T) {
	st := &state{unitSize: 1}

	st.logicPattern = PatternAllHigh
	for _, b := range st.generateLogic(16) {
		assert.Equal(t, uint8(0xff), b)
	}

	st.logicPattern = PatternAllLow
	for _, b := range st.generateLogic(16) {
		assert.Equal(t, uint8(0x00), b)
	}

	st.logicPattern = PatternIncremental
	st.counter = 0
	buf := st.generateLogic(4)
	assert.Equal(t, []byte{0, 1, 2, 3}, buf)
	buf = st.generateLogic(2)
	assert.Equal(t, []byte{4, 5}, buf, "counter persists across chunks")

	st.logicPattern = PatternLogo
	st.counter = 0
	buf = st.generateLogic(2)
	assert.Equal(t, ^(patternLogo[0] >> 1), buf[0])
	assert.Equal(t, ^(patternLogo[1] >> 1), buf[1])
}

func TestAnalogPatternShapes(t *testing.T) {
	square := &analogState{pattern: PatternSquare, amplitude: analogAmplitude}
	data, mq, unit, _ := square.generate(analogSamplesPerPeriod)
	assert.Equal(t, acq.QuantityVoltage, mq)
	assert.Equal(t, acq.UnitVolt, unit)
	for _, v := range data {
		assert.True(t, v == analogAmplitude || v == -analogAmplitude)
	}

	sine := &analogState{pattern: PatternSine, amplitude: analogAmplitude}
	data, _, _, _ = sine.generate(analogSamplesPerPeriod)
	for _, v := range data {
		assert.LessOrEqual(t, v, float32(analogAmplitude))
		assert.GreaterOrEqual(t, v, float32(-analogAmplitude))
	}
	assert.InDelta(t, 0, data[0], 1e-6, "sine starts at zero phase")
}

func TestPatternParsing(t *testing.T) {
	p, err := ParseLogicPattern("incremental")
	require.NoError(t, err)
	assert.Equal(t, PatternIncremental, p)
	_, err = ParseLogicPattern("nope")
	assert.True(t, errors.Is(err, errs.ErrArg))

	a, err := ParseAnalogPattern("triangle")
	require.NoError(t, err)
	assert.Equal(t, PatternTriangle, a)
	_, err = ParseAnalogPattern("nope")
	assert.True(t, errors.Is(err, errs.ErrArg))
}
