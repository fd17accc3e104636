package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/drivers/demo"
	"github.com/acqkit/acqkit-go/pkg/log"
)

func TestCallbackCountsDemoRun(t *testing.T) {
	c, err := acq.NewContext(acq.WithDriver(demo.New()), acq.WithLogger(log.NoopLogger{}))
	require.NoError(t, err)

	devs, err := c.Scan("demo", config.Options{
		config.KeyNumLogicChannels:  uint64(8),
		config.KeyNumAnalogChannels: uint64(0),
	})
	require.NoError(t, err)
	dev := devs[0]
	require.NoError(t, dev.Open())
	require.NoError(t, dev.ConfigSet(config.KeyLimitSamples, nil, uint64(1000)))

	m := New()
	s, err := c.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.AddDevice(dev))
	require.NoError(t, s.AddDatafeedCallback(m.Callback()))
	require.NoError(t, s.Run())

	device := dev.String()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsTotal.WithLabelValues(device, "header")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsTotal.WithLabelValues(device, "end")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.SamplesTotal.WithLabelValues(device, "logic")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.BytesTotal.WithLabelValues(device, "logic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsActive))
}

func TestActiveGaugeDuringStream(t *testing.T) {
	c, err := acq.NewContext(acq.WithLogger(log.NoopLogger{}))
	require.NoError(t, err)
	dev := c.NewUserDevice("", "counter", "")
	_, err = dev.AddChannel(0, acq.ChannelLogic, "D0")
	require.NoError(t, err)

	m := New()
	s, err := c.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.AddDevice(dev))
	require.NoError(t, s.AddDatafeedCallback(m.Callback()))
	require.NoError(t, s.Start())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsActive))
	require.NoError(t, dev.Send(acq.NewEndPacket()))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsActive))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Wait())
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	assert.NotNil(t, m.Handler())
	assert.NotNil(t, m.Registry())
}
