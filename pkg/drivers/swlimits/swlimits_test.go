package swlimits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acqkit/acqkit-go/pkg/config"
)

func TestSampleLimit(t *testing.T) {
	var l Limits
	require.NoError(t, l.ConfigSet(config.KeyLimitSamples, uint64(100)))

	l.Start()
	assert.False(t, l.Reached())
	assert.Equal(t, uint64(64), l.Remaining(64))

	l.AddSamples(64)
	assert.False(t, l.Reached())
	assert.Equal(t, uint64(36), l.Remaining(64))

	l.AddSamples(36)
	assert.True(t, l.Reached())
	assert.Equal(t, uint64(0), l.Remaining(64))
}

func TestNoLimitIsUnbounded(t *testing.T) {
	var l Limits
	l.Start()
	l.AddSamples(1 << 40)
	assert.False(t, l.Reached())
	assert.Equal(t, uint64(1024), l.Remaining(1024))
}

func TestMsecLimit(t *testing.T) {
	var l Limits
	require.NoError(t, l.ConfigSet(config.KeyLimitMsec, uint64(1)))
	l.Start()
	time.Sleep(5 * time.Millisecond)
	assert.True(t, l.Reached())
}

func TestFrameLimit(t *testing.T) {
	var l Limits
	require.NoError(t, l.ConfigSet(config.KeyLimitFrames, 2))
	l.Start()
	l.AddFrames(1)
	assert.False(t, l.Reached())
	l.AddFrames(1)
	assert.True(t, l.Reached())
}

func TestConfigRoundtrip(t *testing.T) {
	var l Limits
	require.NoError(t, l.ConfigSet(config.KeyLimitSamples, 500))

	v, err := l.ConfigGet(config.KeyLimitSamples)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), v)

	_, err = l.ConfigGet(config.KeySamplerate)
	assert.Error(t, err)
	assert.Error(t, l.ConfigSet(config.KeySamplerate, 1))
	assert.Error(t, l.ConfigSet(config.KeyLimitSamples, -1))
}

func TestStartResets(t *testing.T) {
	var l Limits
	require.NoError(t, l.ConfigSet(config.KeyLimitSamples, uint64(10)))
	l.Start()
	l.AddSamples(10)
	assert.True(t, l.Reached())

	l.Start()
	assert.False(t, l.Reached())
}
