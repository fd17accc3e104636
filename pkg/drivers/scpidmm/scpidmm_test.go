package scpidmm

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/log"
)

// fakeMeter is a minimal raw-SCPI instrument on a loopback TCP port.
type fakeMeter struct {
	ln net.Listener

	mu       sync.Mutex
	idn      string
	conf     string
	readings []string
	next     int
	queries  []string
}

func newFakeMeter(t *testing.T) *fakeMeter {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	m := &fakeMeter{
		ln:   ln,
		idn:  "Keysight Technologies,34465A,MY12345678,A.03.02",
		conf: `"VOLT +1.00000000E+01,+1.00000000E-06"`,
	}
	go m.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return m
}

func (m *fakeMeter) serve() {
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}
		go m.handle(conn)
	}
}

func (m *fakeMeter) handle(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		m.mu.Lock()
		m.queries = append(m.queries, cmd)
		var resp string
		switch cmd {
		case "*IDN?":
			resp = m.idn
		case "CONF?":
			resp = m.conf
		case "READ?":
			if m.next < len(m.readings) {
				resp = m.readings[m.next]
				m.next++
			} else {
				resp = "+0.00000000E+00"
			}
		}
		m.mu.Unlock()
		if resp != "" {
			if _, err := conn.Write([]byte(resp + "\n")); err != nil {
				return
			}
		}
	}
}

func (m *fakeMeter) resource() string {
	addr := m.ln.Addr().(*net.TCPAddr)
	return fmt.Sprintf("tcp/%s/%d", addr.IP, addr.Port)
}

func newTestContext(t *testing.T) *acq.Context {
	t.Helper()
	c, err := acq.NewContext(acq.WithDriver(New()), acq.WithLogger(log.NoopLogger{}))
	require.NoError(t, err)
	return c
}

func scanMeter(t *testing.T, c *acq.Context, m *fakeMeter) *acq.Device {
	t.Helper()
	devs, err := c.Scan("scpi-dmm", config.Options{config.KeyConn: m.resource()})
	require.NoError(t, err)
	require.Len(t, devs, 1)
	return devs[0]
}

func TestScanIdentifiesMeter(t *testing.T) {
	m := newFakeMeter(t)
	c := newTestContext(t)
	dev := scanMeter(t, c, m)

	assert.Equal(t, "Keysight Technologies", dev.Vendor())
	assert.Equal(t, "34465A", dev.Model())
	assert.Equal(t, "A.03.02", dev.Version())
	require.Len(t, dev.Channels(), 1)
	assert.Equal(t, "P1", dev.Channels()[0].Name())
	assert.Equal(t, acq.ChannelAnalog, dev.Channels()[0].Type())

	res, err := dev.ConfigGet(config.KeyConn, nil)
	require.NoError(t, err)
	assert.Equal(t, m.resource(), res)
}

func TestScanUnreachableHostYieldsNoDevices(t *testing.T) {
	m := newFakeMeter(t)
	res := m.resource()
	require.NoError(t, m.ln.Close())

	c := newTestContext(t)
	devs, err := c.Scan("scpi-dmm", config.Options{config.KeyConn: res})
	require.NoError(t, err)
	assert.Empty(t, devs)
}

func TestAcquisitionPollsReadings(t *testing.T) {
	m := newFakeMeter(t)
	m.mu.Lock()
	m.readings = []string{"+1.50000000E+00", "-2.50000000E-01", "+3.00000000E+00"}
	m.mu.Unlock()

	c := newTestContext(t)
	dev := scanMeter(t, c, m)
	require.NoError(t, dev.Open())
	require.NoError(t, dev.ConfigSet(config.KeyLimitSamples, nil, uint64(3)))

	s, err := c.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.AddDevice(dev))

	var (
		mu     sync.Mutex
		types  []acq.PacketType
		values []float32
	)
	require.NoError(t, s.AddDatafeedCallback(func(_ *acq.Device, pkt *acq.Packet) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, pkt.Type())
		if pkt.Type() == acq.PacketAnalog {
			p := pkt.Payload().(*acq.AnalogPayload)
			values = append(values, p.Sample(0, 0))
			assert.Equal(t, acq.QuantityVoltage, p.Quantity())
			assert.Equal(t, acq.UnitVolt, p.Unit())
			assert.True(t, p.Flags().Has(acq.FlagDC))
		}
	}))
	require.NoError(t, s.Run())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []acq.PacketType{
		acq.PacketHeader, acq.PacketAnalog, acq.PacketAnalog, acq.PacketAnalog, acq.PacketEnd,
	}, types)
	assert.Equal(t, []float32{1.5, -0.25, 3.0}, values)
}

func TestAcquisitionACFunction(t *testing.T) {
	m := newFakeMeter(t)
	m.mu.Lock()
	m.conf = `"VOLT:AC +1.00000000E+01,+1.00000000E-06"`
	m.readings = []string{"+2.30000000E+02"}
	m.mu.Unlock()

	c := newTestContext(t)
	dev := scanMeter(t, c, m)
	require.NoError(t, dev.Open())
	require.NoError(t, dev.ConfigSet(config.KeyLimitSamples, nil, uint64(1)))

	s, err := c.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.AddDevice(dev))

	var flags acq.Flag
	require.NoError(t, s.AddDatafeedCallback(func(_ *acq.Device, pkt *acq.Packet) {
		if pkt.Type() == acq.PacketAnalog {
			flags = pkt.Payload().(*acq.AnalogPayload).Flags()
		}
	}))
	require.NoError(t, s.Run())

	assert.True(t, flags.Has(acq.FlagAC))
	assert.True(t, flags.Has(acq.FlagRMS))
}

func TestConfigSurface(t *testing.T) {
	m := newFakeMeter(t)
	c := newTestContext(t)
	dev := scanMeter(t, c, m)

	opts, err := c.ScanOptions("scpi-dmm")
	require.NoError(t, err)
	assert.Equal(t, []config.Key{config.KeyConn}, opts)

	keys, err := dev.ConfigKeys(nil)
	require.NoError(t, err)
	assert.Contains(t, keys, config.KeyLimitSamples)
	assert.Contains(t, keys, config.KeyConn)

	cont, err := dev.ConfigGet(config.KeyContinuous, nil)
	require.NoError(t, err)
	assert.Equal(t, true, cont)
}

func TestParseIDN(t *testing.T) {
	tests := []struct {
		idn                     string
		vendor, model, version string
	}{
		{"Keysight Technologies,34465A,MY12345678,A.03.02", "Keysight Technologies", "34465A", "A.03.02"},
		{"HP,34401A", "HP", "34401A", ""},
		{"weird meter", "", "weird meter", ""},
	}
	for _, tt := range tests {
		vendor, model, version := parseIDN(tt.idn)
		assert.Equal(t, tt.vendor, vendor, tt.idn)
		assert.Equal(t, tt.model, model, tt.idn)
		assert.Equal(t, tt.version, version, tt.idn)
	}
}

func TestParseCONF(t *testing.T) {
	mq, unit, flags := parseCONF(`"FRES +1.00000000E+02,+1.00000000E-02"`)
	assert.Equal(t, acq.QuantityResistance, mq)
	assert.Equal(t, acq.UnitOhm, unit)
	assert.True(t, flags.Has(acq.FlagFourWire))

	mq, _, _ = parseCONF("garbage")
	assert.Equal(t, acq.QuantityVoltage, mq)
}

func TestParseReading(t *testing.T) {
	v, digits, err := parseReading("+1.23450000E+00")
	require.NoError(t, err)
	assert.InDelta(t, 1.2345, v, 1e-6)
	assert.Equal(t, 8, digits)

	_, _, err = parseReading("not a number")
	require.Error(t, err)
}

func TestParseResource(t *testing.T) {
	addr, err := parseResource("tcp/192.168.1.5/5025")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.5:5025", addr)

	_, err = parseResource("usb/1/2")
	require.Error(t, err)
	_, err = parseResource("tcp/host")
	require.Error(t, err)
}
