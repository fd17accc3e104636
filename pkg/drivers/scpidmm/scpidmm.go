// Package scpidmm drives SCPI multimeters over raw TCP. Meters are
// addressed with a "tcp/host/port" connection string or found via
// DNS-SD browsing for _scpi-raw._tcp when no connection is given.
package scpidmm

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/drivers/swlimits"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/log"
)

// Driver implements acq.Driver for SCPI multimeters.
type Driver struct {
	ctx *acq.Context
}

var _ acq.Driver = (*Driver)(nil)

// New returns the driver.
func New() *Driver { return &Driver{} }

// Name implements acq.Driver.
func (d *Driver) Name() string { return "scpi-dmm" }

// LongName implements acq.Driver.
func (d *Driver) LongName() string { return "SCPI multimeter" }

// Init implements acq.Driver.
func (d *Driver) Init(c *acq.Context) error {
	d.ctx = c
	return nil
}

// Cleanup implements acq.Driver.
func (d *Driver) Cleanup() { d.ctx = nil }

func (d *Driver) logf(level log.Level, format string, args ...any) {
	if d.ctx != nil {
		d.ctx.Logf(level, "scpi-dmm: "+format, args...)
	}
}

// state is the per-device driver data.
type state struct {
	resource string
	addr     string
	conn     *scpiConn
	channel  *acq.Channel
	limits   swlimits.Limits
	stopped  atomic.Bool
}

func stateOf(dev *acq.Device) *state {
	st, _ := dev.DriverData().(*state)
	return st
}

// Scan probes the meter named by the conn scan option, or browses mDNS
// for instruments when none is given. Each reachable meter that answers
// *IDN? becomes one device with a single analog channel.
func (d *Driver) Scan(c *acq.Context, opts config.Options) ([]*acq.Device, error) {
	resources := []string{}
	if res := opts.String(config.KeyConn, ""); res != "" {
		resources = append(resources, res)
	} else {
		found, err := discover(context.Background())
		if err != nil {
			return nil, err
		}
		resources = found
	}

	var devices []*acq.Device
	for _, res := range resources {
		dev, err := d.probe(res)
		if err != nil {
			d.logf(log.LevelInfo, "no meter at %s: %v", res, err)
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// probe connects to one resource, identifies the instrument and builds
// its device. The probe connection is closed again; DevOpen dials its
// own.
func (d *Driver) probe(res string) (*acq.Device, error) {
	addr, err := parseResource(res)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := dialSCPI(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	idn, err := conn.Query(ctx, "*IDN?")
	if err != nil {
		return nil, err
	}
	vendor, model, version := parseIDN(idn)
	d.logf(log.LevelDebug, "found %s %s at %s", vendor, model, addr)

	dev := acq.NewDevice(vendor, model, version)
	ch, err := dev.AddChannel(0, acq.ChannelAnalog, "P1")
	if err != nil {
		return nil, err
	}
	dev.SetDriverData(&state{resource: res, addr: addr, channel: ch})
	return dev, nil
}

// parseIDN splits the usual "vendor,model,serial,version" response.
// Meters that answer fewer fields get the raw string as the model.
func parseIDN(idn string) (vendor, model, version string) {
	fields := strings.Split(idn, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 2 {
		return "", idn, ""
	}
	vendor, model = fields[0], fields[1]
	if len(fields) >= 4 {
		version = fields[3]
	}
	return vendor, model, version
}

// DevOpen implements acq.Driver.
func (d *Driver) DevOpen(dev *acq.Device) error {
	st := stateOf(dev)
	if st == nil {
		return errs.Bugf("scpidmm.DevOpen", "device has no driver state")
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := dialSCPI(ctx, st.addr)
	if err != nil {
		return err
	}
	st.conn = conn
	return nil
}

// DevClose implements acq.Driver.
func (d *Driver) DevClose(dev *acq.Device) error {
	st := stateOf(dev)
	if st == nil || st.conn == nil {
		return nil
	}
	err := st.conn.Close()
	st.conn = nil
	return err
}

// ConfigGet implements acq.Driver.
func (d *Driver) ConfigGet(key config.Key, dev *acq.Device, group *acq.ChannelGroup) (any, error) {
	const op = "scpidmm.ConfigGet"
	if dev == nil {
		return nil, errs.Newf(errs.NotSupported, op, "key %s on driver", key)
	}
	st := stateOf(dev)
	switch key {
	case config.KeyConn:
		return st.resource, nil
	case config.KeyLimitSamples, config.KeyLimitMsec:
		return st.limits.ConfigGet(key)
	case config.KeyContinuous:
		return true, nil
	default:
		return nil, errs.Newf(errs.NotSupported, op, "key %s", key)
	}
}

// ConfigSet implements acq.Driver.
func (d *Driver) ConfigSet(key config.Key, value any, dev *acq.Device, group *acq.ChannelGroup) error {
	const op = "scpidmm.ConfigSet"
	if dev == nil {
		return errs.Newf(errs.NotSupported, op, "key %s on driver", key)
	}
	st := stateOf(dev)
	switch key {
	case config.KeyLimitSamples, config.KeyLimitMsec:
		return st.limits.ConfigSet(key, value)
	default:
		return errs.Newf(errs.NotSupported, op, "key %s", key)
	}
}

// ConfigList implements acq.Driver.
func (d *Driver) ConfigList(key config.Key, dev *acq.Device, group *acq.ChannelGroup) (any, error) {
	const op = "scpidmm.ConfigList"
	switch key {
	case config.KeyScanOptions:
		return []config.Key{config.KeyConn}, nil
	case config.KeyDeviceOptions:
		return []config.KeyCap{
			{Key: config.KeyConn, Cap: config.CapGet},
			{Key: config.KeyLimitSamples, Cap: config.CapGet | config.CapSet},
			{Key: config.KeyLimitMsec, Cap: config.CapGet | config.CapSet},
			{Key: config.KeyContinuous, Cap: config.CapGet},
		}, nil
	default:
		return nil, errs.Newf(errs.NotSupported, op, "key %s", key)
	}
}

// AcquisitionStart implements acq.Driver. The source polls READ? until
// a limit is reached or the session stops it. The measurement function
// is read once at start via CONF?.
func (d *Driver) AcquisitionStart(dev *acq.Device) error {
	st := stateOf(dev)
	if st == nil || st.conn == nil {
		return errs.Bugf("scpidmm.AcquisitionStart", "device not open")
	}
	st.stopped.Store(false)
	st.limits.Start()

	mq, unit, flags := defaultFunction()
	if conf, err := st.conn.Query(context.Background(), "CONF?"); err == nil {
		mq, unit, flags = parseCONF(conf)
	}

	return dev.Session().AddSource(dev, acq.SourceFunc(func(ctx context.Context) error {
		if err := dev.Send(acq.NewHeaderPacket(time.Now())); err != nil {
			return err
		}
		for !st.stopped.Load() && !st.limits.Reached() {
			select {
			case <-ctx.Done():
				return dev.Send(acq.NewEndPacket())
			default:
			}
			reading, err := st.conn.Query(ctx, "READ?")
			if err != nil {
				if st.stopped.Load() || ctx.Err() != nil {
					break
				}
				d.logf(log.LevelError, "read failed: %v", err)
				_ = dev.Send(acq.NewEndPacket())
				return err
			}
			value, digits, err := parseReading(reading)
			if err != nil {
				d.logf(log.LevelWarn, "discarding reading %q: %v", reading, err)
				continue
			}
			pkt, err := acq.NewAnalogPacket([]*acq.Channel{st.channel}, []float32{value}, mq, unit, flags)
			if err != nil {
				return err
			}
			pkt.Payload().(*acq.AnalogPayload).SetDigits(digits)
			if err := dev.Send(pkt); err != nil {
				return err
			}
			st.limits.AddSamples(1)
		}
		return dev.Send(acq.NewEndPacket())
	}))
}

// AcquisitionStop implements acq.Driver. The poll loop notices the
// flag on its next iteration; an in-flight READ? is cut short by the
// query deadline.
func (d *Driver) AcquisitionStop(dev *acq.Device) error {
	st := stateOf(dev)
	if st != nil {
		st.stopped.Store(true)
	}
	return nil
}

// defaultFunction is the fallback measurement function for meters
// whose CONF? response is unrecognized.
func defaultFunction() (acq.Quantity, acq.Unit, acq.Flag) {
	return acq.QuantityVoltage, acq.UnitVolt, acq.FlagDC
}

// parseCONF maps a CONF? response like `"VOLT +1.00000000E+01,..."` to
// the quantity, unit and flags of the configured measurement function.
func parseCONF(conf string) (acq.Quantity, acq.Unit, acq.Flag) {
	fn := strings.Trim(conf, "\"")
	if i := strings.IndexAny(fn, " ,"); i >= 0 {
		fn = fn[:i]
	}
	switch strings.ToUpper(fn) {
	case "VOLT", "VOLT:DC":
		return acq.QuantityVoltage, acq.UnitVolt, acq.FlagDC
	case "VOLT:AC":
		return acq.QuantityVoltage, acq.UnitVolt, acq.FlagAC | acq.FlagRMS
	case "CURR", "CURR:DC":
		return acq.QuantityCurrent, acq.UnitAmpere, acq.FlagDC
	case "CURR:AC":
		return acq.QuantityCurrent, acq.UnitAmpere, acq.FlagAC | acq.FlagRMS
	case "RES":
		return acq.QuantityResistance, acq.UnitOhm, 0
	case "FRES":
		return acq.QuantityResistance, acq.UnitOhm, acq.FlagFourWire
	case "CAP":
		return acq.QuantityCapacitance, acq.UnitFarad, 0
	case "FREQ":
		return acq.QuantityFrequency, acq.UnitHertz, 0
	case "TEMP":
		return acq.QuantityTemperature, acq.UnitCelsius, 0
	case "DIOD":
		return acq.QuantityVoltage, acq.UnitVolt, acq.FlagDiode
	case "CONT":
		return acq.QuantityContinuity, acq.UnitBoolean, 0
	default:
		return defaultFunction()
	}
}

// parseReading converts a meter response like "+1.23450000E+00" and
// derives the number of significant decimal digits from the mantissa.
func parseReading(s string) (float32, int, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, 0, errs.Wrap(errs.DataInvalid, "scpidmm.parseReading", err)
	}
	digits := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		for _, r := range s[i+1:] {
			if r < '0' || r > '9' {
				break
			}
			digits++
		}
	}
	return float32(v), digits, nil
}
