// Package config defines the uniform configuration protocol shared by
// devices, channel groups and drivers: opaque keys, value types, and the
// capability sets (Get/Set/List) an object may support per key.
//
// The key space is deliberately flat and driver-agnostic; the same
// Get/Set/List operations configure "samples per second" on a logic
// analyzer and "current limit" on a power supply. What a key means for a
// particular instrument is the driver's business.
package config

// Key identifies one configurable setting.
type Key uint32

// Device class keys. Drivers report the classes they implement through
// the device-options list.
const (
	KeyLogicAnalyzer  Key = 10000
	KeyOscilloscope   Key = 10001
	KeyMultimeter     Key = 10002
	KeyDemoDevice     Key = 10003
	KeySoundLevelMeter Key = 10004
	KeyThermometer    Key = 10005
	KeyEnergyMeter    Key = 10006
	KeyPowerSupply    Key = 10007
)

// Scan option keys, used in driver scan options.
const (
	// KeyConn is a connection string (e.g. "tcp/host/port", a serial
	// port, or a USB address).
	KeyConn Key = 20000

	// KeySerialComm holds serial parameters like "9600/8n1".
	KeySerialComm Key = 20001
)

// Acquisition and hardware keys.
const (
	KeySamplerate        Key = 30000
	KeyCaptureRatio      Key = 30001
	KeyPatternMode       Key = 30002
	KeyTriggerSource     Key = 30003
	KeyTriggerSlope      Key = 30004
	KeyBufferSize        Key = 30005
	KeyTimebase          Key = 30006
	KeyVDiv              Key = 30007
	KeyCoupling          Key = 30008
	KeyNumLogicChannels  Key = 30009
	KeyNumAnalogChannels Key = 30010
	KeyOutputVoltage     Key = 30011
	KeyOutputVoltageMax  Key = 30012
	KeyOutputCurrent     Key = 30013
	KeyOutputCurrentMax  Key = 30014
	KeyOutputEnabled     Key = 30015
	KeyAveraging         Key = 30016
	KeyAvgSamples        Key = 30017
	KeyMeasuredQuantity  Key = 30018
	KeyRange             Key = 30019
	KeyOutputWidth       Key = 30020
)

// Meta keys, answered by the runtime or driver about itself.
const (
	// KeyScanOptions lists the keys a driver accepts in scan options.
	KeyScanOptions Key = 40000

	// KeyDeviceOptions lists the keys a device or channel group exposes.
	KeyDeviceOptions Key = 40001
)

// Acquisition limit keys.
const (
	// KeyLimitMsec stops acquisition after the given number of
	// milliseconds.
	KeyLimitMsec Key = 50000

	// KeyLimitSamples stops acquisition after the given number of
	// samples.
	KeyLimitSamples Key = 50001

	// KeyLimitFrames stops acquisition after the given number of
	// frames.
	KeyLimitFrames Key = 50002

	// KeyContinuous reports whether the device supports continuous
	// sampling.
	KeyContinuous Key = 50003
)

// Capability is the bitmask of operations an object supports for a key.
type Capability uint8

const (
	// CapGet means the key can be read.
	CapGet Capability = 1 << iota
	// CapSet means the key can be written.
	CapSet
	// CapList means the key's legal values can be enumerated.
	CapList
)

// Has reports whether c includes all bits of want.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// String returns the capability set like "get|set|list".
func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if c.Has(CapGet) {
		add("get")
	}
	if c.Has(CapSet) {
		add("set")
	}
	if c.Has(CapList) {
		add("list")
	}
	return s
}

// KeyCap pairs a key with the capabilities an object supports for it.
// Listing KeyDeviceOptions yields a []KeyCap describing the object's
// whole configuration surface.
type KeyCap struct {
	Key Key
	Cap Capability
}

// Options is a set of key/value pairs, used for scan options and
// format/input options.
type Options map[Key]any

// Uint64 returns the uint64 value for key, or def when absent. Values
// stored as int are converted.
func (o Options) Uint64(key Key, def uint64) uint64 {
	v, ok := o[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case uint64:
		return n
	case int:
		if n < 0 {
			return def
		}
		return uint64(n)
	case int64:
		if n < 0 {
			return def
		}
		return uint64(n)
	}
	return def
}

// String returns the string value for key, or def when absent.
func (o Options) String(key Key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

// Uint64Range describes a bounded, stepped range of legal uint64 values,
// as returned by List for range-bounded keys. Step of zero means the
// range is continuous.
type Uint64Range struct {
	Min  uint64
	Max  uint64
	Step uint64
}

// Contains reports whether v lies in the range, honoring the step.
func (r Uint64Range) Contains(v uint64) bool {
	if v < r.Min || v > r.Max {
		return false
	}
	if r.Step == 0 {
		return true
	}
	return (v-r.Min)%r.Step == 0
}

// Float64Range describes a bounded range of legal float64 values.
type Float64Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in the range.
func (r Float64Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}
