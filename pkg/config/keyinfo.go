package config

import "strconv"

// DataType describes the value type a key carries.
type DataType uint8

const (
	// TypeUint64 is an unsigned integer value.
	TypeUint64 DataType = iota + 1
	// TypeString is a string value.
	TypeString
	// TypeBool is a boolean value.
	TypeBool
	// TypeFloat64 is a floating point value.
	TypeFloat64
	// TypeKeyList is a list of Keys (meta keys only).
	TypeKeyList
)

// Info holds the static metadata of a key: its machine-readable
// identifier, display name, and value type.
type Info struct {
	Key   Key
	Type  DataType
	Ident string
	Name  string
}

var keyInfo = map[Key]Info{
	KeyLogicAnalyzer:   {KeyLogicAnalyzer, TypeBool, "logic_analyzer", "Logic analyzer"},
	KeyOscilloscope:    {KeyOscilloscope, TypeBool, "oscilloscope", "Oscilloscope"},
	KeyMultimeter:      {KeyMultimeter, TypeBool, "multimeter", "Multimeter"},
	KeyDemoDevice:      {KeyDemoDevice, TypeBool, "demo_dev", "Demo device"},
	KeySoundLevelMeter: {KeySoundLevelMeter, TypeBool, "soundlevelmeter", "Sound level meter"},
	KeyThermometer:     {KeyThermometer, TypeBool, "thermometer", "Thermometer"},
	KeyEnergyMeter:     {KeyEnergyMeter, TypeBool, "energymeter", "Energy meter"},
	KeyPowerSupply:     {KeyPowerSupply, TypeBool, "power_supply", "Power supply"},

	KeyConn:       {KeyConn, TypeString, "conn", "Connection"},
	KeySerialComm: {KeySerialComm, TypeString, "serialcomm", "Serial communication"},

	KeySamplerate:        {KeySamplerate, TypeUint64, "samplerate", "Sample rate"},
	KeyCaptureRatio:      {KeyCaptureRatio, TypeUint64, "captureratio", "Pre-trigger capture ratio"},
	KeyPatternMode:       {KeyPatternMode, TypeString, "pattern", "Pattern"},
	KeyTriggerSource:     {KeyTriggerSource, TypeString, "triggersource", "Trigger source"},
	KeyTriggerSlope:      {KeyTriggerSlope, TypeString, "triggerslope", "Trigger slope"},
	KeyBufferSize:        {KeyBufferSize, TypeUint64, "buffersize", "Buffer size"},
	KeyTimebase:          {KeyTimebase, TypeUint64, "timebase", "Time base"},
	KeyVDiv:              {KeyVDiv, TypeUint64, "vdiv", "Volts/div"},
	KeyCoupling:          {KeyCoupling, TypeString, "coupling", "Coupling"},
	KeyNumLogicChannels:  {KeyNumLogicChannels, TypeUint64, "logic_channels", "Number of logic channels"},
	KeyNumAnalogChannels: {KeyNumAnalogChannels, TypeUint64, "analog_channels", "Number of analog channels"},
	KeyOutputVoltage:     {KeyOutputVoltage, TypeFloat64, "output_voltage", "Current output voltage"},
	KeyOutputVoltageMax:  {KeyOutputVoltageMax, TypeFloat64, "output_voltage_max", "Maximum output voltage"},
	KeyOutputCurrent:     {KeyOutputCurrent, TypeFloat64, "output_current", "Current output current"},
	KeyOutputCurrentMax:  {KeyOutputCurrentMax, TypeFloat64, "output_current_max", "Maximum output current"},
	KeyOutputEnabled:     {KeyOutputEnabled, TypeBool, "output_enabled", "Output enabled"},
	KeyAveraging:         {KeyAveraging, TypeBool, "averaging", "Averaging"},
	KeyAvgSamples:        {KeyAvgSamples, TypeUint64, "avg_samples", "Number of samples to average over"},
	KeyMeasuredQuantity:  {KeyMeasuredQuantity, TypeString, "measured_quantity", "Measured quantity"},
	KeyRange:             {KeyRange, TypeString, "range", "Range"},
	KeyOutputWidth:       {KeyOutputWidth, TypeUint64, "width", "Output width in samples"},

	KeyScanOptions:   {KeyScanOptions, TypeKeyList, "scan_options", "Scan options"},
	KeyDeviceOptions: {KeyDeviceOptions, TypeKeyList, "device_options", "Device options"},

	KeyLimitMsec:    {KeyLimitMsec, TypeUint64, "limit_time", "Time limit"},
	KeyLimitSamples: {KeyLimitSamples, TypeUint64, "limit_samples", "Sample limit"},
	KeyLimitFrames:  {KeyLimitFrames, TypeUint64, "limit_frames", "Frame limit"},
	KeyContinuous:   {KeyContinuous, TypeBool, "continuous", "Continuous sampling"},
}

// KeyInfo returns the metadata for a key.
func KeyInfo(key Key) (Info, bool) {
	info, ok := keyInfo[key]
	return info, ok
}

// KeyByIdent looks a key up by its machine-readable identifier.
func KeyByIdent(ident string) (Info, bool) {
	for _, info := range keyInfo {
		if info.Ident == ident {
			return info, true
		}
	}
	return Info{}, false
}

// String returns the key's identifier, or a numeric form for unknown keys.
func (k Key) String() string {
	if info, ok := keyInfo[k]; ok {
		return info.Ident
	}
	return "key-" + strconv.FormatUint(uint64(k), 10)
}
