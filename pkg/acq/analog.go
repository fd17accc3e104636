package acq

import "strings"

// Quantity is the measured quantity carried by an analog payload.
type Quantity uint32

const (
	QuantityVoltage Quantity = 10000 + iota
	QuantityCurrent
	QuantityResistance
	QuantityCapacitance
	QuantityTemperature
	QuantityFrequency
	QuantityDutyCycle
	QuantityContinuity
	QuantityPulseWidth
	QuantityConductance
	QuantityPower
	QuantityGain
	QuantitySoundPressureLevel
	QuantityCarbonMonoxide
	QuantityRelativeHumidity
	QuantityTime
	QuantityWindSpeed
	QuantityPressure
	QuantityParallelInductance
	QuantityParallelCapacitance
	QuantityParallelResistance
	QuantitySeriesInductance
	QuantitySeriesCapacitance
	QuantitySeriesResistance
	QuantityDissipationFactor
	QuantityQualityFactor
	QuantityPhaseAngle
	QuantityDifference
	QuantityCount
	QuantityPowerFactor
	QuantityApparentPower
	QuantityMass
	QuantityHarmonicRatio
	QuantityEnergy
	QuantityElectricCharge
)

// String returns a short name for the quantity.
func (q Quantity) String() string {
	switch q {
	case QuantityVoltage:
		return "voltage"
	case QuantityCurrent:
		return "current"
	case QuantityResistance:
		return "resistance"
	case QuantityCapacitance:
		return "capacitance"
	case QuantityTemperature:
		return "temperature"
	case QuantityFrequency:
		return "frequency"
	case QuantityDutyCycle:
		return "duty cycle"
	case QuantityContinuity:
		return "continuity"
	case QuantityPulseWidth:
		return "pulse width"
	case QuantityConductance:
		return "conductance"
	case QuantityPower:
		return "power"
	case QuantityGain:
		return "gain"
	case QuantitySoundPressureLevel:
		return "sound pressure level"
	case QuantityCarbonMonoxide:
		return "carbon monoxide"
	case QuantityRelativeHumidity:
		return "relative humidity"
	case QuantityTime:
		return "time"
	case QuantityWindSpeed:
		return "wind speed"
	case QuantityPressure:
		return "pressure"
	case QuantityPhaseAngle:
		return "phase angle"
	case QuantityCount:
		return "count"
	case QuantityPowerFactor:
		return "power factor"
	case QuantityApparentPower:
		return "apparent power"
	case QuantityMass:
		return "mass"
	case QuantityEnergy:
		return "energy"
	case QuantityElectricCharge:
		return "electric charge"
	default:
		return "quantity"
	}
}

// Unit is the unit an analog payload's values are expressed in.
type Unit uint32

const (
	UnitVolt Unit = 10000 + iota
	UnitAmpere
	UnitOhm
	UnitFarad
	UnitKelvin
	UnitCelsius
	UnitFahrenheit
	UnitHertz
	UnitPercentage
	UnitBoolean
	UnitSecond
	UnitSiemens
	UnitDecibelMW
	UnitDecibelVolt
	UnitUnitless
	UnitDecibelSPL
	UnitConcentration
	UnitRevolutionsPerMinute
	UnitVoltAmpere
	UnitWatt
	UnitWattHour
	UnitMeterPerSecond
	UnitHectopascal
	UnitHumidity293K
	UnitDegree
	UnitHenry
	UnitGram
	UnitCarat
	UnitOunce
	UnitTroyOunce
	UnitPound
	UnitPennyweight
	UnitGrain
	UnitTael
	UnitMomme
	UnitTola
	UnitPiece
	UnitJoule
	UnitCoulomb
	UnitAmpereHour
)

// String returns the conventional symbol for the unit.
func (u Unit) String() string {
	switch u {
	case UnitVolt:
		return "V"
	case UnitAmpere:
		return "A"
	case UnitOhm:
		return "ohm"
	case UnitFarad:
		return "F"
	case UnitKelvin:
		return "K"
	case UnitCelsius:
		return "deg C"
	case UnitFahrenheit:
		return "deg F"
	case UnitHertz:
		return "Hz"
	case UnitPercentage:
		return "%"
	case UnitBoolean:
		return "bool"
	case UnitSecond:
		return "s"
	case UnitSiemens:
		return "S"
	case UnitDecibelMW:
		return "dBm"
	case UnitDecibelVolt:
		return "dBV"
	case UnitUnitless:
		return ""
	case UnitDecibelSPL:
		return "dB SPL"
	case UnitConcentration:
		return "ppm"
	case UnitRevolutionsPerMinute:
		return "rpm"
	case UnitVoltAmpere:
		return "VA"
	case UnitWatt:
		return "W"
	case UnitWattHour:
		return "Wh"
	case UnitMeterPerSecond:
		return "m/s"
	case UnitHectopascal:
		return "hPa"
	case UnitDegree:
		return "deg"
	case UnitHenry:
		return "H"
	case UnitGram:
		return "g"
	case UnitJoule:
		return "J"
	case UnitCoulomb:
		return "C"
	case UnitAmpereHour:
		return "Ah"
	default:
		return "?"
	}
}

// Flag qualifies how an analog value was measured.
type Flag uint64

const (
	FlagAC Flag = 1 << iota
	FlagDC
	FlagRMS
	FlagDiode
	FlagHold
	FlagMax
	FlagMin
	FlagAutorange
	FlagRelative
	FlagSPLFreqWeightA
	FlagSPLFreqWeightC
	FlagSPLFreqWeightZ
	FlagSPLFreqWeightFlat
	FlagSPLTimeWeightS
	FlagSPLTimeWeightF
	FlagSPLLAT
	FlagSPLPctOverAlarm
	FlagDuration
	FlagAvg
	FlagReference
	FlagUnstable
	FlagFourWire
)

// Has reports whether f includes all bits of want.
func (f Flag) Has(want Flag) bool {
	return f&want == want
}

// String returns the set flags as a space-separated list.
func (f Flag) String() string {
	names := []struct {
		bit  Flag
		name string
	}{
		{FlagAC, "AC"},
		{FlagDC, "DC"},
		{FlagRMS, "RMS"},
		{FlagDiode, "diode"},
		{FlagHold, "hold"},
		{FlagMax, "max"},
		{FlagMin, "min"},
		{FlagAutorange, "auto"},
		{FlagRelative, "rel"},
		{FlagDuration, "duration"},
		{FlagAvg, "avg"},
		{FlagReference, "ref"},
		{FlagUnstable, "unstable"},
		{FlagFourWire, "4-wire"},
	}
	var parts []string
	for _, n := range names {
		if f.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}
