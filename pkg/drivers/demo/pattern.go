package demo

import (
	"math"
	"math/rand"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/errs"
)

// LogicPattern selects what the logic channels generate.
type LogicPattern int

const (
	// PatternLogo spells "acqkit" across 8 channels using '0's on a
	// '1' background when rendered with the bits output format.
	PatternLogo LogicPattern = iota
	// PatternRandom puts pseudo-random values on all channels.
	PatternRandom
	// PatternIncremental counts up across 8 channels.
	PatternIncremental
	// PatternAllLow holds all channels low.
	PatternAllLow
	// PatternAllHigh holds all channels high.
	PatternAllHigh
)

var logicPatternNames = []string{"logo", "random", "incremental", "all-low", "all-high"}

// String returns the pattern name.
func (p LogicPattern) String() string {
	if p < 0 || int(p) >= len(logicPatternNames) {
		return "unknown"
	}
	return logicPatternNames[p]
}

// ParseLogicPattern returns the pattern with the given name.
func ParseLogicPattern(name string) (LogicPattern, error) {
	for i, n := range logicPatternNames {
		if n == name {
			return LogicPattern(i), nil
		}
	}
	return 0, errs.Argf("demo.ParseLogicPattern", "unknown logic pattern %q", name)
}

// LogicPatternNames returns the names of all logic patterns.
func LogicPatternNames() []string {
	return append([]string(nil), logicPatternNames...)
}

// AnalogPattern selects the waveform of an analog channel group.
type AnalogPattern int

const (
	PatternSquare AnalogPattern = iota
	PatternSine
	PatternTriangle
	PatternSawtooth
)

var analogPatternNames = []string{"square", "sine", "triangle", "sawtooth"}

// String returns the pattern name.
func (p AnalogPattern) String() string {
	if p < 0 || int(p) >= len(analogPatternNames) {
		return "unknown"
	}
	return analogPatternNames[p]
}

// ParseAnalogPattern returns the pattern with the given name.
func ParseAnalogPattern(name string) (AnalogPattern, error) {
	for i, n := range analogPatternNames {
		if n == name {
			return AnalogPattern(i), nil
		}
	}
	return 0, errs.Argf("demo.ParseAnalogPattern", "unknown analog pattern %q", name)
}

// AnalogPatternNames returns the names of all analog patterns.
func AnalogPatternNames() []string {
	return append([]string(nil), analogPatternNames...)
}

// patternLogo is the logo bitmap, one byte per time step, repeated
// shifted right by one bit.
var patternLogo = []uint8{
	0xfc, 0x12, 0x12, 0x12, 0xfc, 0x00, 0x00, 0x00,
	0x7c, 0x82, 0x82, 0x82, 0x44, 0x00, 0x00, 0x00,
	0x7c, 0x82, 0xa2, 0x42, 0xbc, 0x00, 0x00, 0x00,
	0xfe, 0x10, 0x28, 0x44, 0x82, 0x00, 0x00, 0x00,
	0x82, 0xfe, 0xfe, 0x82, 0x00, 0x00, 0x00, 0x00,
	0x02, 0x02, 0xfe, 0x02, 0x02, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xbe, 0xbe, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// generateLogic produces n samples of the current logic pattern,
// unitSize bytes per sample, advancing the generator state.
func (st *state) generateLogic(n int) []byte {
	st.mu.Lock()
	defer st.mu.Unlock()

	buf := make([]byte, n*st.unitSize)
	switch st.logicPattern {
	case PatternLogo:
		for i := 0; i < n; i++ {
			for j := 0; j < st.unitSize; j++ {
				pat := patternLogo[(int(st.counter)+i+j)%len(patternLogo)] >> 1
				buf[i*st.unitSize+j] = ^pat
			}
		}
		st.counter = uint8((int(st.counter) + n) % len(patternLogo))
	case PatternRandom:
		rand.Read(buf)
	case PatternIncremental:
		for i := 0; i < n; i++ {
			for j := 0; j < st.unitSize; j++ {
				buf[i*st.unitSize+j] = st.counter
			}
			st.counter++
		}
	case PatternAllLow:
		// Zeroed already.
	case PatternAllHigh:
		for i := range buf {
			buf[i] = 0xff
		}
	}
	return buf
}

const (
	analogAmplitude        = 25
	analogSamplesPerPeriod = 20
)

// generate produces n samples of the group's waveform, advancing the
// phase, and reports how the samples are to be labeled.
func (as *analogState) generate(n int) ([]float32, acq.Quantity, acq.Unit, acq.Flag) {
	as.mu.Lock()
	defer as.mu.Unlock()

	data := make([]float32, n)
	step := 2 * math.Pi / analogSamplesPerPeriod
	for i := 0; i < n; i++ {
		t := as.phase
		var v float64
		switch as.pattern {
		case PatternSquare:
			if math.Sin(t) >= 0 {
				v = as.amplitude
			} else {
				v = -as.amplitude
			}
		case PatternSine:
			v = as.amplitude * math.Sin(t)
		case PatternTriangle:
			v = 2 * as.amplitude / math.Pi * math.Asin(math.Sin(t))
		case PatternSawtooth:
			v = 2 * as.amplitude * (t/(2*math.Pi) - math.Floor(0.5+t/(2*math.Pi)))
		}
		data[i] = float32(v)
		as.phase += step
		if as.phase >= 2*math.Pi*analogSamplesPerPeriod {
			as.phase -= 2 * math.Pi * analogSamplesPerPeriod
		}
	}
	return data, acq.QuantityVoltage, acq.UnitVolt, acq.FlagDC
}
