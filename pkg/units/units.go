// Package units formats and parses sample rates and periods for display,
// e.g. 200000 -> "200 kHz" and "1.5m" -> 1500000.
package units

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/acqkit/acqkit-go/pkg/errs"
)

const (
	kilo = uint64(1000)
	mega = kilo * 1000
	giga = mega * 1000
)

// FormatSamplerate renders a rate in Hz with the largest suffix that
// divides it evenly, e.g. "200 kHz", "1 MHz", "1234 Hz".
func FormatSamplerate(rate uint64) string {
	switch {
	case rate >= giga && rate%giga == 0:
		return fmt.Sprintf("%d GHz", rate/giga)
	case rate >= mega && rate%mega == 0:
		return fmt.Sprintf("%d MHz", rate/mega)
	case rate >= kilo && rate%kilo == 0:
		return fmt.Sprintf("%d kHz", rate/kilo)
	default:
		return fmt.Sprintf("%d Hz", rate)
	}
}

// ParseSamplerate parses forms like "200k", "1.5M", "10g", "1000",
// optionally suffixed with "Hz" and with spaces between number and
// suffix, into a rate in Hz.
func ParseSamplerate(s string) (uint64, error) {
	const op = "units.ParseSamplerate"

	t := strings.TrimSpace(s)
	t = strings.TrimSuffix(t, "Hz")
	t = strings.TrimSuffix(t, "hz")
	t = strings.TrimSpace(t)
	if t == "" {
		return 0, errs.Argf(op, "empty sample rate %q", s)
	}

	mult := uint64(1)
	switch t[len(t)-1] {
	case 'k', 'K':
		mult = kilo
		t = t[:len(t)-1]
	case 'm', 'M':
		mult = mega
		t = t[:len(t)-1]
	case 'g', 'G':
		mult = giga
		t = t[:len(t)-1]
	}
	t = strings.TrimSpace(t)

	if !strings.Contains(t, ".") {
		n, err := strconv.ParseUint(t, 10, 64)
		if err != nil {
			return 0, errs.Argf(op, "cannot parse %q", s)
		}
		return n * mult, nil
	}

	f, err := strconv.ParseFloat(t, 64)
	if err != nil || f < 0 {
		return 0, errs.Argf(op, "cannot parse %q", s)
	}
	rate := f * float64(mult)
	if rate != float64(uint64(rate)) {
		return 0, errs.Argf(op, "%q is not a whole number of Hz", s)
	}
	return uint64(rate), nil
}

// FormatPeriod renders a duration given as numerator samples over a rate
// denominator in Hz, choosing ns/us/ms/s, e.g. FormatPeriod(5, 1000) is
// "5 ms".
func FormatPeriod(samples, rate uint64) string {
	if rate == 0 {
		return "0 s"
	}
	ns := float64(samples) / float64(rate) * 1e9
	switch {
	case ns < 1000:
		return trimUnit(ns, "ns")
	case ns < 1e6:
		return trimUnit(ns/1000, "us")
	case ns < 1e9:
		return trimUnit(ns/1e6, "ms")
	default:
		return trimUnit(ns/1e9, "s")
	}
}

func trimUnit(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s + " " + unit
}
