// Package swlimits implements software acquisition limits for drivers
// whose hardware cannot stop by itself. A driver embeds a Limits in its
// per-device state, forwards the limit config keys to it, and polls
// Reached from its acquisition loop.
package swlimits

import (
	"sync"
	"time"

	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
)

// Limits tracks sample, frame and duration limits for one acquisition.
// The zero value has no limits set.
type Limits struct {
	mu           sync.Mutex
	limitSamples uint64
	limitMsec    uint64
	limitFrames  uint64

	samples uint64
	frames  uint64
	start   time.Time
}

// ConfigGet serves the limit keys of the config protocol.
func (l *Limits) ConfigGet(key config.Key) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch key {
	case config.KeyLimitSamples:
		return l.limitSamples, nil
	case config.KeyLimitMsec:
		return l.limitMsec, nil
	case config.KeyLimitFrames:
		return l.limitFrames, nil
	default:
		return nil, errs.Newf(errs.NotSupported, "swlimits.ConfigGet", "key %s", key)
	}
}

// ConfigSet serves the limit keys of the config protocol. A limit of
// zero disables it.
func (l *Limits) ConfigSet(key config.Key, value any) error {
	v, err := toUint64(value)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	switch key {
	case config.KeyLimitSamples:
		l.limitSamples = v
	case config.KeyLimitMsec:
		l.limitMsec = v
	case config.KeyLimitFrames:
		l.limitFrames = v
	default:
		return errs.Newf(errs.NotSupported, "swlimits.ConfigSet", "key %s", key)
	}
	return nil
}

// Start resets the counters and the clock. Drivers call it at
// acquisition start.
func (l *Limits) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = 0
	l.frames = 0
	l.start = time.Now()
}

// AddSamples records n acquired samples.
func (l *Limits) AddSamples(n uint64) {
	l.mu.Lock()
	l.samples += n
	l.mu.Unlock()
}

// AddFrames records n acquired frames.
func (l *Limits) AddFrames(n uint64) {
	l.mu.Lock()
	l.frames += n
	l.mu.Unlock()
}

// Remaining returns how many samples may still be acquired under the
// sample limit, or max if no sample limit is set.
func (l *Limits) Remaining(max uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limitSamples == 0 || l.samples >= l.limitSamples {
		if l.limitSamples != 0 {
			return 0
		}
		return max
	}
	left := l.limitSamples - l.samples
	if left > max {
		return max
	}
	return left
}

// Reached reports whether any configured limit has been hit.
func (l *Limits) Reached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limitSamples > 0 && l.samples >= l.limitSamples {
		return true
	}
	if l.limitFrames > 0 && l.frames >= l.limitFrames {
		return true
	}
	if l.limitMsec > 0 && time.Since(l.start) >= time.Duration(l.limitMsec)*time.Millisecond {
		return true
	}
	return false
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		if n >= 0 {
			return uint64(n), nil
		}
	case int64:
		if n >= 0 {
			return uint64(n), nil
		}
	case uint32:
		return uint64(n), nil
	}
	return 0, errs.Argf("swlimits", "limit value %v (%T) is not a non-negative integer", v, v)
}
