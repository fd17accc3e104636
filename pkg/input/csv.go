package input

import (
	"strings"
	"sync"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/config"
	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/lifetime"
)

// CSV decodes comma-separated logic data, one sample per line with one
// column per channel. A first line containing anything besides 0 and 1
// is taken as the header row and supplies the channel names. The
// channel layout comes from the data, so Device returns nil until the
// first complete line has been pushed.
type CSV struct{}

var (
	_ acq.InputFormat = Binary{}
	_ acq.InputFormat = CSV{}
)

// Name implements acq.InputFormat.
func (CSV) Name() string { return "csv" }

// Description implements acq.InputFormat.
func (CSV) Description() string { return "Comma-separated values" }

// Extensions implements acq.InputFormat.
func (CSV) Extensions() []string { return []string{"csv"} }

// Detect implements acq.InputFormat. A file is claimed when its first
// line is a row of bits, when a printable header row is followed by a
// bit row of the same width, or when a plausible first line comes with
// a .csv filename hint.
func (CSV) Detect(header []byte, filename string) bool {
	line, rest, ok := strings.Cut(string(header), "\n")
	if !ok {
		return false
	}
	fields, bits := csvDetectFields(line)
	if fields == nil {
		return false
	}
	if bits {
		return true
	}
	if second, _, ok := strings.Cut(rest, "\n"); ok {
		sf, sbits := csvDetectFields(second)
		if sbits && len(sf) == len(fields) {
			return true
		}
	}
	return strings.HasSuffix(strings.ToLower(filename), ".csv")
}

// csvDetectFields splits one line for detection. It returns nil when a
// field is empty or not printable ASCII; bits reports whether every
// field is "0" or "1".
func csvDetectFields(line string) (fields []string, bits bool) {
	fields = strings.Split(strings.TrimRight(line, "\r"), ",")
	bits = true
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return nil, false
		}
		if f != "0" && f != "1" {
			bits = false
		}
		for _, r := range f {
			if r < ' ' || r > '~' {
				return nil, false
			}
		}
		fields[i] = f
	}
	return fields, bits
}

// New implements acq.InputFormat. Options: samplerate (announced as
// meta when non-zero).
func (CSV) New(c *acq.Context, opts config.Options) (acq.Input, error) {
	return &csvInput{
		ctx:        c,
		samplerate: opts.Uint64(config.KeySamplerate, 0),
	}, nil
}

type csvInput struct {
	lifetime.AppOwned

	mu         sync.Mutex
	ctx        *acq.Context
	dev        *acq.Device
	samplerate uint64
	line       []byte
	samples    []byte
	unitSize   int
	numCols    int
	lineNo     int
	metaSent   bool
	ended      bool
}

// Device implements acq.Input.
func (in *csvInput) Device() *acq.Device {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dev
}

// Send implements acq.Input.
func (in *csvInput) Send(data []byte) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ended {
		return errs.Bugf("input.CSV.Send", "send after end")
	}
	for _, b := range data {
		if b != '\n' {
			in.line = append(in.line, b)
			continue
		}
		if err := in.lineLocked(); err != nil {
			return err
		}
	}
	return in.flushLocked()
}

// End implements acq.Input.
func (in *csvInput) End() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ended {
		return nil
	}
	in.ended = true
	if len(in.line) > 0 {
		if err := in.lineLocked(); err != nil {
			return err
		}
	}
	if in.dev == nil {
		return errs.Newf(errs.DataInvalid, "input.CSV.End", "no data lines seen")
	}
	s := in.dev.Session()
	if s == nil || !s.IsRunning() {
		return errs.Newf(errs.DataInvalid, "input.CSV.End",
			"buffered samples but the device is not in a running session")
	}
	if err := in.flushLocked(); err != nil {
		return err
	}
	return in.dev.Send(acq.NewEndPacket())
}

// lineLocked consumes in.line as one CSV row. The first row decides
// the column count and, when non-numeric, the channel names.
func (in *csvInput) lineLocked() error {
	const op = "input.CSV"
	line := strings.TrimRight(string(in.line), "\r")
	in.line = in.line[:0]
	in.lineNo++
	if line == "" {
		return nil
	}
	fields := strings.Split(line, ",")

	if in.dev == nil {
		names := make([]string, len(fields))
		header := false
		for i, f := range fields {
			f = strings.TrimSpace(f)
			if f != "0" && f != "1" {
				header = true
			}
			names[i] = f
		}
		if !header {
			for i := range names {
				names[i] = ""
			}
		}
		if err := in.makeDeviceLocked(names); err != nil {
			return err
		}
		if header {
			return nil
		}
	}

	if len(fields) != in.numCols {
		return errs.Newf(errs.DataInvalid, op,
			"line %d has %d columns, expected %d", in.lineNo, len(fields), in.numCols)
	}
	sample := make([]byte, in.unitSize)
	for i, f := range fields {
		switch strings.TrimSpace(f) {
		case "0":
		case "1":
			sample[i/8] |= 1 << (i % 8)
		default:
			return errs.Newf(errs.DataInvalid, op,
				"line %d column %d: %q is not a bit", in.lineNo, i+1, f)
		}
	}
	in.samples = append(in.samples, sample...)
	return nil
}

func (in *csvInput) makeDeviceLocked(names []string) error {
	if len(names) > 64 {
		return errs.Newf(errs.DataInvalid, "input.CSV", "%d columns exceed 64 channels", len(names))
	}
	dev, err := in.ctx.NewInputDevice("CSV", in)
	if err != nil {
		return err
	}
	for i, name := range names {
		if _, err := dev.AddChannel(i, acq.ChannelLogic, name); err != nil {
			return err
		}
	}
	in.dev = dev
	in.numCols = len(names)
	in.unitSize = (len(names) + 7) / 8
	return nil
}

func (in *csvInput) flushLocked() error {
	if in.dev == nil || len(in.samples) == 0 {
		return nil
	}
	s := in.dev.Session()
	if s == nil || !s.IsRunning() {
		return nil
	}
	if !in.metaSent && in.samplerate > 0 {
		meta, err := acq.NewMetaPacket(map[config.Key]any{config.KeySamplerate: in.samplerate})
		if err != nil {
			return err
		}
		if err := in.dev.Send(meta); err != nil {
			return err
		}
	}
	in.metaSent = true

	data := in.samples
	in.samples = nil
	pkt, err := acq.NewLogicPacket(in.unitSize, data)
	if err != nil {
		return err
	}
	return in.dev.Send(pkt)
}
