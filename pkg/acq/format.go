package acq

import (
	"github.com/acqkit/acqkit-go/pkg/config"
)

// InputFormat decodes stored captures into the datafeed. Implementations
// are registered on the context and selected by name or by detection.
type InputFormat interface {
	// Name returns the short format identifier, e.g. "csv".
	Name() string
	// Description returns the human-readable format name.
	Description() string
	// Extensions returns the file extensions the format claims, without
	// the leading dot.
	Extensions() []string
	// Detect inspects the first bytes of a file and reports whether the
	// format can decode it.
	Detect(header []byte, filename string) bool
	// New returns a decoder. The decoder creates its virtual device on
	// the context; the caller adds it to a session and streams the file
	// through Send.
	New(c *Context, opts config.Options) (Input, error)
}

// Input is one running decode. Data is pushed in with Send; the decoder
// emits packets through its device once the device is in a running
// session. End flushes whatever is buffered and closes the stream.
type Input interface {
	// Device returns the decoder's virtual device. Formats that derive
	// the channel layout from the data itself return nil until enough
	// of the stream has been pushed through Send.
	Device() *Device
	// Send pushes the next chunk of the file or stream.
	Send(data []byte) error
	// End flushes buffered data and sends the end packet.
	End() error
}

// OutputFormat encodes the datafeed into an on-disk or on-wire form.
type OutputFormat interface {
	// Name returns the short format identifier, e.g. "bits".
	Name() string
	// Description returns the human-readable format name.
	Description() string
	// New returns an encoder for one device's stream.
	New(dev *Device, opts config.Options) (Output, error)
}

// Output is one running encode. Receive is handed every packet of the
// device's stream in order and returns the bytes to append to the
// output, which may be empty.
type Output interface {
	Receive(pkt *Packet) ([]byte, error)
}
