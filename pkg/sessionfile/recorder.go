package sessionfile

import (
	"sync"

	"github.com/google/uuid"

	"github.com/acqkit/acqkit-go/pkg/acq"
)

// Recorder captures one device's datafeed stream into a store. Attach
// its Callback to the session before starting; packets from other
// devices in the session are ignored.
type Recorder struct {
	store *Store
	dev   *acq.Device
	runID string

	mu  sync.Mutex
	seq int
	err error
}

// NewRecorder creates the run record, stores the device's channel
// layout and returns the recorder.
func NewRecorder(store *Store, dev *acq.Device) (*Recorder, error) {
	id := uuid.NewString()
	if err := store.createRun(id, dev); err != nil {
		return nil, err
	}
	return &Recorder{store: store, dev: dev, runID: id}, nil
}

// RunID returns the stored run's identifier.
func (r *Recorder) RunID() string { return r.runID }

// Callback returns the datafeed callback that persists the stream.
// Storage errors are remembered and surface through Err; the stream
// itself keeps flowing.
func (r *Recorder) Callback() acq.DatafeedCallback {
	return func(dev *acq.Device, pkt *acq.Packet) {
		if dev != r.dev {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.err != nil {
			return
		}
		body, err := encodePacket(pkt)
		if err != nil {
			r.err = err
			return
		}
		if err := r.store.appendPacket(r.runID, r.seq, pkt.Type(), body); err != nil {
			r.err = err
			return
		}
		r.seq++
	}
}

// Err returns the first storage error, or nil.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
