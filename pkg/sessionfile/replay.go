package sessionfile

import (
	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/errs"
)

// Capture is one stored run loaded for replay. Its device carries the
// recorded channel layout; add it to a session, start the session and
// call Replay.
type Capture struct {
	run    Run
	dev    *acq.Device
	bodies [][]byte
}

// LoadRun loads a stored run and builds its replay device on the
// context.
func (s *Store) LoadRun(c *acq.Context, id string) (*Capture, error) {
	run, err := s.Run(id)
	if err != nil {
		return nil, err
	}

	channels, err := s.loadChannels(id)
	if err != nil {
		return nil, err
	}
	bodies, err := s.loadPacketBodies(id)
	if err != nil {
		return nil, err
	}
	return s.buildCapture(c, run, channels, bodies)
}

func (s *Store) buildCapture(c *acq.Context, run Run, channels []storedChannel, bodies [][]byte) (*Capture, error) {
	dev, err := c.NewSessionDevice(run.Device, nil)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		added, err := dev.AddChannel(ch.index, ch.ctype, ch.name)
		if err != nil {
			return nil, err
		}
		added.SetEnabled(ch.enabled)
	}
	return &Capture{run: run, dev: dev, bodies: bodies}, nil
}

// Run returns the stored run's record.
func (c *Capture) Run() Run { return c.run }

// Device returns the replay device.
func (c *Capture) Device() *acq.Device { return c.dev }

// Replay feeds the stored packets through the device, which must be in
// a running session. The stored header is skipped; the session already
// sent one when it started the replay device.
func (c *Capture) Replay() error {
	s := c.dev.Session()
	if s == nil || !s.IsRunning() {
		return errs.Argf("sessionfile.Replay", "device is not in a running session")
	}
	for _, body := range c.bodies {
		pkt, err := decodePacket(body, c.dev)
		if err != nil {
			return err
		}
		if pkt.Type() == acq.PacketHeader {
			continue
		}
		if err := c.dev.Send(pkt); err != nil {
			return err
		}
	}
	return nil
}
