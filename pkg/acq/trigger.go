package acq

import (
	"sync"

	"github.com/acqkit/acqkit-go/pkg/errs"
	"github.com/acqkit/acqkit-go/pkg/lifetime"
)

// MatchType is the condition a trigger match tests a channel for.
type MatchType int

const (
	// MatchZero matches a logic channel at low level.
	MatchZero MatchType = 1 + iota
	// MatchOne matches a logic channel at high level.
	MatchOne
	// MatchRising matches a rising edge.
	MatchRising
	// MatchFalling matches a falling edge.
	MatchFalling
	// MatchEdge matches any edge.
	MatchEdge
	// MatchOver matches an analog channel above the match value.
	MatchOver
	// MatchUnder matches an analog channel below the match value.
	MatchUnder
)

// String returns the match type name.
func (m MatchType) String() string {
	switch m {
	case MatchZero:
		return "0"
	case MatchOne:
		return "1"
	case MatchRising:
		return "rising"
	case MatchFalling:
		return "falling"
	case MatchEdge:
		return "edge"
	case MatchOver:
		return "over"
	case MatchUnder:
		return "under"
	default:
		return "unknown"
	}
}

// Trigger is a device-independent trigger condition: a sequence of
// stages, each a set of per-channel matches that must hold at the same
// time. Stage n+1 is armed once stage n has matched. Triggers are
// application-owned and created through Context.NewTrigger.
type Trigger struct {
	lifetime.AppOwned

	mu     sync.Mutex
	name   string
	stages []*Stage
}

func newTrigger(name string) *Trigger {
	return &Trigger{name: name}
}

// Name returns the trigger name. It may be empty.
func (t *Trigger) Name() string { return t.name }

// AddStage appends a stage to the sequence.
func (t *Trigger) AddStage() (*Stage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &Stage{number: len(t.stages)}
	if err := s.SetParent(t); err != nil {
		return nil, err
	}
	t.stages = append(t.stages, s)
	return s, nil
}

// Stages returns the stages in sequence order.
func (t *Trigger) Stages() []*Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Stage, len(t.stages))
	copy(out, t.stages)
	return out
}

// Stage is one step of a trigger sequence. Stages are owned by their
// trigger.
type Stage struct {
	lifetime.ParentOwned[*Trigger]

	mu      sync.Mutex
	number  int
	matches []*Match
}

// Number returns the stage's position in the sequence, starting at 0.
func (s *Stage) Number() int { return s.number }

// AddMatch adds a per-channel condition to the stage. Logic channels
// accept zero, one, rising, falling and edge; analog channels accept
// over, under and edge. The value is the threshold for over and under
// matches and is ignored otherwise.
func (s *Stage) AddMatch(ch *Channel, mtype MatchType, value float64) (*Match, error) {
	const op = "acq.Stage.AddMatch"
	if ch == nil {
		return nil, errs.Argf(op, "nil channel")
	}
	switch ch.Type() {
	case ChannelLogic:
		switch mtype {
		case MatchZero, MatchOne, MatchRising, MatchFalling, MatchEdge:
		default:
			return nil, errs.Argf(op, "match %s not valid for logic channel %q", mtype, ch.Name())
		}
	case ChannelAnalog:
		switch mtype {
		case MatchOver, MatchUnder, MatchEdge:
		default:
			return nil, errs.Argf(op, "match %s not valid for analog channel %q", mtype, ch.Name())
		}
	default:
		return nil, errs.Argf(op, "unknown channel type %d", ch.Type())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m := &Match{channel: ch, mtype: mtype, value: value}
	if err := m.SetParent(s); err != nil {
		return nil, err
	}
	s.matches = append(s.matches, m)
	return m, nil
}

// Matches returns the stage's matches in creation order.
func (s *Stage) Matches() []*Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Match, len(s.matches))
	copy(out, s.matches)
	return out
}

// Match is one per-channel condition within a stage. Matches are owned
// by their stage.
type Match struct {
	lifetime.ParentOwned[*Stage]

	channel *Channel
	mtype   MatchType
	value   float64
}

// Channel returns the matched channel.
func (m *Match) Channel() *Channel { return m.channel }

// Type returns the match condition.
func (m *Match) Type() MatchType { return m.mtype }

// Value returns the threshold for over and under matches.
func (m *Match) Value() float64 { return m.value }

// verify checks that the trigger is usable at session start: at least
// one stage, no empty stages, no match without a channel. Matches on
// disabled channels pass verification; drivers ignore them.
func (t *Trigger) verify() error {
	const op = "acq.Session.Start"
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stages) == 0 {
		return errs.Argf(op, "trigger %q has no stages", t.name)
	}
	for _, s := range t.stages {
		s.mu.Lock()
		n := len(s.matches)
		var nilCh bool
		for _, m := range s.matches {
			if m.channel == nil {
				nilCh = true
			}
		}
		s.mu.Unlock()
		if n == 0 {
			return errs.Argf(op, "trigger %q stage %d has no matches", t.name, s.number)
		}
		if nilCh {
			return errs.Argf(op, "trigger %q stage %d has a match without a channel", t.name, s.number)
		}
	}
	return nil
}
