// Package stream aggregates the events of a single rank and derives
// per-event durations and the gaps between consecutive events.
//
// A Stream is built and queried by one owner. Statistics are computed on
// demand by ComputeStats and are not invalidated by later Add or Sort calls;
// callers re-run ComputeStats after changing the stream.
package stream

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loykin/ranktime/internal/event"
)

var (
	// ErrEmptyStream is returned by ComputeStats on a stream with no events.
	ErrEmptyStream = errors.New("stream has no events")
	// ErrNoStats is returned by consumers that need ComputeStats to have run.
	ErrNoStats = errors.New("stream stats not computed")
)

// Stream is the ordered list of events recorded by one rank.
type Stream struct {
	rank   string
	events []event.Event

	// earliest start seen by Add, independent of the slice order
	first    event.Event
	hasFirst bool

	diff     []time.Duration
	duration []time.Duration
	hasStats bool
}

// New returns an empty stream for rank.
func New(rank string) *Stream {
	return &Stream{rank: rank}
}

// Add appends e and updates First when e started before the current first
// event. Ties keep the event added earlier.
func (s *Stream) Add(e event.Event) {
	if !s.hasFirst || e.Before(s.first) {
		s.first = e
		s.hasFirst = true
	}
	s.events = append(s.events, e)
}

// Sort orders events by ascending start; equal starts keep insertion order.
// First and previously computed stats are left as they are.
func (s *Stream) Sort() {
	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].Before(s.events[j])
	})
}

// ComputeStats walks the events in their current order and fills Diff with
// events[i+1].Sub(events[i]) and Durations with events[i].Duration().
// The previous series are replaced. An empty stream yields ErrEmptyStream
// and leaves the stats untouched.
func (s *Stream) ComputeStats() error {
	if len(s.events) == 0 {
		return ErrEmptyStream
	}
	diff := make([]time.Duration, 0, len(s.events)-1)
	prev := s.events[0]
	for _, ev := range s.events[1:] {
		diff = append(diff, ev.Sub(prev))
		prev = ev
	}
	duration := make([]time.Duration, len(s.events))
	for i, ev := range s.events {
		duration[i] = ev.Duration()
	}
	s.diff = diff
	s.duration = duration
	s.hasStats = true
	return nil
}

func (s *Stream) Rank() string { return s.rank }

// Len returns the number of events.
func (s *Stream) Len() int { return len(s.events) }

// At returns the i-th event in the current order. It panics when i is out
// of range.
func (s *Stream) At(i int) event.Event { return s.events[i] }

// Events returns a copy of the events in their current order.
func (s *Stream) Events() []event.Event {
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// First returns the earliest-starting event added so far.
func (s *Stream) First() (event.Event, bool) { return s.first, s.hasFirst }

// HasStats reports whether ComputeStats has succeeded at least once.
func (s *Stream) HasStats() bool { return s.hasStats }

// Diff returns a copy of the gaps from the last ComputeStats; ok is false
// before stats have been computed.
func (s *Stream) Diff() ([]time.Duration, bool) {
	if !s.hasStats {
		return nil, false
	}
	return cloneDurations(s.diff), true
}

// Durations returns a copy of the per-event durations from the last
// ComputeStats; ok is false before stats have been computed.
func (s *Stream) Durations() ([]time.Duration, bool) {
	if !s.hasStats {
		return nil, false
	}
	return cloneDurations(s.duration), true
}

func cloneDurations(in []time.Duration) []time.Duration {
	out := make([]time.Duration, len(in))
	copy(out, in)
	return out
}

// String lists every event followed by the first event. Diagnostic only.
func (s *Stream) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Events on %s: [", s.rank)
	for _, ev := range s.events {
		b.WriteString("\n")
		b.WriteString(ev.String())
	}
	b.WriteString("]")
	if s.hasFirst {
		b.WriteString("\nFirst event:\n")
		b.WriteString(s.first.String())
	}
	return b.String()
}
