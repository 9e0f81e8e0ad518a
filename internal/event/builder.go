package event

import (
	"fmt"
	"time"
)

// Builder accumulates the fields of an Event until Lock is called.
// Not goroutine-safe; a builder belongs to the producer creating the event.
type Builder struct {
	ev Event
}

// NewBuilder returns an unlocked builder with no optional fields set.
// start <= finish is not checked.
func NewBuilder(start, finish time.Time) *Builder {
	return &Builder{ev: Event{start: start, finish: finish}}
}

// Lock freezes the builder and returns the finished Event. Calling Lock
// again returns the same value.
func (b *Builder) Lock() Event {
	b.ev.locked = true
	return b.ev
}

// Locked reports whether Lock has been called.
func (b *Builder) Locked() bool { return b.ev.locked }

// Event returns a snapshot of the current field values. Before Lock the
// snapshot reports Locked() == false.
func (b *Builder) Event() Event { return b.ev }

func (b *Builder) SetOK(v bool) error {
	return b.set(func(e *Event) { e.ok = Some(v) })
}

func (b *Builder) SetSpotfindStart(t time.Time) error {
	return b.set(func(e *Event) { e.spotfindStart = Some(t) })
}

func (b *Builder) SetIndexStart(t time.Time) error {
	return b.set(func(e *Event) { e.indexStart = Some(t) })
}

func (b *Builder) SetRefineStart(t time.Time) error {
	return b.set(func(e *Event) { e.refineStart = Some(t) })
}

func (b *Builder) SetIntegrateStart(t time.Time) error {
	return b.set(func(e *Event) { e.integrateStart = Some(t) })
}

func (b *Builder) SetHostname(h string) error {
	return b.set(func(e *Event) { e.hostname = Some(h) })
}

// SetPsanaTS records the psana timestamp annotation of the event.
func (b *Builder) SetPsanaTS(v float64) error {
	return b.set(func(e *Event) { e.psanaTS = Some(v) })
}

func (b *Builder) SetStatus(s string) error {
	return b.set(func(e *Event) { e.status = Some(s) })
}

// SetPhaseStart sets the marker for one of PhaseNames.
func (b *Builder) SetPhaseStart(phase string, t time.Time) error {
	switch phase {
	case PhaseSpotfind:
		return b.SetSpotfindStart(t)
	case PhaseIndex:
		return b.SetIndexStart(t)
	case PhaseRefine:
		return b.SetRefineStart(t)
	case PhaseIntegrate:
		return b.SetIntegrateStart(t)
	}
	return &UnknownPhaseError{Phase: phase}
}

func (b *Builder) set(apply func(*Event)) error {
	if b.ev.locked {
		return ErrWriteToLockedEvent
	}
	apply(&b.ev)
	return nil
}

// UnknownPhaseError is returned by SetPhaseStart for a name outside PhaseNames.
type UnknownPhaseError struct {
	Phase string
}

func (e *UnknownPhaseError) Error() string { return fmt.Sprintf("unknown phase %q", e.Phase) }
