package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrWriteToLockedEvent is returned by every Builder setter once Lock has
// been called.
var ErrWriteToLockedEvent = errors.New("write to locked event")

// Phase names, in processing order.
const (
	PhaseSpotfind  = "spotfind"
	PhaseIndex     = "index"
	PhaseRefine    = "refine"
	PhaseIntegrate = "integrate"
)

// PhaseNames lists the phase markers an Event can carry, in processing order.
var PhaseNames = []string{PhaseSpotfind, PhaseIndex, PhaseRefine, PhaseIntegrate}

// Event is a finished timing record. It has no setters; values are produced
// by Builder.Lock (locked) or Builder.Event (an unlocked snapshot).
type Event struct {
	start  time.Time
	finish time.Time
	locked bool

	ok             Opt[bool]
	spotfindStart  Opt[time.Time]
	indexStart     Opt[time.Time]
	refineStart    Opt[time.Time]
	integrateStart Opt[time.Time]
	hostname       Opt[string]
	psanaTS        Opt[float64]
	status         Opt[string]
}

func (e Event) Start() time.Time               { return e.start }
func (e Event) Finish() time.Time              { return e.finish }
func (e Event) Locked() bool                   { return e.locked }
func (e Event) OK() Opt[bool]                  { return e.ok }
func (e Event) SpotfindStart() Opt[time.Time]  { return e.spotfindStart }
func (e Event) IndexStart() Opt[time.Time]     { return e.indexStart }
func (e Event) RefineStart() Opt[time.Time]    { return e.refineStart }
func (e Event) IntegrateStart() Opt[time.Time] { return e.integrateStart }
func (e Event) Hostname() Opt[string]          { return e.hostname }
func (e Event) PsanaTS() Opt[float64]          { return e.psanaTS }
func (e Event) Status() Opt[string]            { return e.status }

// Before reports whether e started strictly before other.
// Equal starts are not "before".
func (e Event) Before(other Event) bool {
	return e.start.Before(other.start)
}

// Duration returns finish minus start. A finish earlier than start yields a
// negative duration.
func (e Event) Duration() time.Duration {
	return e.finish.Sub(e.start)
}

// Sub returns the gap between the finish of other and the start of e, read
// as "e minus other": later.Sub(earlier). Operands are not reordered; a
// negative result means the two events overlap.
func (e Event) Sub(other Event) time.Duration {
	return e.start.Sub(other.finish)
}

// Phase is a named phase start marker.
type Phase struct {
	Name  string
	Start time.Time
}

// Phases returns the phase markers set on e, in processing order.
func (e Event) Phases() []Phase {
	out := make([]Phase, 0, len(PhaseNames))
	for _, p := range []struct {
		name string
		opt  Opt[time.Time]
	}{
		{PhaseSpotfind, e.spotfindStart},
		{PhaseIndex, e.indexStart},
		{PhaseRefine, e.refineStart},
		{PhaseIntegrate, e.integrateStart},
	} {
		if t, ok := p.opt.Get(); ok {
			out = append(out, Phase{Name: p.name, Start: t})
		}
	}
	return out
}

// String renders a multi-line diagnostic view. The layout is not stable.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event(%s, %s)", fmtTime(e.start), fmtTime(e.finish))
	field := func(name, v string) {
		fmt.Fprintf(&b, "\n    %s: %s", name, v)
	}
	if e.ok.IsSet() {
		field("ok", e.ok.String())
	}
	for _, p := range e.Phases() {
		field(p.Name+"_start", fmtTime(p.Start))
	}
	if e.hostname.IsSet() {
		field("hostname", e.hostname.String())
	}
	if e.psanaTS.IsSet() {
		field("psanats", e.psanaTS.String())
	}
	if e.status.IsSet() {
		field("status", e.status.String())
	}
	fmt.Fprintf(&b, "\n    locked: %t", e.locked)
	return b.String()
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
