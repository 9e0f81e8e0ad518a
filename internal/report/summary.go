// Package report reduces a rank's computed stream stats to a Summary and
// renders summaries as a table, JSON or YAML.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/loykin/ranktime/internal/event"
	"github.com/loykin/ranktime/internal/stream"
)

// ErrStatsNotComputed is returned by Summarize for a stream whose stats were
// never computed.
var ErrStatsNotComputed = stream.ErrNoStats

// Seconds is a duration rendered as fractional seconds.
type Seconds float64

func secs(d time.Duration) Seconds { return Seconds(d.Seconds()) }

func (s Seconds) String() string { return fmt.Sprintf("%.3fs", float64(s)) }

// Stat aggregates a series of durations.
type Stat struct {
	Count int     `json:"count" yaml:"count"`
	Total Seconds `json:"total" yaml:"total"`
	Mean  Seconds `json:"mean" yaml:"mean"`
	Min   Seconds `json:"min" yaml:"min"`
	Max   Seconds `json:"max" yaml:"max"`
}

// PhaseStat is the mean time spent in one processing phase. A phase runs
// from its marker to the next set marker, or to the event finish.
type PhaseStat struct {
	Name   string  `json:"name" yaml:"name"`
	Events int     `json:"events" yaml:"events"`
	Mean   Seconds `json:"mean" yaml:"mean"`
}

// Summary describes one rank.
type Summary struct {
	Rank       string         `json:"rank" yaml:"rank"`
	Events     int            `json:"events" yaml:"events"`
	FirstStart time.Time      `json:"first_start" yaml:"first_start"`
	Span       Seconds        `json:"span" yaml:"span"`
	Duration   Stat           `json:"duration" yaml:"duration"`
	Gap        Stat           `json:"gap" yaml:"gap"`
	OK         int            `json:"ok" yaml:"ok"`
	Failed     int            `json:"failed" yaml:"failed"`
	Statuses   map[string]int `json:"statuses,omitempty" yaml:"statuses,omitempty"`
	Hosts      []string       `json:"hosts,omitempty" yaml:"hosts,omitempty"`
	Phases     []PhaseStat    `json:"phases,omitempty" yaml:"phases,omitempty"`
}

// Summarize reads the stats last computed on s. It returns ErrStatsNotComputed
// when ComputeStats has not run. Span is measured in the stream's current
// order, from the start of the first element to the finish of the last.
func Summarize(s *stream.Stream) (Summary, error) {
	durations, ok := s.Durations()
	if !ok {
		return Summary{}, fmt.Errorf("rank %s: %w", s.Rank(), ErrStatsNotComputed)
	}
	gaps, _ := s.Diff()

	sum := Summary{
		Rank:     s.Rank(),
		Events:   s.Len(),
		Duration: stat(durations),
		Gap:      stat(gaps),
	}
	if first, ok := s.First(); ok {
		sum.FirstStart = first.Start()
	}
	if n := s.Len(); n > 0 {
		sum.Span = secs(s.At(n - 1).Finish().Sub(s.At(0).Start()))
	}

	statuses := make(map[string]int)
	hosts := make(map[string]struct{})
	phaseTotal := make(map[string]time.Duration)
	phaseCount := make(map[string]int)
	for _, ev := range s.Events() {
		if v, set := ev.OK().Get(); set {
			if v {
				sum.OK++
			} else {
				sum.Failed++
			}
		}
		if st, set := ev.Status().Get(); set {
			statuses[st]++
		}
		if h, set := ev.Hostname().Get(); set {
			hosts[h] = struct{}{}
		}
		for name, d := range phaseDurations(ev) {
			phaseTotal[name] += d
			phaseCount[name]++
		}
	}
	if len(statuses) > 0 {
		sum.Statuses = statuses
	}
	for h := range hosts {
		sum.Hosts = append(sum.Hosts, h)
	}
	sort.Strings(sum.Hosts)
	for _, name := range event.PhaseNames {
		if n := phaseCount[name]; n > 0 {
			sum.Phases = append(sum.Phases, PhaseStat{
				Name:   name,
				Events: n,
				Mean:   secs(phaseTotal[name] / time.Duration(n)),
			})
		}
	}
	return sum, nil
}

// SummarizeAll summarizes every stream, stopping at the first error.
func SummarizeAll(streams []*stream.Stream) ([]Summary, error) {
	out := make([]Summary, 0, len(streams))
	for _, s := range streams {
		sum, err := Summarize(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

func phaseDurations(ev event.Event) map[string]time.Duration {
	phases := ev.Phases()
	if len(phases) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(phases))
	for i, p := range phases {
		end := ev.Finish()
		if i+1 < len(phases) {
			end = phases[i+1].Start
		}
		out[p.Name] = end.Sub(p.Start)
	}
	return out
}

func stat(ds []time.Duration) Stat {
	if len(ds) == 0 {
		return Stat{}
	}
	var total time.Duration
	lo, hi := ds[0], ds[0]
	for _, d := range ds {
		total += d
		lo = min(lo, d)
		hi = max(hi, d)
	}
	return Stat{
		Count: len(ds),
		Total: secs(total),
		Mean:  secs(total / time.Duration(len(ds))),
		Min:   secs(lo),
		Max:   secs(hi),
	}
}
