package ingest

import (
	"errors"
	"math"
	"time"

	"github.com/loykin/ranktime/internal/event"
)

var errMissingRank = errors.New("missing rank")

// Record is one line of the JSON Lines input. Times are seconds since the
// Unix epoch; absent optional keys leave the matching event field unset.
type Record struct {
	Rank           string   `json:"rank"`
	Start          *float64 `json:"start"`
	Finish         *float64 `json:"finish"`
	OK             *bool    `json:"ok,omitempty"`
	SpotfindStart  *float64 `json:"spotfind_start,omitempty"`
	IndexStart     *float64 `json:"index_start,omitempty"`
	RefineStart    *float64 `json:"refine_start,omitempty"`
	IntegrateStart *float64 `json:"integrate_start,omitempty"`
	Hostname       *string  `json:"hostname,omitempty"`
	PsanaTS        *float64 `json:"psanats,omitempty"`
	Status         *string  `json:"status,omitempty"`
}

// Event builds and locks the event described by r.
func (r Record) Event() (event.Event, error) {
	if r.Rank == "" {
		return event.Event{}, errMissingRank
	}
	if r.Start == nil || r.Finish == nil {
		return event.Event{}, errors.New("start and finish are required")
	}
	b := event.NewBuilder(Seconds(*r.Start), Seconds(*r.Finish))
	var errs []error
	if r.OK != nil {
		errs = append(errs, b.SetOK(*r.OK))
	}
	phases := []struct {
		name string
		v    *float64
	}{
		{event.PhaseSpotfind, r.SpotfindStart},
		{event.PhaseIndex, r.IndexStart},
		{event.PhaseRefine, r.RefineStart},
		{event.PhaseIntegrate, r.IntegrateStart},
	}
	for _, p := range phases {
		if p.v != nil {
			errs = append(errs, b.SetPhaseStart(p.name, Seconds(*p.v)))
		}
	}
	if r.Hostname != nil {
		errs = append(errs, b.SetHostname(*r.Hostname))
	}
	if r.PsanaTS != nil {
		errs = append(errs, b.SetPsanaTS(*r.PsanaTS))
	}
	if r.Status != nil {
		errs = append(errs, b.SetStatus(*r.Status))
	}
	if err := errors.Join(errs...); err != nil {
		return event.Event{}, err
	}
	return b.Lock(), nil
}

// Seconds converts fractional seconds since the Unix epoch to a UTC time,
// keeping nanosecond precision where the float allows it.
func Seconds(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// ToSeconds is the inverse of Seconds.
func ToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
