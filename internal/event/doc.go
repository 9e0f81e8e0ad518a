// Package event defines the timing record produced for every processed
// shot or frame on a rank.
//
// An Event is built through a Builder. While the builder is unlocked its
// optional fields (phase start markers, hostname, psana timestamp, status,
// ok) may be set freely; Lock freezes the builder and hands back an Event
// value that has no setters at all. Writes attempted on a locked builder
// fail with ErrWriteToLockedEvent and leave the previous value in place.
//
// Events order by start time (Before), report their own length (Duration)
// and the idle gap after an earlier event (Sub).
package event
