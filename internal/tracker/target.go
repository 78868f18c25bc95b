// Package tracker maintains the latest-known consistent snapshot per tracked
// station and the pure update functions that advance it.
package tracker

import (
	"github.com/coastwatch/aistracker/internal/schema"
)

// TargetSnapshot is the immutable state of one tracked station at one
// instant. It is split into a position facet and a static facet, each with
// its own timestamp line; either facet may be absent. Snapshots are never
// mutated: every accepted report allocates a new value via ApplyReport.
//
// A facet is present iff its raw payload is non-nil; absent facets keep a
// zero timestamp so any validated report timestamp passes the acceptance
// check against them.
type TargetSnapshot struct {
	mmsi int64
	kind schema.TargetKind

	positionTimestamp int64
	position          schema.Position
	heading           *uint16
	cog               float64
	sog               float64
	navStatus         *schema.NavigationStatus
	rawPosition       []byte

	staticTimestamp int64
	shipType        schema.ShipType
	rawStaticA      []byte
	rawStaticB      []byte
}

// MMSI returns the station identity.
func (t *TargetSnapshot) MMSI() int64 { return t.mmsi }

// Kind returns the station category as of the latest accepted report.
func (t *TargetSnapshot) Kind() schema.TargetKind { return t.kind }

// Country returns the flag administration derived from the identity.
func (t *TargetSnapshot) Country() string { return schema.Country(t.mmsi) }

// HasPosition reports whether the position facet is present.
func (t *TargetSnapshot) HasPosition() bool { return t.rawPosition != nil }

// HasStatic reports whether the static facet is present.
func (t *TargetSnapshot) HasStatic() bool { return t.rawStaticA != nil }

// StaticPartCount returns how many static payloads the snapshot holds:
// 0 when the facet is absent, 1 for a single-part report, 2 for a
// reassembled split report.
func (t *TargetSnapshot) StaticPartCount() int {
	if t.rawStaticA == nil {
		return 0
	}
	if t.rawStaticB == nil {
		return 1
	}
	return 2
}

// PositionTimestamp returns the position facet's timestamp in Unix
// milliseconds, or zero when the facet is absent.
func (t *TargetSnapshot) PositionTimestamp() int64 { return t.positionTimestamp }

// StaticTimestamp returns the static facet's timestamp in Unix milliseconds,
// or zero when the facet is absent.
func (t *TargetSnapshot) StaticTimestamp() int64 { return t.staticTimestamp }

// Position returns the last reported coordinate. Check Valid() on the result:
// a present facet may still carry the wire format's "not available" fix.
func (t *TargetSnapshot) Position() schema.Position { return t.position }

// Heading returns the reported true heading, or nil when not reported. The
// kinematic fields consulted by the update path never carry one, so this is
// nil for every snapshot produced by ApplyReport.
func (t *TargetSnapshot) Heading() *uint16 { return t.heading }

// CourseOverGround returns the course over ground in degrees; negative when
// the producing report carried no kinematics.
func (t *TargetSnapshot) CourseOverGround() float64 { return t.cog }

// SpeedOverGround returns the speed over ground in knots; negative when the
// producing report carried no kinematics.
func (t *TargetSnapshot) SpeedOverGround() float64 { return t.sog }

// NavStatus returns the class A navigation status, or nil when the producing
// report subtype does not carry one.
func (t *TargetSnapshot) NavStatus() *schema.NavigationStatus { return t.navStatus }

// ShipType returns the reported ship-and-cargo type; meaningful only while
// HasStatic is true.
func (t *TargetSnapshot) ShipType() schema.ShipType { return t.shipType }

// RawPositionReport returns a copy of the raw payload that produced the
// position facet, or nil when the facet is absent. Decoding the payload back
// into a report is the caller's concern.
func (t *TargetSnapshot) RawPositionReport() []byte {
	return cloneBytes(t.rawPosition)
}

// RawStaticReports returns copies of the stored static payloads, in part
// order. Empty when the static facet is absent.
func (t *TargetSnapshot) RawStaticReports() [][]byte {
	if t.rawStaticA == nil {
		return nil
	}
	if t.rawStaticB == nil {
		return [][]byte{cloneBytes(t.rawStaticA)}
	}
	return [][]byte{cloneBytes(t.rawStaticA), cloneBytes(t.rawStaticB)}
}

// State projects the snapshot into its serializable bus representation.
func (t *TargetSnapshot) State() schema.TargetState {
	state := schema.TargetState{
		MMSI:    t.mmsi,
		Kind:    t.kind,
		Country: schema.Country(t.mmsi),
	}
	if t.HasPosition() {
		state.HasPosition = true
		state.PositionTimestamp = t.positionTimestamp
		state.Position = t.position
		state.CourseOverGround = t.cog
		state.SpeedOverGround = t.sog
		if t.heading != nil {
			h := *t.heading
			state.Heading = &h
		}
		if t.navStatus != nil {
			n := *t.navStatus
			state.NavStatus = &n
		}
	}
	if t.HasStatic() {
		state.StaticPartCount = t.StaticPartCount()
		state.StaticTimestamp = t.staticTimestamp
		state.ShipType = t.shipType
	}
	return state
}

// withStaticFrom copies the static facet of other onto the receiver's
// position facet, allocating a new snapshot.
func (t *TargetSnapshot) withStaticFrom(other *TargetSnapshot) *TargetSnapshot {
	next := *t
	next.staticTimestamp = other.staticTimestamp
	next.shipType = other.shipType
	next.rawStaticA = other.rawStaticA
	next.rawStaticB = other.rawStaticB
	return &next
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
