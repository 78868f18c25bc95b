package schema

import (
	"fmt"
	"time"
)

// EventType enumerates the target event categories published on the bus.
type EventType string

const (
	// EventTargetUpdate identifies an accepted snapshot transition.
	EventTargetUpdate EventType = "TargetUpdate"
	// EventTargetFirstSeen identifies the first snapshot for an identity.
	EventTargetFirstSeen EventType = "TargetFirstSeen"
	// EventKindChange identifies a transition that replaced the target kind.
	EventKindChange EventType = "KindChange"
)

// BuildEventKey constructs the default idempotency key for a target event.
func BuildEventKey(mmsi int64, typ EventType, seq uint64) string {
	return fmt.Sprintf("%d:%s:%d", mmsi, typ, seq)
}

// TargetState is the serializable projection of a target snapshot carried in
// bus events. Facet fields are meaningful only when the matching presence
// flag or count says so.
type TargetState struct {
	MMSI    int64      `json:"mmsi"`
	Kind    TargetKind `json:"kind"`
	Country string     `json:"country,omitempty"`

	HasPosition       bool              `json:"has_position"`
	PositionTimestamp int64             `json:"position_ts,omitempty"`
	Position          Position          `json:"position"`
	Heading           *uint16           `json:"heading,omitempty"`
	CourseOverGround  float64           `json:"cog,omitempty"`
	SpeedOverGround   float64           `json:"sog,omitempty"`
	NavStatus         *NavigationStatus `json:"nav_status,omitempty"`

	StaticPartCount int      `json:"static_part_count"`
	StaticTimestamp int64    `json:"static_ts,omitempty"`
	ShipType        ShipType `json:"ship_type,omitempty"`
}

// TargetEvent is the canonical event emitted for every accepted snapshot
// transition.
type TargetEvent struct {
	EventID  string      `json:"event_id"`
	Type     EventType   `json:"type"`
	Key      string      `json:"key"`
	Seq      uint64      `json:"seq"`
	Source   SourceKey   `json:"source"`
	IngestTS time.Time   `json:"ingest_ts"`
	Target   TargetState `json:"target"`
}

// Clone returns a deep copy of the event safe for fan-out delivery.
func (e *TargetEvent) Clone() *TargetEvent {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Target.Heading != nil {
		h := *e.Target.Heading
		clone.Target.Heading = &h
	}
	if e.Target.NavStatus != nil {
		n := *e.Target.NavStatus
		clone.Target.NavStatus = &n
	}
	return &clone
}
