// Package schema defines the decoded AIS report variants and the canonical
// event shapes published by the tracker.
package schema

import (
	"github.com/coastwatch/aistracker/errs"
)

// NavigationStatus enumerates class A navigation states (ITU-R M.1371 table).
type NavigationStatus uint8

const (
	// NavUnderWayUsingEngine indicates the vessel is under way using engine.
	NavUnderWayUsingEngine NavigationStatus = 0
	// NavAtAnchor indicates the vessel is at anchor.
	NavAtAnchor NavigationStatus = 1
	// NavNotUnderCommand indicates the vessel is not under command.
	NavNotUnderCommand NavigationStatus = 2
	// NavRestrictedManoeuvrability indicates restricted manoeuvrability.
	NavRestrictedManoeuvrability NavigationStatus = 3
	// NavMoored indicates the vessel is moored.
	NavMoored NavigationStatus = 5
	// NavUndefined is the wire format's "not defined" default.
	NavUndefined NavigationStatus = 15
)

// ShipType is the raw ship-and-cargo type field from static reports.
type ShipType uint8

// SourceKey identifies the channel/context a report arrived on. Two halves of
// a split static report pair up only when they share the same source key. It
// is distinct from the station identity: many stations share one source.
type SourceKey struct {
	Provider string `json:"provider"`
	Channel  string `json:"channel"`
}

// Report is a decoded AIS report. Wire decoding happens upstream; the tracker
// consumes reports at this interface only.
type Report interface {
	// Identity returns the MMSI of the station that sent the report.
	Identity() int64
}

// Kinematics carries the position-facet fields shared by vessel position
// reports.
type Kinematics struct {
	Pos Position
	COG float64
	SOG float64
}

// KinematicReport is implemented by report variants carrying kinematic data.
type KinematicReport interface {
	Report
	Kinematics() Kinematics
}

// NavStatusReport is implemented by the class A subtype that carries a
// navigation status alongside its kinematics.
type NavStatusReport interface {
	KinematicReport
	NavigationStatus() NavigationStatus
}

// StaticReport is implemented by report variants carrying static voyage data.
type StaticReport interface {
	Report
	Ship() ShipType
}

// PartedReport is implemented by split static reports delivered in two
// halves. PartNumber is 0 for the first half and 1 for the second.
type PartedReport interface {
	StaticReport
	PartNumber() int
}

// Positioned is implemented by report variants that carry a coordinate
// without the full kinematic field set (aids to navigation, base stations).
type Positioned interface {
	ReportPosition() Position
}

// PositionReportA is a decoded class A position report.
type PositionReportA struct {
	MMSI      int64
	Pos       Position
	COG       float64
	SOG       float64
	NavStatus NavigationStatus
}

// Identity returns the reporting station's MMSI.
func (r PositionReportA) Identity() int64 { return r.MMSI }

// Kinematics returns the kinematic field set.
func (r PositionReportA) Kinematics() Kinematics {
	return Kinematics{Pos: r.Pos, COG: r.COG, SOG: r.SOG}
}

// NavigationStatus returns the reported navigation state.
func (r PositionReportA) NavigationStatus() NavigationStatus { return r.NavStatus }

// ReportPosition returns the reported coordinate.
func (r PositionReportA) ReportPosition() Position { return r.Pos }

// PositionReportB is a decoded class B position report. Class B carries no
// navigation status.
type PositionReportB struct {
	MMSI int64
	Pos  Position
	COG  float64
	SOG  float64
}

// Identity returns the reporting station's MMSI.
func (r PositionReportB) Identity() int64 { return r.MMSI }

// Kinematics returns the kinematic field set.
func (r PositionReportB) Kinematics() Kinematics {
	return Kinematics{Pos: r.Pos, COG: r.COG, SOG: r.SOG}
}

// ReportPosition returns the reported coordinate.
func (r PositionReportB) ReportPosition() Position { return r.Pos }

// StaticVoyageReport is a decoded single-part static and voyage report
// (class A static data).
type StaticVoyageReport struct {
	MMSI     int64
	ShipType ShipType
	Name     string
	CallSign string
	Dest     string
}

// Identity returns the reporting station's MMSI.
func (r StaticVoyageReport) Identity() int64 { return r.MMSI }

// Ship returns the reported ship-and-cargo type.
func (r StaticVoyageReport) Ship() ShipType { return r.ShipType }

// StaticDataReport is a decoded split static report half (class B static
// data). Part 0 carries the name, part 1 the ship type and call sign.
type StaticDataReport struct {
	MMSI     int64
	Part     int
	ShipType ShipType
	Name     string
	CallSign string
}

// Identity returns the reporting station's MMSI.
func (r StaticDataReport) Identity() int64 { return r.MMSI }

// Ship returns the reported ship-and-cargo type.
func (r StaticDataReport) Ship() ShipType { return r.ShipType }

// PartNumber returns which half this report is (0 or 1).
func (r StaticDataReport) PartNumber() int { return r.Part }

// AidToNavigationReport is a decoded aid-to-navigation report.
type AidToNavigationReport struct {
	MMSI int64
	Pos  Position
	Name string
}

// Identity returns the reporting station's MMSI.
func (r AidToNavigationReport) Identity() int64 { return r.MMSI }

// ReportPosition returns the surveyed coordinate of the aid.
func (r AidToNavigationReport) ReportPosition() Position { return r.Pos }

// BaseStationReport is a decoded base station report.
type BaseStationReport struct {
	MMSI int64
	Pos  Position
}

// Identity returns the reporting station's MMSI.
func (r BaseStationReport) Identity() int64 { return r.MMSI }

// ReportPosition returns the base station's coordinate.
func (r BaseStationReport) ReportPosition() Position { return r.Pos }

// Envelope bundles a decoded report with its raw payload and receive context.
// Timestamps are caller-supplied Unix milliseconds; the tracker only compares
// them, it never reads the clock.
type Envelope struct {
	Report    Report
	Raw       []byte
	Kind      TargetKind
	Timestamp int64
	Source    SourceKey
}

// Validate checks the envelope against the tracker's input contract.
func (e Envelope) Validate() error {
	if e.Report == nil {
		return errs.New("schema/envelope", errs.CodeInvalid, errs.WithMessage("report required"))
	}
	if err := ValidateMMSI(e.Report.Identity()); err != nil {
		return err
	}
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if len(e.Raw) == 0 {
		return errs.New("schema/envelope", errs.CodeInvalid, errs.WithMessage("raw payload required"))
	}
	if e.Timestamp < 0 {
		return errs.New("schema/envelope", errs.CodeInvalid, errs.WithMessage("timestamp must be non-negative"))
	}
	return nil
}

// ValidateMMSI verifies the station identity is a positive nine-digit number.
func ValidateMMSI(mmsi int64) error {
	if mmsi <= 0 || mmsi > 999999999 {
		return errs.New("schema/mmsi", errs.CodeInvalid,
			errs.WithMessage("mmsi must be a positive nine-digit number"),
			errs.WithMMSI(mmsi))
	}
	return nil
}
