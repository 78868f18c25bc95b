package schema

import (
	"github.com/coastwatch/aistracker/errs"
)

// TargetKind identifies the category of a tracked station. The set is closed:
// update logic compares kinds for equality and a value outside this set must
// never reach the tracker.
type TargetKind uint8

const (
	// KindUnknown marks a report whose station category could not be inferred.
	KindUnknown TargetKind = iota
	// KindVesselA identifies a class A vessel transponder.
	KindVesselA
	// KindVesselB identifies a class B vessel transponder.
	KindVesselB
	// KindAidToNavigation identifies a fixed or floating aid to navigation.
	KindAidToNavigation
	// KindBaseStation identifies a shore-side base station.
	KindBaseStation
	// KindSAR identifies a search-and-rescue aircraft transponder.
	KindSAR
)

// Validate ensures the kind belongs to the closed set.
func (k TargetKind) Validate() error {
	switch k {
	case KindVesselA, KindVesselB, KindAidToNavigation, KindBaseStation, KindSAR:
		return nil
	case KindUnknown:
		return errs.New("schema/kind", errs.CodeInvalid, errs.WithMessage("target kind unknown"))
	default:
		return errs.New("schema/kind", errs.CodeInvalid, errs.WithMessage("target kind out of range"))
	}
}

// CarriesStatic reports whether stations of this kind ever transmit static
// voyage data. Aids to navigation and base stations never do; their snapshots
// hold a position facet only.
func (k TargetKind) CarriesStatic() bool {
	switch k {
	case KindAidToNavigation, KindBaseStation:
		return false
	default:
		return true
	}
}

func (k TargetKind) String() string {
	switch k {
	case KindVesselA:
		return "VesselA"
	case KindVesselB:
		return "VesselB"
	case KindAidToNavigation:
		return "AidToNavigation"
	case KindBaseStation:
		return "BaseStation"
	case KindSAR:
		return "SAR"
	default:
		return "Unknown"
	}
}
