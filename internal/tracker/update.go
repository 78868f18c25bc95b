package tracker

import (
	"github.com/coastwatch/aistracker/errs"
	"github.com/coastwatch/aistracker/internal/schema"
)

// ApplyReport advances the snapshot for one identity with a newly received
// report. existing is nil on first contact. The returned snapshot may be
// existing itself when the report changed nothing (stale timestamp, buffered
// first half, orphaned second half, report with no facet fields); in
// particular it is nil when there was no existing snapshot and the report
// produced none.
//
// The two facets keep independent timestamp lines: a report is accepted into
// a facet only when its timestamp is not older than that facet's, and
// accepting one facet never requires accepting the other. A kind change on
// an accepted report discards all carried-over state from the old kind; the
// check runs after the timestamp acceptance so an out-of-order report for a
// new kind is still dropped as stale first.
//
// Errors are reserved for input-contract violations (bad identity, unknown
// kind, missing payload, missing cache for a split report); every in-band
// edge case resolves to a defined fallback instead.
func ApplyReport(existing *TargetSnapshot, rpt schema.Report, raw []byte, kind schema.TargetKind, timestamp int64, source schema.SourceKey, pending PendingParts) (*TargetSnapshot, error) {
	if rpt == nil {
		return nil, errs.New("tracker/apply", errs.CodeInvalid, errs.WithMessage("report required"))
	}
	mmsi := rpt.Identity()
	if err := schema.ValidateMMSI(mmsi); err != nil {
		return nil, err
	}
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errs.New("tracker/apply", errs.CodeInvalid,
			errs.WithMessage("raw payload required"), errs.WithMMSI(mmsi))
	}
	if timestamp < 0 {
		return nil, errs.New("tracker/apply", errs.CodeInvalid,
			errs.WithMessage("timestamp must be non-negative"), errs.WithMMSI(mmsi))
	}

	// Aids to navigation and base stations never carry static data: any
	// fresh report replaces the whole snapshot with a position-only facet,
	// discarding a prior static facet left over from a reassigned identity.
	if !kind.CarriesStatic() {
		if existing != nil && timestamp <= existing.positionTimestamp {
			return existing, nil
		}
		return newSimpleSnapshot(mmsi, kind, rpt, raw, timestamp), nil
	}

	result := applyPosition(existing, rpt, raw, kind, timestamp)
	return applyStatic(result, rpt, raw, kind, timestamp, source, pending)
}

func newSimpleSnapshot(mmsi int64, kind schema.TargetKind, rpt schema.Report, raw []byte, timestamp int64) *TargetSnapshot {
	pos := schema.UnavailablePosition()
	if positioned, ok := rpt.(schema.Positioned); ok {
		pos = positioned.ReportPosition()
	}
	return &TargetSnapshot{
		mmsi:              mmsi,
		kind:              kind,
		positionTimestamp: timestamp,
		position:          pos,
		cog:               -1,
		sog:               -1,
		rawPosition:       cloneBytes(raw),
	}
}

func applyPosition(existing *TargetSnapshot, rpt schema.Report, raw []byte, kind schema.TargetKind, timestamp int64) *TargetSnapshot {
	kin, ok := rpt.(schema.KinematicReport)
	if !ok {
		return existing
	}
	if existing != nil && timestamp < existing.positionTimestamp {
		return existing
	}
	// Kind change invalidates carried-over state. Checked after the
	// timestamp acceptance, not before.
	if existing != nil && existing.kind != kind {
		existing = nil
	}

	fields := kin.Kinematics()
	var nav *schema.NavigationStatus
	if withStatus, ok := rpt.(schema.NavStatusReport); ok {
		status := withStatus.NavigationStatus()
		nav = &status
	}

	next := &TargetSnapshot{
		mmsi:              rpt.Identity(),
		kind:              kind,
		positionTimestamp: timestamp,
		position:          fields.Pos,
		cog:               fields.COG,
		sog:               fields.SOG,
		navStatus:         nav,
		rawPosition:       cloneBytes(raw),
	}
	if existing != nil {
		next.staticTimestamp = existing.staticTimestamp
		next.shipType = existing.shipType
		next.rawStaticA = existing.rawStaticA
		next.rawStaticB = existing.rawStaticB
	}
	return next
}

func applyStatic(existing *TargetSnapshot, rpt schema.Report, raw []byte, kind schema.TargetKind, timestamp int64, source schema.SourceKey, pending PendingParts) (*TargetSnapshot, error) {
	static, ok := rpt.(schema.StaticReport)
	if !ok {
		return existing, nil
	}
	if existing != nil && timestamp < existing.staticTimestamp {
		return existing, nil
	}
	// Same guard as the position path, applied independently: a kind change
	// discovered here drops the position facet even if it was just set.
	if existing != nil && existing.kind != kind {
		existing = nil
	}

	var partA, partB []byte
	if parted, ok := rpt.(schema.PartedReport); ok {
		if pending == nil {
			return nil, errs.New("tracker/apply", errs.CodeInvalid,
				errs.WithMessage("pending part cache required for split static reports"),
				errs.WithMMSI(rpt.Identity()))
		}
		if parted.PartNumber() == 0 {
			// Nothing is emitted until the second half arrives. A split
			// report carries no kinematics, so existing already reflects
			// everything this report can contribute.
			pending.Put(source, cloneBytes(raw))
			return existing, nil
		}
		first, found := pending.Remove(source)
		if !found {
			// Orphaned second half: discarded, not buffered.
			return existing, nil
		}
		partA = first
		partB = cloneBytes(raw)
	} else {
		partA = cloneBytes(raw)
	}

	next := &TargetSnapshot{
		mmsi:            rpt.Identity(),
		kind:            kind,
		staticTimestamp: timestamp,
		shipType:        static.Ship(),
		rawStaticA:      partA,
		rawStaticB:      partB,
		position:        schema.UnavailablePosition(),
		cog:             -1,
		sog:             -1,
	}
	if existing != nil {
		next.positionTimestamp = existing.positionTimestamp
		next.position = existing.position
		next.heading = existing.heading
		next.cog = existing.cog
		next.sog = existing.sog
		next.navStatus = existing.navStatus
		next.rawPosition = existing.rawPosition
	}
	return next, nil
}
