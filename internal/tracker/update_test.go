package tracker

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/coastwatch/aistracker/errs"
	"github.com/coastwatch/aistracker/internal/schema"
)

const testMMSI = int64(211339980)

var testSource = schema.SourceKey{Provider: "ais", Channel: "chanA"}

// plainReport carries neither kinematic nor static fields.
type plainReport struct {
	mmsi int64
}

func (r plainReport) Identity() int64 { return r.mmsi }

func positionReport() schema.PositionReportA {
	return schema.PositionReportA{
		MMSI:      testMMSI,
		Pos:       schema.Position{Lat: 55.7, Lon: 12.6},
		COG:       123.4,
		SOG:       10.2,
		NavStatus: schema.NavUnderWayUsingEngine,
	}
}

func mustApply(t *testing.T, existing *TargetSnapshot, rpt schema.Report, raw []byte, kind schema.TargetKind, ts int64, pending PendingParts) *TargetSnapshot {
	t.Helper()
	next, err := ApplyReport(existing, rpt, raw, kind, ts, testSource, pending)
	if err != nil {
		t.Fatalf("ApplyReport() error = %v", err)
	}
	return next
}

func TestApplyFirstPositionReport(t *testing.T) {
	raw := []byte("!AIVDM,pos,100")
	next := mustApply(t, nil, positionReport(), raw, schema.KindVesselA, 100, nil)

	if next == nil {
		t.Fatal("expected snapshot for first position report")
	}
	if !next.HasPosition() {
		t.Error("expected position facet present")
	}
	if next.HasStatic() || next.StaticPartCount() != 0 {
		t.Errorf("expected no static facet, got count %d", next.StaticPartCount())
	}
	if next.PositionTimestamp() != 100 {
		t.Errorf("position timestamp = %d, want 100", next.PositionTimestamp())
	}
	if !bytes.Equal(next.RawPositionReport(), raw) {
		t.Errorf("raw position payload = %q, want %q", next.RawPositionReport(), raw)
	}
	if next.Heading() != nil {
		t.Error("heading must be unreported for position reports")
	}
	if next.NavStatus() == nil || *next.NavStatus() != schema.NavUnderWayUsingEngine {
		t.Errorf("nav status = %v, want under way", next.NavStatus())
	}
	if next.Country() != "DE" {
		t.Errorf("country = %q, want DE for MID 211", next.Country())
	}
}

func TestStalePositionReportLeavesFacetUntouched(t *testing.T) {
	existing := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, nil)

	stale := schema.PositionReportA{MMSI: testMMSI, Pos: schema.Position{Lat: 1, Lon: 1}, COG: 9, SOG: 9}
	next := mustApply(t, existing, stale, []byte("pos-50"), schema.KindVesselA, 50, nil)

	if next != existing {
		t.Fatal("stale position report must return the existing snapshot")
	}
	if !reflect.DeepEqual(next, existing) {
		t.Error("stale report altered the snapshot")
	}
}

func TestEqualTimestampPositionReportAccepted(t *testing.T) {
	existing := mustApply(t, nil, positionReport(), []byte("pos-a"), schema.KindVesselA, 100, nil)
	next := mustApply(t, existing, positionReport(), []byte("pos-b"), schema.KindVesselA, 100, nil)

	if next == existing {
		t.Fatal("equal-timestamp position report must be accepted")
	}
	if !bytes.Equal(next.RawPositionReport(), []byte("pos-b")) {
		t.Errorf("raw position payload = %q, want pos-b", next.RawPositionReport())
	}
}

func TestTwoPartReassembly(t *testing.T) {
	pending := NewSyncPendingParts()

	withPos := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, pending)

	part0 := schema.StaticDataReport{MMSI: testMMSI, Part: 0, Name: "EVER GIVEN"}
	afterPart0 := mustApply(t, withPos, part0, []byte("static-part0"), schema.KindVesselA, 150, pending)

	if afterPart0 != withPos {
		t.Fatal("first half must leave the snapshot unchanged")
	}
	if pending.Len() != 1 {
		t.Fatalf("pending cache length = %d, want 1", pending.Len())
	}

	part1 := schema.StaticDataReport{MMSI: testMMSI, Part: 1, ShipType: 70, CallSign: "ABCD"}
	afterPart1 := mustApply(t, afterPart0, part1, []byte("static-part1"), schema.KindVesselA, 151, pending)

	if afterPart1.StaticPartCount() != 2 {
		t.Fatalf("static part count = %d, want 2", afterPart1.StaticPartCount())
	}
	raws := afterPart1.RawStaticReports()
	if !bytes.Equal(raws[0], []byte("static-part0")) || !bytes.Equal(raws[1], []byte("static-part1")) {
		t.Errorf("reassembled payloads = %q, %q", raws[0], raws[1])
	}
	if afterPart1.ShipType() != 70 {
		t.Errorf("ship type = %d, want 70", afterPart1.ShipType())
	}
	if pending.Len() != 0 {
		t.Errorf("pending cache length = %d, want 0 after reassembly", pending.Len())
	}
	if !afterPart1.HasPosition() || afterPart1.PositionTimestamp() != 100 {
		t.Error("position facet must be carried forward through reassembly")
	}
}

func TestOrphanedSecondPartDiscarded(t *testing.T) {
	pending := NewSyncPendingParts()
	existing := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, pending)

	part1 := schema.StaticDataReport{MMSI: testMMSI, Part: 1, ShipType: 70}
	next := mustApply(t, existing, part1, []byte("static-part1"), schema.KindVesselA, 151, pending)

	if next != existing {
		t.Fatal("orphaned second half must leave the snapshot unchanged")
	}
	if next.HasStatic() {
		t.Error("orphaned second half must not create a static facet")
	}
}

func TestDuplicateFirstPartOverwritesPendingEntry(t *testing.T) {
	pending := NewSyncPendingParts()
	part0 := schema.StaticDataReport{MMSI: testMMSI, Part: 0}

	mustApply(t, nil, part0, []byte("first-half-old"), schema.KindVesselA, 10, pending)
	mustApply(t, nil, part0, []byte("first-half-new"), schema.KindVesselA, 11, pending)

	if pending.Len() != 1 {
		t.Fatalf("pending cache length = %d, want 1 after overwrite", pending.Len())
	}

	part1 := schema.StaticDataReport{MMSI: testMMSI, Part: 1, ShipType: 60}
	next := mustApply(t, nil, part1, []byte("second-half"), schema.KindVesselA, 12, pending)

	raws := next.RawStaticReports()
	if !bytes.Equal(raws[0], []byte("first-half-new")) {
		t.Errorf("part A payload = %q, want the overwriting first half", raws[0])
	}
}

func TestSinglePartStaticReport(t *testing.T) {
	rpt := schema.StaticVoyageReport{MMSI: testMMSI, ShipType: 80, Name: "TANKER"}
	next := mustApply(t, nil, rpt, []byte("static-5"), schema.KindVesselA, 200, nil)

	if next.StaticPartCount() != 1 {
		t.Fatalf("static part count = %d, want 1", next.StaticPartCount())
	}
	if next.HasPosition() {
		t.Error("static-only first contact must not create a position facet")
	}
	if next.ShipType() != 80 {
		t.Errorf("ship type = %d, want 80", next.ShipType())
	}
}

func TestStaticUpdateLeavesPositionFacetUntouched(t *testing.T) {
	existing := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, nil)

	rpt := schema.StaticVoyageReport{MMSI: testMMSI, ShipType: 80}
	next := mustApply(t, existing, rpt, []byte("static-5"), schema.KindVesselA, 200, nil)

	if next.PositionTimestamp() != existing.PositionTimestamp() {
		t.Error("static update changed the position timestamp")
	}
	if next.Position() != existing.Position() {
		t.Error("static update changed the position")
	}
	if next.CourseOverGround() != existing.CourseOverGround() || next.SpeedOverGround() != existing.SpeedOverGround() {
		t.Error("static update changed the kinematics")
	}
	if !bytes.Equal(next.RawPositionReport(), existing.RawPositionReport()) {
		t.Error("static update changed the raw position payload")
	}
	if (next.NavStatus() == nil) != (existing.NavStatus() == nil) {
		t.Error("static update changed the navigation status presence")
	}
}

func TestStaleStaticReportLeavesFacetUntouched(t *testing.T) {
	existing := mustApply(t, nil, schema.StaticVoyageReport{MMSI: testMMSI, ShipType: 80}, []byte("static-200"), schema.KindVesselA, 200, nil)

	next := mustApply(t, existing, schema.StaticVoyageReport{MMSI: testMMSI, ShipType: 30}, []byte("static-150"), schema.KindVesselA, 150, nil)
	if next != existing {
		t.Fatal("stale static report must return the existing snapshot")
	}
}

func TestKindChangeOnPositionDropsStaticFacet(t *testing.T) {
	pending := NewSyncPendingParts()
	withPos := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, pending)
	withBoth := mustApply(t, withPos, schema.StaticVoyageReport{MMSI: testMMSI, ShipType: 80}, []byte("static-150"), schema.KindVesselA, 150, pending)
	if !withBoth.HasStatic() {
		t.Fatal("setup: expected static facet present")
	}

	next := mustApply(t, withBoth, positionReport(), []byte("pos-200"), schema.KindVesselB, 200, pending)
	if next.Kind() != schema.KindVesselB {
		t.Errorf("kind = %v, want VesselB", next.Kind())
	}
	if next.HasStatic() {
		t.Error("kind change must drop the carried-over static facet")
	}
	if !next.HasPosition() {
		t.Error("expected fresh position facet after kind change")
	}
}

func TestKindChangeOnStaticDropsPositionFacet(t *testing.T) {
	withPos := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, nil)

	next := mustApply(t, withPos, schema.StaticVoyageReport{MMSI: testMMSI, ShipType: 80}, []byte("static-150"), schema.KindVesselB, 150, nil)
	if next.HasPosition() {
		t.Error("kind change must drop the carried-over position facet")
	}
	if !next.HasStatic() {
		t.Error("expected fresh static facet after kind change")
	}
	if next.Kind() != schema.KindVesselB {
		t.Errorf("kind = %v, want VesselB", next.Kind())
	}
}

func TestStaleReportForNewKindStillRejected(t *testing.T) {
	existing := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, nil)

	// The timestamp check runs before the kind-change guard: the stale
	// report is dropped and the old-kind facets survive.
	next := mustApply(t, existing, positionReport(), []byte("pos-50"), schema.KindVesselB, 50, nil)
	if next != existing {
		t.Fatal("stale report for a new kind must be rejected as stale")
	}
	if next.Kind() != schema.KindVesselA {
		t.Errorf("kind = %v, want the existing VesselA", next.Kind())
	}
}

func TestSimpleKindReplacesWholeSnapshot(t *testing.T) {
	withBoth := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, nil)
	withBoth = mustApply(t, withBoth, schema.StaticVoyageReport{MMSI: testMMSI, ShipType: 80}, []byte("static-150"), schema.KindVesselA, 150, nil)

	aton := schema.AidToNavigationReport{MMSI: testMMSI, Pos: schema.Position{Lat: 57.1, Lon: 11.9}, Name: "LIGHTBUOY"}
	next := mustApply(t, withBoth, aton, []byte("aton-200"), schema.KindAidToNavigation, 200, nil)

	if next.Kind() != schema.KindAidToNavigation {
		t.Errorf("kind = %v, want AidToNavigation", next.Kind())
	}
	if next.HasStatic() {
		t.Error("aid-to-navigation snapshots never hold a static facet")
	}
	if !next.HasPosition() || next.PositionTimestamp() != 200 {
		t.Error("expected fresh position facet from the aid report")
	}
	if next.Heading() != nil || next.NavStatus() != nil {
		t.Error("simple-kind snapshots carry no heading or navigation status")
	}
}

func TestSimpleKindEqualTimestampRejected(t *testing.T) {
	aton := schema.AidToNavigationReport{MMSI: testMMSI, Pos: schema.Position{Lat: 57.1, Lon: 11.9}}
	existing := mustApply(t, nil, aton, []byte("aton-100"), schema.KindAidToNavigation, 100, nil)

	next := mustApply(t, existing, aton, []byte("aton-100-dup"), schema.KindAidToNavigation, 100, nil)
	if next != existing {
		t.Fatal("simple-kind reports require a strictly newer timestamp")
	}
}

func TestReportWithoutFacetsReturnsExisting(t *testing.T) {
	existing := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, nil)

	next := mustApply(t, existing, plainReport{mmsi: testMMSI}, []byte("safety-msg"), schema.KindVesselA, 200, nil)
	if next != existing {
		t.Fatal("a report with neither facet must return the existing snapshot")
	}
}

func TestApplyReportContractViolations(t *testing.T) {
	cases := []struct {
		name    string
		rpt     schema.Report
		raw     []byte
		kind    schema.TargetKind
		ts      int64
		pending PendingParts
	}{
		{name: "nil report", rpt: nil, raw: []byte("x"), kind: schema.KindVesselA, ts: 1},
		{name: "zero mmsi", rpt: plainReport{mmsi: 0}, raw: []byte("x"), kind: schema.KindVesselA, ts: 1},
		{name: "negative mmsi", rpt: plainReport{mmsi: -7}, raw: []byte("x"), kind: schema.KindVesselA, ts: 1},
		{name: "unknown kind", rpt: plainReport{mmsi: testMMSI}, raw: []byte("x"), kind: schema.KindUnknown, ts: 1},
		{name: "empty payload", rpt: plainReport{mmsi: testMMSI}, raw: nil, kind: schema.KindVesselA, ts: 1},
		{name: "negative timestamp", rpt: plainReport{mmsi: testMMSI}, raw: []byte("x"), kind: schema.KindVesselA, ts: -1},
		{name: "split report without cache", rpt: schema.StaticDataReport{MMSI: testMMSI, Part: 0}, raw: []byte("x"), kind: schema.KindVesselB, ts: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ApplyReport(nil, tc.rpt, tc.raw, tc.kind, tc.ts, testSource, tc.pending)
			if err == nil {
				t.Fatal("expected contract violation error")
			}
			if errs.CodeOf(err) != errs.CodeInvalid {
				t.Errorf("error code = %q, want invalid_request", errs.CodeOf(err))
			}
		})
	}
}

func TestTrackingScenario(t *testing.T) {
	pending := NewSyncPendingParts()

	// Position report at t=100: position facet only.
	snap := mustApply(t, nil, positionReport(), []byte("pos-100"), schema.KindVesselA, 100, pending)
	if !snap.HasPosition() || snap.StaticPartCount() != 0 {
		t.Fatal("expected position-only snapshot after first report")
	}

	// Static part 0 at t=150: snapshot unchanged, entry cached.
	snap = mustApply(t, snap, schema.StaticDataReport{MMSI: testMMSI, Part: 0}, []byte("part0-150"), schema.KindVesselA, 150, pending)
	if snap.StaticPartCount() != 0 || !snap.HasPosition() {
		t.Fatal("first half must not change the snapshot")
	}
	if pending.Len() != 1 {
		t.Fatalf("pending length = %d, want 1", pending.Len())
	}

	// Static part 1 at t=151: reassembled, cache drained.
	snap = mustApply(t, snap, schema.StaticDataReport{MMSI: testMMSI, Part: 1, ShipType: 70}, []byte("part1-151"), schema.KindVesselA, 151, pending)
	if snap.StaticPartCount() != 2 {
		t.Fatalf("static part count = %d, want 2", snap.StaticPartCount())
	}
	if pending.Len() != 0 {
		t.Fatalf("pending length = %d, want 0", pending.Len())
	}

	// Out-of-order position report at t=50: ignored.
	before := snap
	snap = mustApply(t, snap, positionReport(), []byte("pos-50"), schema.KindVesselA, 50, pending)
	if snap != before {
		t.Fatal("out-of-order position report must leave the snapshot unchanged")
	}
}

func TestSnapshotRawPayloadsAreCopies(t *testing.T) {
	raw := []byte("pos-100")
	snap := mustApply(t, nil, positionReport(), raw, schema.KindVesselA, 100, nil)

	raw[0] = 'X'
	if bytes.Equal(snap.RawPositionReport(), raw) {
		t.Error("snapshot must not alias the caller's payload buffer")
	}

	out := snap.RawPositionReport()
	out[0] = 'Y'
	if bytes.Equal(snap.RawPositionReport(), out) {
		t.Error("accessor must return a fresh copy each call")
	}
}
