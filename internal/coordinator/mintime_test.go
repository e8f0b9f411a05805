package coordinator

import (
	"testing"

	"github.com/fep-fem/cosim-core/internal/dependency"
	"github.com/fep-fem/cosim-core/protocol"
)

func depAt(fedID int32, next, te, minDe protocol.Time) *dependency.Info {
	info := dependency.NewInfo(protocol.GlobalFederateId(fedID), protocol.ConnChild)
	info.Next = next
	info.Te = te
	info.MinDe = minDe
	info.State = protocol.TimeGranted
	info.Dependency = true
	info.Dependent = true
	return &info
}

func TestGenerateMinTimeSetBasicMinimum(t *testing.T) {
	deps := []*dependency.Info{
		depAt(1, protocol.Time(5), protocol.Time(6), protocol.Time(7)),
		depAt(2, protocol.Time(8), protocol.Time(9), protocol.Time(10)),
	}
	set := GenerateMinTimeSet(deps, false, protocol.InvalidGlobalFederateId)
	if set.MinNext != protocol.Time(5) {
		t.Fatalf("MinNext = %v, want 5", set.MinNext)
	}
	if set.MinFed != protocol.GlobalFederateId(1) {
		t.Fatalf("MinFed = %v, want 1", set.MinFed)
	}
}

func TestGenerateMinTimeSetTieBreakAuthoritative(t *testing.T) {
	a := depAt(1, protocol.Time(5), protocol.Time(6), protocol.Time(10)) // MinDe > Next: authoritative
	b := depAt(2, protocol.Time(5), protocol.Time(6), protocol.Time(3))  // MinDe < Next

	set := GenerateMinTimeSet([]*dependency.Info{a, b}, false, protocol.InvalidGlobalFederateId)
	if !set.Valid() {
		t.Fatal("expected a valid candidate when one tied dependency is authoritative")
	}
	if set.MinFed != protocol.GlobalFederateId(1) {
		t.Fatalf("expected authoritative dependency 1 to win tie-break, got %v", set.MinFed)
	}
}

func TestGenerateMinTimeSetTieBreakInvalidatesWithNoAuthority(t *testing.T) {
	a := depAt(1, protocol.Time(5), protocol.Time(6), protocol.Time(2))
	b := depAt(2, protocol.Time(5), protocol.Time(6), protocol.Time(3))

	set := GenerateMinTimeSet([]*dependency.Info{a, b}, false, protocol.InvalidGlobalFederateId)
	if set.Valid() {
		t.Fatal("expected candidate invalidated when no tied dependency is authoritative")
	}
}

func TestGenerateMinTimeSetRestrictiveSkipsLookahead(t *testing.T) {
	dep := depAt(1, protocol.Time(5), protocol.Time(1), protocol.Time(1))
	set := GenerateMinTimeSet([]*dependency.Info{dep}, true, protocol.InvalidGlobalFederateId)
	if set.MinTe != protocol.TimeMax {
		t.Fatalf("restrictive mode must not project Te, got %v", set.MinTe)
	}
	if set.Candidate() != protocol.Time(5) {
		t.Fatalf("restrictive candidate should equal MinNext, got %v", set.Candidate())
	}
}

func TestGenerateMinTimeSetExcludesFederate(t *testing.T) {
	a := depAt(1, protocol.Time(5), protocol.Time(6), protocol.Time(7))
	b := depAt(2, protocol.Time(8), protocol.Time(9), protocol.Time(10))

	set := GenerateMinTimeSet([]*dependency.Info{a, b}, false, protocol.GlobalFederateId(1))
	if set.MinNext != protocol.Time(8) {
		t.Fatalf("expected excluded federate 1 to be ignored, MinNext=%v", set.MinNext)
	}
}

func TestGenerateMinTimeSetSkipsDisconnected(t *testing.T) {
	a := depAt(1, protocol.Time(1), protocol.Time(1), protocol.Time(1))
	a.Disconnected = true
	b := depAt(2, protocol.Time(9), protocol.Time(9), protocol.Time(9))

	set := GenerateMinTimeSet([]*dependency.Info{a, b}, false, protocol.InvalidGlobalFederateId)
	if set.MinNext != protocol.Time(9) {
		t.Fatalf("disconnected dependency must be ignored, got MinNext=%v", set.MinNext)
	}
}

func TestGenerateMinTimeSetTsoTieInvalidatesMinFed(t *testing.T) {
	a := dependency.NewInfo(protocol.GlobalFederateId(1), protocol.ConnChild)
	a.Next = protocol.Time(4)
	a.Dependency = true // source-only: dependency but not dependent
	b := dependency.NewInfo(protocol.GlobalFederateId(2), protocol.ConnChild)
	b.Next = protocol.Time(4)
	b.Dependency = true

	set := GenerateMinTimeSet([]*dependency.Info{&a, &b}, false, protocol.InvalidGlobalFederateId)
	if set.MinFed != protocol.InvalidGlobalFederateId {
		t.Fatalf("expected invalidated MinFed on tied Tso candidates, got %v", set.MinFed)
	}
}
