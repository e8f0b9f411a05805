package coordinator

import (
	"testing"

	"github.com/fep-fem/cosim-core/protocol"
)

func TestGlobalSendTimeUpdateRequestUsesNextEventPlusEpsilon(t *testing.T) {
	var sent []protocol.ActionMessage
	g := NewGlobal(protocol.GlobalFederateId(1), func(m protocol.ActionMessage) { sent = append(sent, m) })
	dep := g.Deps.AddDependency(protocol.GlobalFederateId(2))
	dep.Te = protocol.Time(100)

	g.SendTimeUpdateRequest()

	if len(sent) != 1 {
		t.Fatalf("expected 1 CMD_REQUEST_CURRENT_TIME, got %d", len(sent))
	}
	want := protocol.Time(100).Add(protocol.TimeEpsilon)
	if sent[0].ActionTime != want {
		t.Fatalf("triggerTime = %v, want nextEvent+epsilon = %v", sent[0].ActionTime, want)
	}
	if sent[0].Action != protocol.CMD_REQUEST_CURRENT_TIME {
		t.Fatalf("expected CMD_REQUEST_CURRENT_TIME, got %v", sent[0].Action)
	}
}

func TestGlobalUpdateTimeFactorsWaitsForAllResponses(t *testing.T) {
	var sent []protocol.ActionMessage
	g := NewGlobal(protocol.GlobalFederateId(1), func(m protocol.ActionMessage) { sent = append(sent, m) })
	a := g.Deps.AddDependency(protocol.GlobalFederateId(2))
	a.Te = protocol.Time(10)
	b := g.Deps.AddDependency(protocol.GlobalFederateId(3))
	b.Te = protocol.Time(20)

	g.SendTimeUpdateRequest()
	round := g.Sequence()

	if g.UpdateTimeFactors() {
		t.Fatal("expected no advance before any dependency responds")
	}

	g.Deps.RecordResponseSequence(protocol.GlobalFederateId(2), round)
	if g.UpdateTimeFactors() {
		t.Fatal("expected no advance with only one of two dependencies responding")
	}

	g.Deps.RecordResponseSequence(protocol.GlobalFederateId(3), round)
	if !g.UpdateTimeFactors() {
		t.Fatal("expected advance once all dependencies respond with the matching round")
	}
}

func TestGlobalNewRequestForcesAnotherRound(t *testing.T) {
	g := NewGlobal(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {})
	dep := g.Deps.AddDependency(protocol.GlobalFederateId(2))
	dep.Te = protocol.Time(5)

	g.SendTimeUpdateRequest()
	round := g.Sequence()
	g.Deps.RecordResponseSequence(protocol.GlobalFederateId(2), round)

	g.RequestDuringRound()
	if g.UpdateTimeFactors() {
		t.Fatal("a request arriving mid-round must force another round even with all responses present")
	}
}

func TestGlobalTriggeredDependencyInvalidatesRound(t *testing.T) {
	g := NewGlobal(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {})
	dep := g.Deps.AddDependency(protocol.GlobalFederateId(2))
	dep.Te = protocol.Time(5)
	dep.Triggered = true

	if g.UpdateTimeFactors() {
		t.Fatal("expected no advance while a dependency is marked Triggered")
	}
}
