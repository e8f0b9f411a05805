package coordinator

import (
	"testing"

	"github.com/fep-fem/cosim-core/protocol"
)

func TestAsyncCheckExecEntryGrantsImmediately(t *testing.T) {
	var sent []protocol.ActionMessage
	a := NewAsync(protocol.GlobalFederateId(1), func(m protocol.ActionMessage) { sent = append(sent, m) })
	a.Deps.AddDependent(protocol.GlobalFederateId(2))
	a.Deps.AddDependent(protocol.GlobalFederateId(3))

	result := a.CheckExecEntry(0)
	if result != protocol.NextStep {
		t.Fatalf("expected NextStep, got %v", result)
	}
	if !a.ExecutionMode {
		t.Fatal("expected ExecutionMode true")
	}
	if len(sent) == 0 {
		t.Fatal("expected exec grant broadcasts")
	}
	for _, m := range sent {
		if m.Action != protocol.CMD_EXEC_GRANT {
			t.Fatalf("expected only CMD_EXEC_GRANT messages, got %v", m.Action)
		}
	}
}

func TestAsyncNeverWithholdsGrant(t *testing.T) {
	a := NewAsync(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {})
	dep := a.Deps.AddDependency(protocol.GlobalFederateId(2))
	dep.Next = protocol.Time(5)

	if advanced := a.UpdateTimeFactors(); advanced {
		t.Fatal("Async.UpdateTimeFactors should never itself trigger a grant broadcast")
	}
	if a.CurrentMinTime != protocol.Time(5) {
		t.Fatalf("CurrentMinTime should track the unconstrained minimum, got %v", a.CurrentMinTime)
	}
}
