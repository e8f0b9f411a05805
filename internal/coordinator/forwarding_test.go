package coordinator

import (
	"testing"

	"github.com/fep-fem/cosim-core/protocol"
)

func TestForwardingSkipsDependentAheadOfCandidate(t *testing.T) {
	var sent []protocol.ActionMessage
	f := NewForwarding(protocol.GlobalFederateId(1), func(m protocol.ActionMessage) { sent = append(sent, m) })

	behind := f.Deps.AddDependent(protocol.GlobalFederateId(2))
	behind.Next = protocol.Time(0)
	ahead := f.Deps.AddDependent(protocol.GlobalFederateId(3))
	ahead.Next = protocol.Time(100)

	set := GenerateMinTimeSet(f.Deps.Dependencies(), false, protocol.InvalidGlobalFederateId)
	set.MinNext = protocol.Time(10)
	set.MinTe = protocol.Time(10)
	f.TransmitTimingMessage(set, protocol.CMD_TIME_GRANT)

	if len(sent) != 1 || sent[0].DestID != protocol.GlobalFederateId(2) {
		t.Fatalf("expected only the behind dependent to receive the grant, got %+v", sent)
	}
}

func TestForwardingExcludesFeedbackLoopForBrokerDependent(t *testing.T) {
	var sent []protocol.ActionMessage
	f := NewForwarding(protocol.GlobalFederateId(1), func(m protocol.ActionMessage) { sent = append(sent, m) })

	brokerDep := f.Deps.AddDependent(protocol.GlobalFederateId(0x70000001))
	brokerDep.Next = protocol.Time(5)
	f.Deps.AddDependency(protocol.GlobalFederateId(0x70000001)).Next = protocol.Time(5)
	f.Deps.AddDependency(protocol.GlobalFederateId(2)).Next = protocol.Time(9)

	set := GenerateMinTimeSet(f.Deps.Dependencies(), false, protocol.InvalidGlobalFederateId)
	f.TransmitTimingMessage(set, protocol.CMD_TIME_REQUEST)

	if len(sent) != 1 {
		t.Fatalf("expected exactly one message to the broker dependent, got %d", len(sent))
	}
	if sent[0].ActionTime != protocol.Time(9) {
		t.Fatalf("expected the broker dependent to receive the min-time computed excluding itself (9), got %v", sent[0].ActionTime)
	}
}

func TestForwardingCheckExecEntry(t *testing.T) {
	f := NewForwarding(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {})
	dep := f.Deps.AddDependency(protocol.GlobalFederateId(2))
	if got := f.CheckExecEntry(0); got != protocol.ContinueProcessing {
		t.Fatalf("expected ContinueProcessing, got %v", got)
	}
	dep.State = protocol.TimeExecRequested
	if got := f.CheckExecEntry(0); got != protocol.NextStep {
		t.Fatalf("expected NextStep, got %v", got)
	}
}
