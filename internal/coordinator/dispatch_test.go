package coordinator

import (
	"testing"

	"github.com/fep-fem/cosim-core/protocol"
)

func TestDispatchInitGrantTransitionsToInitializing(t *testing.T) {
	d := NewDistributed(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {}, false)
	rt := &FederateRuntime{State: protocol.FedCreated}

	result := Dispatch(protocol.ActionMessage{Action: protocol.CMD_INIT_GRANT}, d, rt)
	if result != protocol.ContinueProcessing {
		t.Fatalf("expected ContinueProcessing, got %v", result)
	}
	if rt.State != protocol.FedInitializing || !rt.Granted {
		t.Fatalf("expected initializing+granted, got state=%v granted=%v", rt.State, rt.Granted)
	}
}

func TestDispatchInitGrantIteratesWhenFlagged(t *testing.T) {
	d := NewDistributed(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {}, false)
	rt := &FederateRuntime{State: protocol.FedCreated, IterationOn: true}

	result := Dispatch(protocol.ActionMessage{Action: protocol.CMD_INIT_GRANT}, d, rt)
	if result != protocol.Iterating {
		t.Fatalf("expected Iterating, got %v", result)
	}
	if rt.State != protocol.FedCreated {
		t.Fatal("state must not advance while iterating")
	}
}

func TestDispatchTerminateImmediately(t *testing.T) {
	d := NewDistributed(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {}, false)
	rt := &FederateRuntime{State: protocol.FedExecuting}

	result := Dispatch(protocol.ActionMessage{Action: protocol.CMD_TERMINATE_IMMEDIATELY}, d, rt)
	if result != protocol.Halted || rt.State != protocol.FedFinalized {
		t.Fatalf("expected Halted/finalized, got %v/%v", result, rt.State)
	}
}

func TestDispatchStopDisconnectsAndHalts(t *testing.T) {
	var sent []protocol.ActionMessage
	d := NewDistributed(protocol.GlobalFederateId(1), func(m protocol.ActionMessage) { sent = append(sent, m) }, false)
	d.Deps.AddDependent(protocol.GlobalFederateId(2))
	rt := &FederateRuntime{State: protocol.FedExecuting}

	result := Dispatch(protocol.ActionMessage{Action: protocol.CMD_STOP}, d, rt)
	if result != protocol.Halted || rt.State != protocol.FedFinalized {
		t.Fatalf("expected Halted/finalized, got %v/%v", result, rt.State)
	}
	if len(sent) != 1 || sent[0].Action != protocol.CMD_DISCONNECT {
		t.Fatalf("expected a disconnect sent, got %+v", sent)
	}
}

func TestDispatchSelfDisconnectReprocesses(t *testing.T) {
	d := NewDistributed(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {}, false)
	rt := &FederateRuntime{State: protocol.FedExecuting, LocalID: protocol.LocalFederateId(1)}

	cmd := protocol.ActionMessage{Action: protocol.CMD_DISCONNECT, SourceID: protocol.GlobalFederateId(1)}
	result := Dispatch(cmd, d, rt)
	if result != protocol.ReprocessMessage {
		t.Fatalf("expected ReprocessMessage, got %v", result)
	}
	if rt.State != protocol.FedFinalizing {
		t.Fatalf("expected finalizing, got %v", rt.State)
	}
}

func TestDispatchForceTimeGrant(t *testing.T) {
	d := NewDistributed(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {}, false)
	rt := &FederateRuntime{State: protocol.FedExecuting}

	result := Dispatch(protocol.ActionMessage{Action: protocol.CMD_FORCE_TIME_GRANT}, d, rt)
	if result != protocol.NextStep || !rt.Granted {
		t.Fatalf("expected NextStep/granted, got %v/%v", result, rt.Granted)
	}
}

func TestDispatchGlobalErrorMovesToErrorState(t *testing.T) {
	d := NewDistributed(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {}, false)
	rt := &FederateRuntime{State: protocol.FedExecuting}

	result := Dispatch(protocol.ActionMessage{Action: protocol.CMD_GLOBAL_ERROR}, d, rt)
	if result != protocol.ErrorResult || rt.State != protocol.FedError {
		t.Fatalf("expected ErrorResult/error state, got %v/%v", result, rt.State)
	}
}

func TestDispatchExecCheckOnlyWhenInitializingAndNotGranted(t *testing.T) {
	d := NewDistributed(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {}, false)
	rt := &FederateRuntime{State: protocol.FedExecuting, Granted: false}

	result := Dispatch(protocol.ActionMessage{Action: protocol.CMD_EXEC_CHECK}, d, rt)
	if result != protocol.ContinueProcessing {
		t.Fatalf("expected ContinueProcessing when not in initializing state, got %v", result)
	}

	rt2 := &FederateRuntime{State: protocol.FedInitializing, Granted: false}
	result2 := Dispatch(protocol.ActionMessage{Action: protocol.CMD_EXEC_CHECK}, d, rt2)
	if result2 != protocol.NextStep {
		t.Fatalf("expected NextStep with no outstanding dependencies, got %v", result2)
	}
}
