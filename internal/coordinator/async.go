package coordinator

import "github.com/fep-fem/cosim-core/protocol"

// Async performs no time synchronization at all: entry to executing is
// the only barrier, after which each federate runs freely (§4.4 Async
// variant, grounded on
// original_source/src/helics/core/AsyncTimeCoordinator.cpp). Used for
// purely command-driven, real-time, or discard-data federations.
type Async struct {
	Base
}

func NewAsync(sourceID protocol.GlobalFederateId, send SendFunc) *Async {
	return &Async{Base: NewBase(sourceID, send)}
}

// UpdateTimeFactors always reports the unconstrained minimum over
// dependencies with no event-horizon or tie-break projection — an
// Async node never withholds a grant once exec mode is entered.
func (a *Async) UpdateTimeFactors() bool {
	set := GenerateMinTimeSet(a.Deps.Dependencies(), true, protocol.InvalidGlobalFederateId)
	a.CurrentMinTime = set.Candidate()
	a.CurrentTimeState = set.TimeState
	return false
}

// CheckExecEntry is the only barrier Async enforces: once reached,
// every dependent is immediately sent CMD_EXEC_GRANT and execution
// proceeds at TimeZero without further coordination.
func (a *Async) CheckExecEntry(triggerFed protocol.GlobalFederateId) protocol.MessageProcessingResult {
	_ = triggerFed
	a.ExecutionMode = true
	a.CurrentMinTime = protocol.TimeZero
	a.CurrentTimeState = protocol.TimeGranted
	a.NextEvent = protocol.TimeZero

	grant := protocol.NewActionMessage(protocol.CMD_EXEC_GRANT)
	grant.SourceID = a.SourceID
	a.transmitUpstream(grant)
	a.transmitDownstream(grant, protocol.InvalidGlobalFederateId)
	return protocol.NextStep
}

// Transmit broadcasts the node's current unconstrained minimum to every
// child dependent. Async.UpdateTimeFactors never reports an advance and
// Async.Process never returns ProcessedAndCheck, so Dispatch does not
// call it; it exists for interface conformance.
func (a *Async) Transmit(responseCode protocol.IterationRequest) {
	_ = responseCode
	grant := protocol.NewActionMessage(protocol.CMD_TIME_GRANT)
	grant.SourceID = a.SourceID
	grant.ActionTime = a.CurrentMinTime
	a.transmitDownstream(grant, protocol.InvalidGlobalFederateId)
}

func (a *Async) transmitUpstream(msg protocol.ActionMessage) {
	for _, dep := range a.Deps.Dependents() {
		if dep.Connection == protocol.ConnChild {
			continue
		}
		out := msg
		out.DestID = dep.FedID
		if out.Action == protocol.CMD_EXEC_REQUEST {
			out.SetExtraDestData(dep.SequenceCounter)
		}
		a.Send(out)
	}
}

func (a *Async) transmitDownstream(msg protocol.ActionMessage, skipFed protocol.GlobalFederateId) {
	if msg.Action == protocol.CMD_TIME_REQUEST || msg.Action == protocol.CMD_TIME_GRANT {
		for _, dep := range a.Deps.Dependents() {
			if dep.Connection != protocol.ConnChild || dep.FedID == skipFed {
				continue
			}
			if dep.Dependency && dep.Next > msg.ActionTime {
				continue
			}
			out := msg
			out.DestID = dep.FedID
			a.Send(out)
		}
		return
	}
	for _, dep := range a.Deps.Dependents() {
		if dep.FedID == skipFed {
			continue
		}
		out := msg
		out.DestID = dep.FedID
		if out.Action == protocol.CMD_EXEC_REQUEST {
			out.SetExtraDestData(dep.SequenceCounter)
		}
		a.Send(out)
	}
}

func (a *Async) Process(cmd protocol.ActionMessage) protocol.TimeProcessingResult {
	switch cmd.Action {
	case protocol.CMD_EXEC_REQUEST, protocol.CMD_EXEC_GRANT:
		return protocol.Processed
	case protocol.CMD_DISCONNECT, protocol.CMD_DISCONNECT_FED, protocol.CMD_STOP:
		if a.Deps.Get(cmd.SourceID) == nil {
			return protocol.NotProcessed
		}
		a.Deps.UpdateTime(cmd)
		return protocol.Processed
	default:
		return protocol.NotProcessed
	}
}
