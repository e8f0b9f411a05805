package coordinator

import (
	"github.com/fep-fem/cosim-core/protocol"
)

// Forwarding is used at broker nodes that do not themselves schedule
// work: it aggregates its children's timing state into one synthetic
// request/grant per dependent, excluding feedback loops (§4.4
// Forwarding variant, SPEC_FULL.md §C.3, grounded on
// original_source/src/helics/core/ForwardingTimeCoordinator.cpp).
type Forwarding struct {
	Base
}

func NewForwarding(sourceID protocol.GlobalFederateId, send SendFunc) *Forwarding {
	return &Forwarding{Base: NewBase(sourceID, send)}
}

// UpdateTimeFactors recomputes the unrestricted (no federate excluded)
// aggregate used as this node's own reported time upstream.
func (f *Forwarding) UpdateTimeFactors() bool {
	set := GenerateMinTimeSet(f.Deps.Dependencies(), false, protocol.InvalidGlobalFederateId)
	candidate := set.Candidate()
	advanced := candidate != f.CurrentMinTime || set.TimeState != f.CurrentTimeState
	f.CurrentMinTime = candidate
	f.CurrentTimeState = set.TimeState
	f.NextEvent = set.MinTe
	return advanced
}

// GenerateTimeRequestIgnoreDependency recomputes the min-time set with
// one federate excluded — the broker-level exclusion rule (SPEC_FULL.md
// §C.3): any dependent that is itself a broker whose Tnext ties the
// candidate, or who was the candidate's MinFed, must not be told to
// wait on its own reflected time, or it would deadlock against itself.
func (f *Forwarding) GenerateTimeRequestIgnoreDependency(excludeFed protocol.GlobalFederateId) MinTimeSet {
	return GenerateMinTimeSet(f.Deps.Dependencies(), false, excludeFed)
}

// TransmitTimingMessage sends msg (a synthetic TIME_REQUEST/TIME_GRANT)
// to every dependent, applying the exclusion rule to broker dependents
// and skipping any dependent whose own next-time already exceeds the
// candidate (§4.4: "dependents whose Tnext > candidate.actionTime are
// skipped entirely").
func (f *Forwarding) TransmitTimingMessage(candidateSet MinTimeSet, action protocol.ActionCode) {
	for _, dep := range f.Deps.Dependents() {
		if dep.Disconnected {
			continue
		}
		if dep.Next > candidateSet.Candidate() {
			continue
		}

		set := candidateSet
		if dep.FedID.IsBroker() && (dep.Next == candidateSet.Candidate() || dep.FedID == candidateSet.MinFed) {
			set = f.GenerateTimeRequestIgnoreDependency(dep.FedID)
		}

		msg := protocol.NewActionMessage(action)
		msg.SourceID = f.SourceID
		msg.DestID = dep.FedID
		msg.ActionTime = set.Candidate()
		msg.Te = set.MinTe
		msg.Tdemin = set.MinDemin
		msg.ExtraData = int32(set.MinFed)
		msg.SequenceID = f.Sequence()
		f.Send(msg)
	}
}

// Transmit broadcasts this node's current aggregate — a CMD_TIME_GRANT
// once CurrentTimeState has reached TimeGranted, a CMD_TIME_REQUEST
// while still waiting — to every dependent via TransmitTimingMessage,
// applying the broker-exclusion rule per dependent (§4.4 Forwarding
// variant).
func (f *Forwarding) Transmit(responseCode protocol.IterationRequest) {
	_ = responseCode
	set := GenerateMinTimeSet(f.Deps.Dependencies(), false, protocol.InvalidGlobalFederateId)
	action := protocol.CMD_TIME_REQUEST
	if f.CurrentTimeState == protocol.TimeGranted {
		action = protocol.CMD_TIME_GRANT
	}
	f.TransmitTimingMessage(set, action)
}

// CheckExecEntry applies Distributed's barrier: every connected,
// granting dependency must be in an exec-requested state. A child that
// is itself a broker is treated like any other dependency, and a
// require-iteration request does not produce Iterating.
func (f *Forwarding) CheckExecEntry(triggerFed protocol.GlobalFederateId) protocol.MessageProcessingResult {
	_ = triggerFed
	for _, dep := range f.Deps.Dependencies() {
		if dep.Disconnected || dep.NonGranting {
			continue
		}
		switch dep.State {
		case protocol.TimeExecRequested, protocol.TimeExecRequestedIterative, protocol.TimeExecRequestedRequireIteration:
		default:
			return protocol.ContinueProcessing
		}
	}
	f.ExecutionMode = true
	f.CurrentMinTime = protocol.TimeZero
	f.CurrentTimeState = protocol.TimeGranted
	return protocol.NextStep
}

func (f *Forwarding) ProcessDependencyUpdate(cmd protocol.ActionMessage) protocol.TimeProcessingResult {
	switch cmd.Action {
	case protocol.CMD_ADD_DEPENDENCY:
		f.Deps.AddDependency(cmd.SourceID)
	case protocol.CMD_ADD_DEPENDENT:
		f.Deps.AddDependent(cmd.SourceID)
	case protocol.CMD_REMOVE_DEPENDENCY:
		f.Deps.RemoveDependency(cmd.SourceID)
	case protocol.CMD_REMOVE_DEPENDENT:
		f.Deps.RemoveDependent(cmd.SourceID)
	default:
		return protocol.NotProcessed
	}
	return protocol.ProcessedAndCheck
}

func (f *Forwarding) Process(cmd protocol.ActionMessage) protocol.TimeProcessingResult {
	switch cmd.Action {
	case protocol.CMD_TIME_REQUEST, protocol.CMD_TIME_GRANT, protocol.CMD_EXEC_REQUEST, protocol.CMD_EXEC_GRANT,
		protocol.CMD_DISCONNECT, protocol.CMD_DISCONNECT_FED, protocol.CMD_STOP:
		if f.Deps.Get(cmd.SourceID) == nil {
			return protocol.NotProcessed
		}
		if !f.Deps.UpdateTime(cmd) {
			return protocol.Processed
		}
		return protocol.ProcessedAndCheck
	case protocol.CMD_ADD_DEPENDENCY, protocol.CMD_ADD_DEPENDENT,
		protocol.CMD_REMOVE_DEPENDENCY, protocol.CMD_REMOVE_DEPENDENT:
		return f.ProcessDependencyUpdate(cmd)
	default:
		return protocol.NotProcessed
	}
}
