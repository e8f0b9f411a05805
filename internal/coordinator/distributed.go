package coordinator

import (
	"github.com/fep-fem/cosim-core/internal/dependency"
	"github.com/fep-fem/cosim-core/protocol"
)

// Distributed is the default variant (§4.4): every node computes its
// own minimum grantable time from the full dependency set on every
// round, advancing a monotone SequenceCounter so dependents can tell a
// stale response from a current one.
type Distributed struct {
	Base

	restrictive bool
}

// NewDistributed constructs a Distributed coordinator. restrictive
// corresponds to the restrictive-time-policy flag (§4.4 rule 5).
func NewDistributed(sourceID protocol.GlobalFederateId, send SendFunc, restrictive bool) *Distributed {
	return &Distributed{Base: NewBase(sourceID, send), restrictive: restrictive}
}

// UpdateTimeFactors recomputes CurrentMinTime/CurrentTimeState from the
// full dependency set and reports whether the grantable candidate
// advanced (callers use this to decide whether a new TIME_GRANT must
// be broadcast).
func (d *Distributed) UpdateTimeFactors() bool {
	set := GenerateMinTimeSet(d.Deps.Dependencies(), d.restrictive, protocol.InvalidGlobalFederateId)
	candidate := set.Candidate()

	if !d.readyForGrant(candidate, set.TimeState) {
		return false
	}

	advanced := candidate != d.CurrentMinTime || set.TimeState != d.CurrentTimeState
	d.CurrentMinTime = candidate
	d.CurrentTimeState = set.TimeState
	d.NextEvent = set.MinTe
	return advanced
}

// readyForGrant is the sequence-counter gate (§4.4): a node may only
// grant when every dependency whose Next <= candidate reports a
// sequence counter at least as new as this node's current round.
func (d *Distributed) readyForGrant(candidate protocol.Time, state protocol.TimeState) bool {
	if !GenerateMinTimeSet(d.Deps.Dependencies(), d.restrictive, protocol.InvalidGlobalFederateId).Valid() {
		return false
	}
	round := d.Sequence()
	for _, dep := range d.Deps.Dependencies() {
		if dep.Disconnected || dep.NonGranting {
			continue
		}
		if dep.Next <= candidate && dep.SequenceCounter < round {
			return false
		}
	}
	_ = state
	return true
}

// CheckExecEntry implements the exec-mode barrier check: every
// dependency must have reported an exec-request state before this node
// may advance to NEXT_STEP.
func (d *Distributed) CheckExecEntry(triggerFed protocol.GlobalFederateId) protocol.MessageProcessingResult {
	_ = triggerFed
	for _, dep := range d.Deps.Dependencies() {
		if dep.Disconnected || dep.NonGranting {
			continue
		}
		switch dep.State {
		case protocol.TimeExecRequested, protocol.TimeExecRequestedIterative, protocol.TimeExecRequestedRequireIteration:
			// this dependency has requested exec entry
		default:
			return protocol.ContinueProcessing
		}
	}

	d.ExecutionMode = true
	d.CurrentMinTime = protocol.TimeZero
	d.CurrentTimeState = protocol.TimeGranted

	requiresIteration := false
	for _, dep := range d.Deps.Dependencies() {
		if dep.State.RequiresIteration() {
			requiresIteration = true
		}
	}
	if requiresIteration {
		d.NextSequence()
		return protocol.Iterating
	}
	return protocol.NextStep
}

// TransmitTimingMessages broadcasts msg to every dependent, setting
// per-dependent ExtraDestData when the message is a CMD_EXEC_REQUEST
// round marker, mirroring AsyncTimeCoordinator::transmitTimingMessagesUpstream.
func (d *Distributed) TransmitTimingMessages(msg protocol.ActionMessage) {
	for _, dep := range d.Deps.Dependents() {
		out := msg
		out.DestID = dep.FedID
		if out.Action == protocol.CMD_EXEC_REQUEST {
			out.SetExtraDestData(dep.SequenceCounter)
		}
		d.Send(out)
	}
}

// Transmit builds the outbound message for this node's own advanced
// state via GenerateTimeRequest (treating the node itself as the "dep"
// whose TimeData is reported) and broadcasts it to every dependent
// through TransmitTimingMessages (§4.3/§4.4).
func (d *Distributed) Transmit(responseCode protocol.IterationRequest) {
	self := dependency.NewInfo(d.SourceID, protocol.ConnSelf)
	self.State = d.CurrentTimeState
	self.Next = d.CurrentMinTime
	self.Te = d.NextEvent
	self.MinDe = d.NextEvent
	self.SequenceCounter = d.Sequence()
	msg := GenerateTimeRequest(&self, d.SourceID, responseCode)
	d.TransmitTimingMessages(msg)
}

// ProcessDependencyUpdate handles CMD_ADD_DEPENDENCY/CMD_ADD_DEPENDENT/
// CMD_REMOVE_* traffic (§4.5's CMD_ADD_* / CMD_REMOVE_* row).
func (d *Distributed) ProcessDependencyUpdate(cmd protocol.ActionMessage) protocol.TimeProcessingResult {
	switch cmd.Action {
	case protocol.CMD_ADD_DEPENDENCY:
		d.Deps.AddDependency(cmd.SourceID)
	case protocol.CMD_ADD_DEPENDENT:
		d.Deps.AddDependent(cmd.SourceID)
	case protocol.CMD_REMOVE_DEPENDENCY:
		d.Deps.RemoveDependency(cmd.SourceID)
	case protocol.CMD_REMOVE_DEPENDENT:
		d.Deps.RemoveDependent(cmd.SourceID)
	default:
		return protocol.NotProcessed
	}
	return protocol.ProcessedAndCheck
}

// Process folds an inbound timing message into the dependency graph
// and reports the §4.1 processing-result contract.
func (d *Distributed) Process(cmd protocol.ActionMessage) protocol.TimeProcessingResult {
	switch cmd.Action {
	case protocol.CMD_TIME_REQUEST, protocol.CMD_TIME_GRANT, protocol.CMD_EXEC_REQUEST, protocol.CMD_EXEC_GRANT,
		protocol.CMD_DISCONNECT, protocol.CMD_DISCONNECT_FED, protocol.CMD_STOP:
		if d.Deps.Get(cmd.SourceID) == nil {
			return protocol.NotProcessed
		}
		changed := d.Deps.UpdateTime(cmd)
		if !changed {
			return protocol.Processed
		}
		return protocol.ProcessedAndCheck
	case protocol.CMD_ADD_DEPENDENCY, protocol.CMD_ADD_DEPENDENT,
		protocol.CMD_REMOVE_DEPENDENCY, protocol.CMD_REMOVE_DEPENDENT:
		return d.ProcessDependencyUpdate(cmd)
	default:
		return protocol.NotProcessed
	}
}
