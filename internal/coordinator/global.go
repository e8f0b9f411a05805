package coordinator

import "github.com/fep-fem/cosim-core/protocol"

// Global is the single-root variant: one coordinator decides grants
// for the whole federation by polling every dependency with
// CMD_REQUEST_CURRENT_TIME and waiting for matching-round responses
// before broadcasting a grant (§4.4 Global variant, SPEC_FULL.md §C.4,
// grounded on original_source/src/helics/core/GlobalTimeCoordinator.cpp).
type Global struct {
	Base

	round      int32
	newRequest bool
}

func NewGlobal(sourceID protocol.GlobalFederateId, send SendFunc) *Global {
	return &Global{Base: NewBase(sourceID, send)}
}

// FindNextTriggerEvent returns the earliest event horizon across every
// tracked dependency, the candidate the next polling round targets.
func (g *Global) FindNextTriggerEvent() protocol.Time {
	earliest := protocol.TimeMax
	for _, dep := range g.Deps.Dependencies() {
		if dep.Disconnected {
			continue
		}
		if dep.Te < earliest {
			earliest = dep.Te
		}
	}
	return earliest
}

// CheckForTriggered reports whether any dependency became Triggered
// since the current polling round began — such a dependency invalidates
// the round in progress and forces a retry at the same trigger time.
func (g *Global) CheckForTriggered() bool {
	for _, dep := range g.Deps.Dependencies() {
		if dep.Triggered {
			return true
		}
	}
	return false
}

// SendTimeUpdateRequest begins a new polling round: triggerTime is set
// to nextEvent + epsilon (the reference implementation's exact rule),
// CMD_REQUEST_CURRENT_TIME is sent to every dependency stamped with the
// new round number. A request arriving mid-round is recorded separately
// by RequestDuringRound (the mNewRequest interaction).
func (g *Global) SendTimeUpdateRequest() {
	g.round = g.NextSequence()
	g.NextEvent = g.FindNextTriggerEvent()
	triggerTime := g.NextEvent.Add(protocol.TimeEpsilon)

	for _, dep := range g.Deps.Dependencies() {
		if dep.Disconnected {
			continue
		}
		msg := protocol.NewActionMessage(protocol.CMD_REQUEST_CURRENT_TIME)
		msg.SourceID = g.SourceID
		msg.DestID = dep.FedID
		msg.ActionTime = triggerTime
		msg.SequenceID = g.round
		g.Send(msg)
	}
}

// RequestDuringRound marks that a new time request arrived while a
// polling round was outstanding; UpdateTimeFactors must then run
// another round even if VerifySequenceCounter already reports done.
func (g *Global) RequestDuringRound() { g.newRequest = true }

// UpdateTimeFactors is the sequence-counter verification loop. A
// dependency that became Triggered restarts the round. While responses
// to the current round are still outstanding it waits (reports false).
// Once every response matches, a request that arrived mid-round forces
// another SendTimeUpdateRequest round; otherwise the grant is decided
// and reported as an advance when its time or state changed.
func (g *Global) UpdateTimeFactors() bool {
	if g.CheckForTriggered() {
		g.SendTimeUpdateRequest()
		return false
	}

	if !g.Deps.VerifySequenceCounter(g.round) {
		return false
	}
	if g.newRequest {
		g.newRequest = false
		g.SendTimeUpdateRequest()
		return false
	}

	candidate := protocol.MinTime(g.NextEvent, g.minNext())
	advanced := candidate != g.CurrentMinTime || g.CurrentTimeState != protocol.TimeGranted
	g.CurrentMinTime = candidate
	g.CurrentTimeState = protocol.TimeGranted
	return advanced
}

func (g *Global) minNext() protocol.Time {
	min := protocol.TimeMax
	for _, dep := range g.Deps.Dependencies() {
		if dep.Disconnected {
			continue
		}
		if dep.Next < min {
			min = dep.Next
		}
	}
	return min
}

// TransmitGrant broadcasts the globally-decided grant time to every
// dependent; nothing is sent upstream.
func (g *Global) TransmitGrant() {
	msg := protocol.NewActionMessage(protocol.CMD_TIME_GRANT)
	msg.SourceID = g.SourceID
	msg.ActionTime = g.CurrentMinTime
	msg.SequenceID = g.round
	for _, dep := range g.Deps.Dependents() {
		out := msg
		out.DestID = dep.FedID
		g.Send(out)
	}
}

// Transmit satisfies the Coordinator interface by delegating to
// TransmitGrant; the Global variant's broadcast is always the same
// globally-decided grant regardless of responseCode.
func (g *Global) Transmit(responseCode protocol.IterationRequest) {
	_ = responseCode
	g.TransmitGrant()
}

func (g *Global) CheckExecEntry(triggerFed protocol.GlobalFederateId) protocol.MessageProcessingResult {
	_ = triggerFed
	for _, dep := range g.Deps.Dependencies() {
		if dep.Disconnected {
			continue
		}
		switch dep.State {
		case protocol.TimeExecRequested, protocol.TimeExecRequestedIterative, protocol.TimeExecRequestedRequireIteration:
		default:
			return protocol.ContinueProcessing
		}
	}
	g.ExecutionMode = true
	g.CurrentMinTime = protocol.TimeZero
	g.CurrentTimeState = protocol.TimeGranted
	return protocol.NextStep
}

func (g *Global) Process(cmd protocol.ActionMessage) protocol.TimeProcessingResult {
	switch cmd.Action {
	case protocol.CMD_REQUEST_CURRENT_TIME:
		if info := g.Deps.Get(cmd.SourceID); info != nil {
			info.Triggered = false
			g.Deps.RecordResponseSequence(cmd.SourceID, cmd.SequenceID)
		}
		return protocol.ProcessedAndCheck
	case protocol.CMD_TIME_REQUEST, protocol.CMD_TIME_GRANT, protocol.CMD_EXEC_REQUEST, protocol.CMD_EXEC_GRANT,
		protocol.CMD_DISCONNECT, protocol.CMD_DISCONNECT_FED, protocol.CMD_STOP:
		if g.Deps.Get(cmd.SourceID) == nil {
			return protocol.NotProcessed
		}
		if info := g.Deps.Get(cmd.SourceID); info != nil {
			info.Triggered = true
		}
		if !g.Deps.UpdateTime(cmd) {
			return protocol.Processed
		}
		g.RequestDuringRound()
		return protocol.ProcessedAndCheck
	default:
		return protocol.NotProcessed
	}
}
