// Package coordinator implements the time-advance protocol state
// machine (§4.3-§4.5): a shared dependency-graph manipulation layer
// (Base) plus four variants (Distributed, Forwarding, Global, Async)
// that diverge only in updateTimeFactors, checkExecEntry, and the
// transmitTimingMessages* broadcast rules (§9's re-architecting note:
// a sum type of variants over one shared methods module, rather than
// virtual dispatch).
package coordinator

import (
	"github.com/fep-fem/cosim-core/internal/dependency"
	"github.com/fep-fem/cosim-core/protocol"
)

// SendFunc is the injected outbound sink every coordinator uses to
// emit control messages; the coordinator itself never touches a
// socket (§4.3).
type SendFunc func(protocol.ActionMessage)

// TimeCoordinatorVersion is broadcast in the TIMING_INFO message sent
// on entering exec mode (§4.3).
const TimeCoordinatorVersion int32 = 2

// Base holds the state and behavior common to every coordinator
// variant: the dependency graph, the outbound sink, execution-mode
// bookkeeping, and the shared generateTimeRequest/disconnect logic.
type Base struct {
	SourceID protocol.GlobalFederateId
	Deps     *dependency.Graph
	Send     SendFunc

	ExecutionMode    bool
	FederatesOnly    bool
	CurrentMinTime   protocol.Time
	CurrentTimeState protocol.TimeState
	NextEvent        protocol.Time

	sequenceCounter int32
	timeouts        *dependency.GrantTimeoutTracker
}

// NewBase constructs a Base ready for embedding into a concrete
// coordinator variant.
func NewBase(sourceID protocol.GlobalFederateId, send SendFunc) Base {
	return Base{
		SourceID:         sourceID,
		Deps:             dependency.NewGraph(),
		Send:             send,
		CurrentTimeState: protocol.TimeInitialized,
		timeouts:         dependency.NewGrantTimeoutTracker(),
	}
}

// NextSequence advances and returns this node's round counter.
func (b *Base) NextSequence() int32 {
	b.sequenceCounter++
	return b.sequenceCounter
}

func (b *Base) Sequence() int32 { return b.sequenceCounter }

// GrantedTime reports this coordinator's current grantable candidate
// time. Callers read this once rt.Granted flips rather than trusting
// whatever inbound ActionMessage happened to trigger the flip, since a
// node's own UpdateTimeFactors can advance it from processing a
// dependency's request just as easily as from a literal CMD_TIME_GRANT.
func (b *Base) GrantedTime() protocol.Time { return b.CurrentMinTime }

// EnteringExecMode re-validates the dependency graph, computes
// FederatesOnly, and broadcasts TIMING_INFO bearing
// TimeCoordinatorVersion (§4.3).
func (b *Base) EnteringExecMode() error {
	if err := b.Deps.CheckForIssues(); err != nil {
		b.escalate(err)
		return err
	}
	b.FederatesOnly = b.Deps.FederatesOnly()

	info := protocol.NewActionMessage(protocol.CMD_TIMING_INFO)
	info.SourceID = b.SourceID
	info.ExtraData = TimeCoordinatorVersion
	for _, dep := range b.Deps.Dependents() {
		out := info
		out.DestID = dep.FedID
		b.Send(out)
	}
	return nil
}

func (b *Base) escalate(err error) {
	msg := protocol.NewActionMessage(protocol.CMD_GLOBAL_ERROR)
	msg.SourceID = b.SourceID
	msg.DestID = protocol.ParentBrokerID
	msg.StringData = []string{err.Error()}
	b.Send(msg)
}

// Disconnect sends CMD_DISCONNECT to every dependent not already
// marked disconnected. More than one outgoing disconnect is packed
// into a single CMD_MULTI_MESSAGE rather than sent as separate
// ActionMessages (SPEC_FULL.md §C.6, grounded on
// BaseTimeCoordinator::disconnect). Idempotent: a second call finds no
// un-disconnected dependents and sends nothing.
func (b *Base) Disconnect() {
	var pending []protocol.ActionMessage
	for _, dep := range b.Deps.Dependents() {
		if dep.Disconnected {
			continue
		}
		dep.Disconnected = true
		msg := protocol.NewActionMessage(protocol.CMD_DISCONNECT)
		msg.SourceID = b.SourceID
		msg.DestID = dep.FedID
		pending = append(pending, msg)
	}

	switch len(pending) {
	case 0:
		return
	case 1:
		b.Send(pending[0])
	default:
		batch := protocol.NewActionMessage(protocol.CMD_MULTI_MESSAGE)
		batch.SourceID = b.SourceID
		for _, m := range pending {
			batch.StringData = append(batch.StringData, string(m.Packetize()))
		}
		b.Send(batch)
	}
}

// GenerateTimeRequest deterministically builds the outbound control
// message for one dependent given its TimeData/state (§4.3's dispatch
// table). responseCode augments the iteration flags the way a reply to
// an iterative request does; pass protocol.NoIteration when none
// applies. The same (dep, target, responseCode) always produces
// byte-identical content save for timestamps and counters.
func GenerateTimeRequest(dep *dependency.Info, targetFed protocol.GlobalFederateId, responseCode protocol.IterationRequest) protocol.ActionMessage {
	msg := protocol.NewActionMessage(protocol.CMD_IGNORE)
	msg.SourceID = dep.FedID
	msg.DestID = targetFed

	switch dep.State {
	case protocol.TimeGranted:
		msg.Action = protocol.CMD_TIME_GRANT
		msg.ActionTime = dep.Next

	case protocol.TimeRequested, protocol.TimeRequestedIterative, protocol.TimeRequestedRequireIteration:
		msg.Action = protocol.CMD_TIME_REQUEST
		msg.ActionTime = dep.Next
		msg.Te = dep.Te
		msg.Tdemin = protocol.MinTime(dep.MinDe, dep.Te)
		msg.ExtraData = int32(dep.MinFed)
		msg.SequenceID = dep.SequenceCounter
		msg.Flags = protocol.IterationRequestFlags(iterationFor(dep.State, responseCode))

	case protocol.TimeExecRequested, protocol.TimeExecRequestedIterative, protocol.TimeExecRequestedRequireIteration:
		msg.Action = protocol.CMD_EXEC_REQUEST
		msg.ActionTime = protocol.TimeZero
		msg.Flags = protocol.IterationRequestFlags(iterationFor(dep.State, responseCode))

	case protocol.TimeError:
		msg.Action = protocol.CMD_IGNORE

	case protocol.TimeInitialized:
		if dep.ResponseSequenceCounter == 0 {
			msg.Action = protocol.CMD_EXEC_GRANT
			msg.ExtraData = int32(dep.MinFed)
		} else {
			msg.Action = protocol.CMD_IGNORE
		}

	default:
		msg.Action = protocol.CMD_IGNORE
	}

	return msg
}

func iterationFor(state protocol.TimeState, responseCode protocol.IterationRequest) protocol.IterationRequest {
	if state.RequiresIteration() {
		return protocol.ForceIteration
	}
	if state.IsIterative() {
		return protocol.IterateIfNeeded
	}
	return responseCode
}

// GrantTimeoutCheck increments the timeout counter for fedID and
// returns a debugging snapshot when the dump threshold is reached
// (SPEC_FULL.md §C.2).
func (b *Base) GrantTimeoutCheck(fedID protocol.GlobalFederateId) (count int, dump map[string]interface{}) {
	count, should := b.timeouts.Tick(fedID)
	if !should {
		return count, nil
	}
	snap := map[string]interface{}{
		"type":            "grant_timeout",
		"federate":        int32(fedID),
		"count":           count,
		"currentMinTime":  b.CurrentMinTime.String(),
		"currentTimeState": b.CurrentTimeState.String(),
	}
	return count, snap
}

// ResetGrantTimeout clears the timeout counter for fedID once progress
// resumes.
func (b *Base) ResetGrantTimeout(fedID protocol.GlobalFederateId) {
	b.timeouts.Reset(fedID)
}
