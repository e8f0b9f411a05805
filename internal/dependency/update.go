package dependency

import "github.com/fep-fem/cosim-core/protocol"

// UpdateTime folds an inbound timing ActionMessage into the Info
// tracked for its source, returning whether anything observable
// changed — the coordinator only needs to re-evaluate and potentially
// emit a new grant when this is true (§4.3 "emit updates when anything
// observable changed").
func (g *Graph) UpdateTime(cmd protocol.ActionMessage) bool {
	info := g.getOrCreate(cmd.SourceID)
	changed := false

	switch cmd.Action {
	case protocol.CMD_TIME_GRANT:
		if info.Next != cmd.ActionTime {
			info.Next = cmd.ActionTime
			changed = true
		}
		if info.LastGrant != cmd.ActionTime {
			info.LastGrant = cmd.ActionTime
			changed = true
		}
		if info.State != protocol.TimeGranted {
			info.State = protocol.TimeGranted
			changed = true
		}

	case protocol.CMD_TIME_REQUEST:
		state := requestState(cmd.Flags)
		if info.Next != cmd.ActionTime || info.Te != cmd.Te || info.MinDe != cmd.Tdemin || info.State != state {
			info.Next = cmd.ActionTime
			info.Te = cmd.Te
			info.MinDe = cmd.Tdemin
			info.State = state
			changed = true
		}
		if info.MinFed != cmd.SourceID {
			info.MinFed = cmd.SourceID
			changed = true
		}

	case protocol.CMD_EXEC_REQUEST:
		state := execRequestState(cmd.Flags)
		if info.State != state {
			info.State = state
			changed = true
		}

	case protocol.CMD_EXEC_GRANT:
		if info.State != protocol.TimeGranted {
			info.State = protocol.TimeGranted
			changed = true
		}
		if info.Next != protocol.TimeZero {
			info.Next = protocol.TimeZero
			changed = true
		}

	case protocol.CMD_DISCONNECT, protocol.CMD_DISCONNECT_FED, protocol.CMD_STOP:
		if !info.Disconnected {
			info.Disconnected = true
			info.Next = protocol.TimeMax
			info.Te = protocol.TimeMax
			changed = true
		}
	}

	if cmd.Flags.Check(protocol.InterruptedFlag) && !info.Interrupted {
		info.Interrupted = true
		changed = true
	}
	if cmd.Flags.Check(protocol.NonGrantingFlag) && !info.NonGranting {
		info.NonGranting = true
		changed = true
	}

	info.SequenceCounter = cmd.SequenceID

	return changed
}

func requestState(flags protocol.Flags) protocol.TimeState {
	switch {
	case flags.Check(protocol.IterationRequestedFlag) && flags.Check(protocol.IndicatorFlag):
		return protocol.TimeRequestedRequireIteration
	case flags.Check(protocol.IterationRequestedFlag):
		return protocol.TimeRequestedIterative
	default:
		return protocol.TimeRequested
	}
}

func execRequestState(flags protocol.Flags) protocol.TimeState {
	switch {
	case flags.Check(protocol.IterationRequestedFlag) && flags.Check(protocol.IndicatorFlag):
		return protocol.TimeExecRequestedRequireIteration
	case flags.Check(protocol.IterationRequestedFlag):
		return protocol.TimeExecRequestedIterative
	default:
		return protocol.TimeExecRequested
	}
}

// VerifySequenceCounter reports whether every dependency's
// ResponseSequenceCounter matches the round currently in progress — the
// gate the Global variant uses before it will broadcast a grant
// (SPEC_FULL.md §C.4, grounded on GlobalTimeCoordinator::updateTimeFactors).
func (g *Graph) VerifySequenceCounter(round int32) bool {
	for _, info := range g.Dependencies() {
		if info.Disconnected {
			continue
		}
		if info.ResponseSequenceCounter != round {
			return false
		}
	}
	return true
}

// RecordResponseSequence stamps the response sequence counter on the
// dependency that just answered a CMD_REQUEST_CURRENT_TIME round.
func (g *Graph) RecordResponseSequence(fedID protocol.GlobalFederateId, round int32) {
	if info, ok := g.peers[fedID]; ok {
		info.ResponseSequenceCounter = round
	}
}

// GrantTimeoutTracker counts repeated grant_timeout expirations per
// dependency (§5 Cancellation & timeouts) and signals when a full debug
// dump is warranted.
type GrantTimeoutTracker struct {
	counts map[protocol.GlobalFederateId]int
}

func NewGrantTimeoutTracker() *GrantTimeoutTracker {
	return &GrantTimeoutTracker{counts: make(map[protocol.GlobalFederateId]int)}
}

// DumpThreshold is the count at which a full debugging JSON dump is
// produced (SPEC_FULL.md §C.2, grounded on BaseTimeCoordinator.cpp's
// grantTimeoutCheck: count reaches 6).
const DumpThreshold = 6

// Tick increments the timeout counter for fedID and reports whether the
// dump threshold was just reached.
func (t *GrantTimeoutTracker) Tick(fedID protocol.GlobalFederateId) (count int, shouldDump bool) {
	t.counts[fedID]++
	count = t.counts[fedID]
	return count, count == DumpThreshold
}

// Reset clears the counter for fedID, called whenever progress resumes.
func (t *GrantTimeoutTracker) Reset(fedID protocol.GlobalFederateId) {
	delete(t.counts, fedID)
}
