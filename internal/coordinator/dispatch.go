package coordinator

import "github.com/fep-fem/cosim-core/protocol"

// Coordinator is the common surface every variant (Distributed,
// Forwarding, Global, Async) satisfies, letting Dispatch (§4.5) operate
// generically without virtual dispatch (§9's re-architecting note).
type Coordinator interface {
	Process(cmd protocol.ActionMessage) protocol.TimeProcessingResult
	CheckExecEntry(triggerFed protocol.GlobalFederateId) protocol.MessageProcessingResult
	UpdateTimeFactors() bool
	EnteringExecMode() error
	Disconnect()

	// GrantedTime is the candidate time a caller should treat as
	// granted once rt.Granted flips, independent of which inbound
	// ActionMessage triggered the flip (§4.4).
	GrantedTime() protocol.Time

	// Transmit broadcasts this node's current grant/request to every
	// dependent (§4.3's generateTimeRequest dispatch table, §4.4's
	// per-variant broadcast rule). Dispatch calls it when a
	// CMD_TIME_REQUEST/CMD_TIME_GRANT makes UpdateTimeFactors report an
	// advance, and when Process returns ProcessedAndCheck for a
	// CMD_EXEC_REQUEST, so a node's own grant actually reaches its
	// dependents instead of only flipping a local flag. The
	// CMD_DISCONNECT branch does not call it.
	Transmit(responseCode protocol.IterationRequest)
}

// FederateRuntime is the per-federate state Dispatch reads and
// mutates: the lifecycle state machine (§3) plus whether the current
// granted-mode barrier has been cleared.
type FederateRuntime struct {
	State       protocol.FederateState
	Granted     bool
	LocalID     protocol.LocalFederateId
	IterationOn bool
}

// Dispatch implements the flat processCoordinatorMessage table (§4.5):
// given one inbound ActionMessage, the coordinator for its target
// federate, and that federate's runtime state, it updates rt in place
// and returns the resulting MessageProcessingResult.
func Dispatch(cmd protocol.ActionMessage, coord Coordinator, rt *FederateRuntime) protocol.MessageProcessingResult {
	switch cmd.Action {
	case protocol.CMD_INIT_GRANT:
		if rt.State != protocol.FedCreated {
			return protocol.ContinueProcessing
		}
		if rt.IterationOn {
			return protocol.Iterating
		}
		rt.State = protocol.FedInitializing
		rt.Granted = true
		return protocol.ContinueProcessing

	case protocol.CMD_EXEC_REQUEST:
		if cmd.SourceID == protocol.InvalidGlobalFederateId && cmd.Flags.Check(protocol.IndicatorFlag) {
			_ = coord.EnteringExecMode()
			rt.Granted = false
			return protocol.ContinueProcessing
		}
		result := coord.Process(cmd)
		if result == protocol.ProcessedAndCheck {
			coord.Transmit(protocol.NoIteration)
		}
		return resultFromProcessing(result, rt)

	case protocol.CMD_EXEC_GRANT:
		result := coord.Process(cmd)
		if result == protocol.NotProcessed {
			return protocol.ContinueProcessing
		}
		rt.State = protocol.FedExecuting
		rt.Granted = true
		return protocol.NextStep

	case protocol.CMD_EXEC_CHECK:
		if rt.State != protocol.FedInitializing || rt.Granted {
			return protocol.ContinueProcessing
		}
		result := coord.CheckExecEntry(cmd.SourceID)
		if result == protocol.NextStep {
			rt.State = protocol.FedExecuting
			rt.Granted = true
		}
		return result

	case protocol.CMD_TERMINATE_IMMEDIATELY:
		rt.State = protocol.FedFinalized
		return protocol.Halted

	case protocol.CMD_STOP:
		coord.Disconnect()
		rt.State = protocol.FedFinalized
		return protocol.Halted

	case protocol.CMD_DISCONNECT:
		if cmd.SourceID == rt.LocalFed() {
			if rt.State == protocol.FedFinalized || rt.State == protocol.FedFinalizing {
				return protocol.ContinueProcessing
			}
			coord.Disconnect()
			rt.State = protocol.FedFinalizing
			return protocol.ReprocessMessage
		}
		if rt.State == protocol.FedExecuting {
			result := coord.Process(cmd)
			mp := resultFromProcessing(result, rt)
			if coord.UpdateTimeFactors() {
				return protocol.NextStep
			}
			return mp
		}
		return protocol.ContinueProcessing

	case protocol.CMD_TIME_REQUEST, protocol.CMD_TIME_GRANT:
		if rt.State != protocol.FedExecuting || rt.Granted {
			return protocol.ContinueProcessing
		}
		result := coord.Process(cmd)
		mp := resultFromProcessing(result, rt)
		if result == protocol.ProcessedAndCheck && coord.UpdateTimeFactors() {
			rt.Granted = true
			coord.Transmit(protocol.NoIteration)
			return protocol.NextStep
		}
		return mp

	case protocol.CMD_FORCE_TIME_GRANT:
		rt.Granted = true
		return protocol.NextStep

	case protocol.CMD_ERROR, protocol.CMD_LOCAL_ERROR, protocol.CMD_GLOBAL_ERROR:
		rt.State = protocol.FedError
		return protocol.ErrorResult

	case protocol.CMD_ADD_DEPENDENCY, protocol.CMD_ADD_DEPENDENT,
		protocol.CMD_REMOVE_DEPENDENCY, protocol.CMD_REMOVE_DEPENDENT:
		result := coord.Process(cmd)
		return resultFromProcessing(result, rt)

	case protocol.CMD_TIME_BLOCK, protocol.CMD_TIME_UNBLOCK, protocol.CMD_TIME_BARRIER:
		result := coord.Process(cmd)
		if result == protocol.NotProcessed {
			return protocol.ContinueProcessing
		}
		return protocol.ReprocessMessage

	default:
		return protocol.ContinueProcessing
	}
}

func resultFromProcessing(result protocol.TimeProcessingResult, rt *FederateRuntime) protocol.MessageProcessingResult {
	switch result {
	case protocol.NotProcessed:
		return protocol.ContinueProcessing
	case protocol.DelayProcessing:
		return protocol.DelayMessage
	case protocol.ProcessedAndCheck:
		return protocol.ContinueProcessing
	default:
		return protocol.ContinueProcessing
	}
}

// LocalFed reports the GlobalFederateId this runtime's own coordinator
// acts as; Dispatch compares an inbound CMD_DISCONNECT's source against
// it to distinguish self-disconnect from a peer's.
func (rt *FederateRuntime) LocalFed() protocol.GlobalFederateId {
	return protocol.GlobalFederateId(rt.LocalID)
}
