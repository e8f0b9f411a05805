// Package federate implements the federate-side lifecycle state machine
// (§3): created -> initializing -> executing -> {finalizing ->
// finalized | error}, driven only by inbound CMD_INIT_GRANT,
// CMD_EXEC_GRANT, CMD_DISCONNECT*, and error commands (§4.5) and
// suspending the calling goroutine exactly at the points §5 names:
// enterInitializingMode, enterExecutingMode, and requestTime.
package federate

import (
	"fmt"

	"github.com/fep-fem/cosim-core/internal/coordinator"
	"github.com/fep-fem/cosim-core/internal/handle"
	"github.com/fep-fem/cosim-core/protocol"
	"github.com/sirupsen/logrus"
)

// Federate is one simulator's handle onto the federation: its identity,
// its slice of a Core's TimeCoordinator, and its own interface registry.
type Federate struct {
	Name     string
	GlobalID protocol.GlobalFederateId
	LocalID  protocol.LocalFederateId

	coord   coordinator.Coordinator
	rt      *coordinator.FederateRuntime
	handles *handle.Manager
	send    coordinator.SendFunc
	inbox   chan protocol.ActionMessage
	logger  *logrus.Logger

	granted protocol.Time
}

// New constructs a Federate bound to an already-configured coordinator.
// send is the sink Core uses to move this federate's outbound control
// traffic toward its coordinator/broker; inbox delivers inbound
// ActionMessages addressed to it (Deliver appends to this channel).
func New(name string, globalID protocol.GlobalFederateId, localID protocol.LocalFederateId, coord coordinator.Coordinator, send coordinator.SendFunc) *Federate {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	return &Federate{
		Name:     name,
		GlobalID: globalID,
		LocalID:  localID,
		coord:    coord,
		rt:       &coordinator.FederateRuntime{State: protocol.FedCreated, LocalID: localID},
		handles:  handle.NewManager(),
		send:     send,
		inbox:    make(chan protocol.ActionMessage, 64),
		logger:   logger,
	}
}

// State reports the federate's current lifecycle state.
func (f *Federate) State() protocol.FederateState { return f.rt.State }

// Handles exposes the federate's own interface registry so callers can
// register publications/inputs/endpoints before entering initializing
// mode (§4.2).
func (f *Federate) Handles() *handle.Manager { return f.handles }

// GrantedTime returns the most recent time this federate was granted,
// for the query engine's `current_time` query (§6).
func (f *Federate) GrantedTime() protocol.Time { return f.granted }

// Deliver enqueues an inbound ActionMessage for this federate's own
// processing loop. It is the only way another component hands this
// federate a message; Deliver never blocks the caller on the
// federate's internal state, only on a full inbox (back-pressure).
func (f *Federate) Deliver(cmd protocol.ActionMessage) {
	f.inbox <- cmd
}

// EnterInitializingMode blocks (§5) until this federate transitions out
// of created, i.e. until its core grants CMD_INIT_GRANT.
func (f *Federate) EnterInitializingMode() error {
	if f.rt.State != protocol.FedCreated {
		return protocol.NewError(protocol.InvalidFunctionCall,
			fmt.Sprintf("enterInitializingMode called from state %s", f.rt.State), nil)
	}
	if errs := f.handles.FinalizeLinks(); len(errs) > 0 {
		return errs[0]
	}
	for f.rt.State == protocol.FedCreated {
		cmd := <-f.inbox
		result := coordinator.Dispatch(cmd, f.coord, f.rt)
		if result == protocol.ErrorResult {
			return protocol.NewError(protocol.ExecutionFailure, "entered error state during initialization", nil)
		}
	}
	f.logger.WithField("federate", f.Name).Info("entered initializing mode")
	return nil
}

// EnterExecutingMode sends CMD_EXEC_REQUEST upward and blocks until
// granted, re-sending on every Iterating result (§4.4/§4.5).
func (f *Federate) EnterExecutingMode(iterate protocol.IterationRequest) error {
	if f.rt.State != protocol.FedInitializing {
		return protocol.NewError(protocol.InvalidFunctionCall,
			fmt.Sprintf("enterExecutingMode called from state %s", f.rt.State), nil)
	}
	f.rt.IterationOn = iterate != protocol.NoIteration
	f.rt.Granted = false

	req := protocol.NewActionMessage(protocol.CMD_EXEC_REQUEST)
	req.SourceID = f.GlobalID
	req.Flags = protocol.IterationRequestFlags(iterate)
	f.send(req)

	for {
		cmd := <-f.inbox
		result := coordinator.Dispatch(cmd, f.coord, f.rt)
		switch result {
		case protocol.ErrorResult:
			return protocol.NewError(protocol.ExecutionFailure, "entered error state entering execution", nil)
		case protocol.Iterating:
			retry := protocol.NewActionMessage(protocol.CMD_EXEC_REQUEST)
			retry.SourceID = f.GlobalID
			retry.Flags = protocol.IterationRequestFlags(iterate)
			f.send(retry)
		case protocol.NextStep, protocol.Halted:
			f.logger.WithField("federate", f.Name).Info("entered executing mode")
			return nil
		}
		if f.rt.State == protocol.FedExecuting {
			f.logger.WithField("federate", f.Name).Info("entered executing mode")
			return nil
		}
	}
}

// RequestTime blocks until granted a time no earlier than requested
// (§4.3/§4.4), returning the granted time.
func (f *Federate) RequestTime(requested protocol.Time) (protocol.Time, error) {
	return f.requestTime(requested, requested, protocol.NoIteration)
}

// RequestTimeIterative behaves like RequestTime but additionally allows
// the coordinator to return the same time with an iteration in
// progress; the caller must loop calling it again until granted
// advances or it is told no further iteration is required.
func (f *Federate) RequestTimeIterative(requested protocol.Time, iterate protocol.IterationRequest) (protocol.Time, error) {
	return f.requestTime(requested, requested, iterate)
}

func (f *Federate) requestTime(requested, te protocol.Time, iterate protocol.IterationRequest) (protocol.Time, error) {
	if f.rt.State != protocol.FedExecuting {
		return protocol.TimeZero, protocol.NewError(protocol.InvalidFunctionCall,
			fmt.Sprintf("requestTime called from state %s", f.rt.State), nil)
	}
	f.rt.Granted = false

	req := protocol.NewActionMessage(protocol.CMD_TIME_REQUEST)
	req.SourceID = f.GlobalID
	req.ActionTime = requested
	req.Te = te
	req.Flags = protocol.IterationRequestFlags(iterate)
	f.send(req)

	for !f.rt.Granted {
		cmd := <-f.inbox
		result := coordinator.Dispatch(cmd, f.coord, f.rt)
		if result == protocol.ErrorResult {
			return protocol.TimeZero, protocol.NewError(protocol.ExecutionFailure, "entered error state during time request", nil)
		}
		if result == protocol.Halted {
			return f.coord.GrantedTime(), nil
		}
	}
	f.granted = f.coord.GrantedTime()
	return f.granted, nil
}

// Finalize disconnects this federate: it asks its coordinator to notify
// dependents and moves local state to finalized (§3, §4.5 CMD_STOP
// handling).
func (f *Federate) Finalize() {
	if f.rt.State == protocol.FedFinalized {
		return
	}
	f.coord.Disconnect()
	f.rt.State = protocol.FedFinalized
	f.logger.WithField("federate", f.Name).Info("finalized")
}
