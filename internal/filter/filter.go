// Package filter implements the FilterFederate (§4.6): cloning and
// non-cloning filter chains attached to endpoint handles, ordered by
// type-chaining, plus the TIME_BLOCK/TIME_UNBLOCK bookkeeping that
// suspends a core's time advance while a filter operation is in
// flight.
package filter

import (
	"github.com/fep-fem/cosim-core/internal/coordinator"
	"github.com/fep-fem/cosim-core/protocol"
	"github.com/sirupsen/logrus"
)

// Operator transforms one message payload. Returning drop == true
// means the message is consumed (the original
// FiltI->filterOp->process(...) returning a null message).
type Operator func(payload []byte) (out []byte, drop bool)

// Info is one registered filter (§3's Handle kind == filter,
// generalized with the operator and chaining metadata FilterFederate.cpp
// tracks alongside the handle).
type Info struct {
	Handle       protocol.InterfaceHandle
	Key          string
	Cloning      bool
	InputType    string
	OutputType   string
	Op           Operator
	Disconnected bool

	// Reroutes reports whether this is a destination filter that alters
	// dest rather than just transforming payload (§4.6: "a non-cloning
	// destination filter that alters dest reroutes the message"). When
	// true, RerouteTo names the new destination.
	Reroutes bool
	RerouteTo protocol.InterfaceHandle
}

// Coordinator is the per-core filter federate: it owns every filter
// attached to locally known endpoints and processes CMD_SEND_FOR_FILTER*
// traffic addressed to them.
type Coordinator struct {
	coreID protocol.GlobalFederateId
	send   coordinator.SendFunc
	logger *logrus.Logger

	bySource map[protocol.InterfaceHandle][]*Info
	byDest   map[protocol.InterfaceHandle][]*Info
	ongoing  map[protocol.GlobalFederateId]map[uint32]bool
	nextSeq  uint32
}

// NewCoordinator constructs a filter Coordinator. send is the sink used
// both to forward filtered messages onward and to emit
// CMD_TIME_BLOCK/CMD_TIME_UNBLOCK toward coreID.
func NewCoordinator(coreID protocol.GlobalFederateId, send coordinator.SendFunc) *Coordinator {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	return &Coordinator{
		coreID:   coreID,
		send:     send,
		logger:   logger,
		bySource: make(map[protocol.InterfaceHandle][]*Info),
		byDest:   make(map[protocol.InterfaceHandle][]*Info),
		ongoing:  make(map[protocol.GlobalFederateId]map[uint32]bool),
	}
}

// RegisterDestFilter attaches a filter to the receive side of
// destHandle (§4.6's FilterCoordinator.destFilter /
// cloningDestFilters). Unlike source filters, at most one non-cloning
// destination filter is meaningful per endpoint (a second would have
// nothing left to chain against once the first reroutes or consumes
// the message); callers are responsible for enforcing that HELICS-level
// restriction, RegisterDestFilter itself just appends.
func (c *Coordinator) RegisterDestFilter(destHandle protocol.InterfaceHandle, info *Info) {
	c.byDest[destHandle] = append(c.byDest[destHandle], info)
}

// RegisterFilter attaches a filter to sourceHandle (the endpoint whose
// outbound traffic it inspects). Filters on the same handle are ordered
// at processing time by Chain, not at registration time, so
// registration order never matters (§4.6).
func (c *Coordinator) RegisterFilter(sourceHandle protocol.InterfaceHandle, info *Info) {
	c.bySource[sourceHandle] = append(c.bySource[sourceHandle], info)
}

// Chain orders the filters on one handle for processing: every cloning
// filter runs first and independently (each against the original
// message), in registration order; the non-cloning filters are then
// greedily linked so each stage's OutputType feeds the next stage's
// InputType (SPEC_FULL.md §C.5, grounded on FilterFederate.cpp's
// handling of cloning vs non-cloning FilterInfo entries). A single chain
// is built, starting from the first filter whose InputType no other
// filter produces; every non-cloning filter not on that chain is
// returned separately as unchained rather than silently dropped.
func Chain(filters []*Info) (cloning []*Info, chained []*Info, unchained []*Info) {
	var nonCloning []*Info
	for _, f := range filters {
		if f.Cloning {
			cloning = append(cloning, f)
		} else {
			nonCloning = append(nonCloning, f)
		}
	}

	used := make(map[*Info]bool, len(nonCloning))
	producedBy := make(map[string]bool, len(nonCloning))
	for _, f := range nonCloning {
		producedBy[f.InputType] = false
	}
	for _, f := range nonCloning {
		producedBy[f.OutputType] = true
	}

	var starts []*Info
	for _, f := range nonCloning {
		if !hasProducer(nonCloning, f, f.InputType) {
			starts = append(starts, f)
		}
	}
	if len(starts) == 0 && len(nonCloning) > 0 {
		starts = []*Info{nonCloning[0]}
	}

	if len(starts) > 0 {
		cur := starts[0]
		used[cur] = true
		chained = append(chained, cur)
		for {
			next := findNext(nonCloning, used, cur.OutputType)
			if next == nil {
				break
			}
			used[next] = true
			chained = append(chained, next)
			cur = next
		}
	}

	for _, f := range nonCloning {
		if !used[f] {
			unchained = append(unchained, f)
		}
	}
	return cloning, chained, unchained
}

func hasProducer(filters []*Info, self *Info, inputType string) bool {
	for _, f := range filters {
		if f == self {
			continue
		}
		if f.OutputType == inputType {
			return true
		}
	}
	return false
}

func findNext(filters []*Info, used map[*Info]bool, outputType string) *Info {
	for _, f := range filters {
		if used[f] {
			continue
		}
		if f.InputType == outputType {
			return f
		}
	}
	return nil
}

// Apply runs payload through one cloning filter's operator, producing
// zero or one new payload (a cloning filter in HELICS can itself
// produce several messages via processVector; Apply models the common
// single-output case callers iterate over when a filter fans out).
func Apply(op Operator, payload []byte) ([]byte, bool) {
	if op == nil {
		return payload, false
	}
	return op(payload)
}

// BeginProcess records a new in-flight filter operation for fid/pid,
// emitting CMD_TIME_BLOCK toward the core the first time this
// federate's ongoing set becomes non-empty (§5, grounded on
// FilterFederate::generateProcessMarker).
func (c *Coordinator) BeginProcess(fid protocol.GlobalFederateId, pid uint32) {
	set, ok := c.ongoing[fid]
	if !ok {
		set = make(map[uint32]bool)
		c.ongoing[fid] = set
	}
	wasEmpty := len(set) == 0
	set[pid] = true
	if wasEmpty {
		block := protocol.NewActionMessage(protocol.CMD_TIME_BLOCK)
		block.SourceID = fid
		block.DestID = c.coreID
		c.send(block)
	}
}

// EndProcess clears one in-flight filter operation, emitting
// CMD_TIME_UNBLOCK once fid has none remaining (grounded on
// FilterFederate::acceptProcessReturn).
func (c *Coordinator) EndProcess(fid protocol.GlobalFederateId, pid uint32) {
	set, ok := c.ongoing[fid]
	if !ok {
		return
	}
	delete(set, pid)
	if len(set) == 0 {
		unblock := protocol.NewActionMessage(protocol.CMD_TIME_UNBLOCK)
		unblock.SourceID = fid
		unblock.DestID = c.coreID
		c.send(unblock)
	}
}

// ProcessSourceSend runs an outbound CMD_SEND_MESSAGE/CMD_SEND_FOR_FILTER*
// through every filter registered on its source handle, in the order
// Chain establishes (§4.6): cloning filters run first and
// independently, each producing its own message in addition to the
// original; the original (and every clone) then passes through the
// chained non-cloning filters in sequence, dropped entirely if any
// stage's Operator reports drop == true. needsReturn requests
// CMD_TIME_BLOCK bookkeeping for CMD_SEND_FOR_FILTER_AND_RETURN
// traffic; callers get back the allocated sequence id alongside the
// resulting messages so they can later call EndProcess when the
// return trip completes.
func (c *Coordinator) ProcessSourceSend(msg protocol.ActionMessage, needsReturn bool) (out []protocol.ActionMessage, seqID uint32) {
	filters := c.bySource[msg.SourceHandle]
	if len(filters) == 0 {
		return []protocol.ActionMessage{msg}, 0
	}
	cloning, chained, unchained := Chain(filters)

	for _, f := range unchained {
		c.logger.WithField("filter", f.Key).Warn("filter could not be chained by type; skipped")
	}

	messages := []protocol.ActionMessage{msg}
	for _, f := range cloning {
		if payload, drop := Apply(f.Op, msg.Payload); !drop {
			clone := msg
			clone.Payload = payload
			messages = append(messages, clone)
		}
	}

	var survivors []protocol.ActionMessage
	for _, candidate := range messages {
		payload := candidate.Payload
		dropped := false
		for _, f := range chained {
			var drop bool
			payload, drop = Apply(f.Op, payload)
			if drop {
				dropped = true
				break
			}
		}
		if dropped {
			continue
		}
		candidate.Payload = payload
		survivors = append(survivors, candidate)
	}

	if needsReturn && len(survivors) > 0 {
		c.nextSeq++
		seqID = c.nextSeq
		c.BeginProcess(msg.SourceID, seqID)
		for i := range survivors {
			survivors[i].SequenceID = int32(seqID)
		}
	}
	return survivors, seqID
}

// ProcessDestFilters runs an inbound message through the destination
// filters registered on destHandle (§4.6's receive-side processing).
// A non-cloning destination filter that rewrites DestHandle reroutes
// the message instead of delivering it locally (rerouted reports
// true, so the caller re-sends rather than delivering).
func (c *Coordinator) ProcessDestFilters(msg protocol.ActionMessage) (clones []protocol.ActionMessage, delivered protocol.ActionMessage, rerouted bool) {
	filters := c.byDest[msg.DestHandle]
	delivered = msg
	for _, f := range filters {
		if f.Cloning {
			if payload, drop := Apply(f.Op, delivered.Payload); !drop {
				clone := delivered
				clone.Payload = payload
				clones = append(clones, clone)
			}
			continue
		}
		payload, drop := Apply(f.Op, delivered.Payload)
		if drop {
			delivered.DestHandle = protocol.InvalidInterfaceHandle
			return clones, delivered, false
		}
		delivered.Payload = payload
		if f.Reroutes {
			delivered.DestHandle = f.RerouteTo
			rerouted = true
		}
	}
	return clones, delivered, rerouted
}
