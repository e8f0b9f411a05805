// Package core implements the Core node (§3, §5): the component that
// exclusively owns a set of local federates' shared interface namespace
// (one handle.Manager) and routes ActionMessages between those
// federates and everything upstream of the core (a Broker or, in a
// single-core federation, nothing).
package core

import (
	"sync"

	"github.com/fep-fem/cosim-core/internal/coordinator"
	"github.com/fep-fem/cosim-core/internal/federate"
	"github.com/fep-fem/cosim-core/internal/filter"
	"github.com/fep-fem/cosim-core/internal/handle"
	"github.com/fep-fem/cosim-core/internal/translator"
	"github.com/fep-fem/cosim-core/protocol"
	"github.com/sirupsen/logrus"
)

// Core hosts one or more federates. Its HandleManager is shared across
// all of them (§3: "a Core exclusively owns its federates' HandleManager
// and TimeCoordinator"), so a publication registered by one local
// federate can be resolved as a target by another without leaving the
// process.
type Core struct {
	Name     string
	GlobalID protocol.GlobalFederateId

	Handles *handle.Manager

	// Filters and Translators are the internal filter/translator
	// federates this core hosts (§4.6, §4.7): every locally registered
	// filter or translator attaches to one of these, not a real
	// federate.Federate, since neither suspends on a time request of
	// its own.
	Filters     *filter.Coordinator
	Translators *translator.Coordinator

	upstream coordinator.SendFunc
	logger   *logrus.Logger

	mu        sync.RWMutex
	byLocal   map[protocol.LocalFederateId]*federate.Federate
	byGlobal  map[protocol.GlobalFederateId]*federate.Federate
	nextLocal protocol.LocalFederateId
}

// New constructs a Core. upstream is the sink for any ActionMessage
// whose destination is not one of this core's own local federates
// (typically wired to a Broker's inbound queue or a Stream).
func New(name string, globalID protocol.GlobalFederateId, upstream coordinator.SendFunc) *Core {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	c := &Core{
		Name:     name,
		GlobalID: globalID,
		Handles:  handle.NewManager(),
		upstream: upstream,
		logger:   logger,
		byLocal:  make(map[protocol.LocalFederateId]*federate.Federate),
		byGlobal: make(map[protocol.GlobalFederateId]*federate.Federate),
	}
	c.Filters = filter.NewCoordinator(globalID, c.Route)
	c.Translators = translator.NewCoordinator(c.Route)
	return c
}

// RegisterFederate creates a new local federate under globalID (assigned
// by the broker that admitted this core into the federation) with a
// Distributed time coordinator rooted at that id. restrictive applies
// the restrictive-time-policy flag (§4.4 rule 5) to the federate's own
// coordinator.
func (c *Core) RegisterFederate(name string, globalID protocol.GlobalFederateId, restrictive bool) (*federate.Federate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byGlobal[globalID]; exists {
		return nil, protocol.NewError(protocol.RegistrationFailure,
			"duplicate global federate id in this core", nil)
	}

	localID := c.nextLocal
	c.nextLocal++

	send := c.routeFrom(globalID)
	coord := coordinator.NewDistributed(globalID, send, restrictive)
	fed := federate.New(name, globalID, localID, coord, send)

	c.byLocal[localID] = fed
	c.byGlobal[globalID] = fed

	c.logger.WithFields(logrus.Fields{"federate": name, "globalID": int32(globalID)}).Info("registered federate")
	return fed, nil
}

// routeFrom builds the SendFunc a given federate's coordinator uses:
// local delivery when the destination is a sibling hosted in this core,
// otherwise forwarded upstream.
func (c *Core) routeFrom(sourceID protocol.GlobalFederateId) coordinator.SendFunc {
	return func(msg protocol.ActionMessage) {
		if msg.SourceID == protocol.InvalidGlobalFederateId {
			msg.SourceID = sourceID
		}
		c.Route(msg)
	}
}

// Route delivers an ActionMessage to its destination: a local federate
// if this core hosts one under that global id, otherwise upstream.
// CMD_SEND_MESSAGE/CMD_SEND_FOR_FILTER* traffic is first run through
// any filters registered on its source handle (§4.6); the messages
// that survive filtering are each delivered individually, so a cloning
// filter's extra copies take the same local-vs-upstream path as the
// original (they are not run through the filters again).
//
// Timing traffic (CMD_TIME_REQUEST/CMD_TIME_GRANT/CMD_EXEC_REQUEST/
// CMD_EXEC_GRANT) needs no separate aggregation step here the way
// internal/broker's Route needs one: unlike a Broker, which owns a
// single Forwarding coordinator shared across every child and so must
// fold their timing messages together before relaying, a Core gives
// each local federate its own Distributed coordinator. Delivering
// straight to that federate's inbox is enough — the federate's own
// blocking loop (EnterExecutingMode/requestTime) runs the message
// through coordinator.Dispatch itself, which processes it against that
// federate's coordinator and Transmits any resulting grant.
func (c *Core) Route(msg protocol.ActionMessage) {
	switch msg.Action {
	case protocol.CMD_SEND_MESSAGE, protocol.CMD_SEND_FOR_FILTER:
		for _, out := range c.filterThenDeliver(msg, false) {
			c.deliverLocalOrUpstream(out)
		}
		return
	case protocol.CMD_SEND_FOR_FILTER_AND_RETURN:
		for _, out := range c.filterThenDeliver(msg, true) {
			c.deliverLocalOrUpstream(out)
		}
		return
	}
	c.deliverLocalOrUpstream(msg)
}

func (c *Core) filterThenDeliver(msg protocol.ActionMessage, needsReturn bool) []protocol.ActionMessage {
	out, _ := c.Filters.ProcessSourceSend(msg, needsReturn)
	return out
}

func (c *Core) deliverLocalOrUpstream(msg protocol.ActionMessage) {
	c.mu.RLock()
	fed, local := c.byGlobal[msg.DestID]
	c.mu.RUnlock()

	if local {
		fed.Deliver(msg)
		return
	}
	if c.upstream != nil {
		c.upstream(msg)
	}
}

// Federate looks up a hosted federate by its local id.
func (c *Core) Federate(id protocol.LocalFederateId) (*federate.Federate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fed, ok := c.byLocal[id]
	return fed, ok
}

// Federates returns a snapshot of every federate this core hosts, for
// the query engine's `global_state`/`current_state` listings (§6).
func (c *Core) Federates() []*federate.Federate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*federate.Federate, 0, len(c.byLocal))
	for _, fed := range c.byLocal {
		out = append(out, fed)
	}
	return out
}

// RegisterInterface registers an interface on behalf of a local
// federate in the core's shared namespace (§4.2).
func (c *Core) RegisterInterface(localID protocol.LocalFederateId, kind handle.Kind, key, typ, units string) (protocol.InterfaceHandle, error) {
	fed, ok := c.Federate(localID)
	if !ok {
		return protocol.InvalidInterfaceHandle, protocol.NewError(protocol.InvalidIdentifier, "unknown local federate id", nil)
	}
	owner := protocol.GlobalHandle{Federate: fed.GlobalID, Handle: protocol.InvalidInterfaceHandle}
	return c.Handles.Register(owner, kind, key, typ, units)
}

// Finalize disconnects every hosted federate, releasing the core's
// interfaces as non-reentrant disconnects (§3).
func (c *Core) Finalize() {
	c.mu.RLock()
	feds := make([]*federate.Federate, 0, len(c.byLocal))
	for _, fed := range c.byLocal {
		feds = append(feds, fed)
	}
	c.mu.RUnlock()

	for _, fed := range feds {
		fed.Finalize()
	}
	for _, h := range c.Handles.All() {
		c.Handles.Disconnect(h, false)
	}
	c.logger.WithField("core", c.Name).Info("finalized")
}
