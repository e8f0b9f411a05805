// Package broker implements the Broker node (§3, §5): an interior node
// of the federation tree that aggregates timing for its children (Cores
// or nested Brokers) via a Forwarding coordinator, maintains the child
// registry, and resolves global names across its subtree.
package broker

import (
	"sync"

	"github.com/fep-fem/cosim-core/internal/coordinator"
	"github.com/fep-fem/cosim-core/protocol"
	"github.com/sirupsen/logrus"
)

// ChildKind distinguishes a Core leaf from a nested Broker in the
// child registry.
type ChildKind int

const (
	ChildCore ChildKind = iota
	ChildBroker
)

// Child is one entry in a Broker's registry: a Core or nested Broker
// directly beneath this one in the federation tree.
type Child struct {
	ID   protocol.GlobalFederateId
	Name string
	Kind ChildKind
}

// Broker is one node of the federation tree. A root broker has no
// upstream; every other broker forwards anything not addressed to one
// of its own children on to its parent.
type Broker struct {
	Name     string
	GlobalID protocol.GlobalFederateId

	Coord *coordinator.Forwarding

	upstream coordinator.SendFunc
	logger   *logrus.Logger

	mu          sync.RWMutex
	children    map[protocol.GlobalFederateId]*Child
	childSend   map[protocol.GlobalFederateId]coordinator.SendFunc
	names       map[string]protocol.GlobalFederateId
	nextChildID protocol.GlobalFederateId
}

// NewRoot constructs the root broker of a federation: id RootBrokerID,
// no upstream.
func NewRoot(name string) *Broker {
	return New(name, protocol.RootBrokerID, nil)
}

// New constructs a Broker with the given global id. upstream is nil for
// the root broker, otherwise the sink toward its parent.
func New(name string, globalID protocol.GlobalFederateId, upstream coordinator.SendFunc) *Broker {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	b := &Broker{
		Name:      name,
		GlobalID:  globalID,
		upstream:  upstream,
		logger:    logger,
		children:  make(map[protocol.GlobalFederateId]*Child),
		childSend: make(map[protocol.GlobalFederateId]coordinator.SendFunc),
		names:     make(map[string]protocol.GlobalFederateId),
	}
	b.Coord = coordinator.NewForwarding(globalID, b.Route)
	return b
}

// RegisterChild admits a Core or nested Broker as a direct child: it is
// added to both the dependency and dependent sides of this broker's
// Forwarding coordinator (§3: a broker is both source and sink of
// timing data for each child), and its name is reserved for global
// resolution (§6 query surface, `dependencies`/`dependents`/`config`).
func (b *Broker) RegisterChild(name string, kind ChildKind, childID protocol.GlobalFederateId, send coordinator.SendFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.children[childID]; exists {
		return protocol.NewError(protocol.RegistrationFailure, "duplicate child id", nil)
	}
	if _, exists := b.names[name]; exists {
		return protocol.NewError(protocol.RegistrationFailure, "duplicate child name: "+name, nil)
	}

	b.children[childID] = &Child{ID: childID, Name: name, Kind: kind}
	b.childSend[childID] = send
	b.names[name] = childID

	b.Coord.Deps.AddDependency(childID)
	b.Coord.Deps.AddDependent(childID)

	b.logger.WithFields(logrus.Fields{"child": name, "globalID": int32(childID)}).Info("registered child")
	return nil
}

// Resolve looks up a child's global id by its registered name,
// searching only this broker's direct children (§6's global name
// resolution is a tree walk; composing Resolve calls up the parent
// chain is left to the caller, which is the only component that knows
// the tree shape above any one broker).
func (b *Broker) Resolve(name string) (protocol.GlobalFederateId, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.names[name]
	return id, ok
}

// Children returns a snapshot of this broker's direct children.
func (b *Broker) Children() []*Child {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Child, 0, len(b.children))
	for _, c := range b.children {
		out = append(out, c)
	}
	return out
}

// Route delivers msg to a direct child if one is addressed, otherwise
// forwards it upstream; a message addressed to this broker itself
// (query, disconnect, etc.) is handled by whichever caller owns that
// protocol surface — Route's job is purely tree routing, except for
// timing traffic originating from a registered child, which first runs
// through the broker's own Forwarding coordinator (§2: "Brokers forward
// and aggregate", §4.4 Forwarding variant) the same way internal/core's
// Core.Route runs CMD_SEND_MESSAGE traffic through its filter pipeline
// before delivery. A CMD_MULTI_MESSAGE is unpacked and each message it
// carries is routed on its own.
func (b *Broker) Route(msg protocol.ActionMessage) {
	if msg.Action == protocol.CMD_MULTI_MESSAGE {
		for _, packed := range msg.StringData {
			if inner, _, err := protocol.Depacketize([]byte(packed)); err == nil {
				b.Route(inner)
			}
		}
		return
	}
	if isTimingAction(msg.Action) && b.processTiming(msg) {
		return
	}

	b.mu.RLock()
	send, ok := b.childSend[msg.DestID]
	b.mu.RUnlock()

	if ok {
		send(msg)
		return
	}
	if b.upstream != nil {
		b.upstream(msg)
	}
}

// processTiming folds a timing message from a registered child into
// this broker's Forwarding coordinator and, if that advances the
// broker's own aggregate, broadcasts the new aggregate to every
// dependent child in place of relaying the raw message. It reports
// false (leaving the raw message to fall through to plain relay) when
// the source isn't one of this broker's tracked dependencies — e.g.
// traffic merely passing through toward a grandchild.
func (b *Broker) processTiming(msg protocol.ActionMessage) bool {
	if b.Coord.Deps.Get(msg.SourceID) == nil {
		return false
	}
	result := b.Coord.Process(msg)
	if result == protocol.NotProcessed {
		return false
	}
	if result == protocol.ProcessedAndCheck && b.Coord.UpdateTimeFactors() {
		b.Coord.Transmit(protocol.NoIteration)
	}
	return true
}

func isTimingAction(a protocol.ActionCode) bool {
	switch a {
	case protocol.CMD_TIME_REQUEST, protocol.CMD_TIME_GRANT,
		protocol.CMD_EXEC_REQUEST, protocol.CMD_EXEC_GRANT:
		return true
	}
	return false
}

// Finalize disconnects every child via the Forwarding coordinator's
// shared CMD_DISCONNECT broadcast (batched into CMD_MULTI_MESSAGE when
// there is more than one, per internal/coordinator's Base.Disconnect).
func (b *Broker) Finalize() {
	b.Coord.Disconnect()
	b.logger.WithField("broker", b.Name).Info("finalized")
}
