// Package dependency implements the per-node view of upstream and
// downstream timing peers (§3 TimeData / Dependency record, §4.3) that
// every TimeCoordinator variant consults to compute a grant.
package dependency

import (
	"sort"

	"github.com/fep-fem/cosim-core/protocol"
)

// TimeData is what one node knows about one peer's timing state (§3).
type TimeData struct {
	Next  protocol.Time
	Te    protocol.Time
	MinDe protocol.Time

	MinFed protocol.GlobalFederateId
	State  protocol.TimeState

	SequenceCounter         int32
	ResponseSequenceCounter int32

	Interrupted bool
	NonGranting bool
	Triggered   bool

	LastGrant protocol.Time
}

// Info is one entry of a node's TimeDependencies collection: a TimeData
// plus the graph-edge metadata that makes it a Dependency record (§3).
type Info struct {
	TimeData

	FedID protocol.GlobalFederateId

	Connection protocol.ConnectionType
	Dependency bool
	Dependent  bool

	TimingVersion int8
	Disconnected  bool
}

// NewInfo builds a fresh Info for a newly added peer, with TimeData in
// its initial unconstrained state.
func NewInfo(fedID protocol.GlobalFederateId, connection protocol.ConnectionType) Info {
	return Info{
		FedID:      fedID,
		Connection: connection,
		TimeData: TimeData{
			Next:   protocol.TimeZero,
			Te:     protocol.TimeMax,
			MinDe:  protocol.TimeMax,
			MinFed: protocol.InvalidGlobalFederateId,
			State:  protocol.TimeInitialized,
		},
	}
}

// Graph is the TimeDependencies collection (§3, §4.3): a map keyed by
// GlobalFederateId with the invariant that at most one entry has
// Connection == ConnParent.
type Graph struct {
	peers map[protocol.GlobalFederateId]*Info
}

func NewGraph() *Graph {
	return &Graph{peers: make(map[protocol.GlobalFederateId]*Info)}
}

// AddDependency marks fedID as a source of timing constraints on this
// node (it must wait on fedID's time). If fedID isn't yet tracked, a
// new Info is created for it.
func (g *Graph) AddDependency(fedID protocol.GlobalFederateId) *Info {
	info := g.getOrCreate(fedID)
	info.Dependency = true
	return info
}

// AddDependent marks fedID as a node waiting on this node's time.
func (g *Graph) AddDependent(fedID protocol.GlobalFederateId) *Info {
	info := g.getOrCreate(fedID)
	info.Dependent = true
	return info
}

// RemoveDependency clears the dependency role for fedID, dropping the
// entry entirely if it is also not a dependent.
func (g *Graph) RemoveDependency(fedID protocol.GlobalFederateId) {
	info, ok := g.peers[fedID]
	if !ok {
		return
	}
	info.Dependency = false
	g.pruneIfUnused(fedID, info)
}

// RemoveDependent clears the dependent role for fedID.
func (g *Graph) RemoveDependent(fedID protocol.GlobalFederateId) {
	info, ok := g.peers[fedID]
	if !ok {
		return
	}
	info.Dependent = false
	g.pruneIfUnused(fedID, info)
}

func (g *Graph) pruneIfUnused(fedID protocol.GlobalFederateId, info *Info) {
	if !info.Dependency && !info.Dependent {
		delete(g.peers, fedID)
	}
}

// SetAsParent marks fedID's connection as ConnParent. It returns an
// error if another peer already holds that role, enforcing the
// at-most-one-parent invariant (§3, testable property 4).
func (g *Graph) SetAsParent(fedID protocol.GlobalFederateId) error {
	if existing := g.Parent(); existing != nil && existing.FedID != fedID {
		return protocol.NewError(protocol.InvalidStateTransition,
			"dependency graph already has a parent", nil)
	}
	info := g.getOrCreate(fedID)
	info.Connection = protocol.ConnParent
	return nil
}

// SetAsChild marks fedID's connection as ConnChild.
func (g *Graph) SetAsChild(fedID protocol.GlobalFederateId) {
	info := g.getOrCreate(fedID)
	info.Connection = protocol.ConnChild
}

// SetAsSelf marks fedID (normally this node's own id) as a self edge,
// used when a node is simultaneously source and sink of its own timing
// data (§3).
func (g *Graph) SetAsSelf(fedID protocol.GlobalFederateId) {
	info := g.getOrCreate(fedID)
	info.Connection = protocol.ConnSelf
	info.Dependency = true
	info.Dependent = true
}

func (g *Graph) getOrCreate(fedID protocol.GlobalFederateId) *Info {
	info, ok := g.peers[fedID]
	if !ok {
		n := NewInfo(fedID, protocol.ConnNone)
		info = &n
		g.peers[fedID] = info
	}
	return info
}

// Get returns the Info for fedID, or nil if untracked.
func (g *Graph) Get(fedID protocol.GlobalFederateId) *Info {
	return g.peers[fedID]
}

// Parent returns the single dependency whose Connection is ConnParent,
// or nil if none has been set.
func (g *Graph) Parent() *Info {
	for _, info := range g.peers {
		if info.Connection == protocol.ConnParent {
			return info
		}
	}
	return nil
}

// Children returns every peer whose Connection is ConnChild, ordered by
// fedID for deterministic iteration (tests, debugging dumps).
func (g *Graph) Children() []*Info {
	var out []*Info
	for _, info := range g.peers {
		if info.Connection == protocol.ConnChild {
			out = append(out, info)
		}
	}
	sortByFedID(out)
	return out
}

// Dependencies returns every peer this node must wait on.
func (g *Graph) Dependencies() []*Info {
	var out []*Info
	for _, info := range g.peers {
		if info.Dependency {
			out = append(out, info)
		}
	}
	sortByFedID(out)
	return out
}

// Dependents returns every peer waiting on this node.
func (g *Graph) Dependents() []*Info {
	var out []*Info
	for _, info := range g.peers {
		if info.Dependent {
			out = append(out, info)
		}
	}
	sortByFedID(out)
	return out
}

// All returns every tracked peer, ordered by fedID.
func (g *Graph) All() []*Info {
	var out []*Info
	for _, info := range g.peers {
		out = append(out, info)
	}
	sortByFedID(out)
	return out
}

func (g *Graph) Len() int { return len(g.peers) }

func sortByFedID(infos []*Info) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].FedID < infos[j].FedID })
}

// CheckForIssues re-validates two graph-wide invariants: at most one
// parent (already enforced by SetAsParent, re-checked here for
// defense against direct mutation), and every peer at the same
// TimingVersion. It does not check peer reachability, dependency
// cycles, or a missing parent. Base.EnteringExecMode calls it; a
// ProcessedAndCheck coordinator result does not (SPEC_FULL.md §C.1, grounded on
// BaseTimeCoordinator::enteringExecMode / processTimeMessage in
// original_source/src/helics/core/BaseTimeCoordinator.cpp).
func (g *Graph) CheckForIssues() error {
	parents := 0
	var version int8
	versionSet := false
	for _, info := range g.peers {
		if info.Connection == protocol.ConnParent {
			parents++
		}
		if !versionSet {
			version = info.TimingVersion
			versionSet = true
		} else if info.TimingVersion != version {
			return protocol.NewError(protocol.InvalidStateTransition,
				"dependency graph has inconsistent timing versions across peers", nil)
		}
	}
	if parents > 1 {
		return protocol.NewError(protocol.InvalidStateTransition,
			"dependency graph has more than one parent", nil)
	}
	return nil
}

// FederatesOnly reports whether every ConnChild peer is a leaf federate
// (i.e. not itself a broker id), set on entering exec mode (§4.3).
func (g *Graph) FederatesOnly() bool {
	for _, info := range g.Children() {
		if info.FedID.IsBroker() {
			return false
		}
	}
	return true
}
