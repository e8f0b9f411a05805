// Package query implements the hierarchical introspection surface
// (§6 Query surface): string-named queries against a target node,
// answered as JSON objects or flat `[a;b;c]` lists, with `#invalid`
// returned for anything unrecognized.
package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fep-fem/cosim-core/internal/broker"
	"github.com/fep-fem/cosim-core/internal/core"
	"github.com/fep-fem/cosim-core/protocol"
)

// Invalid is the literal sentinel reply for an unrecognized query name
// (§6: "`#invalid` on unrecognized").
const Invalid = "#invalid"

// version is reported by the `version` query; it identifies the wire
// protocol generation, not a build/release number.
const version = "fep-cosim-core-1"

// Engine answers §6 queries against one node (a Core or a Broker).
// Each node in the federation owns one Engine instance.
type Engine struct {
	core   *core.Core
	broker *broker.Broker
}

// NewCoreEngine builds a query Engine backed by a hosting Core.
func NewCoreEngine(c *core.Core) *Engine { return &Engine{core: c} }

// NewBrokerEngine builds a query Engine backed by an interior Broker.
func NewBrokerEngine(b *broker.Broker) *Engine { return &Engine{broker: b} }

// Answer resolves one query by name against the node this Engine
// wraps. target names the node within the tree the query addresses; it
// is not checked here: the Engine answers every query as the node it
// wraps (routing a query to a different target is the caller's job, the
// way Core.Route/Broker.Route moves any other ActionMessage).
func (e *Engine) Answer(target, name string) string {
	switch name {
	case "exists":
		return trueJSON
	case "version":
		return quoteJSON(version)
	case "isinit":
		return e.isinit()
	case "state", "current_state":
		return e.state()
	case "publications":
		return e.interfacesOfKind("publication")
	case "inputs":
		return e.interfacesOfKind("input")
	case "endpoints":
		return e.interfacesOfKind("endpoint")
	case "filters":
		return e.interfacesOfKind("filter")
	case "translators":
		return e.interfacesOfKind("translator")
	case "interfaces":
		return e.allInterfaces()
	case "dependencies":
		return e.dependencyIDs(true)
	case "dependents":
		return e.dependencyIDs(false)
	case "current_time":
		return e.currentTime()
	case "global_state":
		return e.globalState()
	case "global_time":
		return e.globalTime()
	case "global_time_debugging":
		return e.globalTimeDebugging()
	case "timeconfig":
		return e.timeConfig()
	case "config":
		return e.config()
	case "data_flow_graph":
		return e.dataFlowGraph()
	case "dependency_graph":
		return e.dependencyGraph()
	case "global_flush":
		return e.globalFlush()
	default:
		return Invalid
	}
}

const trueJSON = "true"

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (e *Engine) name() string {
	if e.core != nil {
		return e.core.Name
	}
	return e.broker.Name
}

func (e *Engine) globalID() protocol.GlobalFederateId {
	if e.core != nil {
		return e.core.GlobalID
	}
	return e.broker.GlobalID
}

func (e *Engine) isinit() string {
	if e.core == nil {
		return trueJSON
	}
	for _, fed := range e.core.Federates() {
		if fed.State() == protocol.FedCreated {
			return "false"
		}
	}
	return trueJSON
}

func (e *Engine) state() string {
	if e.core != nil {
		states := make(map[string]string)
		for _, fed := range e.core.Federates() {
			states[fed.Name] = fed.State().String()
		}
		return mustJSON(states)
	}
	children := e.broker.Children()
	out := make(map[string]string, len(children))
	for _, c := range children {
		out[c.Name] = "connected"
	}
	return mustJSON(out)
}

// interfacesOfKind lists the keys of every interface of the given
// HELICS-level kind name held in a hosted federate's own registry
// (Federate.Handles); interfaces registered through
// Core.RegisterInterface in the core-wide registry are not listed.
// Broker nodes have no
// handle registry of their own (§3: handles live on Cores), so this
// always returns an empty list there.
func (e *Engine) interfacesOfKind(kind string) string {
	if e.core == nil {
		return "[]"
	}
	var keys []string
	for _, fed := range e.core.Federates() {
		for key, h := range fed.Handles().All() {
			rec := fed.Handles().Get(h)
			if rec != nil && rec.Kind.String() == kind {
				keys = append(keys, key)
			}
		}
	}
	return flatList(keys)
}

func (e *Engine) allInterfaces() string {
	if e.core == nil {
		return "[]"
	}
	var keys []string
	for _, fed := range e.core.Federates() {
		for key := range fed.Handles().All() {
			keys = append(keys, key)
		}
	}
	return flatList(keys)
}

// dependencyIDs lists the peer ids on one side of this node's timing
// graph. Brokers expose their child registry (every child is both a
// dependency and a dependent of its parent, §3); a bare Core has no
// peer registry of its own to report here — its timing peers live one
// level up, on whatever broker it is registered with.
func (e *Engine) dependencyIDs(dependency bool) string {
	_ = dependency
	if e.core != nil {
		return "[]"
	}
	var ids []string
	for _, c := range e.broker.Children() {
		ids = append(ids, fmt.Sprintf("%d", int32(c.ID)))
	}
	return flatList(ids)
}

func (e *Engine) currentTime() string {
	if e.core == nil {
		return mustJSON(map[string]int64{})
	}
	out := make(map[string]int64)
	for _, fed := range e.core.Federates() {
		out[fed.Name] = int64(fed.GrantedTime())
	}
	return mustJSON(out)
}

func (e *Engine) globalState() string {
	return e.state()
}

func (e *Engine) globalTime() string {
	return e.currentTime()
}

func (e *Engine) globalTimeDebugging() string {
	return mustJSON(map[string]interface{}{
		"node":    e.name(),
		"globalID": int32(e.globalID()),
		"time":    json.RawMessage(e.currentTime()),
	})
}

func (e *Engine) timeConfig() string {
	return mustJSON(map[string]interface{}{
		"name": e.name(),
	})
}

func (e *Engine) config() string {
	return mustJSON(map[string]interface{}{
		"name":     e.name(),
		"globalID": int32(e.globalID()),
	})
}

func (e *Engine) dataFlowGraph() string {
	if e.core != nil {
		return mustJSON(map[string]interface{}{"core": e.core.Name, "federates": federateNames(e.core)})
	}
	names := make([]string, 0)
	for _, c := range e.broker.Children() {
		names = append(names, c.Name)
	}
	return mustJSON(map[string]interface{}{"broker": e.broker.Name, "children": names})
}

func (e *Engine) dependencyGraph() string {
	return e.dataFlowGraph()
}

// globalFlush issues an opaque correlation token the caller can match
// against the eventual reply, the way a real HELICS flush round-trips
// an acknowledgement (§6's `global_flush`). It never blocks and only
// returns the token; nothing in this package tracks it afterwards.
func (e *Engine) globalFlush() string {
	return quoteJSON(protocol.NewNonce())
}

func federateNames(c *core.Core) []string {
	var out []string
	for _, fed := range c.Federates() {
		out = append(out, fed.Name)
	}
	return out
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return Invalid
	}
	return string(b)
}

// flatList renders a `[a;b;c]` flat list per §6's alternate reply
// shape, used for queries whose result is a bare name list rather than
// a structured object.
func flatList(items []string) string {
	return "[" + strings.Join(items, ";") + "]"
}
