// Package handle implements the Core-level interface registry (§4.2):
// the Handle record, alias resolution, and the pending-link mechanism
// that makes registration order irrelevant to final connectivity.
package handle

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fep-fem/cosim-core/protocol"
)

// Kind is the interface category a Handle represents (§3).
type Kind int

const (
	KindPublication Kind = iota
	KindInput
	KindEndpoint
	KindFilter
	KindTranslator
)

// String renders the wire-level category name used by the query
// engine's `publications`/`inputs`/`endpoints`/`filters`/`translators`
// queries (§6).
func (k Kind) String() string {
	switch k {
	case KindPublication:
		return "publication"
	case KindInput:
		return "input"
	case KindEndpoint:
		return "endpoint"
	case KindFilter:
		return "filter"
	case KindTranslator:
		return "translator"
	default:
		return "unknown"
	}
}

// Handle is one registered interface (§3): created at registration,
// never re-keyed, marked disconnected (not removed) on owner finalize
// unless the federation is reentrant.
type Handle struct {
	Owner protocol.GlobalHandle
	Kind  Kind
	Key   string
	Type  string
	Units string
	Flags protocol.Flags

	Targets []string

	Disconnected bool
}

// pendingLink is remembered the moment an add_target/link_* command
// names two endpoints, regardless of which (if either) is registered
// yet (§4.2).
type pendingLink struct {
	source, target string
	required       bool
}

// Manager is the Core-level HandleManager: InterfaceHandle -> Handle,
// key -> InterfaceHandle, plus alias and pending-link bookkeeping.
type Manager struct {
	byHandle map[protocol.InterfaceHandle]*Handle
	byKey    map[string]protocol.InterfaceHandle
	aliases  map[string]string
	pending  []pendingLink
	next     protocol.InterfaceHandle
}

func NewManager() *Manager {
	return &Manager{
		byHandle: make(map[protocol.InterfaceHandle]*Handle),
		byKey:    make(map[string]protocol.InterfaceHandle),
		aliases:  make(map[string]string),
	}
}

// Register creates a new Handle under the given key, returning its
// freshly allocated InterfaceHandle. It is an error (RegistrationFailure)
// to reuse a key already registered.
func (m *Manager) Register(owner protocol.GlobalHandle, kind Kind, key, typ, units string) (protocol.InterfaceHandle, error) {
	if _, exists := m.byKey[key]; exists {
		return protocol.InvalidInterfaceHandle, protocol.NewError(protocol.RegistrationFailure,
			"duplicate interface name: "+key, nil)
	}
	h := m.next
	m.next++

	m.byHandle[h] = &Handle{Owner: owner, Kind: kind, Key: key, Type: typ, Units: units}
	m.byKey[key] = h

	m.resolvePendingFor(key)
	return h, nil
}

// Get returns the Handle for h, or nil if unknown.
func (m *Manager) Get(h protocol.InterfaceHandle) *Handle {
	return m.byHandle[h]
}

// Lookup resolves a key to its handle, following aliases transitively.
func (m *Manager) Lookup(key string) (protocol.InterfaceHandle, bool) {
	resolved, err := m.ResolveAlias(key)
	if err != nil {
		return protocol.InvalidInterfaceHandle, false
	}
	h, ok := m.byKey[resolved]
	return h, ok
}

// AddAlias registers key as an alias for target. Cycles (A->B->...->A)
// are rejected at registration time (§4.2, testable property 7).
func (m *Manager) AddAlias(key, target string) error {
	if key == target {
		return protocol.NewError(protocol.InvalidParameter, "alias cannot target itself: "+key, nil)
	}
	trial := make(map[string]string, len(m.aliases)+1)
	for k, v := range m.aliases {
		trial[k] = v
	}
	trial[key] = target

	visited := map[string]bool{key: true}
	cur := target
	for {
		next, ok := trial[cur]
		if !ok {
			break
		}
		if visited[next] {
			return protocol.NewError(protocol.RegistrationFailure,
				"alias cycle detected starting at "+key, nil)
		}
		visited[cur] = true
		cur = next
	}

	m.aliases[key] = target
	return nil
}

// ResolveAlias follows the alias chain from key to its final target,
// returning an error if a cycle is somehow present (defense in depth;
// AddAlias should already have rejected it).
func (m *Manager) ResolveAlias(key string) (string, error) {
	visited := make(map[string]bool)
	cur := key
	for {
		if visited[cur] {
			return "", protocol.NewError(protocol.RegistrationFailure, "alias cycle detected", nil)
		}
		visited[cur] = true
		next, ok := m.aliases[cur]
		if !ok {
			return cur, nil
		}
		cur = next
	}
}

// AddPendingLink remembers a link between source and target keyed by
// the pair itself; when either name is later registered, matching
// pending links are resolved immediately (§4.2).
func (m *Manager) AddPendingLink(source, target string, required bool) {
	m.pending = append(m.pending, pendingLink{source: source, target: target, required: required})
}

// resolvePendingFor re-checks every pending link mentioning name and
// wires the corresponding Handle.Targets entries for any link whose
// both endpoints are now known.
func (m *Manager) resolvePendingFor(name string) {
	_ = name // any newly registered key may complete any pending link
	var remaining []pendingLink
	for _, link := range m.pending {
		srcHandle, srcOK := m.byKey[link.source]
		targets := m.expandTarget(link.target)
		if !srcOK || len(targets) == 0 {
			remaining = append(remaining, link)
			continue
		}
		src := m.byHandle[srcHandle]
		for _, t := range targets {
			src.Targets = appendUnique(src.Targets, t)
		}
	}
	m.pending = remaining
}

// expandTarget resolves a target specifier: a literal key, an alias,
// or a REGEX:<pattern> wildcard expanded against every currently
// registered key (§4.2). A REGEX link is expanded when resolvePendingFor
// runs; once it matches at least one key it leaves the pending list, so
// interfaces registered after that are not added to its targets.
func (m *Manager) expandTarget(target string) []string {
	if strings.HasPrefix(target, "REGEX:") {
		pattern := strings.TrimPrefix(target, "REGEX:")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil
		}
		var matches []string
		for key := range m.byKey {
			if re.MatchString(key) {
				matches = append(matches, key)
			}
		}
		sort.Strings(matches)
		return matches
	}
	resolved, err := m.ResolveAlias(target)
	if err != nil {
		return nil
	}
	if _, ok := m.byKey[resolved]; ok {
		return []string{resolved}
	}
	return nil
}

// FinalizeLinks is called at enterInitializing: every still-pending
// required link, whether or not its source is registered, yields a
// ConnectionFailure error; optional links stay pending and are not
// logged (§4.2).
func (m *Manager) FinalizeLinks() []error {
	var errs []error
	var remaining []pendingLink
	for _, link := range m.pending {
		if link.required {
			errs = append(errs, protocol.NewError(protocol.ConnectionFailure,
				"unresolved required link "+link.source+" -> "+link.target, nil))
		} else {
			remaining = append(remaining, link)
		}
	}
	m.pending = remaining
	return errs
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// All returns every registered key paired with its handle, for the
// query engine's `publications`/`inputs`/`endpoints`/`interfaces`
// listings (§6). Order is not significant; callers sort if needed.
func (m *Manager) All() map[string]protocol.InterfaceHandle {
	out := make(map[string]protocol.InterfaceHandle, len(m.byKey))
	for k, v := range m.byKey {
		out[k] = v
	}
	return out
}

// Disconnect marks h's owner interface disconnected rather than
// removing it, unless reentrant is set, in which case the handle is
// fully released for potential reuse (§3).
func (m *Manager) Disconnect(h protocol.InterfaceHandle, reentrant bool) {
	rec, ok := m.byHandle[h]
	if !ok {
		return
	}
	if reentrant {
		delete(m.byHandle, h)
		delete(m.byKey, rec.Key)
		return
	}
	rec.Disconnected = true
}
