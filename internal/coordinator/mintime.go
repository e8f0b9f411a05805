package coordinator

import (
	"github.com/fep-fem/cosim-core/internal/dependency"
	"github.com/fep-fem/cosim-core/protocol"
)

// MinTimeSet is the aggregate computed across a node's dependencies on
// every round: the candidate grant time plus the bookkeeping needed to
// decide whether that candidate is valid (§4.4 rules 1-4).
type MinTimeSet struct {
	MinNext  protocol.Time
	MinTe    protocol.Time
	MinTso   protocol.Time
	MinDemin protocol.Time
	MinFed   protocol.GlobalFederateId

	// TimeState summarizes whether the candidate represents a firm
	// grant or still requires an iteration round.
	TimeState protocol.TimeState
}

// GenerateMinTimeSet computes the §4.4 rules-1-4 aggregate over deps,
// used directly by the Distributed variant and, with one federate
// excluded, by the Forwarding variant's
// generateTimeRequestIgnoreDependency (SPEC_FULL.md §C.3).
//
// restrictive skips the event horizon (rule 2), the Tdemin aggregate
// and the rule-3 tie-break (rule 5: "grant exactly the minimum with no
// look-ahead"); the rule-4 Tso tracking still runs.
func GenerateMinTimeSet(deps []*dependency.Info, restrictive bool, excludeFed protocol.GlobalFederateId) MinTimeSet {
	set := MinTimeSet{
		MinNext:   protocol.TimeMax,
		MinTe:     protocol.TimeMax,
		MinTso:    protocol.TimeMax,
		MinDemin:  protocol.TimeMax,
		MinFed:    protocol.InvalidGlobalFederateId,
		TimeState: protocol.TimeGranted,
	}

	tsoCandidates := 0
	iterationRequired := false
	iterationRequested := false

	for _, dep := range deps {
		if dep.Disconnected || dep.FedID == excludeFed {
			continue
		}

		// Rule 1: no dependency may be passed.
		if dep.Next < set.MinNext {
			set.MinNext = dep.Next
			set.MinFed = dep.FedID
		} else if dep.Next == set.MinNext {
			// Rule 3 tie-break candidate; resolved below.
		}

		// Rule 2: event horizon, only from granted or interrupted deps.
		if !restrictive && (dep.State == protocol.TimeGranted || dep.Interrupted) {
			if dep.Te < set.MinTe {
				set.MinTe = dep.Te
			}
		}

		// Rule 4: source-only (Tso) dependencies — modeled here as a
		// dependency-only (not also dependent) peer, which can only
		// ever supply values, never itself wait on a grant.
		if dep.Dependency && !dep.Dependent {
			if dep.Next < set.MinTso {
				set.MinTso = dep.Next
				tsoCandidates = 1
			} else if dep.Next == set.MinTso {
				tsoCandidates++
			}
		}

		if !restrictive && dep.MinDe < set.MinDemin {
			set.MinDemin = dep.MinDe
		}

		if dep.State.RequiresIteration() {
			iterationRequired = true
		} else if dep.State.IsIterative() {
			iterationRequested = true
		}
	}

	// Rule 3: when several dependencies tie on Next, only the one
	// whose own MinDe exceeds Next is authoritative; otherwise the
	// candidate is invalidated.
	if !restrictive {
		tiedCount := 0
		var authoritative *dependency.Info
		for _, dep := range deps {
			if dep.Disconnected || dep.FedID == excludeFed {
				continue
			}
			if dep.Next == set.MinNext {
				tiedCount++
				if dep.MinDe > dep.Next {
					authoritative = dep
				}
			}
		}
		if tiedCount > 1 {
			if authoritative == nil {
				set.MinNext = protocol.TimeMin
				set.MinFed = protocol.InvalidGlobalFederateId
			} else {
				set.MinFed = authoritative.FedID
			}
		}
	}

	// Rule 4 tie-break: multiple Tso candidates with no single minimum
	// federate invalidates MinFed.
	if tsoCandidates > 1 {
		set.MinFed = protocol.InvalidGlobalFederateId
	}

	switch {
	case iterationRequired:
		set.TimeState = protocol.TimeRequestedRequireIteration
	case iterationRequested:
		set.TimeState = protocol.TimeRequestedIterative
	}

	return set
}

// Candidate returns the grant time this MinTimeSet allows: the lower
// of MinNext and MinTe (rules 1-2). An invalidated set (MinNext ==
// TimeMin) yields TimeMin.
func (s MinTimeSet) Candidate() protocol.Time {
	return protocol.MinTime(s.MinNext, s.MinTe)
}

// Valid reports whether the candidate survived the tie-break rules
// (rule 3/4 invalidation is encoded as TimeMin).
func (s MinTimeSet) Valid() bool {
	return s.MinNext != protocol.TimeMin
}
