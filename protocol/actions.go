package protocol

// ActionCode identifies the purpose of an ActionMessage. Values are
// partitioned into four routing classes (§4.1): Priority, Timing,
// Data/Routing, and Configuration. The numeric values are internal to
// this implementation — unlike the flag bits, they are not required to
// match any external wire peer.
type ActionCode int32

const (
	CMD_IGNORE ActionCode = iota

	// Priority class: federation setup/teardown, queries.
	CMD_REG_FED
	CMD_REG_BROKER
	CMD_FED_ACK
	CMD_BROKER_ACK
	CMD_PRIORITY_DISCONNECT
	CMD_QUERY
	CMD_QUERY_REPLY

	// Timing class.
	CMD_TIME_REQUEST
	CMD_TIME_GRANT
	CMD_EXEC_REQUEST
	CMD_EXEC_GRANT
	CMD_TIME_CHECK
	CMD_EXEC_CHECK
	CMD_TIMING_INFO
	CMD_TIME_BLOCK
	CMD_TIME_UNBLOCK
	CMD_TIME_BARRIER
	CMD_TIME_BARRIER_CLEAR
	CMD_REQUEST_CURRENT_TIME
	CMD_FORCE_TIME_GRANT
	CMD_INIT_GRANT

	// Data/Routing class.
	CMD_PUB
	CMD_SEND_MESSAGE
	CMD_SEND_FOR_FILTER
	CMD_SEND_FOR_FILTER_AND_RETURN
	CMD_FILTER_RESULT
	CMD_NULL_MESSAGE
	CMD_MULTI_MESSAGE

	// Configuration class.
	CMD_REG_PUB
	CMD_REG_INPUT
	CMD_REG_ENDPOINT
	CMD_REG_FILTER
	CMD_REG_TRANSLATOR
	CMD_ADD_DEPENDENCY
	CMD_ADD_DEPENDENT
	CMD_REMOVE_DEPENDENCY
	CMD_REMOVE_DEPENDENT
	CMD_CORE_CONFIGURE
	CMD_ADD_PUBLISHER
	CMD_ADD_FILTERED_ENDPOINT

	// Lifecycle / termination / error.
	CMD_TERMINATE_IMMEDIATELY
	CMD_STOP
	CMD_DISCONNECT
	CMD_DISCONNECT_FED
	CMD_DISCONNECT_BROKER_ACK
	CMD_DISCONNECT_CORE_ACK
	CMD_ERROR
	CMD_LOCAL_ERROR
	CMD_GLOBAL_ERROR
	CMD_SEARCH_DEPENDENCY
	CMD_SEND_COMMAND
)

func (c ActionCode) String() string {
	if s, ok := actionNames[c]; ok {
		return s
	}
	return "CMD_UNKNOWN"
}

var actionNames = map[ActionCode]string{
	CMD_IGNORE:                     "CMD_IGNORE",
	CMD_REG_FED:                    "CMD_REG_FED",
	CMD_REG_BROKER:                 "CMD_REG_BROKER",
	CMD_FED_ACK:                    "CMD_FED_ACK",
	CMD_BROKER_ACK:                 "CMD_BROKER_ACK",
	CMD_PRIORITY_DISCONNECT:        "CMD_PRIORITY_DISCONNECT",
	CMD_QUERY:                      "CMD_QUERY",
	CMD_QUERY_REPLY:                "CMD_QUERY_REPLY",
	CMD_TIME_REQUEST:               "CMD_TIME_REQUEST",
	CMD_TIME_GRANT:                 "CMD_TIME_GRANT",
	CMD_EXEC_REQUEST:               "CMD_EXEC_REQUEST",
	CMD_EXEC_GRANT:                 "CMD_EXEC_GRANT",
	CMD_TIME_CHECK:                 "CMD_TIME_CHECK",
	CMD_EXEC_CHECK:                 "CMD_EXEC_CHECK",
	CMD_TIMING_INFO:                "CMD_TIMING_INFO",
	CMD_TIME_BLOCK:                 "CMD_TIME_BLOCK",
	CMD_TIME_UNBLOCK:               "CMD_TIME_UNBLOCK",
	CMD_TIME_BARRIER:               "CMD_TIME_BARRIER",
	CMD_TIME_BARRIER_CLEAR:         "CMD_TIME_BARRIER_CLEAR",
	CMD_REQUEST_CURRENT_TIME:       "CMD_REQUEST_CURRENT_TIME",
	CMD_FORCE_TIME_GRANT:           "CMD_FORCE_TIME_GRANT",
	CMD_INIT_GRANT:                 "CMD_INIT_GRANT",
	CMD_PUB:                        "CMD_PUB",
	CMD_SEND_MESSAGE:               "CMD_SEND_MESSAGE",
	CMD_SEND_FOR_FILTER:            "CMD_SEND_FOR_FILTER",
	CMD_SEND_FOR_FILTER_AND_RETURN: "CMD_SEND_FOR_FILTER_AND_RETURN",
	CMD_FILTER_RESULT:              "CMD_FILTER_RESULT",
	CMD_NULL_MESSAGE:               "CMD_NULL_MESSAGE",
	CMD_MULTI_MESSAGE:              "CMD_MULTI_MESSAGE",
	CMD_REG_PUB:                    "CMD_REG_PUB",
	CMD_REG_INPUT:                  "CMD_REG_INPUT",
	CMD_REG_ENDPOINT:               "CMD_REG_ENDPOINT",
	CMD_REG_FILTER:                 "CMD_REG_FILTER",
	CMD_REG_TRANSLATOR:             "CMD_REG_TRANSLATOR",
	CMD_ADD_DEPENDENCY:             "CMD_ADD_DEPENDENCY",
	CMD_ADD_DEPENDENT:              "CMD_ADD_DEPENDENT",
	CMD_REMOVE_DEPENDENCY:          "CMD_REMOVE_DEPENDENCY",
	CMD_REMOVE_DEPENDENT:           "CMD_REMOVE_DEPENDENT",
	CMD_CORE_CONFIGURE:             "CMD_CORE_CONFIGURE",
	CMD_ADD_PUBLISHER:              "CMD_ADD_PUBLISHER",
	CMD_ADD_FILTERED_ENDPOINT:      "CMD_ADD_FILTERED_ENDPOINT",
	CMD_TERMINATE_IMMEDIATELY:      "CMD_TERMINATE_IMMEDIATELY",
	CMD_STOP:                       "CMD_STOP",
	CMD_DISCONNECT:                 "CMD_DISCONNECT",
	CMD_DISCONNECT_FED:             "CMD_DISCONNECT_FED",
	CMD_DISCONNECT_BROKER_ACK:      "CMD_DISCONNECT_BROKER_ACK",
	CMD_DISCONNECT_CORE_ACK:        "CMD_DISCONNECT_CORE_ACK",
	CMD_ERROR:                      "CMD_ERROR",
	CMD_LOCAL_ERROR:                "CMD_LOCAL_ERROR",
	CMD_GLOBAL_ERROR:               "CMD_GLOBAL_ERROR",
	CMD_SEARCH_DEPENDENCY:          "CMD_SEARCH_DEPENDENCY",
	CMD_SEND_COMMAND:               "CMD_SEND_COMMAND",
}

// RoutingClass is the §4.1 delivery-priority partition of an ActionCode.
type RoutingClass int

const (
	ClassPriority RoutingClass = iota
	ClassTiming
	ClassData
	ClassConfiguration
)

func (c ActionCode) Class() RoutingClass {
	switch c {
	case CMD_REG_FED, CMD_REG_BROKER, CMD_FED_ACK, CMD_BROKER_ACK,
		CMD_PRIORITY_DISCONNECT, CMD_QUERY, CMD_QUERY_REPLY:
		return ClassPriority
	case CMD_TIME_REQUEST, CMD_TIME_GRANT, CMD_EXEC_REQUEST, CMD_EXEC_GRANT,
		CMD_TIME_CHECK, CMD_EXEC_CHECK, CMD_TIMING_INFO, CMD_TIME_BLOCK,
		CMD_TIME_UNBLOCK, CMD_TIME_BARRIER, CMD_TIME_BARRIER_CLEAR,
		CMD_REQUEST_CURRENT_TIME, CMD_FORCE_TIME_GRANT, CMD_INIT_GRANT:
		return ClassTiming
	case CMD_PUB, CMD_SEND_MESSAGE, CMD_SEND_FOR_FILTER, CMD_SEND_FOR_FILTER_AND_RETURN,
		CMD_FILTER_RESULT, CMD_NULL_MESSAGE, CMD_MULTI_MESSAGE:
		return ClassData
	default:
		return ClassConfiguration
	}
}

// IsPriority reports whether this action bypasses ordered queues (§4.1,
// §5 ordering guarantees).
func (c ActionCode) IsPriority() bool { return c.Class() == ClassPriority }

// TimeProcessingResult is the outcome contract every message handler in
// the coordinator returns (§4.1).
type TimeProcessingResult int

const (
	NotProcessed TimeProcessingResult = iota
	Processed
	ProcessedNewRequest
	ProcessedAndCheck
	DelayProcessing
)

// MessageProcessingResult is the richer outcome vocabulary of the flat
// processCoordinatorMessage dispatch (§4.5).
type MessageProcessingResult int

const (
	ContinueProcessing MessageProcessingResult = iota
	NextStep
	Iterating
	ReprocessMessage
	DelayMessage
	Halted
	ErrorResult
	UserReturn
)

// FederateState is the lifecycle in §3.
type FederateState int

const (
	FedCreated FederateState = iota
	FedInitializing
	FedExecuting
	FedFinalizing
	FedFinalized
	FedError
)

func (s FederateState) String() string {
	switch s {
	case FedCreated:
		return "created"
	case FedInitializing:
		return "initializing"
	case FedExecuting:
		return "executing"
	case FedFinalizing:
		return "finalizing"
	case FedFinalized:
		return "finalized"
	case FedError:
		return "error"
	default:
		return "unknown"
	}
}

// TimeState is the per-dependency state sum type (§3).
type TimeState int

const (
	TimeInitialized TimeState = iota
	TimeExecRequested
	TimeExecRequestedIterative
	TimeExecRequestedRequireIteration
	TimeGranted
	TimeRequested
	TimeRequestedIterative
	TimeRequestedRequireIteration
	TimeError
)

func (s TimeState) String() string {
	switch s {
	case TimeInitialized:
		return "initialized"
	case TimeExecRequested:
		return "exec_requested"
	case TimeExecRequestedIterative:
		return "exec_requested_iterative"
	case TimeExecRequestedRequireIteration:
		return "exec_requested_require_iteration"
	case TimeGranted:
		return "time_granted"
	case TimeRequested:
		return "time_requested"
	case TimeRequestedIterative:
		return "time_requested_iterative"
	case TimeRequestedRequireIteration:
		return "time_requested_require_iteration"
	case TimeError:
		return "error"
	default:
		return "unknown"
	}
}

// IsIterative reports whether s carries either iteration variant.
func (s TimeState) IsIterative() bool {
	switch s {
	case TimeExecRequestedIterative, TimeExecRequestedRequireIteration,
		TimeRequestedIterative, TimeRequestedRequireIteration:
		return true
	default:
		return false
	}
}

// RequiresIteration reports the "must iterate, no look-ahead" variant.
func (s TimeState) RequiresIteration() bool {
	return s == TimeExecRequestedRequireIteration || s == TimeRequestedRequireIteration
}

// ConnectionType classifies one dependency-graph edge (§3).
type ConnectionType int

const (
	ConnNone ConnectionType = iota
	ConnParent
	ConnChild
	ConnSelf
)

func (c ConnectionType) String() string {
	switch c {
	case ConnParent:
		return "parent"
	case ConnChild:
		return "child"
	case ConnSelf:
		return "self"
	default:
		return "none"
	}
}

// IterationRequest is the per-request iteration policy carried on
// CMD_EXEC_REQUEST/CMD_TIME_REQUEST via flags (§4.3).
type IterationRequest int

const (
	NoIteration IterationRequest = iota
	IterateIfNeeded
	ForceIteration
)
