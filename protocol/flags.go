package protocol

// FlagBit indexes one of the 16 bits of an ActionMessage's Flags field.
// Positions are taken verbatim from the reference implementation's
// flagOperations.hpp so that a flag byte from a real peer decodes to the
// same semantic flags here.
type FlagBit uint16

// GeneralFlags.
const (
	ErrorFlag     FlagBit = 4
	IndicatorFlag FlagBit = 5
)

// TimingFlags.
const (
	IterationRequestedFlag FlagBit = 0
	NonGrantingFlag        FlagBit = 7
	InterruptedFlag        FlagBit = 8
	DelayedTimingFlag      FlagBit = 10
	ParentFlag             FlagBit = 13
	ChildFlag              FlagBit = 14
)

// InterfaceFlags.
const (
	BufferDataFlag          FlagBit = 0
	DestinationTargetFlag   FlagBit = 1
	RequiredFlag            FlagBit = 2
	SingleConnectionFlag    FlagBit = 3
	OnlyUpdateOnChangeFlag  FlagBit = 6
	ReconnectableFlag       FlagBit = 7
	OptionalFlag            FlagBit = 8
	OnlyTransmitOnChangeFlag FlagBit = 12
	NamelessInterfaceFlag   FlagBit = 15
)

// EndpointFlags.
const (
	TargetedFlag        FlagBit = 10
	HasSourceFilterFlag FlagBit = 11
	SourceOnlyFlag      FlagBit = 13
	ReceiveOnlyFlag     FlagBit = 14
)

// FilterFlags.
const (
	CloneFlag                    FlagBit = 9
	HasDestFilterFlag            FlagBit = 13
	HasNonCloningDestFilterFlag  FlagBit = 14
)

// ConnectionFlags.
const (
	CoreFlag               FlagBit = 3
	GlobalTimingFlag       FlagBit = 5
	UseJSONSerializationFlag FlagBit = 6
	AsyncTimingFlag        FlagBit = 7
	ObserverFlag           FlagBit = 8
	DynamicJoinFlag        FlagBit = 9
	ReentrantFlag          FlagBit = 10
	GlobalDisconnectFlag   FlagBit = 11
	DisconnectedFlag       FlagBit = 12
	TestConnectionFlag     FlagBit = 13
	SlowRespondingFlag     FlagBit = 14
	NonCountingFlag        FlagBit = 15
)

// MessageFlags.
const (
	FilterProcessingRequiredFlag FlagBit = 7
	UserCustomMessageFlag1       FlagBit = 10
	DestinationProcessingFlag    FlagBit = 11
	UserCustomMessageFlag2       FlagBit = 13
	UserCustomMessageFlag3       FlagBit = 14
	EmptyFlag                    FlagBit = 15
)

// OperationFlags.
const (
	CancelFlag FlagBit = 13
)

// Flags is the 16-bit bitset carried on every ActionMessage.
type Flags uint16

func (f Flags) Check(bit FlagBit) bool   { return f&(1<<uint16(bit)) != 0 }
func (f *Flags) Set(bit FlagBit)         { *f |= Flags(1 << uint16(bit)) }
func (f *Flags) Clear(bit FlagBit)       { *f &^= Flags(1 << uint16(bit)) }
func (f *Flags) Toggle(bit FlagBit) {
	if f.Check(bit) {
		f.Clear(bit)
	} else {
		f.Set(bit)
	}
}

// MakeFlags ORs together the bit positions given, mirroring the
// reference implementation's make_flags overloads.
func MakeFlags(bits ...FlagBit) Flags {
	var f Flags
	for _, b := range bits {
		f.Set(b)
	}
	return f
}

// IterationRequestFlags maps an IterationRequest to the flag bits that
// generateTimeRequest (§4.3) must set on the outgoing message.
func IterationRequestFlags(r IterationRequest) Flags {
	switch r {
	case IterateIfNeeded:
		return MakeFlags(IterationRequestedFlag)
	case ForceIteration:
		return MakeFlags(IterationRequestedFlag, IndicatorFlag)
	default:
		return 0
	}
}
