// Package translator implements the Translator subsystem (§4.7):
// bridging typed publication/input interfaces and raw-bytes message
// endpoints so a value update can cross into the message fabric (and
// back) without the federates on either side knowing the other exists.
package translator

import (
	"encoding/json"
	"fmt"

	"github.com/fep-fem/cosim-core/internal/coordinator"
	"github.com/fep-fem/cosim-core/protocol"
	"github.com/sirupsen/logrus"
)

// Encoding selects how a Translator renders a value as message bytes
// and back (§4.7's type field: JSON, binary, or custom).
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingBinary
	EncodingCustom
)

// jsonEnvelope is the wire shape for EncodingJSON, matching §4.7's
// literal example: `{"value": …, "type": "…"}`.
type jsonEnvelope struct {
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type"`
}

// CustomCodec lets a registering federate supply its own
// encode/decode pair when Encoding is EncodingCustom.
type CustomCodec struct {
	Encode func(value []byte, typeTag string) ([]byte, error)
	Decode func(message []byte) (value []byte, typeTag string, err error)
}

// Info is one registered translator (§4.7): its source/destination
// endpoints (message side) and input/publication targets (value side).
type Info struct {
	Handle protocol.InterfaceHandle
	Key    string

	SourceEndpoints    []protocol.InterfaceHandle
	DestEndpoints      []protocol.InterfaceHandle
	InputTargets       []protocol.InterfaceHandle
	PublicationTargets []protocol.InterfaceHandle

	Encoding Encoding
	Custom   CustomCodec
}

// Coordinator is the per-core translator federate: it owns every
// registered translator and performs the value<->message conversion
// in both directions, mirroring internal/filter.Coordinator's shape
// (a core-hosted internal federate driven by inbound ActionMessages).
type Coordinator struct {
	send   coordinator.SendFunc
	logger *logrus.Logger

	byHandle map[protocol.InterfaceHandle]*Info
}

// NewCoordinator constructs a translator Coordinator. send is the sink
// used to deliver outbound CMD_SEND_MESSAGE (value->message direction)
// traffic; the message->value direction (MessageArrival) returns its
// result to the caller and sends nothing.
func NewCoordinator(send coordinator.SendFunc) *Coordinator {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	return &Coordinator{
		send:     send,
		logger:   logger,
		byHandle: make(map[protocol.InterfaceHandle]*Info),
	}
}

// Register attaches a new Translator under handle.
func (c *Coordinator) Register(info *Info) {
	c.byHandle[info.Handle] = info
	c.logger.WithFields(logrus.Fields{"translator": info.Key}).Info("registered translator")
}

// Get looks up a registered translator by its handle.
func (c *Coordinator) Get(h protocol.InterfaceHandle) (*Info, bool) {
	info, ok := c.byHandle[h]
	return info, ok
}

// PublicationUpdate handles a value arriving on a publication this
// translator watches (§4.7: "on a publication update -> emit a message
// to each destEndpoint with the value encoded"). typeTag is the
// publication's declared type, used by EncodingJSON's envelope and
// passed through to EncodingCustom's Encode.
func (c *Coordinator) PublicationUpdate(h protocol.InterfaceHandle, value []byte, typeTag string, actionTime protocol.Time) error {
	info, ok := c.byHandle[h]
	if !ok {
		return protocol.NewError(protocol.InvalidIdentifier, "unknown translator handle", nil)
	}

	encoded, err := c.encode(info, value, typeTag)
	if err != nil {
		return err
	}

	for _, dest := range info.DestEndpoints {
		msg := protocol.NewActionMessage(protocol.CMD_SEND_MESSAGE)
		msg.SourceHandle = h
		msg.DestHandle = dest
		msg.ActionTime = actionTime
		msg.Payload = encoded
		c.send(msg)
	}
	return nil
}

// MessageArrival handles a message arriving at a source endpoint this
// translator watches (§4.7: "on a message arrival ... -> decode to
// value -> update each input"). It returns the decoded value and the
// translator's input targets so the caller can apply it; the
// translator itself only knows handles, not input state.
func (c *Coordinator) MessageArrival(h protocol.InterfaceHandle, payload []byte) (value []byte, typeTag string, targets []protocol.InterfaceHandle, err error) {
	info, ok := c.byHandle[h]
	if !ok {
		return nil, "", nil, protocol.NewError(protocol.InvalidIdentifier, "unknown translator handle", nil)
	}
	value, typeTag, err = c.decode(info, payload)
	if err != nil {
		return nil, "", nil, err
	}
	return value, typeTag, info.InputTargets, nil
}

func (c *Coordinator) encode(info *Info, value []byte, typeTag string) ([]byte, error) {
	switch info.Encoding {
	case EncodingJSON:
		out, err := json.Marshal(jsonEnvelope{Value: json.RawMessage(value), Type: typeTag})
		if err != nil {
			return nil, protocol.NewError(protocol.InvalidParameter, "encoding translator value as JSON", err)
		}
		return out, nil
	case EncodingBinary:
		return value, nil
	case EncodingCustom:
		if info.Custom.Encode == nil {
			return nil, protocol.NewError(protocol.InvalidParameter, "custom translator has no Encode function", nil)
		}
		return info.Custom.Encode(value, typeTag)
	default:
		return nil, protocol.NewError(protocol.InvalidParameter, fmt.Sprintf("unknown translator encoding %d", info.Encoding), nil)
	}
}

func (c *Coordinator) decode(info *Info, payload []byte) ([]byte, string, error) {
	switch info.Encoding {
	case EncodingJSON:
		var env jsonEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, "", protocol.NewError(protocol.InvalidParameter, "decoding translator message as JSON", err)
		}
		return []byte(env.Value), env.Type, nil
	case EncodingBinary:
		return payload, "", nil
	case EncodingCustom:
		if info.Custom.Decode == nil {
			return nil, "", protocol.NewError(protocol.InvalidParameter, "custom translator has no Decode function", nil)
		}
		return info.Custom.Decode(payload)
	default:
		return nil, "", protocol.NewError(protocol.InvalidParameter, fmt.Sprintf("unknown translator encoding %d", info.Encoding), nil)
	}
}
