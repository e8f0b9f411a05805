package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	leadingChar byte = 0xF3
	tailChar1   byte = 0xFA
	tailChar2   byte = 0xFC

	// headerLen is the sentinel byte plus the 3-byte length field that
	// precedes every framed body on the wire.
	headerLen = 4
	// tailLen is the two fixed trailer bytes.
	tailLen = 2
)

// ActionMessage is the uniform control/data envelope that moves between
// every pair of nodes in a federation (§3, §4.1). Field order here
// matches the body layout fixed by §6 exactly; Packetize/Depacketize
// must not reorder it.
type ActionMessage struct {
	Action ActionCode

	MessageID int32

	SourceID     GlobalFederateId
	SourceHandle InterfaceHandle
	DestID       GlobalFederateId
	DestHandle   InterfaceHandle

	Counter int16
	Flags   Flags

	SequenceID    int32
	ExtraData     int32
	ExtraDestData int32

	ActionTime Time
	Te         Time
	Tdemin     Time

	Payload    []byte
	StringData []string
}

// NewActionMessage constructs a zero-valued message carrying only the
// action code, matching the teacher's constructor-with-defaults idiom.
func NewActionMessage(action ActionCode) ActionMessage {
	return ActionMessage{
		Action:       action,
		SourceID:     InvalidGlobalFederateId,
		DestID:       InvalidGlobalFederateId,
		SourceHandle: InvalidInterfaceHandle,
		DestHandle:   InvalidInterfaceHandle,
	}
}

// Source returns the message's origin as a single GlobalHandle.
func (m ActionMessage) Source() GlobalHandle {
	return GlobalHandle{Federate: m.SourceID, Handle: m.SourceHandle}
}

// Dest returns the message's destination as a single GlobalHandle.
func (m ActionMessage) Dest() GlobalHandle {
	return GlobalHandle{Federate: m.DestID, Handle: m.DestHandle}
}

// SetExtraDestData stashes the per-dependent sequence counter alongside
// a broadcast message right before it is sent to one dependent, the way
// BaseTimeCoordinator::transmitTimingMessages does for CMD_EXEC_REQUEST.
func (m *ActionMessage) SetExtraDestData(v int32) { m.ExtraDestData = v }

// Packetize serializes m into the length-prefixed, sentinel-framed wire
// format required by §6: 0xF3, a 3-byte big-endian length covering the
// header and body only (matching original_source's ActionMessage::packetize,
// which records message_size before the two trailer bytes are appended),
// the body, then 0xFA 0xFC.
func (m ActionMessage) Packetize() []byte {
	body := m.encodeBody()
	messageSize := headerLen + len(body)
	frameSize := messageSize + tailLen

	out := make([]byte, 0, frameSize)
	out = append(out, leadingChar)
	out = append(out, byte(messageSize>>16), byte(messageSize>>8), byte(messageSize))
	out = append(out, body...)
	out = append(out, tailChar1, tailChar2)
	return out
}

func (m ActionMessage) encodeBody() []byte {
	buf := make([]byte, 0, 64+len(m.Payload))

	buf = appendI32(buf, int32(m.Action))
	buf = appendI32(buf, m.MessageID)
	buf = appendI32(buf, int32(m.SourceID))
	buf = appendI32(buf, int32(m.SourceHandle))
	buf = appendI32(buf, int32(m.DestID))
	buf = appendI32(buf, int32(m.DestHandle))
	buf = appendI16(buf, m.Counter)
	buf = appendU16(buf, uint16(m.Flags))
	buf = appendI32(buf, m.SequenceID)
	buf = appendI32(buf, m.ExtraData)
	buf = appendI32(buf, m.ExtraDestData)
	buf = appendI64(buf, int64(m.ActionTime))
	buf = appendI64(buf, int64(m.Te))
	buf = appendI64(buf, int64(m.Tdemin))

	buf = appendI32(buf, int32(len(m.Payload)))
	buf = append(buf, m.Payload...)

	buf = appendI32(buf, int32(len(m.StringData)))
	for _, s := range m.StringData {
		buf = appendI32(buf, int32(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

// Depacketize parses the first complete frame out of data, returning the
// decoded message and the number of bytes consumed. A buffer shorter
// than the frame it announces yields an error wrapping
// ErrIncompleteFrame; a complete frame with a bad leading byte, bad tail
// bytes or a body too short for its fields yields an Error of Kind
// SystemFailure. Stream.Read uses errors.Is(err, ErrIncompleteFrame) to
// tell "need more bytes" from "corrupt stream".
func Depacketize(data []byte) (ActionMessage, int, error) {
	if len(data) < headerLen+tailLen {
		return ActionMessage{}, 0, fmt.Errorf("%w: frame shorter than minimum header+tail", ErrIncompleteFrame)
	}
	if data[0] != leadingChar {
		return ActionMessage{}, 0, NewError(SystemFailure, "depacketize: bad leading byte", nil)
	}
	messageSize := int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	frameSize := messageSize + tailLen
	if len(data) < frameSize {
		return ActionMessage{}, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrIncompleteFrame, frameSize, len(data))
	}
	if data[frameSize-2] != tailChar1 || data[frameSize-1] != tailChar2 {
		return ActionMessage{}, 0, NewError(SystemFailure, "depacketize: bad tail bytes", nil)
	}

	body := data[headerLen:messageSize]
	m, err := decodeBody(body)
	if err != nil {
		return ActionMessage{}, 0, err
	}
	return m, frameSize, nil
}

func decodeBody(body []byte) (ActionMessage, error) {
	var m ActionMessage
	r := &reader{buf: body}

	m.Action = ActionCode(r.i32())
	m.MessageID = r.i32()
	m.SourceID = GlobalFederateId(r.i32())
	m.SourceHandle = InterfaceHandle(r.i32())
	m.DestID = GlobalFederateId(r.i32())
	m.DestHandle = InterfaceHandle(r.i32())
	m.Counter = r.i16()
	m.Flags = Flags(r.u16())
	m.SequenceID = r.i32()
	m.ExtraData = r.i32()
	m.ExtraDestData = r.i32()
	m.ActionTime = Time(r.i64())
	m.Te = Time(r.i64())
	m.Tdemin = Time(r.i64())

	plen := int(r.i32())
	m.Payload = r.bytes(plen)

	n := int(r.i32())
	if n > 0 {
		m.StringData = make([]string, n)
		for i := 0; i < n; i++ {
			slen := int(r.i32())
			m.StringData[i] = string(r.bytes(slen))
		}
	}

	if r.err != nil {
		return ActionMessage{}, NewError(SystemFailure, "depacketize: malformed body", r.err)
	}
	return m, nil
}

// reader is a minimal bounds-checked cursor over a decoded body; it
// accumulates the first error seen rather than panicking, so
// decodeBody can check once at the end.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("truncated body at offset %d wanting %d bytes", r.pos, n)
		return false
	}
	return true
}

func (r *reader) i32() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) i16() int16 {
	return int16(r.u16())
}

func (r *reader) i64() int64 {
	if !r.need(8) {
		return 0
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v
}

func (r *reader) bytes(n int) []byte {
	if n < 0 || !r.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out
}

func appendI32(b []byte, v int32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	return append(b, tmp[:]...)
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendI16(b []byte, v int16) []byte {
	return appendU16(b, uint16(v))
}

func appendI64(b []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(b, tmp[:]...)
}
