package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestActionMessageRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  ActionMessage
	}{
		{
			name: "zero value",
			msg:  NewActionMessage(CMD_IGNORE),
		},
		{
			name: "time grant with strings",
			msg: ActionMessage{
				Action:       CMD_TIME_GRANT,
				MessageID:    7,
				SourceID:     GlobalFederateId(3),
				SourceHandle: InterfaceHandle(1),
				DestID:       GlobalFederateId(4),
				DestHandle:   InvalidInterfaceHandle,
				Counter:      2,
				Flags:        MakeFlags(IterationRequestedFlag, ParentFlag),
				SequenceID:   42,
				ActionTime:   Time(1_000_000_000),
				Te:           Time(2_000_000_000),
				Tdemin:       Time(500_000_000),
				Payload:      []byte("hello world"),
				StringData:   []string{"alpha", "beta", "gamma"},
			},
		},
		{
			// E5: large payload, multiple flags, three ~50-char strings.
			name: "E5 large payload and flags",
			msg: ActionMessage{
				Action:        CMD_SEND_MESSAGE,
				MessageID:     99,
				SourceID:      GlobalFederateId(10),
				SourceHandle:  InterfaceHandle(5),
				DestID:        GlobalFederateId(11),
				DestHandle:    InterfaceHandle(6),
				Counter:       -1,
				Flags:         MakeFlags(IterationRequestedFlag, RequiredFlag, ErrorFlag),
				SequenceID:    123456,
				ExtraData:     -7,
				ExtraDestData: 9,
				ActionTime:    Time(45_700_000_000),
				Te:            Time(46_000_000_000),
				Tdemin:        Time(44_000_000_000),
				Payload:       bytes.Repeat([]byte{0xAB, 0xCD, 0x00, 0xFF}, 125_000), // 500,000 bytes
				StringData: []string{
					strings.Repeat("a", 50),
					strings.Repeat("b", 52),
					strings.Repeat("c", 49),
				},
			},
		},
		{
			name: "negative ids and handles",
			msg: ActionMessage{
				Action:       CMD_GLOBAL_ERROR,
				SourceID:     InvalidGlobalFederateId,
				DestID:       ParentBrokerID,
				SourceHandle: InvalidInterfaceHandle,
				DestHandle:   InvalidInterfaceHandle,
				ActionTime:   TimeMin,
				Te:           TimeMax,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := tc.msg.Packetize()
			if encoded[0] != leadingChar {
				t.Fatalf("expected leading byte 0x%X, got 0x%X", leadingChar, encoded[0])
			}
			if encoded[len(encoded)-2] != tailChar1 || encoded[len(encoded)-1] != tailChar2 {
				t.Fatalf("expected tail bytes 0x%X 0x%X, got 0x%X 0x%X",
					tailChar1, tailChar2, encoded[len(encoded)-2], encoded[len(encoded)-1])
			}

			decoded, n, err := Depacketize(encoded)
			if err != nil {
				t.Fatalf("Depacketize: %v", err)
			}
			if n != len(encoded) {
				t.Fatalf("consumed %d bytes, expected %d", n, len(encoded))
			}
			if !messagesEqual(tc.msg, decoded) {
				t.Fatalf("round trip mismatch:\n  original: %+v\n  decoded:  %+v", tc.msg, decoded)
			}
		})
	}
}

func TestDepacketizeIncompleteFrame(t *testing.T) {
	msg := ActionMessage{Action: CMD_TIME_REQUEST, Payload: []byte("partial")}
	full := msg.Packetize()

	for cut := 0; cut < len(full); cut++ {
		_, _, err := Depacketize(full[:cut])
		if err == nil {
			t.Fatalf("expected error depacketizing truncated frame of length %d", cut)
		}
	}
}

func TestDepacketizeMultipleFramesInBuffer(t *testing.T) {
	m1 := ActionMessage{Action: CMD_EXEC_REQUEST, MessageID: 1}
	m2 := ActionMessage{Action: CMD_EXEC_GRANT, MessageID: 2}

	buf := append(m1.Packetize(), m2.Packetize()...)

	first, n1, err := Depacketize(buf)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if first.Action != CMD_EXEC_REQUEST || first.MessageID != 1 {
		t.Fatalf("unexpected first frame: %+v", first)
	}

	second, n2, err := Depacketize(buf[n1:])
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if second.Action != CMD_EXEC_GRANT || second.MessageID != 2 {
		t.Fatalf("unexpected second frame: %+v", second)
	}
	if n1+n2 != len(buf) {
		t.Fatalf("did not consume whole buffer: %d + %d != %d", n1, n2, len(buf))
	}
}

func TestDepacketizeBadLeadingByte(t *testing.T) {
	msg := ActionMessage{Action: CMD_QUERY}
	encoded := msg.Packetize()
	encoded[0] = 0x00
	if _, _, err := Depacketize(encoded); err == nil {
		t.Fatal("expected error for corrupted leading byte")
	}
}

func TestDepacketizeBadTail(t *testing.T) {
	msg := ActionMessage{Action: CMD_QUERY}
	encoded := msg.Packetize()
	encoded[len(encoded)-1] = 0x00
	if _, _, err := Depacketize(encoded); err == nil {
		t.Fatal("expected error for corrupted tail byte")
	}
}

func messagesEqual(a, b ActionMessage) bool {
	if a.Action != b.Action || a.MessageID != b.MessageID ||
		a.SourceID != b.SourceID || a.SourceHandle != b.SourceHandle ||
		a.DestID != b.DestID || a.DestHandle != b.DestHandle ||
		a.Counter != b.Counter || a.Flags != b.Flags ||
		a.SequenceID != b.SequenceID || a.ExtraData != b.ExtraData ||
		a.ExtraDestData != b.ExtraDestData ||
		a.ActionTime != b.ActionTime || a.Te != b.Te || a.Tdemin != b.Tdemin {
		return false
	}
	if !bytes.Equal(a.Payload, b.Payload) {
		return false
	}
	if len(a.StringData) != len(b.StringData) {
		return false
	}
	for i := range a.StringData {
		if a.StringData[i] != b.StringData[i] {
			return false
		}
	}
	return true
}
