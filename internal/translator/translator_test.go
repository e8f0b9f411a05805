package translator

import (
	"testing"

	"github.com/fep-fem/cosim-core/protocol"
)

func TestPublicationUpdateEmitsEncodedMessageToEachDestEndpoint(t *testing.T) {
	var sent []protocol.ActionMessage
	c := NewCoordinator(func(msg protocol.ActionMessage) { sent = append(sent, msg) })

	h := protocol.InterfaceHandle(1)
	c.Register(&Info{
		Handle:        h,
		Key:           "xlate1",
		DestEndpoints: []protocol.InterfaceHandle{10, 11},
		Encoding:      EncodingJSON,
	})

	if err := c.PublicationUpdate(h, []byte("27.0"), "double", protocol.Time(1_000_000_000)); err != nil {
		t.Fatalf("PublicationUpdate: %v", err)
	}
	if len(sent) != 2 {
		t.Fatalf("expected 2 outbound messages, got %d", len(sent))
	}
	for i, dest := range []protocol.InterfaceHandle{10, 11} {
		if sent[i].Action != protocol.CMD_SEND_MESSAGE {
			t.Fatalf("message %d: expected CMD_SEND_MESSAGE, got %v", i, sent[i].Action)
		}
		if sent[i].DestHandle != dest {
			t.Fatalf("message %d: expected dest %v, got %v", i, dest, sent[i].DestHandle)
		}
	}
}

func TestRoundTripJSONPublishMessageBackToInput(t *testing.T) {
	var sent protocol.ActionMessage
	c := NewCoordinator(func(msg protocol.ActionMessage) { sent = msg })

	h := protocol.InterfaceHandle(2)
	c.Register(&Info{
		Handle:        h,
		Key:           "xlate2",
		DestEndpoints: []protocol.InterfaceHandle{20},
		InputTargets:  []protocol.InterfaceHandle{30},
		Encoding:      EncodingJSON,
	})

	if err := c.PublicationUpdate(h, []byte(`42.5`), "double", protocol.TimeZero); err != nil {
		t.Fatalf("PublicationUpdate: %v", err)
	}

	value, typeTag, targets, err := c.MessageArrival(h, sent.Payload)
	if err != nil {
		t.Fatalf("MessageArrival: %v", err)
	}
	if string(value) != "42.5" {
		t.Fatalf("round-trip value mismatch: got %q", value)
	}
	if typeTag != "double" {
		t.Fatalf("round-trip type mismatch: got %q", typeTag)
	}
	if len(targets) != 1 || targets[0] != protocol.InterfaceHandle(30) {
		t.Fatalf("unexpected input targets: %+v", targets)
	}
}

func TestBinaryEncodingPassesPayloadThrough(t *testing.T) {
	var sent protocol.ActionMessage
	c := NewCoordinator(func(msg protocol.ActionMessage) { sent = msg })

	h := protocol.InterfaceHandle(3)
	c.Register(&Info{Handle: h, DestEndpoints: []protocol.InterfaceHandle{40}, Encoding: EncodingBinary})

	raw := []byte{0x01, 0x02, 0x03}
	if err := c.PublicationUpdate(h, raw, "raw", protocol.TimeZero); err != nil {
		t.Fatalf("PublicationUpdate: %v", err)
	}
	if string(sent.Payload) != string(raw) {
		t.Fatalf("expected passthrough payload %v, got %v", raw, sent.Payload)
	}
}

func TestCustomEncodingRequiresCodec(t *testing.T) {
	c := NewCoordinator(func(protocol.ActionMessage) {})
	h := protocol.InterfaceHandle(4)
	c.Register(&Info{Handle: h, Encoding: EncodingCustom})

	if err := c.PublicationUpdate(h, []byte("x"), "string", protocol.TimeZero); err == nil {
		t.Fatal("expected error for custom encoding without an Encode function")
	}
}

func TestMessageArrivalUnknownHandle(t *testing.T) {
	c := NewCoordinator(func(protocol.ActionMessage) {})
	if _, _, _, err := c.MessageArrival(protocol.InterfaceHandle(99), nil); err == nil {
		t.Fatal("expected error for unregistered translator handle")
	}
}
