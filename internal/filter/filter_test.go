package filter

import (
	"testing"

	"github.com/fep-fem/cosim-core/protocol"
)

func upper(payload []byte) ([]byte, bool) {
	out := make([]byte, len(payload))
	for i, b := range payload {
		if b >= 'a' && b <= 'z' {
			b -= 32
		}
		out[i] = b
	}
	return out, false
}

func drop(payload []byte) ([]byte, bool) { return nil, true }

func TestChainOrdersCloningFirstThenGreedyTypeChain(t *testing.T) {
	a := &Info{Key: "a", InputType: "raw", OutputType: "stage1"}
	b := &Info{Key: "b", InputType: "stage1", OutputType: "stage2"}
	clone := &Info{Key: "clone", Cloning: true}

	cloning, chained, unchained := Chain([]*Info{b, clone, a})
	if len(cloning) != 1 || cloning[0] != clone {
		t.Fatalf("expected clone filter isolated, got %+v", cloning)
	}
	if len(chained) != 2 || chained[0] != a || chained[1] != b {
		t.Fatalf("expected a before b in chain, got %+v", chained)
	}
	if len(unchained) != 0 {
		t.Fatalf("expected nothing left unchained, got %+v", unchained)
	}
}

func TestChainReportsUnchainedFilterSeparately(t *testing.T) {
	orphan := &Info{Key: "orphan", InputType: "x", OutputType: "y"}
	other := &Info{Key: "other", InputType: "p", OutputType: "q"}
	_, chained, unchained := Chain([]*Info{orphan, other})
	if len(chained) != 1 {
		t.Fatalf("expected one chain root, got %+v", chained)
	}
	if len(unchained) != 1 || unchained[0] != other {
		t.Fatalf("expected other left unchained, got %+v", unchained)
	}
}

func TestProcessSourceSendAppliesChainedFilters(t *testing.T) {
	c := NewCoordinator(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {})
	c.RegisterFilter(10, &Info{Key: "upper", Op: upper})

	msg := protocol.NewActionMessage(protocol.CMD_SEND_MESSAGE)
	msg.SourceHandle = 10
	msg.Payload = []byte("hello")

	out, seq := c.ProcessSourceSend(msg, false)
	if seq != 0 {
		t.Fatalf("expected no sequence id without needsReturn, got %d", seq)
	}
	if len(out) != 1 || string(out[0].Payload) != "HELLO" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestProcessSourceSendDropsMessage(t *testing.T) {
	c := NewCoordinator(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {})
	c.RegisterFilter(10, &Info{Key: "dropper", Op: drop})

	msg := protocol.NewActionMessage(protocol.CMD_SEND_MESSAGE)
	msg.SourceHandle = 10
	msg.Payload = []byte("hello")

	out, _ := c.ProcessSourceSend(msg, false)
	if len(out) != 0 {
		t.Fatalf("expected message dropped, got %+v", out)
	}
}

func TestProcessSourceSendCloningProducesExtraMessageWithoutTouchingOriginal(t *testing.T) {
	c := NewCoordinator(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {})
	c.RegisterFilter(10, &Info{Key: "clone", Cloning: true, Op: upper})

	msg := protocol.NewActionMessage(protocol.CMD_SEND_MESSAGE)
	msg.SourceHandle = 10
	msg.Payload = []byte("hello")

	out, _ := c.ProcessSourceSend(msg, false)
	if len(out) != 2 {
		t.Fatalf("expected original + 1 clone, got %d messages", len(out))
	}
	if string(out[0].Payload) != "hello" {
		t.Fatalf("original should be untouched, got %q", out[0].Payload)
	}
	if string(out[1].Payload) != "HELLO" {
		t.Fatalf("clone should be transformed, got %q", out[1].Payload)
	}
}

func TestProcessSourceSendWithReturnBlocksTimeAdvance(t *testing.T) {
	var sent []protocol.ActionMessage
	c := NewCoordinator(protocol.GlobalFederateId(1), func(msg protocol.ActionMessage) { sent = append(sent, msg) })
	c.RegisterFilter(10, &Info{Key: "noop", Op: func(p []byte) ([]byte, bool) { return p, false }})

	msg := protocol.NewActionMessage(protocol.CMD_SEND_FOR_FILTER_AND_RETURN)
	msg.SourceID = protocol.GlobalFederateId(5)
	msg.SourceHandle = 10
	msg.Payload = []byte("x")

	out, seq := c.ProcessSourceSend(msg, true)
	if seq == 0 {
		t.Fatal("expected a non-zero sequence id")
	}
	if len(sent) != 1 || sent[0].Action != protocol.CMD_TIME_BLOCK {
		t.Fatalf("expected CMD_TIME_BLOCK emitted, got %+v", sent)
	}
	if len(out) != 1 || out[0].SequenceID != int32(seq) {
		t.Fatalf("expected outgoing message stamped with sequence id, got %+v", out)
	}

	c.EndProcess(msg.SourceID, seq)
	if len(sent) != 2 || sent[1].Action != protocol.CMD_TIME_UNBLOCK {
		t.Fatalf("expected CMD_TIME_UNBLOCK once the process set empties, got %+v", sent)
	}
}

func TestProcessDestFiltersReroutesOnNonCloningTarget(t *testing.T) {
	c := NewCoordinator(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {})
	c.RegisterDestFilter(20, &Info{Key: "reroute", Reroutes: true, RerouteTo: 99, Op: func(p []byte) ([]byte, bool) { return p, false }})

	msg := protocol.NewActionMessage(protocol.CMD_SEND_MESSAGE)
	msg.DestHandle = 20
	msg.Payload = []byte("x")

	_, delivered, rerouted := c.ProcessDestFilters(msg)
	if !rerouted {
		t.Fatal("expected reroute")
	}
	if delivered.DestHandle != 99 {
		t.Fatalf("expected rerouted dest handle 99, got %v", delivered.DestHandle)
	}
}

func TestProcessDestFiltersCloningDeliversBothOriginalAndClone(t *testing.T) {
	c := NewCoordinator(protocol.GlobalFederateId(1), func(protocol.ActionMessage) {})
	c.RegisterDestFilter(20, &Info{Key: "clone", Cloning: true, Op: upper})

	msg := protocol.NewActionMessage(protocol.CMD_SEND_MESSAGE)
	msg.DestHandle = 20
	msg.Payload = []byte("hello")

	clones, delivered, rerouted := c.ProcessDestFilters(msg)
	if rerouted {
		t.Fatal("cloning filter should not reroute")
	}
	if string(delivered.Payload) != "hello" {
		t.Fatalf("original delivery should be untouched, got %q", delivered.Payload)
	}
	if len(clones) != 1 || string(clones[0].Payload) != "HELLO" {
		t.Fatalf("expected one transformed clone, got %+v", clones)
	}
}
