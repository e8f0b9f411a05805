package broker

import (
	"testing"

	"github.com/fep-fem/cosim-core/protocol"
)

func TestRegisterChildAddsDependencyAndDependent(t *testing.T) {
	b := NewRoot("root")
	childID := protocol.GlobalFederateId(0x70000001)
	if err := b.RegisterChild("core1", ChildCore, childID, func(protocol.ActionMessage) {}); err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}

	dep := b.Coord.Deps.Get(childID)
	if dep == nil || !dep.Dependency || !dep.Dependent {
		t.Fatalf("expected child tracked as both dependency and dependent, got %+v", dep)
	}
}

func TestRegisterChildRejectsDuplicateId(t *testing.T) {
	b := NewRoot("root")
	childID := protocol.GlobalFederateId(0x70000001)
	if err := b.RegisterChild("core1", ChildCore, childID, func(protocol.ActionMessage) {}); err != nil {
		t.Fatalf("first RegisterChild: %v", err)
	}
	if err := b.RegisterChild("core1-again", ChildCore, childID, func(protocol.ActionMessage) {}); err == nil {
		t.Fatal("expected error for duplicate child id")
	}
}

func TestRegisterChildRejectsDuplicateName(t *testing.T) {
	b := NewRoot("root")
	if err := b.RegisterChild("core1", ChildCore, protocol.GlobalFederateId(0x70000001), func(protocol.ActionMessage) {}); err != nil {
		t.Fatalf("first RegisterChild: %v", err)
	}
	if err := b.RegisterChild("core1", ChildCore, protocol.GlobalFederateId(0x70000002), func(protocol.ActionMessage) {}); err == nil {
		t.Fatal("expected error for duplicate child name")
	}
}

func TestResolveFindsDirectChildByName(t *testing.T) {
	b := NewRoot("root")
	childID := protocol.GlobalFederateId(0x70000001)
	if err := b.RegisterChild("core1", ChildCore, childID, func(protocol.ActionMessage) {}); err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}
	got, ok := b.Resolve("core1")
	if !ok || got != childID {
		t.Fatalf("Resolve(core1) = (%v, %v), want (%v, true)", got, ok, childID)
	}
	if _, ok := b.Resolve("nonexistent"); ok {
		t.Fatal("expected nonexistent name to not resolve")
	}
}

func TestRouteDeliversToRegisteredChild(t *testing.T) {
	b := NewRoot("root")
	childID := protocol.GlobalFederateId(0x70000001)
	var received []protocol.ActionMessage
	if err := b.RegisterChild("core1", ChildCore, childID, func(m protocol.ActionMessage) { received = append(received, m) }); err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}

	b.Route(protocol.ActionMessage{Action: protocol.CMD_TIME_GRANT, DestID: childID})
	if len(received) != 1 {
		t.Fatalf("expected 1 message delivered to child, got %d", len(received))
	}
}

func TestRouteForwardsUpstreamWhenNoMatchingChild(t *testing.T) {
	var forwarded []protocol.ActionMessage
	b := New("interior", protocol.GlobalFederateId(0x70000005), func(m protocol.ActionMessage) { forwarded = append(forwarded, m) })

	b.Route(protocol.ActionMessage{Action: protocol.CMD_QUERY, DestID: protocol.GlobalFederateId(0x70000099)})
	if len(forwarded) != 1 {
		t.Fatalf("expected message forwarded upstream, got %d", len(forwarded))
	}
}

func TestFinalizeBroadcastsDisconnectToChildren(t *testing.T) {
	b := NewRoot("root")
	var received []protocol.ActionMessage
	childID := protocol.GlobalFederateId(0x70000001)
	if err := b.RegisterChild("core1", ChildCore, childID, func(m protocol.ActionMessage) { received = append(received, m) }); err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}

	b.Finalize()
	if len(received) != 1 || received[0].Action != protocol.CMD_DISCONNECT {
		t.Fatalf("expected a single disconnect delivered, got %+v", received)
	}
}
