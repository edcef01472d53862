package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vinayprograms/fleetkit/decision"
	"github.com/vinayprograms/fleetkit/registry"
)

func receive(t *testing.T, sub Subscription) *Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	sub, err := b.Subscribe("fleet.decision.node-1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	if err := b.Publish("fleet.decision.node-1", []byte("payload")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	msg := receive(t, sub)
	if string(msg.Data) != "payload" || msg.Subject != "fleet.decision.node-1" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestMemoryBus_SubjectsAreIsolated(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	sub, _ := b.Subscribe("fleet.incident.node-a")
	b.Publish("fleet.incident.node-b", []byte("other"))

	select {
	case msg := <-sub.Messages():
		t.Errorf("received %+v across subjects", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	sub, _ := b.Subscribe("fleet.connection.node-1")
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}

	// Channel is closed and publishes no longer reach it.
	if err := b.Publish("fleet.connection.node-1", []byte("x")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("message received after Unsubscribe")
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	b := NewMemoryBus(Config{})
	b.Close()

	if err := b.Publish("x", nil); err != ErrClosed {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe("x"); err != ErrClosed {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryBus_EmptySubject(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()

	if err := b.Publish("", nil); err != ErrInvalidSubject {
		t.Errorf("Publish(\"\") = %v, want ErrInvalidSubject", err)
	}
}

func TestPublisher_Subjects(t *testing.T) {
	b := NewMemoryBus(Config{})
	defer b.Close()
	p := NewPublisher(b)

	connSub, _ := b.Subscribe(ConnectionSubject("node-1"))
	decSub, _ := b.Subscribe(DecisionSubject("node-1"))

	err := p.Connection(ConnectionEvent{
		NodeID: "node-1",
		State:  registry.StateDisconnected,
		At:     time.Now(),
	})
	if err != nil {
		t.Fatalf("Connection error: %v", err)
	}

	var conn ConnectionEvent
	if err := json.Unmarshal(receive(t, connSub).Data, &conn); err != nil {
		t.Fatalf("decode connection event: %v", err)
	}
	if conn.State != registry.StateDisconnected {
		t.Errorf("connection event = %+v", conn)
	}

	err = p.Decision(DecisionEvent{
		Decision:    decision.Decision{NodeID: "node-1", Kind: decision.KindEscalate},
		Explanation: "risk is rising",
	})
	if err != nil {
		t.Fatalf("Decision error: %v", err)
	}

	var dec DecisionEvent
	if err := json.Unmarshal(receive(t, decSub).Data, &dec); err != nil {
		t.Fatalf("decode decision event: %v", err)
	}
	if dec.Decision.Kind != decision.KindEscalate || dec.Explanation == "" {
		t.Errorf("decision event = %+v", dec)
	}
}
