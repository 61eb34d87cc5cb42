package events

import (
	"testing"
	"time"

	"github.com/eth2030/stakepool/core/types"
	"github.com/holiman/uint256"
)

var src = types.HexToAddress("0xabc0000000000000000000000000000000000001")

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Chan():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := NewBus(4)
	defer b.Close()

	sub := b.Subscribe(EventDeposit)
	b.Publish(EventDeposit, src, Deposit{Amount: uint256.NewInt(1)})

	ev := recv(t, sub)
	if ev.Type != EventDeposit {
		t.Errorf("type = %s, want %s", ev.Type, EventDeposit)
	}
	if ev.Source != src {
		t.Errorf("source = %s, want %s", ev.Source, src)
	}
	if _, ok := ev.Data.(Deposit); !ok {
		t.Errorf("data type = %T, want Deposit", ev.Data)
	}
}

func TestSubscribeFilters(t *testing.T) {
	b := NewBus(4)
	defer b.Close()

	sub := b.Subscribe(EventWithdrawal)
	b.Publish(EventDeposit, src, Deposit{})
	b.Publish(EventWithdrawal, src, Withdrawal{})

	ev := recv(t, sub)
	if ev.Type != EventWithdrawal {
		t.Errorf("filtered subscription received %s", ev.Type)
	}
	select {
	case ev := <-sub.Chan():
		t.Errorf("unexpected second event: %s", ev.Type)
	default:
	}
}

func TestSubscribeAll(t *testing.T) {
	b := NewBus(4)
	defer b.Close()

	sub := b.Subscribe()
	b.Publish(EventDeposit, src, Deposit{})
	b.Publish(EventServiceEnd, src, ServiceEnd{})

	if ev := recv(t, sub); ev.Type != EventDeposit {
		t.Errorf("first event = %s, want %s", ev.Type, EventDeposit)
	}
	if ev := recv(t, sub); ev.Type != EventServiceEnd {
		t.Errorf("second event = %s, want %s", ev.Type, EventServiceEnd)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus(4)
	defer b.Close()

	sub := b.Subscribe(EventDeposit)
	if n := b.SubscriberCount(EventDeposit); n != 1 {
		t.Fatalf("subscriber count = %d, want 1", n)
	}

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	if n := b.SubscriberCount(EventDeposit); n != 0 {
		t.Errorf("subscriber count after unsubscribe = %d, want 0", n)
	}
	if _, open := <-sub.Chan(); open {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := NewBus(1)
	defer b.Close()

	sub := b.Subscribe(EventDeposit)
	b.Publish(EventDeposit, src, Deposit{Amount: uint256.NewInt(1)})
	b.Publish(EventDeposit, src, Deposit{Amount: uint256.NewInt(2)}) // dropped

	ev := recv(t, sub)
	if d := ev.Data.(Deposit); !d.Amount.Eq(uint256.NewInt(1)) {
		t.Errorf("kept event amount = %s, want 1", d.Amount)
	}
	select {
	case <-sub.Chan():
		t.Error("second event should have been dropped")
	default:
	}
}

func TestClose(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe()
	b.Close()

	if _, open := <-sub.Chan(); open {
		t.Error("channel should be closed after bus close")
	}
	// Publishing and subscribing after close must not panic.
	b.Publish(EventDeposit, src, Deposit{})
	dead := b.Subscribe(EventDeposit)
	if _, open := <-dead.Chan(); open {
		t.Error("post-close subscription should be closed immediately")
	}
}
