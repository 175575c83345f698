package eventbus

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	ch, cancel := bus.Subscribe(1)
	defer cancel()
	bus.Publish("hello")
	if v := <-ch; v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
}

func TestBusFansOut(t *testing.T) {
	bus := New()
	ch1, cancel1 := bus.Subscribe(1)
	defer cancel1()
	ch2, cancel2 := bus.Subscribe(1)
	defer cancel2()
	bus.Publish(42)
	if v := <-ch1; v != 42 {
		t.Fatalf("ch1 got %v", v)
	}
	if v := <-ch2; v != 42 {
		t.Fatalf("ch2 got %v", v)
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := New()
	ch, cancel := bus.Subscribe(1)
	defer cancel()
	bus.Publish(1)
	bus.Publish(2) // buffer full, must not block
	if v := <-ch; v != 1 {
		t.Fatalf("expected first event, got %v", v)
	}
	select {
	case v := <-ch:
		t.Fatalf("second event should have been dropped, got %v", v)
	default:
	}
}

func TestBusCancelRemovesSubscriber(t *testing.T) {
	bus := New()
	ch, cancel := bus.Subscribe(1)
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed")
	}
	cancel() // idempotent
	bus.Publish("late")
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch1, _ := bus.Subscribe(1)
	ch2, _ := bus.Subscribe(1)
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatal("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatal("expected ch2 closed")
	}
	bus.Publish("after close")
	ch3, cancel := bus.Subscribe(1)
	cancel()
	if _, ok := <-ch3; ok {
		t.Fatal("subscribe after close must return a closed channel")
	}
}
