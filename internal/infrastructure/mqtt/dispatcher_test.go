package mqtt

import (
	"sync"
	"testing"
	"time"
)

func TestDispatcher_ExactMatchOnly(t *testing.T) {
	d := NewDispatcher()
	var got []string
	d.Register("neolink/Garage/status/motion", "", func(_, p string) { got = append(got, p) })

	for _, topic := range []string{
		"neolink/Garage/status/motion",
		"neolink/Garage/status/motion/extra",
		"neolink/Garage/status",
		"neolink/+/status/motion",
	} {
		d.Dispatch(topic, []byte(topic))
	}

	if len(got) != 1 || got[0] != "neolink/Garage/status/motion" {
		t.Errorf("dispatched payloads = %v, want only the exact topic", got)
	}
}

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string
	for _, owner := range []string{"first", "second", "third"} {
		d.Register("t", owner, func(string, string) { order = append(order, owner) })
	}

	// Replacing "first" keeps its position.
	d.Register("t", "first", func(string, string) { order = append(order, "first-replaced") })

	if n := d.Dispatch("t", nil); n != 3 {
		t.Fatalf("Dispatch() = %d, want 3", n)
	}
	want := []string{"first-replaced", "second", "third"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	d := NewDispatcher()
	ran := false
	d.Register("t", "bad", func(string, string) { panic("boom") })
	d.Register("t", "good", func(string, string) { ran = true })

	if n := d.Dispatch("t", []byte("x")); n != 2 {
		t.Errorf("Dispatch() = %d, want 2", n)
	}
	if !ran {
		t.Error("handler after panicking handler did not run")
	}
}

func TestDispatcher_RemoveOwner(t *testing.T) {
	d := NewDispatcher()
	d.Register("t", "a", func(string, string) {})
	d.Register("t", "b", func(string, string) {})

	if remaining := d.RemoveOwner("t", "a"); !remaining {
		t.Error("RemoveOwner(a) reported no remaining handlers")
	}
	if remaining := d.RemoveOwner("t", "b"); remaining {
		t.Error("RemoveOwner(b) reported remaining handlers")
	}
	if d.Has("t") || d.Len() != 0 {
		t.Error("topic still registered after removing every owner")
	}
}

func TestDispatcher_RemoveAndClear(t *testing.T) {
	d := NewDispatcher()
	d.Register("b", "", func(string, string) {})
	d.Register("a", "", func(string, string) {})

	topics := d.Topics()
	if len(topics) != 2 || topics[0] != "a" || topics[1] != "b" {
		t.Errorf("Topics() = %v, want [a b]", topics)
	}
	if !d.Remove("a") {
		t.Error("Remove(a) = false, want true")
	}
	if d.Remove("a") {
		t.Error("second Remove(a) = true, want false")
	}

	d.Clear()
	if d.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", d.Len())
	}
	if n := d.Dispatch("b", nil); n != 0 {
		t.Errorf("Dispatch() after Clear = %d, want 0", n)
	}
}

func TestDispatcher_SerializesDispatch(t *testing.T) {
	d := NewDispatcher()

	var mu sync.Mutex
	active, maxActive := 0, 0
	d.Register("t", "", func(string, string) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch("t", nil)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent handlers = %d, want 1", maxActive)
	}
}
