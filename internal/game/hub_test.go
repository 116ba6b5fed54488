package game

import (
	"sync"
	"testing"
	"time"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.broadcast == nil {
		t.Error("Hub broadcast channel is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub()

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("ClientCount() = %v, want 0", count)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	// Should not block with no subscribers.
	hub.Broadcast(Event{Type: "round_settled", Data: Outcome{Number: 7}})

	time.Sleep(10 * time.Millisecond)
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub()

	// Don't start the hub, so the broadcast channel fills up
	// (capacity is 100).
	for i := 0; i < 100; i++ {
		hub.Broadcast(Event{Type: "bet_placed"})
	}

	// Next broadcast should drop the event instead of blocking.
	done := make(chan bool, 1)
	go func() {
		hub.Broadcast(Event{Type: "overflow"})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast() blocked when channel was full")
	}
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	var wg sync.WaitGroup
	broadcasts := 100

	for i := 0; i < broadcasts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.Broadcast(Event{Type: "bet_placed", Data: n})
		}(i)
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Concurrent broadcasts timed out")
	}
}

func TestHub_ClientCount_ThreadSafe(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	var wg sync.WaitGroup
	reads := 100

	for i := 0; i < reads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hub.ClientCount()
		}()
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Concurrent ClientCount() timed out")
	}
}

func TestClient_QueueKeepsOrder(t *testing.T) {
	c := &Client{
		queue: make(chan []byte, clientQueueSize),
		done:  make(chan struct{}),
	}

	for i := 0; i < 10; i++ {
		c.enqueue([]byte{byte(i)})
	}

	// A single writer drains the queue, so payloads leave in the order
	// they were enqueued.
	for i := 0; i < 10; i++ {
		select {
		case got := <-c.queue:
			if got[0] != byte(i) {
				t.Fatalf("payload %d = %d, want %d", i, got[0], i)
			}
		default:
			t.Fatalf("queue empty at payload %d", i)
		}
	}
}

func TestClient_QueueFullDropsWithoutBlocking(t *testing.T) {
	c := &Client{
		queue: make(chan []byte, clientQueueSize),
		done:  make(chan struct{}),
	}

	done := make(chan bool, 1)
	go func() {
		for i := 0; i < clientQueueSize+10; i++ {
			c.enqueue([]byte{byte(i)})
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("enqueue blocked on a full queue")
	}

	if got := len(c.queue); got != clientQueueSize {
		t.Errorf("queued payloads = %d, want %d", got, clientQueueSize)
	}
}

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	event := Event{Type: "round_settled", Data: Outcome{Number: 3}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(event)
	}
}
