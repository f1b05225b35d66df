package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kwonkwonn/chatting-sever/internal/models"
)

type fakeClient struct {
	id string

	mu       sync.Mutex
	failing  bool
	received [][]byte
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("connection gone")
	}
	c.received = append(c.received, data)
	return nil
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func testRoom(name string) models.Room {
	return models.Room{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
}

func TestRegistryRegisterUnregister(t *testing.T) {
	r := New(zerolog.Nop())
	rm := testRoom("general")
	r.Add(rm)
	id := rm.ID.String()

	if !r.Has(id) {
		t.Fatal("Has = false after Add")
	}

	c := &fakeClient{id: "c1"}
	if err := r.Register(id, c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Duplicate registration must not double-count.
	if err := r.Register(id, c); err != nil {
		t.Fatalf("Register again: %v", err)
	}
	if got := r.Online(id); got != 1 {
		t.Errorf("Online = %d, want 1", got)
	}

	r.Unregister(id, c)
	r.Unregister(id, c) // second time is a no-op
	if got := r.Online(id); got != 0 {
		t.Errorf("Online after unregister = %d, want 0", got)
	}
	if !r.Has(id) {
		t.Error("room vanished after its last client left")
	}
}

func TestRegistryRegisterUnknownRoom(t *testing.T) {
	r := New(zerolog.Nop())
	err := r.Register(uuid.NewString(), &fakeClient{id: "c1"})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Register into unknown room = %v, want ErrRoomNotFound", err)
	}
}

func TestRegistryBroadcastIsolatesFailures(t *testing.T) {
	r := New(zerolog.Nop())
	rm := testRoom("general")
	r.Add(rm)
	id := rm.ID.String()

	healthy1 := &fakeClient{id: "h1"}
	healthy2 := &fakeClient{id: "h2"}
	broken := &fakeClient{id: "b1", failing: true}
	for _, c := range []*fakeClient{healthy1, broken, healthy2} {
		if err := r.Register(id, c); err != nil {
			t.Fatalf("Register(%s): %v", c.id, err)
		}
	}

	delivered := r.Broadcast(id, []byte("hello"))
	if delivered != 2 {
		t.Errorf("Broadcast delivered %d, want 2", delivered)
	}
	if healthy1.count() != 1 || healthy2.count() != 1 {
		t.Errorf("healthy clients got %d and %d payloads, want 1 each",
			healthy1.count(), healthy2.count())
	}
	if broken.count() != 0 {
		t.Errorf("failing client recorded %d payloads", broken.count())
	}
}

func TestRegistryBroadcastDoesNotLeakAcrossRooms(t *testing.T) {
	r := New(zerolog.Nop())
	rm1, rm2 := testRoom("general"), testRoom("random")
	r.SyncFromStore([]models.Room{rm1, rm2})

	c1 := &fakeClient{id: "c1"}
	c2 := &fakeClient{id: "c2"}
	if err := r.Register(rm1.ID.String(), c1); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(rm2.ID.String(), c2); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.Broadcast(rm1.ID.String(), []byte("only for general"))
	if c2.count() != 0 {
		t.Errorf("client in another room received %d payloads", c2.count())
	}
	if c1.count() != 1 {
		t.Errorf("room member received %d payloads, want 1", c1.count())
	}
}

func TestRegistrySyncKeepsConnectedClients(t *testing.T) {
	r := New(zerolog.Nop())
	rm1, rm2 := testRoom("general"), testRoom("random")
	r.SyncFromStore([]models.Room{rm1, rm2})

	c := &fakeClient{id: "c1"}
	if err := r.Register(rm1.ID.String(), c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// A sync carrying only the other room must not detach anyone.
	r.SyncFromStore([]models.Room{rm2})
	if !r.Has(rm1.ID.String()) {
		t.Fatal("sync removed a room with connected clients")
	}
	if got := r.Online(rm1.ID.String()); got != 1 {
		t.Errorf("Online = %d after sync, want 1", got)
	}
}

func TestRegistryConcurrentChurnAndBroadcast(t *testing.T) {
	r := New(zerolog.Nop())
	rm := testRoom("general")
	r.Add(rm)
	id := rm.ID.String()

	stable := &fakeClient{id: "stable"}
	if err := r.Register(id, stable); err != nil {
		t.Fatalf("Register: %v", err)
	}

	const (
		churners   = 8
		broadcasts = 100
	)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < churners; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; ; j++ {
				select {
				case <-stop:
					return
				default:
				}
				c := &fakeClient{id: fmt.Sprintf("churn-%d-%d", n, j), failing: j%2 == 0}
				if err := r.Register(id, c); err != nil {
					t.Errorf("Register: %v", err)
					return
				}
				r.Unregister(id, c)
			}
		}(i)
	}

	for i := 0; i < broadcasts; i++ {
		r.Broadcast(id, []byte(fmt.Sprintf("payload-%d", i)))
	}
	close(stop)
	wg.Wait()

	// The client registered for the whole run saw every payload exactly once.
	if got := stable.count(); got != broadcasts {
		t.Errorf("stable client received %d payloads, want %d", got, broadcasts)
	}
	seen := make(map[string]bool)
	stable.mu.Lock()
	defer stable.mu.Unlock()
	for _, p := range stable.received {
		if seen[string(p)] {
			t.Errorf("payload %q delivered twice", p)
		}
		seen[string(p)] = true
	}
}
