package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/Alvaro1251/Learnify/internal/models"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []interface{}
	fail   bool
	closed bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]interface{}, len(f.frames))
	copy(out, f.frames)
	return out
}

func newTestClient(groupID string) (*ChatClient, *fakeConn) {
	conn := &fakeConn{}
	return NewChatClient(groupID, "", conn, nil), conn
}

func TestRegistry_BroadcastReachesOnlyGroup(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())
	a1, c1 := newTestClient("g1")
	a2, c2 := newTestClient("g1")
	b1, c3 := newTestClient("g2")
	for _, c := range []*ChatClient{a1, a2, b1} {
		if err := r.Admit(c); err != nil {
			t.Fatalf("Admit: %v", err)
		}
	}

	n := r.Broadcast("g1", models.NewChatError("x"))
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	if len(c1.received()) != 1 || len(c2.received()) != 1 {
		t.Errorf("g1 connections should each get one frame")
	}
	if len(c3.received()) != 0 {
		t.Errorf("g2 connection should not receive g1 broadcast")
	}
}

func TestRegistry_BroadcastSkipsFailingConnection(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())
	good, goodConn := newTestClient("g")
	bad, badConn := newTestClient("g")
	badConn.fail = true
	_ = r.Admit(good)
	_ = r.Admit(bad)

	if n := r.Broadcast("g", "payload"); n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	if len(goodConn.received()) != 1 {
		t.Errorf("healthy connection missed the broadcast")
	}
	if r.Count("g") != 2 {
		t.Errorf("broadcast must not evict connections, count = %d", r.Count("g"))
	}
}

func TestRegistry_ReleaseIsIdempotent(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())
	c1, _ := newTestClient("g")
	c2, conn2 := newTestClient("g")
	other, _ := newTestClient("h")
	_ = r.Admit(c1)
	_ = r.Admit(c2)
	_ = r.Admit(other)

	r.Release(c1)
	r.Release(c1)
	never, _ := newTestClient("g")
	r.Release(never)

	if got := r.Count("g"); got != 1 {
		t.Errorf("Count(g) = %d, want 1", got)
	}
	if got := r.Count("h"); got != 1 {
		t.Errorf("Count(h) = %d, want 1", got)
	}
	if n := r.Broadcast("g", "after"); n != 1 {
		t.Errorf("delivered after release = %d, want 1", n)
	}
	if len(conn2.received()) != 1 {
		t.Errorf("remaining connection should still receive")
	}
}

func TestRegistry_EmptyGroupIsDropped(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())
	c, _ := newTestClient("g")
	_ = r.Admit(c)
	if r.Groups() != 1 {
		t.Fatalf("Groups() = %d, want 1", r.Groups())
	}
	r.Release(c)
	if r.Groups() != 0 {
		t.Errorf("empty group entry should be removed, Groups() = %d", r.Groups())
	}
}

func TestRegistry_NoWriteAfterRelease(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())
	c, conn := newTestClient("g")
	_ = r.Admit(c)
	r.Release(c)

	if r.Unicast(c, "late") {
		t.Error("Unicast to released client should report failure")
	}
	if len(conn.received()) != 0 {
		t.Errorf("released socket received %d frames", len(conn.received()))
	}
}

func TestRegistry_ConcurrentAdmitBroadcastRelease(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _ := newTestClient("g")
			if err := r.Admit(c); err != nil {
				t.Errorf("Admit: %v", err)
				return
			}
			r.Broadcast("g", "ping")
			r.Release(c)
		}()
	}
	wg.Wait()

	if r.Count("g") != 0 || r.Groups() != 0 {
		t.Errorf("registry should be empty, count=%d groups=%d", r.Count("g"), r.Groups())
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	r := NewConnectionRegistry(zap.NewNop())
	c, conn := newTestClient("g")
	_ = r.Admit(c)

	r.Shutdown()

	if !conn.closed {
		t.Error("Shutdown should close live sockets")
	}
	late, _ := newTestClient("g")
	if err := r.Admit(late); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Admit after shutdown: got %v, want ErrRegistryClosed", err)
	}
	r.Release(c)
}
