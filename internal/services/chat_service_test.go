package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Alvaro1251/Learnify/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// memStore is an in-memory ChatStore with mutable membership.
type memStore struct {
	mu      sync.Mutex
	members map[string]map[primitive.ObjectID]bool
	logs    map[string][]models.ChatMessage
	err     error
}

func newMemStore() *memStore {
	return &memStore{
		members: make(map[string]map[primitive.ObjectID]bool),
		logs:    make(map[string][]models.ChatMessage),
	}
}

func (m *memStore) addMember(groupID string, uid primitive.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[groupID] == nil {
		m.members[groupID] = make(map[primitive.ObjectID]bool)
	}
	m.members[groupID][uid] = true
}

func (m *memStore) removeMember(groupID string, uid primitive.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[groupID], uid)
}

func (m *memStore) AppendChatMessage(_ context.Context, groupID string, msg models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if !m.members[groupID][msg.SenderID] {
		return ErrNotMember
	}
	m.logs[groupID] = append(m.logs[groupID], msg)
	return nil
}

func (m *memStore) log(groupID string) []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ChatMessage(nil), m.logs[groupID]...)
}

type mapNames map[string]string

func (n mapNames) DisplayName(_ context.Context, userID string) (string, error) {
	return n[userID], nil
}

type failingNames struct{}

func (failingNames) DisplayName(context.Context, string) (string, error) {
	return "", errors.New("db down")
}

func newChatFixture(names DisplayNameResolver) (*ChatService, *memStore, *ConnectionRegistry) {
	store := newMemStore()
	reg := NewConnectionRegistry(zap.NewNop())
	return NewChatService(store, names, reg, zap.NewNop(), time.Second), store, reg
}

func admit(t *testing.T, reg *ConnectionRegistry, groupID, userID string) (*ChatClient, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	c := NewChatClient(groupID, userID, conn, nil)
	if err := reg.Admit(c); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	return c, conn
}

func onlyFrame(t *testing.T, conn *fakeConn) interface{} {
	t.Helper()
	frames := conn.received()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1: %#v", len(frames), frames)
	}
	return frames[0]
}

func wantError(t *testing.T, conn *fakeConn, msg string) {
	t.Helper()
	e, ok := onlyFrame(t, conn).(models.ChatError)
	if !ok {
		t.Fatalf("frame is not a ChatError: %#v", conn.received()[0])
	}
	if e.Type != models.ChatEventError || e.Message != msg {
		t.Errorf("error frame = %+v, want message %q", e, msg)
	}
}

func TestChat_MemberMessageIsPersistedAndBroadcast(t *testing.T) {
	a := primitive.NewObjectID()
	svc, store, reg := newChatFixture(mapNames{a.Hex(): "Ana Gomez"})
	store.addMember("g", a)
	sender, senderConn := admit(t, reg, "g", "")
	_, peerConn := admit(t, reg, "g", "")
	_, otherGroupConn := admit(t, reg, "h", "")

	svc.HandleRaw(context.Background(), sender, []byte(fmt.Sprintf(`{"sender_id":%q,"content":"hi"}`, a.Hex())))

	for _, conn := range []*fakeConn{senderConn, peerConn} {
		out, ok := onlyFrame(t, conn).(models.ChatOutbound)
		if !ok {
			t.Fatalf("frame is not a ChatOutbound")
		}
		if out.Type != models.ChatEventMessage || out.Content != "hi" || out.SenderID != a.Hex() {
			t.Errorf("unexpected broadcast %+v", out)
		}
		if out.Sender != "Ana Gomez" || out.SenderName != "Ana Gomez" {
			t.Errorf("sender names = %q/%q", out.Sender, out.SenderName)
		}
		if _, err := time.Parse(time.RFC3339Nano, out.Timestamp); err != nil {
			t.Errorf("timestamp %q is not RFC3339: %v", out.Timestamp, err)
		}
	}
	if len(otherGroupConn.received()) != 0 {
		t.Error("other group must not receive the message")
	}

	log := store.log("g")
	if len(log) != 1 || log[0].Sender != "Ana Gomez" || log[0].Content != "hi" {
		t.Errorf("persisted log = %+v", log)
	}
}

func TestChat_NonMemberGetsPrivateError(t *testing.T) {
	b := primitive.NewObjectID()
	svc, store, reg := newChatFixture(mapNames{})
	sender, senderConn := admit(t, reg, "g", "")
	_, peerConn := admit(t, reg, "g", "")

	svc.HandleIncoming(context.Background(), sender, b.Hex(), "hello")

	wantError(t, senderConn, ChatErrNotMember)
	if len(peerConn.received()) != 0 {
		t.Error("peer must not see a rejected message")
	}
	if len(store.log("g")) != 0 {
		t.Error("chat log must be unchanged")
	}
}

func TestChat_Validation(t *testing.T) {
	a := primitive.NewObjectID()
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"empty content", fmt.Sprintf(`{"sender_id":%q,"content":""}`, a.Hex()), ChatErrMissingFields},
		{"missing sender", `{"content":"hi"}`, ChatErrMissingFields},
		{"not json", `hello`, ChatErrMalformed},
		{"array", `[1,2]`, ChatErrMalformed},
		{"wrong types", `{"sender_id":1,"content":true}`, ChatErrMalformed},
		{"bad object id", `{"sender_id":"nope","content":"hi"}`, ChatErrNotMember},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, reg := newChatFixture(mapNames{})
			store.addMember("g", a)
			c, conn := admit(t, reg, "g", "")

			svc.HandleRaw(context.Background(), c, []byte(tc.raw))

			wantError(t, conn, tc.want)
			if len(store.log("g")) != 0 {
				t.Error("nothing should be persisted")
			}
		})
	}
}

func TestChat_DisplayNameFallsBackToID(t *testing.T) {
	a := primitive.NewObjectID()
	svc, store, reg := newChatFixture(mapNames{})
	store.addMember("g", a)
	c, conn := admit(t, reg, "g", "")

	svc.HandleIncoming(context.Background(), c, a.Hex(), "hi")

	out := onlyFrame(t, conn).(models.ChatOutbound)
	if out.Sender != a.Hex() || out.SenderName != a.Hex() {
		t.Errorf("fallback name = %q/%q, want %q", out.Sender, out.SenderName, a.Hex())
	}
}

func TestChat_StorageFailuresStayPrivate(t *testing.T) {
	a := primitive.NewObjectID()

	t.Run("append", func(t *testing.T) {
		svc, store, reg := newChatFixture(mapNames{})
		store.addMember("g", a)
		store.err = errors.New("connection reset")
		c, conn := admit(t, reg, "g", "")

		svc.HandleIncoming(context.Background(), c, a.Hex(), "hi")
		wantError(t, conn, ChatErrInternal)
	})

	t.Run("name lookup", func(t *testing.T) {
		svc, store, reg := newChatFixture(failingNames{})
		store.addMember("g", a)
		c, conn := admit(t, reg, "g", "")

		svc.HandleIncoming(context.Background(), c, a.Hex(), "hi")
		wantError(t, conn, ChatErrInternal)
		if len(store.log("g")) != 0 {
			t.Error("nothing should be persisted")
		}
	})
}

func TestChat_AuthenticatedSenderMustMatch(t *testing.T) {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	svc, store, reg := newChatFixture(mapNames{})
	store.addMember("g", a)
	store.addMember("g", b)
	c, conn := admit(t, reg, "g", b.Hex())

	svc.HandleIncoming(context.Background(), c, a.Hex(), "spoofed")

	wantError(t, conn, ChatErrSenderMismatch)
	if len(store.log("g")) != 0 {
		t.Error("spoofed message must not be persisted")
	}
}

func TestChat_RateLimited(t *testing.T) {
	a := primitive.NewObjectID()
	svc, store, reg := newChatFixture(mapNames{})
	store.addMember("g", a)
	conn := &fakeConn{}
	c := NewChatClient("g", "", conn, rate.NewLimiter(rate.Every(time.Hour), 1))
	_ = reg.Admit(c)

	raw := []byte(fmt.Sprintf(`{"sender_id":%q,"content":"hi"}`, a.Hex()))
	svc.HandleRaw(context.Background(), c, raw)
	svc.HandleRaw(context.Background(), c, raw)

	frames := conn.received()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if e, ok := frames[1].(models.ChatError); !ok || e.Message != ChatErrRateLimited {
		t.Errorf("second frame = %#v, want rate limit error", frames[1])
	}
	if len(store.log("g")) != 1 {
		t.Errorf("log length = %d, want 1", len(store.log("g")))
	}
}

func TestChat_RemovedMemberIsRejected(t *testing.T) {
	a := primitive.NewObjectID()
	svc, store, reg := newChatFixture(mapNames{})
	store.addMember("g", a)
	c, conn := admit(t, reg, "g", "")

	svc.HandleIncoming(context.Background(), c, a.Hex(), "before")
	store.removeMember("g", a)
	svc.HandleIncoming(context.Background(), c, a.Hex(), "after")

	frames := conn.received()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if e, ok := frames[1].(models.ChatError); !ok || e.Message != ChatErrNotMember {
		t.Errorf("second frame = %#v, want not-member error", frames[1])
	}
	if log := store.log("g"); len(log) != 1 || log[0].Content != "before" {
		t.Errorf("log = %+v", log)
	}
}

// Every connection must observe messages in the order they were persisted.
func TestChat_BroadcastOrderMatchesLog(t *testing.T) {
	svc, store, reg := newChatFixture(mapNames{})
	const senders, perSender = 8, 25

	users := make([]primitive.ObjectID, senders)
	clients := make([]*ChatClient, senders)
	for i := range users {
		users[i] = primitive.NewObjectID()
		store.addMember("g", users[i])
		clients[i], _ = admit(t, reg, "g", "")
	}
	_, watcher := admit(t, reg, "g", "")

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				svc.HandleIncoming(context.Background(), clients[i], users[i].Hex(), fmt.Sprintf("%d-%d", i, j))
			}
		}(i)
	}
	wg.Wait()

	log := store.log("g")
	frames := watcher.received()
	if len(log) != senders*perSender || len(frames) != len(log) {
		t.Fatalf("log=%d frames=%d, want %d", len(log), len(frames), senders*perSender)
	}
	for i := range log {
		out := frames[i].(models.ChatOutbound)
		if out.Content != log[i].Content {
			t.Fatalf("position %d: broadcast %q, log %q", i, out.Content, log[i].Content)
		}
		if i > 0 && log[i].Timestamp.Before(log[i-1].Timestamp) {
			t.Fatalf("timestamps not monotonic at %d", i)
		}
	}
}

func TestChat_SendDuringReleaseDoesNotPanic(t *testing.T) {
	a := primitive.NewObjectID()
	svc, store, reg := newChatFixture(mapNames{})
	store.addMember("g", a)
	sender, _ := admit(t, reg, "g", "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		c, _ := admit(t, reg, "g", "")
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.HandleIncoming(context.Background(), sender, a.Hex(), "x")
		}()
		go func(c *ChatClient) {
			defer wg.Done()
			reg.Release(c)
		}(c)
	}
	wg.Wait()

	if got := reg.Count("g"); got != 1 {
		t.Errorf("Count = %d, want only the sender left", got)
	}
	if got := len(store.log("g")); got != 20 {
		t.Errorf("log length = %d, want 20", got)
	}
}

// stalledConn blocks every write until release is closed.
type stalledConn struct {
	release chan struct{}
}

func (s *stalledConn) WriteJSON(interface{}) error {
	<-s.release
	return nil
}

func (s *stalledConn) Close() error { return nil }

func TestChat_StalledPeerDoesNotBlockOtherGroups(t *testing.T) {
	a := primitive.NewObjectID()
	svc, store, reg := newChatFixture(mapNames{})
	store.addMember("slow", a)
	store.addMember("fast", a)

	stalled := &stalledConn{release: make(chan struct{})}
	defer close(stalled.release)
	slow := NewChatClient("slow", "", stalled, nil)
	if err := reg.Admit(slow); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	fast, fastConn := admit(t, reg, "fast", "")

	go svc.HandleIncoming(context.Background(), slow, a.Hex(), "stuck")
	deadline := time.Now().Add(2 * time.Second)
	for len(store.log("slow")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow group message never persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		svc.HandleIncoming(context.Background(), fast, a.Hex(), "hi")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message to another group waited for the stalled broadcast")
	}
	if out, ok := onlyFrame(t, fastConn).(models.ChatOutbound); !ok || out.Content != "hi" {
		t.Errorf("fast group frame = %#v", fastConn.received())
	}
}
