package registry

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeChannel records writes and can be told to fail.
type fakeChannel struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func (f *fakeChannel) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// waitWrites polls until ch has received n writes. Sends are drained by a
// writer goroutine, so delivery is asynchronous.
func waitWrites(t *testing.T, ch *fakeChannel, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.count() >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d writes, got %d", n, ch.count())
}

func TestRegisterAndSend(t *testing.T) {
	r := New()
	ch := &fakeChannel{}

	r.Register("p1", ch)
	r.Send("p1", []byte("hello"))

	waitWrites(t, ch, 1)
}

func TestSend_UnboundIsSilent(t *testing.T) {
	r := New()
	// Must not panic or error; the message is dropped.
	r.Send("ghost", []byte("anyone there"))
}

func TestSend_PreservesOrder(t *testing.T) {
	r := New()
	ch := &fakeChannel{}
	r.Register("p1", ch)

	r.Send("p1", []byte("one"))
	r.Send("p1", []byte("two"))
	r.Send("p1", []byte("three"))

	waitWrites(t, ch, 3)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i, want := range []string{"one", "two", "three"} {
		if string(ch.writes[i]) != want {
			t.Errorf("write %d = %q, want %q", i, ch.writes[i], want)
		}
	}
}

func TestRegister_LastWriterWins(t *testing.T) {
	r := New()
	stale := &fakeChannel{}
	fresh := &fakeChannel{}

	r.Register("p1", stale)
	r.Register("p1", fresh)
	r.Send("p1", []byte("hi"))

	waitWrites(t, fresh, 1)
	if stale.count() != 0 {
		t.Errorf("stale channel received %d writes", stale.count())
	}
}

func TestUnregister_StaleChannelDoesNotEvictFresh(t *testing.T) {
	r := New()
	stale := &fakeChannel{}
	fresh := &fakeChannel{}

	r.Register("p1", stale)
	r.Register("p1", fresh)

	// Late teardown of the superseded connection.
	r.Unregister("p1", stale)

	if !r.Bound("p1") {
		t.Fatal("fresh binding was evicted by a stale unregister")
	}

	r.Unregister("p1", fresh)
	if r.Bound("p1") {
		t.Fatal("expected participant unbound after matching unregister")
	}
}

func TestSend_FailureTriggersHandlerAndUnbinds(t *testing.T) {
	r := New()
	failed := make(chan string, 1)
	r.SetFailureHandler(func(id string, _ Channel) { failed <- id })

	r.Register("p1", &fakeChannel{err: errors.New("broken pipe")})
	r.Send("p1", []byte("hi"))

	select {
	case id := <-failed:
		if id != "p1" {
			t.Errorf("expected failure for p1, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("failure handler was not invoked")
	}
	if r.Bound("p1") {
		t.Error("failed channel must be unbound")
	}
}

// stuckChannel blocks every write until released, simulating a peer whose
// TCP buffer is full.
type stuckChannel struct {
	release chan struct{}
}

func (s *stuckChannel) WriteMessage([]byte) error {
	<-s.release
	return nil
}

func TestSend_SlowConsumerNeverBlocksCaller(t *testing.T) {
	r := New()
	stuck := &stuckChannel{release: make(chan struct{})}
	defer close(stuck.release)
	r.Register("slow", stuck)

	healthy := &fakeChannel{}
	r.Register("ok", healthy)

	// Far more sends than the outbound queue holds; every call must return
	// immediately even though the writer is wedged.
	start := time.Now()
	for i := 0; i < sendQueueSize*3; i++ {
		r.Send("slow", []byte("ping"))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("sends to a stuck peer took %s", elapsed)
	}

	// Other participants are unaffected.
	r.Send("ok", []byte("hello"))
	waitWrites(t, healthy, 1)
}

func TestCount(t *testing.T) {
	r := New()
	r.Register("a", &fakeChannel{})
	r.Register("b", &fakeChannel{})
	r.Register("a", &fakeChannel{}) // rebind, not a new participant

	if got := r.Count(); got != 2 {
		t.Errorf("expected 2 bound participants, got %d", got)
	}
}
