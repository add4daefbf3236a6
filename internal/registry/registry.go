// Package registry owns the live mapping from participant identity to an
// addressable outbound channel. It is the lowest-level building block of the
// signaling engine: the hub and the relay deliver every outbound message
// through it and never touch connections directly.
//
// Each binding gets its own writer goroutine and a bounded outbound queue, so
// Send is always a non-blocking enqueue. One peer with a full TCP buffer
// stalls only its own writer; callers (in particular the hub actor) never
// wait on a transport write.
package registry

import (
	"log"
	"sync"
)

// sendQueueSize bounds the per-participant outbound queue. A consumer that
// falls further behind than this starts losing messages; drops are logged.
const sendQueueSize = 64

// Channel is the outbound side of a participant's connection. The concrete
// implementation is the WebSocket connection; tests use in-memory fakes.
type Channel interface {
	WriteMessage(data []byte) error
}

// FailureHandler is invoked asynchronously when a send to a participant
// fails at the transport level. It receives the failed channel so cleanup
// can tell a dead binding from one a reconnect already superseded. It runs
// the same cleanup path as an explicit disconnect and must be idempotent.
type FailureHandler func(participantID string, ch Channel)

// binding pairs a channel with the writer goroutine state that drains its
// outbound queue.
type binding struct {
	ch   Channel
	out  chan []byte
	done chan struct{}
}

// Registry is a goroutine-safe participant -> channel table. A reconnect
// silently supersedes a stale binding (last-writer-wins); sends to unbound
// participants are logged and dropped, never surfaced as errors, because
// disconnects race with in-flight relay messages.
type Registry struct {
	mu        sync.RWMutex
	bindings  map[string]*binding
	onFailure FailureHandler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{bindings: make(map[string]*binding)}
}

// SetFailureHandler registers the cleanup callback for failed sends. It must
// be called before the registry starts receiving traffic.
func (r *Registry) SetFailureHandler(fn FailureHandler) {
	r.mu.Lock()
	r.onFailure = fn
	r.mu.Unlock()
}

// Register binds an outbound channel to a participant ID, replacing any
// prior binding for that ID, and starts the channel's writer.
func (r *Registry) Register(participantID string, ch Channel) {
	b := &binding{
		ch:   ch,
		out:  make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	prev := r.bindings[participantID]
	r.bindings[participantID] = b
	r.mu.Unlock()

	if prev != nil {
		close(prev.done)
		log.Printf("registry: rebind participant=%s (stale channel superseded)", participantID)
	}
	go r.writeLoop(participantID, b)
}

// Unregister removes the binding for a participant, but only if the bound
// channel is still ch, and reports whether a binding was removed. A reconnect
// that already superseded the binding is left untouched, so a late unregister
// from the old connection's teardown cannot evict the new channel.
func (r *Registry) Unregister(participantID string, ch Channel) bool {
	r.mu.Lock()
	cur := r.bindings[participantID]
	if cur != nil && cur.ch == ch {
		delete(r.bindings, participantID)
	} else {
		cur = nil
	}
	r.mu.Unlock()

	if cur != nil {
		close(cur.done)
		return true
	}
	return false
}

// Send queues data for the participant's bound channel and returns
// immediately. A missing binding or a full outbound queue is logged and the
// message dropped.
func (r *Registry) Send(participantID string, data []byte) {
	r.mu.RLock()
	b := r.bindings[participantID]
	r.mu.RUnlock()

	if b == nil {
		log.Printf("registry: drop send to unbound participant=%s", participantID)
		return
	}

	select {
	case b.out <- data:
	case <-b.done:
		// Binding torn down between lookup and enqueue; treat as unbound.
	default:
		log.Printf("registry: outbound queue full, drop send to participant=%s", participantID)
	}
}

// writeLoop drains one binding's outbound queue. The first transport error
// removes the binding (if not already superseded) and reports the failure to
// the handler in this goroutine, which is never a Send caller.
func (r *Registry) writeLoop(participantID string, b *binding) {
	for {
		select {
		case <-b.done:
			return
		case data := <-b.out:
			if err := b.ch.WriteMessage(data); err != nil {
				log.Printf("registry: send failed participant=%s: %v", participantID, err)
				r.Unregister(participantID, b.ch)

				r.mu.RLock()
				fn := r.onFailure
				r.mu.RUnlock()
				if fn != nil {
					fn(participantID, b.ch)
				}
				return
			}
		}
	}
}

// Bound reports whether a participant currently has a channel.
func (r *Registry) Bound(participantID string) bool {
	r.mu.RLock()
	_, ok := r.bindings[participantID]
	r.mu.RUnlock()
	return ok
}

// Count returns the number of bound participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.bindings)
	r.mu.RUnlock()
	return n
}
