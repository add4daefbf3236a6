// Package hub is the heart of the signaling engine. A single actor goroutine
// owns the matchmaking queue and the session table, serializing every
// enqueue, cancel, pairing and teardown so that "remove two tickets and
// create a session" is one indivisible step and a participant id can never
// be in the queue and the session table at the same time.
//
// Everything with externally-variable latency — Redis gate checks, the
// moderation call, NATS publishes — runs in the caller's goroutine before or
// after the actor step, never inside it.
package hub

import (
	"context"
	"log"
	"time"

	"github.com/talknow/signaling/internal/abuse"
	"github.com/talknow/signaling/internal/matching"
	"github.com/talknow/signaling/internal/metrics"
	"github.com/talknow/signaling/internal/moderation"
	"github.com/talknow/signaling/internal/protocol"
	"github.com/talknow/signaling/internal/ratelimit"
	"github.com/talknow/signaling/internal/registry"
	"github.com/talknow/signaling/internal/session"
)

// retrySweepInterval bounds how long two already-compatible tickets can sit
// unpaired after a missed enqueue-time attempt.
const retrySweepInterval = 2 * time.Second

// Participant is the per-connection identity snapshot. Capability flags are
// read once at connection open and never live-synced.
type Participant struct {
	ID               string
	Fingerprint      string
	IsPremium        bool
	TrialActive      bool
	DeclaredIdentity matching.Gender
}

// Gate is the subset of the rate limiter the hub consults.
type Gate interface {
	Allow(ctx context.Context, fingerprint string, cat ratelimit.Category) (bool, time.Duration, error)
}

// Guard is the subset of the abuse guard the hub consults.
type Guard interface {
	Check(ctx context.Context, fingerprint string) (bool, time.Duration, string, error)
	Violation(ctx context.Context, fingerprint string, weight float64, reason string) (float64, time.Duration, error)
}

// EventBus publishes report and moderation-audit events for out-of-process
// persistence. A nil bus disables publishing.
type EventBus interface {
	PublishReport(data []byte) error
	PublishAudit(data []byte) error
}

// Config carries the hub's collaborator handles and tunables.
type Config struct {
	Registry   *registry.Registry
	Limiter    Gate
	Guard      Guard
	Classifier moderation.Classifier
	Bus        EventBus

	// Interests screens interest tags before they enter the queue. Defaults
	// to the built-in blocklist filter.
	Interests *moderation.Filter

	ICEServers        []protocol.ICEServer
	ModerationTimeout time.Duration
}

// Hub runs the matchmaking actor and the relay/pipeline entry points.
type Hub struct {
	reg        *registry.Registry
	limiter    Gate
	guard      Guard
	classifier moderation.Classifier
	interests  *moderation.Filter
	bus        EventBus

	iceServers []protocol.ICEServer
	modTimeout time.Duration

	// Owned exclusively by the actor goroutine.
	queue        *matching.Queue
	table        *session.Table
	participants map[string]Participant
	profiles     map[string]*matching.Ticket

	buffers *session.MessageBuffer
	strikes *strikeCounter

	cmds chan func()
	done chan struct{}
}

// New creates a Hub. Run must be called before any client traffic arrives.
func New(cfg Config) *Hub {
	if cfg.ModerationTimeout <= 0 {
		cfg.ModerationTimeout = 2 * time.Second
	}
	if cfg.Interests == nil {
		cfg.Interests = moderation.NewFilter()
	}
	return &Hub{
		reg:          cfg.Registry,
		limiter:      cfg.Limiter,
		guard:        cfg.Guard,
		classifier:   cfg.Classifier,
		interests:    cfg.Interests,
		bus:          cfg.Bus,
		iceServers:   cfg.ICEServers,
		modTimeout:   cfg.ModerationTimeout,
		queue:        matching.NewQueue(),
		table:        session.NewTable(),
		participants: make(map[string]Participant),
		profiles:     make(map[string]*matching.Ticket),
		buffers:      session.NewMessageBuffer(),
		strikes:      newStrikeCounter(),
		cmds:         make(chan func(), 512),
		done:         make(chan struct{}),
	}
}

// Run executes the actor loop until ctx is cancelled. It must run in exactly
// one goroutine.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(retrySweepInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			log.Printf("hub: actor stopping: %v", ctx.Err())
			return
		case fn := <-h.cmds:
			fn()
		case <-ticker.C:
			h.sweep()
		}
	}
}

// do schedules fn on the actor goroutine and returns immediately.
func (h *Hub) do(fn func()) {
	select {
	case h.cmds <- fn:
	case <-h.done:
	}
}

// call schedules fn on the actor goroutine and waits for it to finish.
func (h *Hub) call(fn func()) {
	doneCh := make(chan struct{})
	h.do(func() {
		fn()
		close(doneCh)
	})
	select {
	case <-doneCh:
	case <-h.done:
	}
}

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

// Join binds a participant's outbound channel and records its identity
// snapshot. A reconnect under the same identity supersedes the old binding.
func (h *Hub) Join(p Participant, ch registry.Channel) {
	h.reg.Register(p.ID, ch)
	h.do(func() {
		h.participants[p.ID] = p
	})
}

// Leave is the transport-close cleanup path: the registry binding for ch is
// released, the ticket is cancelled, any active session is torn down with the
// peer notified, and the identity snapshot is discarded. The registry ignores
// the unregister when a reconnect already superseded ch. Leave is idempotent
// and also serves as the registry's send-failure handler.
func (h *Hub) Leave(participantID string, ch registry.Channel) {
	if ch != nil && !h.reg.Unregister(participantID, ch) && h.reg.Bound(participantID) {
		// A reconnect superseded this channel; the live connection owns the
		// queue ticket, session and identity snapshot.
		return
	}
	h.do(func() {
		h.queue.Cancel(participantID)
		h.endFor(participantID, session.EndDisconnect)
		delete(h.participants, participantID)
		delete(h.profiles, participantID)
		h.syncGauges()
	})
}

// ---------------------------------------------------------------------------
// Matchmaking operations
// ---------------------------------------------------------------------------

// FindMatch gates the request and enqueues a fresh ticket. Gate failures are
// reported to the caller over its own outbound channel; they never close the
// connection.
func (h *Hub) FindMatch(ctx context.Context, p Participant, req protocol.FindMatchMsg) {
	if !h.gate(ctx, p, ratelimit.CategoryGeneral) {
		return
	}

	chatType := matching.ChatText
	if req.PreferVideo {
		chatType = matching.ChatVideo
	}

	// Gender preference is a premium capability. A free participant's
	// preference is coerced to "any" rather than rejected.
	pref := matching.PreferAny
	if p.IsPremium || (p.TrialActive && req.UseTrial) {
		switch matching.Preference(req.GenderPreference) {
		case matching.PreferMale:
			pref = matching.PreferMale
		case matching.PreferFemale:
			pref = matching.PreferFemale
		}
	}

	// Flagged interest tags are dropped rather than failing the request:
	// they would otherwise become visible to the partner via the shared
	// interest list.
	interests := h.interests.CheckInterests(matching.NormalizeInterests(req.Interests))

	t := &matching.Ticket{
		ParticipantID:    p.ID,
		EnqueuedAt:       time.Now(),
		ChatType:         chatType,
		Interests:        interests,
		GenderPreference: pref,
		DeclaredIdentity: p.DeclaredIdentity,
		Priority:         p.IsPremium || (p.TrialActive && req.UseTrial),
	}

	h.do(func() {
		if h.table.Contains(p.ID) {
			// Already in a session; a stray find_match is ignored.
			log.Printf("hub: find_match from in-session participant=%s ignored", p.ID)
			return
		}
		h.profiles[p.ID] = t
		h.enqueue(t)
		h.syncGauges()
	})
}

// CancelMatch removes a pending ticket. Cancelling twice is a no-op.
func (h *Hub) CancelMatch(participantID string) {
	h.do(func() {
		h.queue.Cancel(participantID)
		h.syncGauges()
	})
}

// Skip tears down the caller's session and immediately re-enters matchmaking
// with the caller's last ticket parameters. The peer sees
// partner_disconnected; the skipper sees ready_to_match.
func (h *Hub) Skip(participantID string) {
	h.do(func() {
		if h.endFor(participantID, session.EndSkip) == nil {
			return
		}
		h.send(participantID, protocol.TypeReadyToMatch, protocol.ReadyToMatchMsg{})

		if prof, ok := h.profiles[participantID]; ok {
			fresh := *prof
			fresh.EnqueuedAt = time.Now()
			h.enqueue(&fresh)
		}
		h.syncGauges()
	})
}

// Disconnect tears down the caller's session without re-enqueueing. The
// connection itself stays open; disconnecting with no session is a no-op.
func (h *Hub) Disconnect(participantID string) {
	h.do(func() {
		h.queue.Cancel(participantID)
		h.endFor(participantID, session.EndDisconnect)
		h.syncGauges()
	})
}

// ---------------------------------------------------------------------------
// Actor internals
// ---------------------------------------------------------------------------

// enqueue inserts a ticket and attempts pairing. Runs on the actor.
func (h *Hub) enqueue(t *matching.Ticket) {
	if m := h.queue.Enqueue(t); m != nil {
		h.pair(m)
		return
	}
	h.send(t.ParticipantID, protocol.TypeWaiting, protocol.WaitingMsg{QueueSize: h.queue.Size()})
}

// pair creates the session for a completed match and notifies both sides.
// Runs on the actor.
func (h *Hub) pair(m *matching.Match) {
	s, err := h.table.Create(m.A.ParticipantID, m.B.ParticipantID, m.A.ChatType)
	if err != nil {
		// Double-booking should be impossible by construction. If it happens
		// anyway, force-end the offending sessions and retry once.
		log.Printf("hub: pairing %s/%s failed: %v (force-ending stale sessions)",
			m.A.ParticipantID, m.B.ParticipantID, err)
		h.endFor(m.A.ParticipantID, session.EndDisconnect)
		h.endFor(m.B.ParticipantID, session.EndDisconnect)

		s, err = h.table.Create(m.A.ParticipantID, m.B.ParticipantID, m.A.ChatType)
		if err != nil {
			log.Printf("hub: pairing retry failed: %v (dropping match)", err)
			h.send(m.A.ParticipantID, protocol.TypeError, protocol.ErrorMsg{Code: "pairing_failed", Message: "could not create session"})
			h.send(m.B.ParticipantID, protocol.TypeError, protocol.ErrorMsg{Code: "pairing_failed", Message: "could not create session"})
			return
		}
	}

	metrics.MatchesTotal.Inc()
	metrics.TimeToMatch.Observe(time.Since(m.A.EnqueuedAt).Seconds())
	metrics.TimeToMatch.Observe(time.Since(m.B.EnqueuedAt).Seconds())

	matched := func(partner string) protocol.MatchedMsg {
		return protocol.MatchedMsg{
			PartnerID:  partner,
			SessionID:  s.ID,
			ChatType:   string(s.ChatType),
			ICEServers: h.iceServers,
		}
	}
	h.send(m.A.ParticipantID, protocol.TypeMatched, matched(m.B.ParticipantID))
	h.send(m.B.ParticipantID, protocol.TypeMatched, matched(m.A.ParticipantID))
	h.syncGauges()
}

// endFor tears down the session containing participantID, if any, notifying
// the peer. Returns the ended session or nil. Runs on the actor.
func (h *Hub) endFor(participantID string, cause session.EndCause) *session.Session {
	s := h.table.ByParticipant(participantID)
	if s == nil {
		return nil
	}
	h.table.End(s.ID, cause)
	h.buffers.Remove(s.ID)
	h.send(s.Partner(participantID), protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{})
	return s
}

// sweep retries pairing for tickets whose enqueue-time attempt found no
// eligible candidate but whose candidate arrived since. Runs on the actor.
func (h *Hub) sweep() {
	for {
		m := h.queue.NextPair()
		if m == nil {
			break
		}
		h.pair(m)
	}
	h.syncGauges()
}

// sessionFor returns a snapshot of the participant's active session, taken
// on the actor so it is consistent with in-flight pairing and teardown.
func (h *Hub) sessionFor(participantID string) *session.Session {
	var s *session.Session
	h.call(func() {
		if cur := h.table.ByParticipant(participantID); cur != nil {
			snap := *cur
			s = &snap
		}
	})
	return s
}

func (h *Hub) participant(id string) (Participant, bool) {
	var (
		p  Participant
		ok bool
	)
	h.call(func() {
		p, ok = h.participants[id]
	})
	return p, ok
}

func (h *Hub) syncGauges() {
	metrics.QueueSize.Set(float64(h.queue.Size()))
	metrics.ActiveSessions.Set(float64(h.table.Count()))
}

// ---------------------------------------------------------------------------
// Gating and outbound helpers
// ---------------------------------------------------------------------------

// gate runs the rate-limit and abuse checks for p, replying to the caller on
// failure. Returns true if the action may proceed. Both checks fail open on
// infrastructure errors; the limiter and guard log those themselves.
func (h *Hub) gate(ctx context.Context, p Participant, cat ratelimit.Category) bool {
	allowed, retryAfter, err := h.limiter.Allow(ctx, p.Fingerprint, cat)
	if err == nil && !allowed {
		h.send(p.ID, protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: int(retryAfter.Seconds() + 0.5)})
		if h.strikes.hit(p.Fingerprint) {
			if _, _, verr := h.guard.Violation(ctx, p.Fingerprint, abuse.WeightRateLimitBurst, "rate_limit_burst"); verr != nil {
				log.Printf("hub: rate-limit burst violation for %s: %v", p.Fingerprint, verr)
			}
		}
		return false
	}
	h.strikes.clear(p.Fingerprint)

	blocked, remaining, reason, err := h.guard.Check(ctx, p.Fingerprint)
	if err == nil && blocked {
		h.send(p.ID, protocol.TypeBlocked, protocol.BlockedMsg{Remaining: int(remaining.Seconds() + 0.5), Reason: reason})
		return false
	}
	return true
}

// send marshals a server message and queues it through the registry. The
// registry enqueue never blocks, so send is safe inside actor closures; write
// failures are handled by the registry's failure handler, and a marshal
// failure is a programming error and is only logged.
func (h *Hub) send(participantID string, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("hub: encode %s for %s: %v", msgType, participantID, err)
		return
	}
	h.reg.Send(participantID, data)
}
