package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/talknow/signaling/internal/abuse"
	"github.com/talknow/signaling/internal/metrics"
	"github.com/talknow/signaling/internal/moderation"
	"github.com/talknow/signaling/internal/protocol"
	"github.com/talknow/signaling/internal/ratelimit"
	"github.com/talknow/signaling/internal/report"
	"github.com/talknow/signaling/internal/session"
)

// rateLimitBurstThreshold is the number of consecutive rate-limited actions
// after which a fingerprint earns an abuse violation. A single burst of
// over-limit sends is normal client misbehavior; sustained hammering is not.
const rateLimitBurstThreshold = 10

// ChatMessage runs a text message through the full pipeline: rate limit,
// abuse gate, content validation, session lookup, moderation, relay. The
// moderation call is the only step allowed to take real time and holds no
// hub state while in flight. A moderation timeout fails closed: the message
// is blocked, never silently passed through.
func (h *Hub) ChatMessage(ctx context.Context, senderID string, msg protocol.ChatMessageMsg) {
	p, ok := h.participant(senderID)
	if !ok {
		return
	}

	allowed, retryAfter, err := h.limiter.Allow(ctx, p.Fingerprint, ratelimit.CategoryChatMessage)
	if err == nil && !allowed {
		metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		h.send(senderID, protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: int(retryAfter.Seconds() + 0.5)})
		if h.strikes.hit(p.Fingerprint) {
			if _, _, verr := h.guard.Violation(ctx, p.Fingerprint, abuse.WeightRateLimitBurst, "rate_limit_burst"); verr != nil {
				log.Printf("hub: rate-limit burst violation for %s: %v", p.Fingerprint, verr)
			}
		}
		return
	}
	h.strikes.clear(p.Fingerprint)

	blocked, remaining, reason, err := h.guard.Check(ctx, p.Fingerprint)
	if err == nil && blocked {
		h.send(senderID, protocol.TypeBlocked, protocol.BlockedMsg{Remaining: int(remaining.Seconds() + 0.5), Reason: reason})
		return
	}

	if err := protocol.ValidateText(msg.Content); err != nil {
		h.send(senderID, protocol.TypeMessageBlocked, protocol.MessageBlockedMsg{Reason: err.Error()})
		return
	}

	s := h.sessionFor(senderID)
	if s == nil {
		metrics.MessagesTotal.WithLabelValues("no_session").Inc()
		h.send(senderID, protocol.TypeError, protocol.ErrorMsg{
			Code:    "no_active_session",
			Message: "no active session for chat_message",
		})
		return
	}

	verdict, err := h.moderate(ctx, s.ID, senderID, msg.Content)
	switch {
	case errors.Is(err, moderation.ErrTimeout):
		// Fail closed. A timeout is logged and audited distinctly from an
		// unsafe verdict and carries a smaller weight than flagged content:
		// the sender may be probing for moderation outages.
		metrics.MessagesTotal.WithLabelValues("moderation_timeout").Inc()
		log.Printf("hub: moderation timeout session=%s sender=%s", s.ID, senderID)
		h.send(senderID, protocol.TypeMessageBlocked, protocol.MessageBlockedMsg{Reason: "moderation unavailable, message not delivered"})
		h.audit(s.ID, senderID, moderation.Verdict{Action: "timeout", ContentHash: moderation.HashContent(msg.Content)})
		if _, _, verr := h.guard.Violation(ctx, p.Fingerprint, abuse.WeightModerationTimeout, "moderation_timeout"); verr != nil {
			log.Printf("hub: moderation-timeout violation for %s: %v", p.Fingerprint, verr)
		}
		return
	case err != nil:
		// Transport errors other than a timeout get the same closed-fail
		// treatment; the safety guarantee beats availability here.
		metrics.MessagesTotal.WithLabelValues("moderation_timeout").Inc()
		log.Printf("hub: moderation error session=%s sender=%s: %v", s.ID, senderID, err)
		h.send(senderID, protocol.TypeMessageBlocked, protocol.MessageBlockedMsg{Reason: "moderation unavailable, message not delivered"})
		return
	}

	h.audit(s.ID, senderID, verdict)

	if !verdict.IsSafe {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		h.send(senderID, protocol.TypeMessageBlocked, protocol.MessageBlockedMsg{Reason: blockReason(verdict)})

		score, blockFor, verr := h.guard.Violation(ctx, p.Fingerprint, abuse.WeightFlaggedMessage, "flagged_message")
		if verr != nil {
			log.Printf("hub: flagged-message violation for %s: %v", p.Fingerprint, verr)
		} else if blockFor > 0 {
			log.Printf("hub: fingerprint %s blocked for %s (score %.1f)", p.Fingerprint, blockFor, score)
			h.send(senderID, protocol.TypeBlocked, protocol.BlockedMsg{Remaining: int(blockFor.Seconds() + 0.5), Reason: "flagged_message"})
		}
		return
	}

	warned := verdict.Action == moderation.ActionWarn

	// Buffer and relay on the actor, re-checking the session first: a skip,
	// report or disconnect during the moderation round-trip has already
	// removed the buffer, and a late Add would resurrect it for a dead
	// session.
	h.do(func() {
		cur := h.table.ByParticipant(senderID)
		if cur == nil || cur.ID != s.ID {
			metrics.MessagesTotal.WithLabelValues("no_session").Inc()
			return
		}
		if warned {
			metrics.MessagesTotal.WithLabelValues("warned").Inc()
		} else {
			metrics.MessagesTotal.WithLabelValues("relayed").Inc()
		}
		h.buffers.Add(s.ID, session.BufferedMessage{From: senderID, Text: msg.Content, Ts: time.Now().Unix()})
		h.send(s.Partner(senderID), protocol.TypeChatMessage, protocol.RelayedChatMsg{
			Content:  msg.Content,
			From:     senderID,
			IsWarned: warned,
		})
	})
}

// Report files an abuse report against the reporter's current partner, tears
// the session down and publishes the report with the recent message buffer
// for out-of-process persistence. Reports are gated like any other action so
// a hammering or blocked fingerprint cannot file them in bulk.
func (h *Hub) Report(ctx context.Context, reporterID string, msg protocol.ReportMsg) {
	p, ok := h.participant(reporterID)
	if !ok {
		return
	}
	if !h.gate(ctx, p, ratelimit.CategoryGeneral) {
		return
	}

	s := h.sessionFor(reporterID)
	if s == nil {
		h.send(reporterID, protocol.TypeError, protocol.ErrorMsg{
			Code:    "no_active_session",
			Message: "no active session to report",
		})
		return
	}
	reportedID := s.Partner(reporterID)

	// Snapshot the evidence before teardown wipes the buffer.
	evidence := h.buffers.Get(s.ID)

	h.call(func() {
		if cur := h.table.ByParticipant(reporterID); cur != nil && cur.ID == s.ID {
			h.table.End(s.ID, session.EndReport)
			h.buffers.Remove(s.ID)
			h.send(reportedID, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{})
		}
		h.syncGauges()
	})

	reported, ok := h.participant(reportedID)
	if ok {
		if _, _, err := h.guard.Violation(ctx, reported.Fingerprint, abuse.WeightReport, "reported:"+msg.Reason); err != nil {
			log.Printf("hub: report violation for %s: %v", reported.Fingerprint, err)
		}
	}

	if h.bus == nil {
		return
	}
	ev := report.Event{
		SessionID:  s.ID,
		ReporterID: reporterID,
		ReportedID: reportedID,
		Reason:     msg.Reason,
		Messages:   toEvidence(evidence),
		Ts:         time.Now().Unix(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("hub: encode report: %v", err)
		return
	}
	if err := h.bus.PublishReport(data); err != nil {
		log.Printf("hub: publish report: %v", err)
	}
}

// moderate calls the classifier with the configured bound and records its
// round-trip latency.
func (h *Hub) moderate(ctx context.Context, sessionID, senderID, text string) (moderation.Verdict, error) {
	mctx, cancel := context.WithTimeout(ctx, h.modTimeout)
	defer cancel()

	start := time.Now()
	verdict, err := h.classifier.Check(mctx, moderation.CheckRequest{
		SessionID: sessionID,
		From:      senderID,
		Text:      text,
		Ts:        start.Unix(),
	})
	metrics.ModerationLatency.Observe(time.Since(start).Seconds())
	return verdict, err
}

// audit publishes a moderation audit record. Safe verdicts produce a
// lightweight entry; the raw content never leaves the pipeline.
func (h *Hub) audit(sessionID, senderID string, verdict moderation.Verdict) {
	if h.bus == nil {
		return
	}
	data, err := json.Marshal(moderation.AuditRecord{
		SessionID:   sessionID,
		From:        senderID,
		IsSafe:      verdict.IsSafe,
		Action:      verdict.Action,
		Categories:  verdict.Categories,
		ContentHash: verdict.ContentHash,
		Ts:          time.Now().Unix(),
	})
	if err != nil {
		log.Printf("hub: encode audit: %v", err)
		return
	}
	if err := h.bus.PublishAudit(data); err != nil {
		log.Printf("hub: publish audit: %v", err)
	}
}

func blockReason(v moderation.Verdict) string {
	if len(v.Categories) > 0 {
		return "message blocked: " + v.Categories[0]
	}
	return "message blocked by moderation"
}

func toEvidence(msgs []session.BufferedMessage) []report.Message {
	out := make([]report.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, report.Message{From: m.From, Text: m.Text, Ts: m.Ts})
	}
	return out
}

// strikeCounter tracks consecutive rate-limited actions per fingerprint. It
// has its own lock because pipeline calls run on connection worker
// goroutines, not on the actor.
type strikeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newStrikeCounter() *strikeCounter {
	return &strikeCounter{counts: make(map[string]int)}
}

// hit records one rate-limited action and reports whether the burst
// threshold was just crossed. The count resets on crossing so each sustained
// burst earns exactly one violation.
func (c *strikeCounter) hit(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[fingerprint]++
	if c.counts[fingerprint] >= rateLimitBurstThreshold {
		c.counts[fingerprint] = 0
		return true
	}
	return false
}

// clear resets the consecutive count after an allowed action.
func (c *strikeCounter) clear(fingerprint string) {
	c.mu.Lock()
	delete(c.counts, fingerprint)
	c.mu.Unlock()
}
