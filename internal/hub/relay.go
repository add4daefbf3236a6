package hub

import (
	"context"
	"log"

	"github.com/talknow/signaling/internal/metrics"
	"github.com/talknow/signaling/internal/protocol"
	"github.com/talknow/signaling/internal/ratelimit"
)

// Signal relays an opaque WebRTC payload (offer, answer or ice-candidate) to
// the sender's current partner. The payload is never interpreted. The rate
// limiter and abuse guard are consulted first, like every other
// client-driven action.
//
// FIFO per directed pair comes for free: each connection has a single reader
// goroutine, so a sender's signals enter here in send order and the registry
// queues them onto the partner's writer in that order.
//
// A sender with no active session is informed with a no_active_session error,
// except for ice-candidate: candidates trickle out after teardown under
// normal disconnect races and are dropped silently.
func (h *Hub) Signal(ctx context.Context, senderID string, msgType string, msg protocol.SignalMsg) {
	if !protocol.IsSignaling(msgType) {
		log.Printf("hub: relay refused non-signaling type %q from %s", msgType, senderID)
		return
	}

	p, ok := h.participant(senderID)
	if !ok {
		return
	}
	if !h.gate(ctx, p, ratelimit.CategoryGeneral) {
		return
	}

	s := h.sessionFor(senderID)
	if s == nil {
		if msgType == protocol.TypeICECandidate {
			return // late candidate, expected during teardown
		}
		h.send(senderID, protocol.TypeError, protocol.ErrorMsg{
			Code:    "no_active_session",
			Message: "no active session to relay " + msgType,
		})
		return
	}

	metrics.SignalsTotal.WithLabelValues(msgType).Inc()
	h.send(s.Partner(senderID), msgType, protocol.RelayedSignalMsg{
		Data: msg.Data,
		From: senderID,
	})
}
