package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/talknow/signaling/internal/messaging"
)

// ErrTimeout reports that a moderation check did not answer within the
// caller's deadline. The message pipeline treats it as an unsafe verdict.
var ErrTimeout = errors.New("moderation: check timed out")

// Classifier reviews message content. Check must respect the context deadline;
// callers never wait longer than their configured moderation timeout.
type Classifier interface {
	Check(ctx context.Context, req CheckRequest) (Verdict, error)
}

// RemoteClassifier calls the moderator service over NATS request/reply.
type RemoteClassifier struct {
	nc *messaging.Client
}

// NewRemoteClassifier wraps a connected NATS client.
func NewRemoteClassifier(nc *messaging.Client) *RemoteClassifier {
	return &RemoteClassifier{nc: nc}
}

// Check sends the request to moderation.check and decodes the reply. Deadline
// expiry and NATS timeouts are both surfaced as ErrTimeout so the caller can
// distinguish "no answer" from an explicit unsafe verdict.
func (r *RemoteClassifier) Check(ctx context.Context, req CheckRequest) (Verdict, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: marshal request: %w", err)
	}

	reply, err := r.nc.RequestModeration(ctx, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrNoResponders) {
			return Verdict{}, ErrTimeout
		}
		return Verdict{}, err
	}

	var res CheckResult
	if err := json.Unmarshal(reply, &res); err != nil {
		return Verdict{}, fmt.Errorf("moderation: decode result: %w", err)
	}
	return res.Verdict, nil
}

// warnTerms are relayed but flagged to the recipient rather than blocked.
var warnTerms = []string{
	"shit", "fuck", "bitch", "asshole", "dick", "cunt", "bastard", "whore",
}

// Engine is the classifier core run inside the moderator service. It combines
// the hard blocklist with a softer warn list for mild profanity.
type Engine struct {
	block *Filter
	warn  *Filter
}

// NewEngine builds an Engine with the default blocklist and warn terms.
func NewEngine() *Engine {
	return &Engine{
		block: NewFilter(),
		warn:  NewFilterWithTerms(warnTerms),
	}
}

// Classify reviews the request text and returns a verdict. Blocked content is
// unsafe; warn-listed content stays safe but is flagged for the recipient.
func (e *Engine) Classify(req CheckRequest) Verdict {
	hash := HashContent(req.Text)

	if res := e.block.Check(req.Text); res.Blocked {
		return Verdict{
			IsSafe:      false,
			Action:      ActionBlock,
			Categories:  []string{res.Reason},
			ContentHash: hash,
		}
	}

	if res := e.warn.Check(req.Text); res.Blocked {
		return Verdict{
			IsSafe:      true,
			Action:      ActionWarn,
			Categories:  []string{"mild_profanity"},
			ContentHash: hash,
		}
	}

	return Verdict{IsSafe: true, Action: ActionAllow, ContentHash: hash}
}

// Check implements Classifier for in-process use, mainly in tests and
// single-binary deployments without a moderator service.
func (e *Engine) Check(_ context.Context, req CheckRequest) (Verdict, error) {
	return e.Classify(req), nil
}
