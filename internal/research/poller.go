package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/agents"
)

// ErrRunWaitExceeded is returned when a run outlives the configured ceiling.
var ErrRunWaitExceeded = errors.New("run did not finish within the configured wait")

// PollResult reports where a run ended up and the newest assistant message
// observed while it ran.
type PollResult struct {
	Run           agents.Run
	LastMessageID string
	LastText      string
}

// Poller watches an in-flight run at a fixed cadence until it reaches a
// terminal status. Each newly visible assistant message is re-read in full
// and appended to the session transcript as a side effect.
type Poller struct {
	svc      AgentService
	session  *Session
	interval time.Duration
	maxWait  time.Duration // 0 means wait forever
	logger   *log.Logger
}

// NewPoller builds a poller over the given service and session.
func NewPoller(svc AgentService, session *Session, interval, maxWait time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[POLL] ", log.LstdFlags)
	}
	return &Poller{svc: svc, session: session, interval: interval, maxWait: maxWait, logger: logger}
}

// Wait blocks until the run leaves queued/in_progress. lastMessageID is the
// newest assistant message already surfaced; messages with other ids are
// appended to the transcript in discovery order.
func (p *Poller) Wait(ctx context.Context, threadID string, run agents.Run, lastMessageID string) (PollResult, error) {
	res := PollResult{Run: run, LastMessageID: lastMessageID}

	var deadline time.Time
	if p.maxWait > 0 {
		deadline = time.Now().Add(p.maxWait)
	}

	for res.Run.InFlight() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return res, fmt.Errorf("run %s: %w", res.Run.ID, ErrRunWaitExceeded)
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(p.interval):
		}

		updated, err := p.svc.GetRun(ctx, threadID, res.Run.ID)
		if err != nil {
			return res, err
		}
		res.Run = updated

		msg, err := p.svc.LastMessageByRole(ctx, threadID, agents.RoleAssistant)
		if err != nil {
			return res, err
		}
		if msg != nil && msg.ID != res.LastMessageID {
			full, err := p.svc.GetMessage(ctx, threadID, msg.ID)
			if err != nil {
				return res, err
			}
			text := full.Text()
			p.session.Append(RoleAssistant, text)
			res.LastMessageID = full.ID
			res.LastText = text
			p.logger.Printf("new assistant response %s", full.ID)
		}

		p.logger.Printf("run %s status: %s", res.Run.ID, res.Run.Status)
	}

	return res, nil
}
