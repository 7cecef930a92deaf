package research

import (
	"context"
	"errors"
	"time"
)

// ErrInputTimeout is returned when no reply arrives within the wait window.
var ErrInputTimeout = errors.New("timed out waiting for user input")

// ErrHandoffFull is returned when the relay buffer is full.
var ErrHandoffFull = errors.New("handoff buffer full")

// Handoff relays human input from the API layer to the orchestrator. It is a
// bounded FIFO; sends never block.
type Handoff struct {
	ch chan string
}

// NewHandoff creates a relay holding up to capacity undelivered messages.
func NewHandoff(capacity int) *Handoff {
	if capacity <= 0 {
		capacity = 16
	}
	return &Handoff{ch: make(chan string, capacity)}
}

// Send enqueues one message without blocking.
func (h *Handoff) Send(msg string) error {
	select {
	case h.ch <- msg:
		return nil
	default:
		return ErrHandoffFull
	}
}

// Receive blocks until a message arrives or ctx is done.
func (h *Handoff) Receive(ctx context.Context) (string, error) {
	select {
	case msg := <-h.ch:
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ReceiveTimeout blocks up to d for a message and returns ErrInputTimeout
// when the window closes empty.
func (h *Handoff) ReceiveTimeout(ctx context.Context, d time.Duration) (string, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case msg := <-h.ch:
		return msg, nil
	case <-timer.C:
		return "", ErrInputTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
