// Package queue implements the per-workspace execution lane: one
// worker turn at a time per workspace, batch draining of messages that
// arrive while a turn is in flight, interrupt, and warm-continue after a
// query-done pulse.
package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

// Deliverer starts or continues a worker turn for a workspace with the
// given concatenated batch text. Deliver must not return until the turn
// itself has finished (the worker's query-done pulse, or the session
// ending) — drainLoop treats a returned Deliver call as license to start
// the next batch in the same lane. Implemented by the host, which owns the
// worker session manager.
type Deliverer interface {
	Deliver(ctx context.Context, ws domain.Workspace, chatID, text string) error
	Interrupt(ctx context.Context, workspaceFolder string) error
}

type lane struct {
	mu      sync.Mutex // serializes this workspace's turns
	pending []string
	active  bool
}

// Queue owns one lane per workspace folder.
type Queue struct {
	deliverer Deliverer

	mu    sync.Mutex
	lanes map[string]*lane
}

// New constructs a Queue backed by deliverer.
func New(deliverer Deliverer) *Queue {
	return &Queue{deliverer: deliverer, lanes: make(map[string]*lane)}
}

func (q *Queue) lane(folder string) *lane {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[folder]
	if !ok {
		l = &lane{}
		q.lanes[folder] = l
	}
	return l
}

// Enqueue appends payload to the workspace's pending batch. If the lane is
// idle, execution begins immediately in a new goroutine; if a turn is
// already in flight, the message joins the next batch (warm continue).
func (q *Queue) Enqueue(ctx context.Context, ws domain.Workspace, chatID, payload string) {
	l := q.lane(ws.Folder)

	l.mu.Lock()
	l.pending = append(l.pending, payload)
	alreadyActive := l.active
	if !alreadyActive {
		l.active = true
	}
	l.mu.Unlock()

	if !alreadyActive {
		go q.drainLoop(ctx, ws, chatID, l)
	}
}

// drainLoop repeatedly drains and executes the pending batch until it is
// empty, giving the "warm continue" behavior: a batch that arrived during
// the just-finished turn is delivered immediately, without re-spawning.
func (q *Queue) drainLoop(ctx context.Context, ws domain.Workspace, chatID string, l *lane) {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.active = false
			l.mu.Unlock()
			return
		}
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		text := joinBatch(batch)
		if err := q.deliverer.Deliver(ctx, ws, chatID, text); err != nil {
			slog.Error("queue.deliver_failed", "workspace", ws.Folder, "error", err)
			l.mu.Lock()
			l.active = false
			l.mu.Unlock()
			return
		}
	}
}

// Interrupt clears the workspace's pending batch and asks the deliverer to
// stop the active turn. Bound to a user reaction emoji.
func (q *Queue) Interrupt(ctx context.Context, workspaceFolder string) error {
	l := q.lane(workspaceFolder)
	l.mu.Lock()
	l.pending = nil
	l.mu.Unlock()
	return q.deliverer.Interrupt(ctx, workspaceFolder)
}

// IsActive reports whether the workspace currently has a turn in flight.
func (q *Queue) IsActive(workspaceFolder string) bool {
	l := q.lane(workspaceFolder)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func joinBatch(batch []string) string {
	if len(batch) == 1 {
		return batch[0]
	}
	out := batch[0]
	for _, s := range batch[1:] {
		out += "\n" + s
	}
	return out
}
