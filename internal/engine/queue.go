package engine

import (
	"sync"
	"time"

	"typerace/internal/logx"
)

const (
	creationDrainInterval       = 2 * time.Second
	creationDrainBackoffInterval = 5 * time.Second
	creationStaleAfterMs        = 30_000
)

type creationRequest struct {
	playerID    string
	playerName  string
	maxPlayers  int
	long        bool
	submittedAt int64
}

// creationQueue buffers createGame requests while
// gameCreationQueueEnabled is set, draining them on a background ticker
// (spec.md §4.1: 2s cadence, 5s under creationBackoffEnabled; entries
// older than 30s are discarded).
type creationQueue struct {
	mu      sync.Mutex
	pending []creationRequest
	engine  *Engine
}

func newCreationQueue(e *Engine) *creationQueue {
	return &creationQueue{engine: e}
}

func (q *creationQueue) enqueue(r creationRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, r)
}

func (q *creationQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *creationQueue) start() (stop func()) {
	done := make(chan struct{})
	go func() {
		for {
			interval := creationDrainInterval
			if q.engine.flags.Load().CreationBackoffEnabled {
				interval = creationDrainBackoffInterval
			}
			timer := time.NewTimer(interval)
			select {
			case <-done:
				timer.Stop()
				return
			case <-timer.C:
				q.drain()
			}
		}
	}()
	return func() { close(done) }
}

func (q *creationQueue) drain() {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	now := q.engine.clock.NowMs()
	flags := q.engine.flags.Load()
	var requeue []creationRequest
	for _, r := range batch {
		if now-r.submittedAt > creationStaleAfterMs {
			logx.Warnf("discarding stale queued create_game request for player %s (age %dms)", r.playerID, now-r.submittedAt)
			continue
		}
		if flags.GameCreationQueueEnabled {
			requeue = append(requeue, r)
			continue
		}
		if _, _, err := q.engine.createGameNow(r.playerID, r.playerName, r.maxPlayers, r.long); err != nil {
			logx.Warnf("failed to drain queued create_game request for player %s: %v", r.playerID, err)
		}
	}
	if len(requeue) > 0 {
		q.mu.Lock()
		q.pending = append(requeue, q.pending...)
		q.mu.Unlock()
	}
}
