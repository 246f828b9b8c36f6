package controller

import (
	"sort"
	"sync"
	"time"

	"typerace/internal/control"
	"typerace/internal/logx"
	"typerace/internal/metrics"
)

const deferredTaskGap = 100 * time.Millisecond

type deferredTask struct {
	task     func() error
	priority int
	seq      uint64
}

// deferredQueue implements spec.md §4.4's queueResourceIntensiveOperation:
// served in descending priority, FIFO for ties, only while
// deferResourceIntensiveOps is clear. One task runs per deferredTaskGap
// tick, and each submission also triggers one immediate attempt, so two
// tasks can run less than deferredTaskGap apart.
type deferredQueue struct {
	mu      sync.Mutex
	pending []deferredTask
	nextSeq uint64
	flags   *control.Snapshot
	wake    chan struct{}
}

func newDeferredQueue(flags *control.Snapshot) *deferredQueue {
	return &deferredQueue{flags: flags, wake: make(chan struct{}, 1)}
}

func (q *deferredQueue) submit(task func() error, priority int) {
	q.mu.Lock()
	q.nextSeq++
	q.pending = append(q.pending, deferredTask{task: task, priority: priority, seq: q.nextSeq})
	metrics.DeferredQueueDepthGauge.WithLabelValues().Set(float64(len(q.pending)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *deferredQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *deferredQueue) start() (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(deferredTaskGap)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-q.wake:
				q.drainOne()
			case <-ticker.C:
				q.drainOne()
			}
		}
	}()
	return func() { close(done) }
}

func (q *deferredQueue) drainOne() {
	if q.flags.Load().DeferResourceIntensiveOps {
		return
	}

	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	sort.SliceStable(q.pending, func(i, j int) bool {
		if q.pending[i].priority != q.pending[j].priority {
			return q.pending[i].priority > q.pending[j].priority
		}
		return q.pending[i].seq < q.pending[j].seq
	})
	next := q.pending[0]
	q.pending = q.pending[1:]
	metrics.DeferredQueueDepthGauge.WithLabelValues().Set(float64(len(q.pending)))
	q.mu.Unlock()

	if err := next.task(); err != nil {
		logx.Warnf("deferred operation failed: %v", err)
	}
}
