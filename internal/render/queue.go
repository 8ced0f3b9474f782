package render

import "sync"

// Queue hands render requests from the engine to a UI loop that drains on
// its own clock. Pending requests coalesce: only the newest view is kept and
// a pending full render is never downgraded to a timer refresh.
type Queue struct {
	mu      sync.Mutex
	pending *Request
	ready   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

func (q *Queue) Push(r Request) {
	q.mu.Lock()
	if q.pending != nil && q.pending.Mode > r.Mode {
		r.Mode = q.pending.Mode
	}
	q.pending = &r
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready fires after a Push; the receiver should call Drain.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain takes the pending request, if any.
func (q *Queue) Drain() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		return Request{}, false
	}
	r := *q.pending
	q.pending = nil
	return r, true
}
