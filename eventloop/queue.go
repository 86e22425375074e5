package eventloop

import "sync"

// queue is a bounded ring of pending events. Pushing onto a full queue
// overwrites the oldest event, so a slow consumer loses history instead of
// blocking producers.
type queue struct {
	mut     sync.Mutex
	ring    []any
	head    int
	count   int
	readyCh chan struct{}
}

func newQueue(capacity uint) queue {
	return queue{
		ring:    make([]any, capacity),
		readyCh: make(chan struct{}, 1),
	}
}

func (q *queue) push(event any) {
	q.mut.Lock()
	if len(q.ring) == 0 {
		q.mut.Unlock()
		panic("cannot push to a queue with capacity 0")
	}
	if q.count == len(q.ring) {
		// full: the slot at head holds the oldest event
		q.ring[q.head] = event
		q.head = (q.head + 1) % len(q.ring)
	} else {
		q.ring[(q.head+q.count)%len(q.ring)] = event
		q.count++
	}
	q.mut.Unlock()

	select {
	case q.readyCh <- struct{}{}:
	default:
	}
}

func (q *queue) pop() (event any, ok bool) {
	q.mut.Lock()
	defer q.mut.Unlock()

	if q.count == 0 {
		return nil, false
	}
	event = q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	return event, true
}

func (q *queue) len() int {
	q.mut.Lock()
	defer q.mut.Unlock()
	return q.count
}

func (q *queue) ready() <-chan struct{} {
	return q.readyCh
}
