package transport

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO so that Send never blocks on the reader.
type queue struct {
	mu     sync.Mutex
	items  []Message
	ready  chan struct{}
	closed bool
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(m Message) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

func (q *queue) pop(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items[0] = Message{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return m, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Message{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pipe is one end of an in-memory transport pair.
type Pipe struct {
	in   *queue
	out  *queue
	once sync.Once
}

// NewPipe returns two connected ends. Messages sent on one end are
// received on the other in order. Closing either end closes both
// directions; messages already queued are still delivered.
func NewPipe() (*Pipe, *Pipe) {
	a, b := newQueue(), newQueue()
	return &Pipe{in: a, out: b}, &Pipe{in: b, out: a}
}

// Send queues msg for the other end.
func (p *Pipe) Send(msg Message) error {
	if msg.Binary != nil {
		msg.Binary = append([]byte(nil), msg.Binary...)
	}
	return p.out.push(msg)
}

// Receive returns the next message from the other end.
func (p *Pipe) Receive(ctx context.Context) (Message, error) {
	return p.in.pop(ctx)
}

// Close closes both directions.
func (p *Pipe) Close() error {
	p.once.Do(func() {
		p.in.close()
		p.out.close()
	})
	return nil
}
