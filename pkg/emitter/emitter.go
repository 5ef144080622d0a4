// Package emitter provides a typed publish/subscribe primitive.
//
// Each component owns its emitters; there is no process-wide event bus.
// Subscribe returns a disposer that removes the handler, matching the
// Stream contract used elsewhere in the framework:
//
//	stop := room.OnJoin().Subscribe(func(c *presence.Connection) {
//	    log.Println("joined", c.ID())
//	})
//	defer stop()
//
// Emit calls handlers synchronously, in subscription order, on the
// emitting goroutine. Handlers may subscribe or unsubscribe while an emit
// is in progress; the change takes effect on the next Emit.
package emitter

import (
	"sync"
)

// Stream is the read side of an Emitter.
type Stream[T any] interface {
	Subscribe(handler func(T)) (unsubscribe func())
}

// Emitter delivers values of type T to subscribed handlers.
// The zero value is ready to use.
type Emitter[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers handler and returns a function that unregisters it.
// The returned function is idempotent.
func (e *Emitter[T]) Subscribe(handler func(T)) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, subscription[T]{id: id, fn: handler})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

// Once registers handler for a single delivery.
func (e *Emitter[T]) Once(handler func(T)) func() {
	var fired sync.Once
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, subscription[T]{id: id, fn: func(v T) {
		fired.Do(func() {
			e.remove(id)
			handler(v)
		})
	}})
	e.mu.Unlock()

	return func() { e.remove(id) }
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.handlers {
		if s.id == id {
			// copy-on-write: an Emit in progress keeps iterating its snapshot
			handlers := make([]subscription[T], 0, len(e.handlers)-1)
			handlers = append(handlers, e.handlers[:i]...)
			handlers = append(handlers, e.handlers[i+1:]...)
			e.handlers = handlers
			return
		}
	}
}

// Emit delivers v to every current subscriber.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	handlers := e.handlers
	e.mu.Unlock()

	for _, s := range handlers {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
