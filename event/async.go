package event

import "sync"

// Async decouples emitters from handlers with a bounded worker queue.
// Events are dropped when the queue is full; emitters never block.
type Async struct {
	bus  *Bus
	q    chan func()
	wg   sync.WaitGroup
	once sync.Once
}

// NewAsync wraps bus with workers draining a queue of qlen events.
func NewAsync(bus *Bus, workers, qlen int) *Async {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	a := &Async{bus: bus, q: make(chan func(), qlen)}
	a.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer a.wg.Done()
			for f := range a.q {
				f()
			}
		}()
	}
	return a
}

// Emit enqueues delivery of (k, data); drops when the queue is full.
func (a *Async) Emit(k Kind, data any) {
	select {
	case a.q <- func() { a.bus.Emit(k, data) }:
	default: // drop
	}
}

// Close drains the queue and stops the workers. Safe to call twice.
func (a *Async) Close() {
	a.once.Do(func() {
		close(a.q)
		a.wg.Wait()
	})
}
