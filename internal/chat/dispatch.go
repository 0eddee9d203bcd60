package chat

import (
	"fmt"
	"sync"
)

var errDispatcherClosed = fmt.Errorf("dispatcher closed")

type dispatchResult struct {
	value interface{}
	err   error
}

// dispatcher serializes all engine work onto a single goroutine.
//
// The engine is driven from several threads at once: the application's
// calls, the connection's event goroutine, and the watchdog timer.
// Funneling every state change through one goroutine keeps the pipeline
// steps ordered without fine-grained locking.
type dispatcher struct {
	closeOnce sync.Once
	q         chan func()
	closed    chan struct{}
}

func newDispatcher(queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &dispatcher{
		q:      make(chan func(), queueSize),
		closed: make(chan struct{}),
	}
	go func() {
		for {
			select {
			case fn := <-d.q:
				if fn != nil {
					fn()
				}
			case <-d.closed:
				return
			}
		}
	}()
	return d
}

// do queues fn without waiting for it to run. Work arriving after close
// is dropped.
func (d *dispatcher) do(fn func()) error {
	if d == nil {
		return fmt.Errorf("dispatcher not initialized")
	}
	if fn == nil {
		return nil
	}
	select {
	case d.q <- fn:
		return nil
	case <-d.closed:
		return errDispatcherClosed
	}
}

// call queues fn and waits for its result.
func (d *dispatcher) call(fn func() (interface{}, error)) (interface{}, error) {
	if d == nil {
		return nil, fmt.Errorf("dispatcher not initialized")
	}
	if fn == nil {
		return nil, nil
	}
	done := make(chan dispatchResult, 1)
	wrapped := func() {
		value, err := fn()
		done <- dispatchResult{value: value, err: err}
	}
	select {
	case d.q <- wrapped:
	case <-d.closed:
		return nil, errDispatcherClosed
	}
	select {
	case res := <-done:
		return res.value, res.err
	case <-d.closed:
		return nil, errDispatcherClosed
	}
}

func (d *dispatcher) stop() {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
}
