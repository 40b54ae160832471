package tcpclient

import "sync"

// Dispatcher runs application callbacks outside the socket loop.
// Implementations must run callbacks in submission order.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts an ordinary function to a Dispatcher.
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) {
	f(fn)
}

// SerialDispatcher runs callbacks one at a time on a dedicated goroutine.
// Its queue is unbounded so Dispatch never blocks the caller.
type SerialDispatcher struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// NewSerialDispatcher starts a dispatcher goroutine.
func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues fn. Callbacks submitted after Close are dropped.
func (d *SerialDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting callbacks. Callbacks already queued still run;
// wait on Done to know when the last one has returned.
// Safe to call multiple times.
func (d *SerialDispatcher) Close() {
	d.mu.Lock()
	already := d.closed
	d.closed = true
	d.mu.Unlock()

	if !already {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

// Done is closed once the dispatcher goroutine has exited.
func (d *SerialDispatcher) Done() <-chan struct{} {
	return d.stopped
}

func (d *SerialDispatcher) run() {
	defer close(d.stopped)

	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}
