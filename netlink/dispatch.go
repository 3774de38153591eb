package netlink

import "sync"

// Dispatcher runs completion callbacks and notification handlers on behalf of
// the engine. The engine collects the callbacks of a batch while it holds its
// I/O lock and hands them over in one Dispatch call once the lock has been
// released. Each call carries exactly one batch.
type Dispatcher interface {
	Dispatch(batch []func())
}

// InlineDispatcher runs a batch on the goroutine that produced it, in
// submission order.
type InlineDispatcher struct{}

func NewInlineDispatcher() *InlineDispatcher {
	return &InlineDispatcher{}
}

func (d *InlineDispatcher) Dispatch(batch []func()) {
	for _, fn := range batch {
		fn()
	}
}

// QueueDispatcher hands callbacks over to a fixed set of worker goroutines.
// The queue itself is unbounded: the engine's guards bound how much can pile
// up in it.
type QueueDispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
}

// NewQueueDispatcher starts workers goroutines (at least one).
func NewQueueDispatcher(workers int) *QueueDispatcher {
	if workers < 1 {
		workers = 1
	}

	d := &QueueDispatcher{}
	d.cond = sync.NewCond(&d.mu)

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}

	return d
}

func (d *QueueDispatcher) work() {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}

// Dispatch queues the batch. Batches dispatched after Close run on the
// caller's goroutine so that no callback is ever lost.
func (d *QueueDispatcher) Dispatch(batch []func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
		return
	}
	d.queue = append(d.queue, batch...)
	d.mu.Unlock()
	d.cond.Broadcast()
}

// Close stops the workers once the queue has been drained.
func (d *QueueDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
	d.wg.Wait()
}
