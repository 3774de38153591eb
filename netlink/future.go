package netlink

import (
	"context"
	"sync"
)

// Future is a one-shot holder for the outcome of a request. A timeout is just
// one of the outcomes it can be resolved with.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	res  Result[T]
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Callback returns a callback resolving f. Only the first call has an effect.
func (f *Future[T]) Callback() Callback[T] {
	return func(r Result[T]) {
		f.once.Do(func() {
			f.res = r
			close(f.done)
		})
	}
}

// Done is closed once f has been resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome without blocking; ok is false while f is still
// unresolved.
func (f *Future[T]) Result() (res Result[T], ok bool) {
	select {
	case <-f.done:
		return f.res, true
	default:
		return res, false
	}
}

// Await blocks until f is resolved or ctx is done. Giving up on ctx doesn't
// cancel the request: it still runs to its own timeout.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.res.Value, f.res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
