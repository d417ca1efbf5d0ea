package conflate

import (
	"context"
	"sync"
	"time"
)

// ByKey adapts a channel of keyed updates into a channel of conflated
// batches without exposing the push/subscribe surface. It creates an
// internal Subject with the given interval, feeds every source item into it,
// and emits the resulting batches on the returned channel.
//
// The output channel is closed after the source closes (or ctx is done) and
// any batch already in flight has been delivered; updates still buffered at
// that point are dropped, matching Dispose semantics. A slow receiver
// backpressures flush delivery, not producers.
func ByKey[K comparable, V any](ctx context.Context, source <-chan Update[K, V], interval time.Duration) (<-chan Batch[K, V], error) {
	subject, err := NewSubject[K, V](interval)
	if err != nil {
		return nil, err
	}

	out := make(chan Batch[K, V], 1)

	var mu sync.Mutex
	closed := false

	subject.Subscribe(func(batch Batch[K, V]) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- batch:
		case <-ctx.Done():
		}
	})

	go func() {
		defer func() {
			subject.Dispose()
			// Taking the lock here waits out an in-flight delivery, so the
			// close below never races a send.
			mu.Lock()
			closed = true
			mu.Unlock()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-source:
				if !ok {
					return
				}
				subject.Push(u.Key, u.Value)
			}
		}
	}()

	return out, nil
}
