package conflate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 50 * time.Millisecond

func collect(t *testing.T, s *Subject[string, int]) <-chan Batch[string, int] {
	t.Helper()
	ch := make(chan Batch[string, int], 64)
	s.Subscribe(func(batch Batch[string, int]) { ch <- batch })
	return ch
}

func waitBatch(t *testing.T, ch <-chan Batch[string, int], timeout time.Duration) Batch[string, int] {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(timeout):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func TestNewSubjectRejectsNonPositiveInterval(t *testing.T) {
	_, err := NewSubject[string, int](0)
	assert.ErrorIs(t, err, ErrNonPositiveInterval)

	_, err = NewSubject[string, int](-time.Second)
	assert.ErrorIs(t, err, ErrNonPositiveInterval)
}

func TestSubjectCoalescesWithinWindow(t *testing.T) {
	s, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	defer s.Dispose()
	ch := collect(t, s)

	s.Push("A", 1)
	s.Push("A", 2)
	s.Push("A", 3)

	batch := waitBatch(t, ch, 5*testInterval)
	require.Len(t, batch, 1)
	assert.Equal(t, Update[string, int]{Key: "A", Value: 3}, batch[0])
}

func TestSubjectMultiKeyBatchComposition(t *testing.T) {
	s, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	defer s.Dispose()
	ch := collect(t, s)

	s.Push("A", 1)
	s.Push("B", 2)
	s.Push("C", 3)

	batch := waitBatch(t, ch, 5*testInterval)
	require.Len(t, batch, 3)
	assert.Equal(t, Update[string, int]{Key: "A", Value: 1}, batch[0])
	assert.Equal(t, Update[string, int]{Key: "B", Value: 2}, batch[1])
	assert.Equal(t, Update[string, int]{Key: "C", Value: 3}, batch[2])
}

func TestSubjectRateBound(t *testing.T) {
	interval := 100 * time.Millisecond
	s, err := NewSubject[string, int](interval)
	require.NoError(t, err)
	defer s.Dispose()

	var batches atomic.Int64
	s.Subscribe(func(Batch[string, int]) { batches.Add(1) })

	// Push at 10x the flush frequency for 5 intervals.
	deadline := time.Now().Add(5 * interval)
	for i := 0; time.Now().Before(deadline); i++ {
		s.Push("A", i)
		time.Sleep(interval / 10)
	}
	time.Sleep(2 * interval)

	got := batches.Load()
	assert.GreaterOrEqual(t, got, int64(2), "expected conflated batches to flow")
	assert.LessOrEqual(t, got, int64(6), "rate bound exceeded: one batch per interval at most")
}

func TestSubjectNoSpuriousFlush(t *testing.T) {
	s, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	defer s.Dispose()
	ch := collect(t, s)

	select {
	case <-ch:
		t.Fatal("batch delivered without any push")
	case <-time.After(4 * testInterval):
	}
}

func TestSubjectWindowAnchoredToFirstPush(t *testing.T) {
	interval := 100 * time.Millisecond
	s, err := NewSubject[string, int](interval)
	require.NoError(t, err)
	defer s.Dispose()
	ch := collect(t, s)

	// A continuous trickle must not starve the flush the way a
	// reset-on-push debounce would.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			s.Push("A", i)
			time.Sleep(interval / 20)
		}
	}()

	start := time.Now()
	batch := waitBatch(t, ch, 5*interval)
	assert.Less(t, time.Since(start), 4*interval)
	require.Len(t, batch, 1)
	assert.Equal(t, "A", batch[0].Key)
}

func TestSubjectDisposeDropsUnflushed(t *testing.T) {
	s, err := NewSubject[string, int](100 * time.Millisecond)
	require.NoError(t, err)
	ch := collect(t, s)

	s.Push("A", 1)
	s.Dispose()

	select {
	case <-ch:
		t.Fatal("batch delivered after dispose")
	case <-time.After(200 * time.Millisecond):
	}

	// Pushing after dispose is accepted without effect.
	s.Push("A", 2)
	s.Dispose() // idempotent

	select {
	case <-ch:
		t.Fatal("batch delivered after dispose")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubjectMulticastFanOut(t *testing.T) {
	s, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	defer s.Dispose()

	ch1 := collect(t, s)
	ch2 := collect(t, s)

	s.Push("X", 9)

	b1 := waitBatch(t, ch1, 5*testInterval)
	b2 := waitBatch(t, ch2, 5*testInterval)
	require.Len(t, b1, 1)
	assert.Equal(t, Update[string, int]{Key: "X", Value: 9}, b1[0])
	// Same read-only batch instance for every subscriber.
	assert.Same(t, &b1[0], &b2[0])

	// Registered after the flush: receives nothing from it.
	ch3 := collect(t, s)
	select {
	case <-ch3:
		t.Fatal("late subscriber observed a past batch")
	case <-time.After(3 * testInterval):
	}
}

func TestSubjectSubscriberIsolation(t *testing.T) {
	var handled atomic.Int64
	s, err := NewSubject(testInterval,
		WithErrorHandler[string, int](func(error) { handled.Add(1) }))
	require.NoError(t, err)
	defer s.Dispose()

	s.Subscribe(func(Batch[string, int]) { panic("bad subscriber") })
	ch := make(chan Batch[string, int], 1)
	s.Subscribe(func(batch Batch[string, int]) { ch <- batch })

	s.Push("A", 1)

	batch := waitBatch(t, ch, 5*testInterval)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(1), handled.Load())
}

func TestSubscriptionCancel(t *testing.T) {
	s, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	defer s.Dispose()

	var canceled atomic.Int64
	sub := s.Subscribe(func(Batch[string, int]) { canceled.Add(1) })
	ch := collect(t, s)

	sub.Cancel()
	sub.Cancel() // idempotent

	s.Push("A", 1)
	waitBatch(t, ch, 5*testInterval)
	assert.Equal(t, int64(0), canceled.Load())
}

func TestSubscriptionCancelFromCallback(t *testing.T) {
	s, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	defer s.Dispose()

	var calls atomic.Int64
	var once sync.Once
	var sub *Subscription[string, int]
	sub = s.Subscribe(func(Batch[string, int]) {
		calls.Add(1)
		once.Do(func() { sub.Cancel() })
	})
	ch := collect(t, s)

	s.Push("A", 1)
	waitBatch(t, ch, 5*testInterval)
	s.Push("A", 2)
	waitBatch(t, ch, 5*testInterval)

	// Removal takes effect from the flush after the one it ran in.
	assert.Equal(t, int64(1), calls.Load())
}

func TestSubscribeAfterDisposeIsInert(t *testing.T) {
	s, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	s.Dispose()

	sub := s.Subscribe(func(Batch[string, int]) { t.Error("inert handle received a batch") })
	require.NotNil(t, sub)
	sub.Cancel() // must not panic

	s.Push("A", 1)
	time.Sleep(3 * testInterval)
}

func TestFlushNowDeliversImmediately(t *testing.T) {
	s, err := NewSubject[string, int](time.Hour)
	require.NoError(t, err)
	defer s.Dispose()
	ch := collect(t, s)

	s.Push("A", 1)
	s.Push("B", 2)
	s.FlushNow()

	batch := waitBatch(t, ch, time.Second)
	require.Len(t, batch, 2)

	// The window ended with the manual flush; no timer fires later.
	s.FlushNow()
	select {
	case <-ch:
		t.Fatal("empty flush delivered a batch")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipeToForwardsUpdates(t *testing.T) {
	upstream, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	defer upstream.Dispose()
	downstream, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	defer downstream.Dispose()

	upstream.PipeTo(downstream)
	ch := collect(t, downstream)

	upstream.Push("A", 1)
	upstream.Push("B", 2)

	batch := waitBatch(t, ch, 10*testInterval)
	require.Len(t, batch, 2)
	assert.Equal(t, Update[string, int]{Key: "A", Value: 1}, batch[0])
	assert.Equal(t, Update[string, int]{Key: "B", Value: 2}, batch[1])
}

func TestSubjectPushDuringDeliveryStartsNextWindow(t *testing.T) {
	s, err := NewSubject[string, int](testInterval)
	require.NoError(t, err)
	defer s.Dispose()

	ch := make(chan Batch[string, int], 8)
	var repushed atomic.Bool
	s.Subscribe(func(batch Batch[string, int]) {
		if repushed.CompareAndSwap(false, true) {
			s.Push("B", 2)
		}
		ch <- batch
	})

	s.Push("A", 1)

	first := waitBatch(t, ch, 5*testInterval)
	require.Len(t, first, 1)
	assert.Equal(t, "A", first[0].Key)

	second := waitBatch(t, ch, 5*testInterval)
	require.Len(t, second, 1)
	assert.Equal(t, "B", second[0].Key)
}
