package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type results struct {
	mu   sync.Mutex
	errs map[string]error
}

func newResults() *results {
	return &results{errs: map[string]error{}}
}

func (r *results) record(action string, err error) {
	r.mu.Lock()
	r.errs[action] = err
	r.mu.Unlock()
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	res := newResults()
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond, OnResult: res.record})

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "notify", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	}))
	d.Close()

	assert.EqualValues(t, 3, calls.Load())
	assert.Zero(t, d.ErrorCount())
	res.mu.Lock()
	defer res.mu.Unlock()
	assert.Contains(t, res.errs, "notify")
	assert.NoError(t, res.errs["notify"])
}

func TestDispatcherGivesUpOnPermanentErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	res := newResults()
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond, OnResult: res.record})

	var calls atomic.Int32
	boom := errors.New("telegram: chat not found (400)")
	require.NoError(t, d.Enqueue(context.Background(), "notify", "sendMessage", func() error {
		calls.Add(1)
		return boom
	}))
	d.Close()

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, d.ErrorCount())
	res.mu.Lock()
	defer res.mu.Unlock()
	assert.ErrorIs(t, res.errs["notify"], boom)
}

func TestEnqueueAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	d.Close()
	err := d.Enqueue(context.Background(), "notify", "", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), "block", "", func() error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), "queued", "", func() error { return nil }))
	assert.ErrorIs(t, d.Enqueue(context.Background(), "dropped", "", func() error { return nil }), ErrQueueFull)

	close(release)
	d.Close()
}

func TestCanceledUpdateStillDelivers(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	require.NoError(t, d.Enqueue(ctx, "notify", "", func() error {
		ran.Store(true)
		return nil
	}))
	d.Close()
	assert.True(t, ran.Load())
}
