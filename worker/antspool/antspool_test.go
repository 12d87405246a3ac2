package antspool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwardvaneechoud/Flowfile-sub004/worker"
)

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestSubmitReturnsJobResult(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer p.Release()

	path, err := p.Submit(context.Background(), worker.Job{
		ContentHash: "abc",
		Run: func(ctx context.Context) (string, error) {
			return "abc.sample", nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc.sample", path)
}

func TestSubmitPropagatesJobError(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer p.Release()

	wantErr := errors.New("boom")
	_, err = p.Submit(context.Background(), worker.Job{
		ContentHash: "abc",
		Run: func(ctx context.Context) (string, error) {
			return "", wantErr
		},
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestSubmitRunsConcurrentlyUpToSize(t *testing.T) {
	p, err := New(4)
	require.NoError(t, err)
	defer p.Release()

	var inFlight int32
	var maxObserved int32
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		go func() {
			_, _ = p.Submit(context.Background(), worker.Job{
				ContentHash: "x",
				Run: func(ctx context.Context) (string, error) {
					n := atomic.AddInt32(&inFlight, 1)
					for {
						old := atomic.LoadInt32(&maxObserved)
						if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					atomic.AddInt32(&inFlight, -1)
					return "", nil
				},
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&maxObserved), int32(2))
}

func TestSubmitReturnsWhenContextCancelledBeforeJobFinishes(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	result := make(chan error, 1)
	go func() {
		_, err := p.Submit(ctx, worker.Job{
			ContentHash: "slow",
			Run: func(ctx context.Context) (string, error) {
				close(started)
				<-release
				return "done", nil
			},
		})
		result <- err
	}()

	<-started
	start := time.Now()
	cancel()

	select {
	case err = <-result:
	case <-time.After(time.Second):
		t.Fatal("Submit did not return promptly after context cancellation")
	}
	elapsed := time.Since(start)
	close(release)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, 500*time.Millisecond)
}
