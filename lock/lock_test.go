package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// LOCAL
// =============================================================================

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal()
	var (
		active, maxActive int32
		wg                sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "emp-1:personal")
			require.NoError(t, err)
			defer release()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Zero(t, l.Held("emp-1:personal"))
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	r1, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r2, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	r2()
}

func TestLocal_ContextCancel(t *testing.T) {
	l := NewLocal()
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Held("k"))

	release()
	release() // idempotent
	assert.Zero(t, l.Held("k"))
}

// =============================================================================
// REDIS
// =============================================================================

func newTestRedis(t *testing.T) (*Redis, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	r := NewRedis(db, 5*time.Second)
	r.retry = time.Millisecond
	r.newToken = func() string { return "tok" }
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return r, mock
}

func TestRedis_LockAndRelease(t *testing.T) {
	r, mock := newTestRedis(t)
	mock.ExpectSetNX("lock:emp-1:sick", "tok", 5*time.Second).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"lock:emp-1:sick"}, "tok").SetVal(int64(1))

	release, err := r.Lock(context.Background(), "emp-1:sick")
	require.NoError(t, err)
	release()
}

func TestRedis_RetriesUntilFree(t *testing.T) {
	r, mock := newTestRedis(t)
	mock.ExpectSetNX("lock:k", "tok", 5*time.Second).SetVal(false)
	mock.ExpectSetNX("lock:k", "tok", 5*time.Second).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"lock:k"}, "tok").SetVal(int64(0))

	release, err := r.Lock(context.Background(), "k")
	require.NoError(t, err)
	release() // expired lock only logs
}

func TestRedis_GivesUpWhenContextEnds(t *testing.T) {
	r, mock := newTestRedis(t)
	r.retry = time.Minute
	mock.ExpectSetNX("lock:k", "tok", 5*time.Second).SetVal(false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestRedis_ConnectionError(t *testing.T) {
	r, mock := newTestRedis(t)
	mock.ExpectSetNX("lock:k", "tok", 5*time.Second).SetErr(errors.New("connection refused"))

	_, err := r.Lock(context.Background(), "k")
	assert.ErrorContains(t, err, "connection refused")
}
