package idempotency_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"app/internal/idempotency"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_EmptyKeyAlwaysExecutes(t *testing.T) {
	r := idempotency.New(time.Hour)

	var calls int
	for i := 0; i < 3; i++ {
		v, replayed, err := r.Do("", func() (any, error) {
			calls++
			return calls, nil
		})
		assert.NoError(t, err)
		assert.False(t, replayed)
		assert.Equal(t, calls, v)
	}
	assert.Equal(t, 3, calls)
}

func TestRegistry_CachedReplay(t *testing.T) {
	r := idempotency.New(time.Hour)

	var calls int
	fn := func() (any, error) {
		calls++
		return "result", nil
	}

	v, replayed, err := r.Do("k", fn)
	assert.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "result", v)

	v, replayed, err = r.Do("k", fn)
	assert.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "result", v)

	assert.Equal(t, 1, calls)
}

func TestRegistry_ConcurrentSameKey_SingleExecution(t *testing.T) {
	r := idempotency.New(time.Hour)

	var calls int64
	started := make(chan struct{})

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-started
			v, _, err := r.Do("burst", func() (any, error) {
				atomic.AddInt64(&calls, 1)
				//実行中に他のゴルーチンを合流させる
				time.Sleep(20 * time.Millisecond)
				return int64(42), nil
			})
			assert.NoError(t, err)
			assert.Equal(t, int64(42), v)
		}()
	}
	close(started)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestRegistry_FailureNotCached(t *testing.T) {
	r := idempotency.New(time.Hour)

	wantErr := errors.New("boom")
	var calls int

	_, _, err := r.Do("k", func() (any, error) {
		calls++
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	//失敗は残らないので次は再実行される
	v, replayed, err := r.Do("k", func() (any, error) {
		calls++
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestRegistry_TTLExpiry(t *testing.T) {
	r := idempotency.New(10 * time.Millisecond)

	var calls int
	fn := func() (any, error) {
		calls++
		return calls, nil
	}

	_, _, err := r.Do("k", fn)
	assert.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	//TTL切れは新規実行
	v, replayed, err := r.Do("k", fn)
	assert.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, v)
}
