package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLock struct {
	mu       sync.Mutex
	grant    bool
	err      error
	unlocked int
}

func (l *stubLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.grant, l.err
}

func (l *stubLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked++
	return nil
}

func TestManager_RunsImmediatelyThenOnInterval(t *testing.T) {
	m := NewManager(context.Background())
	var runs atomic.Int32
	m.Register(NewFuncJob("counter", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	m.Register(nil)
	assert.Equal(t, []string{"counter"}, m.Jobs())

	m.Start()
	m.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	m.Wait()
	stopped := runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
}

func TestManager_FailingAndPanickingJobsKeepRunning(t *testing.T) {
	m := NewManager(context.Background())
	var failures, panics atomic.Int32
	m.Register(NewFuncJob("fails", 10*time.Millisecond, func(ctx context.Context) error {
		failures.Add(1)
		return errors.New("boom")
	}))
	m.Register(NewFuncJob("panics", 10*time.Millisecond, func(ctx context.Context) error {
		panics.Add(1)
		panic("bad job")
	}))
	m.Start()
	defer func() {
		m.Stop()
		m.Wait()
	}()

	require.Eventually(t, func() bool {
		return failures.Load() >= 2 && panics.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager_IgnoresLateRegistration(t *testing.T) {
	m := NewManager(context.Background())
	m.Start()
	defer func() {
		m.Stop()
		m.Wait()
	}()

	m.Register(NewFuncJob("late", time.Second, func(ctx context.Context) error { return nil }))
	assert.Empty(t, m.Jobs())
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	var runs int
	job := NewFuncJob("guarded", time.Minute, func(ctx context.Context) error {
		runs++
		return nil
	})

	assert.Same(t, job, WithLock(job, nil))

	held := &stubLock{grant: false}
	require.NoError(t, WithLock(job, held).Run(ctx))
	assert.Equal(t, 0, runs)
	assert.Equal(t, 0, held.unlocked)

	broken := &stubLock{err: errors.New("redis down")}
	require.NoError(t, WithLock(job, broken).Run(ctx))
	assert.Equal(t, 0, runs)

	free := &stubLock{grant: true}
	guarded := WithLock(job, free)
	require.NoError(t, guarded.Run(ctx))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, free.unlocked)
	assert.Equal(t, "guarded", guarded.Name())
	assert.Equal(t, time.Minute, guarded.Interval())
}
