package loop

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatch_RunsInOrder(t *testing.T) {
	l := New("test", nil)

	var got []int
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Dispatch(func() { got = append(got, i) }))
	}
	l.Shutdown()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatch_DoesNotBlockOnSlowTask(t *testing.T) {
	l := New("test", nil)
	defer l.Shutdown()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, l.Dispatch(func() {
		close(started)
		<-release
	}))
	<-started

	start := time.Now()
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Dispatch(func() {}))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1000, l.Pending())

	close(release)
}

func TestShutdown_DrainsQueue(t *testing.T) {
	l := New("test", nil)

	var ran atomic.Int32
	release := make(chan struct{})
	require.NoError(t, l.Dispatch(func() { <-release }))
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Dispatch(func() { ran.Add(1) }))
	}

	done := make(chan struct{})
	go func() {
		l.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Shutdown returned before the queue drained")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-done
	assert.Equal(t, int32(10), ran.Load())
}

func TestDispatch_AfterShutdown(t *testing.T) {
	l := New("test", nil)
	l.Shutdown()

	assert.ErrorIs(t, l.Dispatch(func() {}), ErrClosed)
	l.Shutdown() // second call is a no-op
}

func TestShutdown_RejectsDispatchFromDrainingTask(t *testing.T) {
	l := New("test", nil)

	var inner error
	var wg sync.WaitGroup
	wg.Add(1)
	release := make(chan struct{})
	require.NoError(t, l.Dispatch(func() {
		<-release
		inner = l.Dispatch(func() {})
		wg.Done()
	}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	l.Shutdown()
	wg.Wait()

	assert.ErrorIs(t, inner, ErrClosed)
}

func TestPanic_IsRecoveredAndLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	l := New("worker", zap.New(core))

	var after atomic.Bool
	require.NoError(t, l.Dispatch(func() { panic("boom") }))
	require.NoError(t, l.Dispatch(func() { after.Store(true) }))
	l.Shutdown()

	assert.True(t, after.Load(), "loop should survive a panicking task")
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "task panicked", entry.Message)
	assert.Equal(t, "worker", entry.LoggerName)
}
