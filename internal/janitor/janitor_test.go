package janitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_RunsPeriodically(t *testing.T) {
	var n atomic.Int32
	j := New("test", 5*time.Millisecond, logging.Discard(), func(context.Context) { n.Add(1) })

	j.Start()
	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	j.Stop()

	after := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, n.Load(), "task ran after Stop returned")
	assert.False(t, j.Running())
}

func TestJanitor_StartTwiceStopTwice(t *testing.T) {
	j := New("test", time.Hour, logging.Discard(), func(context.Context) {})
	j.Start()
	j.Start()
	assert.True(t, j.Running())
	j.Stop()
	j.Stop()
	assert.False(t, j.Running())
}

func TestJanitor_NonPositiveIntervalDisabled(t *testing.T) {
	j := New("test", 0, logging.Discard(), func(context.Context) {})
	j.Start()
	assert.False(t, j.Running())
	j.Stop()
}

func TestJanitor_StopWaitsForTask(t *testing.T) {
	started := make(chan struct{}, 1)
	var finished atomic.Bool
	j := New("test", time.Millisecond, logging.Discard(), func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		finished.Store(true)
	})

	j.Start()
	<-started
	j.Stop()
	assert.True(t, finished.Load())
}

func TestJanitor_PanicDoesNotKillLoop(t *testing.T) {
	var n atomic.Int32
	j := New("test", 2*time.Millisecond, logging.Discard(), func(context.Context) {
		if n.Add(1) == 1 {
			panic("first run")
		}
	})
	j.Start()
	defer j.Stop()
	require.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, time.Millisecond)
}
