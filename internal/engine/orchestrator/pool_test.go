package orchestrator

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/parablock/internal/core/domain"
)

func TestPool_SingleFlightWithDirtyRerun(t *testing.T) {
	id := domain.NewIdentity("example.com/demo", "Greeting")

	var runs atomic.Int32
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	p := newPool(2, func(domain.Identity) {
		runs.Add(1)
		started <- struct{}{}
		<-release
	})

	p.Submit(id)
	<-started
	assert.True(t, p.InFlight(id))

	// Three notifications during the flight collapse into one rerun.
	p.Submit(id)
	p.Submit(id)
	p.Submit(id)
	release <- struct{}{}

	<-started
	release <- struct{}{}
	p.Wait()

	assert.Equal(t, int32(2), runs.Load())
	assert.False(t, p.InFlight(id))
}

func TestPool_RespectsLimit(t *testing.T) {
	const limit = 2

	var (
		mu      sync.Mutex
		running int
		peak    int
		done    sync.WaitGroup
	)
	p := newPool(limit, func(domain.Identity) {
		defer done.Done()
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
	})

	names := []string{"A", "B", "C", "D", "E", "F"}
	done.Add(len(names))
	for _, name := range names {
		p.Submit(domain.NewIdentity("example.com/demo", name))
	}
	done.Wait()
	p.Wait()

	require.LessOrEqual(t, peak, limit)
	assert.Positive(t, peak)
}

func TestPool_CloseDropsQueuedWork(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var runs atomic.Int32
	p := newPool(1, func(domain.Identity) {
		runs.Add(1)
		started <- struct{}{}
		<-release
	})

	p.Submit(domain.NewIdentity("example.com/demo", "A"))
	<-started
	p.Submit(domain.NewIdentity("example.com/demo", "B"))
	p.Close()
	p.Submit(domain.NewIdentity("example.com/demo", "C"))
	close(release)
	p.Wait()

	assert.Equal(t, int32(1), runs.Load())
}
