package order

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlacementGuard_ExactlyOneCommit(t *testing.T) {
	guard := NewPlacementGuard(time.Minute)

	var commits atomic.Int32
	var executions atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			executed, err := guard.Do(func() error {
				commits.Add(1)
				time.Sleep(10 * time.Millisecond)
				return nil
			})
			require.NoError(t, err)
			if executed {
				executions.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), commits.Load(), "only one goroutine may run the commit")
	assert.Equal(t, int32(1), executions.Load())
}

func TestPlacementGuard_SecondCallIsSilentNoOp(t *testing.T) {
	guard := NewPlacementGuard(time.Minute)

	executed, err := guard.Do(func() error { return nil })
	require.NoError(t, err)
	assert.True(t, executed)

	// Latch is still held by the cooldown.
	executed, err = guard.Do(func() error {
		t.Fatal("commit must not run while latched")
		return nil
	})
	require.NoError(t, err, "a duplicate call is a no-op, not an error")
	assert.False(t, executed)
	assert.True(t, guard.Held())
}

func TestPlacementGuard_ReleasesAfterCooldown(t *testing.T) {
	guard := NewPlacementGuard(20 * time.Millisecond)

	executed, err := guard.Do(func() error { return nil })
	require.NoError(t, err)
	require.True(t, executed)

	assert.Eventually(t, func() bool { return !guard.Held() },
		time.Second, 5*time.Millisecond)

	executed, err = guard.Do(func() error { return nil })
	require.NoError(t, err)
	assert.True(t, executed, "guard must accept a new attempt after the cooldown")
}

func TestPlacementGuard_ZeroCooldownReleasesImmediately(t *testing.T) {
	guard := NewPlacementGuard(0)

	executed, _ := guard.Do(func() error { return nil })
	require.True(t, executed)
	assert.False(t, guard.Held())
}

func TestPlacementGuard_CommitErrorStillReleases(t *testing.T) {
	guard := NewPlacementGuard(0)

	executed, err := guard.Do(func() error { return assert.AnError })
	require.True(t, executed)
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, guard.Held(), "failure releases the latch like success does")
}
