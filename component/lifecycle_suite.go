package component

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// LifecycleFactory creates a fresh LifecycleComponent for each sub-test
type LifecycleFactory func() LifecycleComponent

// StandardLifecycleTests checks the lifecycle rules every component follows:
// Stop is idempotent and safe before Start, a stopped component can be
// initialized and started again, concurrent Stop calls are safe, and no
// goroutines outlive Stop.
func StandardLifecycleTests(t *testing.T, factory LifecycleFactory) {
	t.Run("StartStop", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("StopWithoutStart", func(t *testing.T) {
		comp := factory()
		assert.NoError(t, comp.Stop(time.Second), "Stop should be safe to call without Start")
	})

	t.Run("DoubleStop", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))
		assert.NoError(t, comp.Stop(5*time.Second))
		assert.NoError(t, comp.Stop(5*time.Second), "Second Stop should be idempotent")
	})

	t.Run("RestartAfterStop", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))
		require.NoError(t, comp.Stop(5*time.Second))

		require.NoError(t, comp.Initialize(), "Initialize should succeed after Stop")
		require.NoError(t, comp.Start(testContext(t)), "Start should succeed after re-initialization")
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("ConcurrentStop", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, comp.Stop(5*time.Second))
			}()
		}
		wg.Wait()
	})

	t.Run("NoLeaks", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		comp := factory()
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))
		require.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("Discoverable", func(t *testing.T) {
		comp := factory()
		meta := comp.Meta()
		assert.NotEmpty(t, meta.Name)
		assert.NotEmpty(t, meta.Type)
		_ = comp.Health()
		_ = comp.DataFlow()
	})
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
