package xcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitInterruptedCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitInterrupted(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, Interrupted{}))
}

func TestInterruptedIs(t *testing.T) {
	err := fmt.Errorf("run: %w", Interrupted{Signal: syscall.SIGTERM})

	require.ErrorIs(t, err, Interrupted{})
	require.Equal(t, "run: terminated", err.Error())
}

func TestWaitInterruptedSignal(t *testing.T) {
	// Keeps the default SIGTERM action away while the waiter registers.
	guard := make(chan os.Signal, 1)
	signal.Notify(guard, syscall.SIGTERM)
	defer signal.Stop(guard)

	done := make(chan error, 1)
	go func() {
		done <- WaitInterrupted(context.Background())
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			require.ErrorIs(t, err, Interrupted{})
			require.Equal(t, Interrupted{Signal: syscall.SIGTERM}, err)
			return
		case <-ticker.C:
			require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
		}
	}
}
