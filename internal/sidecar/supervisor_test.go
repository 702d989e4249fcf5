package sidecar

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProcessAlive_TrueForOwnProcess(t *testing.T) {
	assert.True(t, processAlive(os.Getpid()))
}

func TestProcessAlive_FalseForExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	assert.False(t, processAlive(cmd.Process.Pid))
}

func TestMonitor_NoopWhenParentPIDNotConfigured(t *testing.T) {
	log := zap.NewNop().Sugar()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := false
	done := make(chan struct{})
	go func() {
		Monitor(ctx, 0, 10*time.Millisecond, log, func() { called = true })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Monitor with parentPID<=0 must return immediately")
	}
	assert.False(t, called)
}

func TestMonitor_FiresOnceWhenParentExits(t *testing.T) {
	log := zap.NewNop().Sugar()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	parentPID := cmd.Process.Pid

	fired := make(chan struct{}, 1)
	go Monitor(ctx, parentPID, 10*time.Millisecond, log, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected onParentGone to fire after parent process exited")
	}
}

func TestMonitor_StopsOnContextCancel(t *testing.T) {
	log := zap.NewNop().Sugar()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Monitor(ctx, os.Getpid(), 10*time.Millisecond, log, func() {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Monitor must return promptly once ctx is cancelled")
	}
}
