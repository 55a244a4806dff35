package supervisor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shConfig(script string) WorkerConfig {
	return WorkerConfig{Command: "sh", Args: []string{"-c", script}, MaxRuntime: time.Minute}
}

func waitTimeout(t *testing.T, proc Process, d time.Duration) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(d):
		t.Fatal("process did not exit")
		return nil
	}
}

// processAlive treats zombies as dead: an orphan may wait a while for init
// to reap it.
func processAlive(pid int) bool {
	if syscall.Kill(pid, 0) != nil {
		return false
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return true
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) == 0 || fields[0] != "Z"
}

func TestExecRunner_Start(t *testing.T) {
	runner := NewExecRunner()

	t.Run("starts simple command", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), shConfig("echo hello"))
		require.NoError(t, err)
		assert.Greater(t, proc.PID(), 0)

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(output))

		assert.NoError(t, proc.Wait())
	})

	t.Run("passes arguments without a shell", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), WorkerConfig{
			Command: "echo",
			Args:    []string{"--miner", "aleo1 with space", "$HOME"},
		})
		require.NoError(t, err)

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		assert.Equal(t, "--miner aleo1 with space $HOME\n", string(output))
		proc.Wait()
	})

	t.Run("passes environment and dir", func(t *testing.T) {
		dir := t.TempDir()
		cfg := shConfig("echo $MINER_TEST_VAR; pwd").WithDir(dir).WithEnv(map[string]string{"MINER_TEST_VAR": "test_value"})

		proc, err := runner.Start(context.Background(), cfg)
		require.NoError(t, err)

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(output)), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "test_value", lines[0])

		want, _ := filepath.EvalSymlinks(dir)
		got, _ := filepath.EvalSymlinks(lines[1])
		assert.Equal(t, want, got)
		proc.Wait()
	})

	t.Run("captures stderr", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), shConfig("echo error >&2"))
		require.NoError(t, err)

		output, err := io.ReadAll(proc.Stderr())
		require.NoError(t, err)
		assert.Contains(t, string(output), "error")
		proc.Wait()
	})

	t.Run("missing executable fails at start", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), WorkerConfig{Command: "/nonexistent/snarkos"})
		require.Error(t, err)
		assert.Nil(t, proc)
	})

	t.Run("exit code", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), shConfig("exit 42"))
		require.NoError(t, err)

		err = proc.Wait()
		require.Error(t, err)
		assert.Equal(t, 42, exitCode(err))
	})
}

func TestExecRunner_SignalReachesProcessGroup(t *testing.T) {
	runner := NewExecRunner()
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	proc, err := runner.Start(context.Background(), shConfig("sleep 30 & echo $! > "+pidFile+"; wait"))
	require.NoError(t, err)

	var childPID int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		childPID, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, proc.Signal(syscall.SIGTERM))

	err = waitTimeout(t, proc, 2*time.Second)
	assert.Equal(t, -int(syscall.SIGTERM), exitCode(err))

	assert.Eventually(t, func() bool { return !processAlive(childPID) }, 2*time.Second, 10*time.Millisecond,
		"grandchild should be signalled with the group")
}

func TestExecRunner_ContextCancelKills(t *testing.T) {
	runner := NewExecRunner()
	ctx, cancel := context.WithCancel(context.Background())

	proc, err := runner.Start(ctx, shConfig("trap '' INT TERM; sleep 30"))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	cancel()

	err = waitTimeout(t, proc, 2*time.Second)
	assert.Equal(t, -int(syscall.SIGKILL), exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(assert.AnError))
}
