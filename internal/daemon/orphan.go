package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// createTimeSlack is the allowed difference between the recorded worker start
// and the process create time reported by the OS.
const createTimeSlack = 2 * time.Second

// ReapResult describes what ReapOrphan did.
type ReapResult string

const (
	ReapNone     ReapResult = "none"
	ReapStopped  ReapResult = "stopped"
	ReapKilled   ReapResult = "killed"
	ReapMismatch ReapResult = "pid_reused"
)

// ReapOrphan stops a worker recorded in prev whose supervisor is gone.
// The worker's process group gets SIGTERM, then SIGKILL after grace.
// A PID that now belongs to a different process is left alone.
func ReapOrphan(ctx context.Context, prev *State, grace time.Duration, logger *zap.Logger) (ReapResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prev == nil || prev.WorkerPID <= 0 {
		return ReapNone, nil
	}
	pid := prev.WorkerPID
	if !ProcessExists(pid) {
		return ReapNone, nil
	}
	if !sameProcess(ctx, pid, prev.WorkerStartedAt) {
		logger.Info("recorded worker pid belongs to another process, leaving it", zap.Int("pid", pid))
		return ReapMismatch, nil
	}

	logger.Warn("stopping worker left by a previous instance",
		zap.Int("pid", pid),
		zap.String("run_id", prev.RunID),
	)
	if err := signalGroup(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return ReapNone, nil
		}
		return ReapNone, err
	}
	if waitGone(ctx, pid, grace) {
		return ReapStopped, nil
	}

	logger.Warn("orphaned worker ignored SIGTERM, killing", zap.Int("pid", pid))
	if err := signalGroup(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return ReapNone, err
	}
	waitGone(ctx, pid, time.Second)
	return ReapKilled, nil
}

// sameProcess reports whether pid was created at startedAt. Without a
// recorded start time the PID is trusted.
func sameProcess(ctx context.Context, pid int, startedAt time.Time) bool {
	if startedAt.IsZero() {
		return true
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return true
	}
	diff := time.UnixMilli(created).Sub(startedAt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= createTimeSlack
}

// signalGroup signals the process group led by pid, or pid alone when it is
// not a group leader.
func signalGroup(pid int, sig unix.Signal) error {
	if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid {
		return unix.Kill(-pgid, sig)
	}
	return unix.Kill(pid, sig)
}

func waitGone(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		if !alive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return !alive(pid)
		case <-tick.C:
		}
	}
}

// alive treats zombies as gone.
func alive(pid int) bool {
	if !ProcessExists(pid) {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}
