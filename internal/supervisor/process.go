package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/charliek/minerd/internal/constants"
	"github.com/charliek/minerd/internal/domain"
	"github.com/charliek/minerd/internal/logs"
)

// Worker is the handle to one run of the node. Only the supervisor loop
// holds it; it is discarded when the run ends.
type Worker struct {
	runID      string
	proc       Process
	startedAt  time.Time
	logManager *logs.Manager

	// cancel releases the run context (health probe, exec safety net)
	cancel context.CancelFunc

	done     chan struct{}
	exitCode int
	waitErr  error

	outputWg sync.WaitGroup

	termOnce    sync.Once
	termErr     error
	termDone    chan struct{}
	forceKilled atomic.Bool

	// force, once closed, cuts the grace period short
	force <-chan struct{}
}

// startWorker launches the process and its output readers and waiter.
func startWorker(ctx context.Context, runner ProcessRunner, config WorkerConfig, runID string, logManager *logs.Manager) (*Worker, error) {
	runCtx, cancel := context.WithCancel(ctx)

	proc, err := runner.Start(runCtx, config)
	if err != nil {
		cancel()
		return nil, &domain.SpawnError{Command: config.Command, Err: err}
	}

	w := &Worker{
		runID:      runID,
		proc:       proc,
		startedAt:  time.Now(),
		logManager: logManager,
		cancel:     cancel,
		done:       make(chan struct{}),
		termDone:   make(chan struct{}),
	}

	w.outputWg.Add(2)
	go func() {
		defer w.outputWg.Done()
		w.readOutput(proc.Stdout(), domain.StreamStdout)
	}()
	go func() {
		defer w.outputWg.Done()
		w.readOutput(proc.Stderr(), domain.StreamStderr)
	}()

	go w.monitor()

	return w, nil
}

// RunID returns the id of this run
func (w *Worker) RunID() string {
	return w.runID
}

// PID returns the worker's process id
func (w *Worker) PID() int {
	return w.proc.PID()
}

// StartedAt returns the launch time
func (w *Worker) StartedAt() time.Time {
	return w.startedAt
}

// Done is closed once the process has exited and its output is drained
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Exited reports whether the process has exited
func (w *Worker) Exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// ExitCode is valid after Done is closed
func (w *Worker) ExitCode() int {
	return w.exitCode
}

// ForceKilled reports whether Terminate had to send SIGKILL
func (w *Worker) ForceKilled() bool {
	return w.forceKilled.Load()
}

// Terminate runs the two-phase stop: sig to the process group, up to grace
// for an exit, then SIGKILL and up to killWait. Only the first call signals;
// later calls wait for it and return the same result.
//
// A *domain.TerminationTimeoutError is returned when SIGKILL was needed.
func (w *Worker) Terminate(sig os.Signal, grace, killWait time.Duration) error {
	w.termOnce.Do(func() {
		defer close(w.termDone)
		w.termErr = w.terminate(sig, grace, killWait)
	})
	<-w.termDone
	return w.termErr
}

func (w *Worker) terminate(sig os.Signal, grace, killWait time.Duration) error {
	if w.Exited() {
		return nil
	}

	if err := w.proc.Signal(sig); err != nil {
		w.system(fmt.Sprintf("%s failed (worker may have already exited): %v", signalName(sig), err))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C:
	case <-w.force:
		w.system("forced stop, skipping the rest of the grace period")
	}

	w.forceKilled.Store(true)
	w.system(fmt.Sprintf("sending SIGKILL to pid %d (no exit %s after %s)", w.PID(), grace, signalName(sig)))
	if err := w.proc.Signal(syscall.SIGKILL); err != nil {
		w.system("SIGKILL failed: " + err.Error())
	}

	select {
	case <-w.done:
	case <-time.After(killWait):
		w.system(fmt.Sprintf("pid %d still running %s after SIGKILL", w.PID(), killWait))
	}

	return &domain.TerminationTimeoutError{PID: w.PID(), Grace: grace}
}

// release cancels the run context. Called by the supervisor when the run is over.
func (w *Worker) release() {
	w.cancel()
}

// monitor waits for the process to exit and drains its output
func (w *Worker) monitor() {
	err := w.proc.Wait()
	w.killGroup()

	outputDone := make(chan struct{})
	go func() {
		w.outputWg.Wait()
		close(outputDone)
	}()

	select {
	case <-outputDone:
	case <-time.After(constants.OutputDrainTimeout):
		// A grandchild still holds the pipes open.
		w.proc.Stdout().Close()
		w.proc.Stderr().Close()
		w.system("output capture timed out (some lines may be missing)")
	}

	w.waitErr = err
	w.exitCode = exitCode(err)
	close(w.done)
}

// killGroup sends SIGKILL to what is left of the worker's process group once
// the leader has been reaped. Background children must not outlive the run.
func (w *Worker) killGroup() {
	err := w.proc.Signal(syscall.SIGKILL)
	if err != nil && !errors.Is(err, unix.ESRCH) && !errors.Is(err, os.ErrProcessDone) {
		w.system("killing leftover process group: " + err.Error())
	}
}

// readOutput copies lines from a stream into the log manager
func (w *Worker) readOutput(r io.ReadCloser, stream domain.Stream) {
	if r == nil {
		return
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, constants.ScannerBufferSize), constants.ScannerMaxBufferSize)

	for scanner.Scan() {
		w.logManager.Write(domain.LogEntry{
			Timestamp: time.Now(),
			RunID:     w.runID,
			Stream:    stream,
			Line:      scanner.Text(),
		})
	}

	if err := scanner.Err(); err != nil && !isClosedErr(err) {
		w.system(fmt.Sprintf("output reader error: %v", err))
	}
}

func (w *Worker) system(line string) {
	w.logManager.Write(domain.LogEntry{
		Timestamp: time.Now(),
		RunID:     w.runID,
		Stream:    domain.StreamSystem,
		Line:      line,
	})
}

func isClosedErr(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

func signalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
	}
	return sig.String()
}
