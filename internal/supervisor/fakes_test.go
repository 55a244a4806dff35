package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charliek/minerd/internal/domain"
)

// fakeProcess is an in-memory worker. It exits on any signal unless
// ignoreStop is set, in which case only SIGKILL ends it. With ignoreKill
// nothing but exit ends it.
type fakeProcess struct {
	pid        int
	ignoreStop bool
	ignoreKill bool

	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	exited   chan struct{}
	exitOnce sync.Once
	onExit   func()

	mu      sync.Mutex
	signals []os.Signal
}

func newFakeProcess(pid int, ignoreStop bool, onExit func()) *fakeProcess {
	p := &fakeProcess{pid: pid, ignoreStop: ignoreStop, exited: make(chan struct{}), onExit: onExit}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()

	switch {
	case p.ignoreKill:
	case sig == syscall.SIGKILL || !p.ignoreStop:
		p.exit()
	}
	return nil
}

func (p *fakeProcess) Stdout() io.ReadCloser { return p.stdoutR }
func (p *fakeProcess) Stderr() io.ReadCloser { return p.stderrR }

func (p *fakeProcess) exit() {
	p.exitOnce.Do(func() {
		p.stdoutW.Close()
		p.stderrW.Close()
		if p.onExit != nil {
			p.onExit()
		}
		close(p.exited)
	})
}

func (p *fakeProcess) Signals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}

// fakeRunner hands out fakeProcesses and tracks how many are alive.
type fakeRunner struct {
	mu         sync.Mutex
	procs      []*fakeProcess
	failFirst  int           // number of initial Start calls that fail
	alwaysFail bool
	exitAfter  time.Duration // > 0: processes exit on their own
	ignoreStop bool
	ignoreKill bool

	attempts  atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func (r *fakeRunner) Start(_ context.Context, config WorkerConfig) (Process, error) {
	n := int(r.attempts.Add(1))
	if r.alwaysFail || n <= r.failFirst {
		return nil, fmt.Errorf("exec: %q: %w", config.Command, os.ErrNotExist)
	}

	active := r.active.Add(1)
	for {
		maxActive := r.maxActive.Load()
		if active <= maxActive || r.maxActive.CompareAndSwap(maxActive, active) {
			break
		}
	}

	p := newFakeProcess(1000+n, r.ignoreStop, func() { r.active.Add(-1) })
	p.ignoreKill = r.ignoreKill

	r.mu.Lock()
	r.procs = append(r.procs, p)
	r.mu.Unlock()

	if r.exitAfter > 0 {
		time.AfterFunc(r.exitAfter, p.exit)
	}
	return p, nil
}

func (r *fakeRunner) Procs() []*fakeProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeProcess(nil), r.procs...)
}

func (r *fakeRunner) Launches() int {
	return len(r.Procs())
}

// recordingObserver captures every event.
type recordingObserver struct {
	mu           sync.Mutex
	states       []domain.State
	started      []domain.RunInfo
	exited       []domain.RunInfo
	spawnErrors  []error
	updateErrors []error
	updates      int
}

func (o *recordingObserver) StateChanged(_, to domain.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, to)
}

func (o *recordingObserver) WorkerStarted(run domain.RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, run)
}

func (o *recordingObserver) WorkerExited(run domain.RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exited = append(o.exited, run)
}

func (o *recordingObserver) SpawnFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spawnErrors = append(o.spawnErrors, err)
}

func (o *recordingObserver) UpdateChecked(_ bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates++
	if err != nil {
		o.updateErrors = append(o.updateErrors, err)
	}
}

func (o *recordingObserver) States() []domain.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.State(nil), o.states...)
}

func (o *recordingObserver) Exited() []domain.RunInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.RunInfo(nil), o.exited...)
}

func (o *recordingObserver) SpawnErrors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.spawnErrors...)
}

func (o *recordingObserver) UpdateErrors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.updateErrors...)
}

var errUpdateFailed = errors.New("remote unreachable")
