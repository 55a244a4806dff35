package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charliek/minerd/internal/constants"
	"github.com/charliek/minerd/internal/domain"
	"github.com/charliek/minerd/internal/logs"
	"github.com/charliek/minerd/internal/update"
)

// WorkerConfig is the immutable description of the worker. Build it with
// Configure; the With* methods return modified copies.
type WorkerConfig struct {
	Command    string
	Args       []string
	MaxRuntime time.Duration
	Dir        string
	Env        map[string]string
}

// Configure validates and returns a worker configuration. It fails with a
// *domain.ConfigError if command is empty or maxRuntime is not positive.
func Configure(command string, args []string, maxRuntime time.Duration) (WorkerConfig, error) {
	cfg := WorkerConfig{
		Command:    command,
		Args:       append([]string(nil), args...),
		MaxRuntime: maxRuntime,
	}
	if err := cfg.validate(); err != nil {
		return WorkerConfig{}, err
	}
	return cfg, nil
}

// WithDir returns a copy running in dir
func (c WorkerConfig) WithDir(dir string) WorkerConfig {
	c.Args = append([]string(nil), c.Args...)
	c.Dir = dir
	return c
}

// WithEnv returns a copy with env added to the inherited environment
func (c WorkerConfig) WithEnv(env map[string]string) WorkerConfig {
	c.Args = append([]string(nil), c.Args...)
	c.Env = make(map[string]string, len(env))
	for k, v := range env {
		c.Env[k] = v
	}
	return c
}

// String renders the command line for logs
func (c WorkerConfig) String() string {
	return strings.Join(append([]string{c.Command}, c.Args...), " ")
}

func (c WorkerConfig) validate() error {
	var problems []string
	if strings.TrimSpace(c.Command) == "" {
		problems = append(problems, "command is required")
	}
	if c.MaxRuntime <= 0 {
		problems = append(problems, fmt.Sprintf("max runtime must be positive, got %s", c.MaxRuntime))
	}
	if len(problems) > 0 {
		return domain.NewConfigError(fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; ")))
	}
	return nil
}

// Options holds the loop's timings and collaborators. Zero values get defaults.
type Options struct {
	GracePeriod         time.Duration
	KillWait            time.Duration
	RestartInterval     time.Duration // zero means no pause; use DefaultOptions for 2s
	StopSignal          os.Signal
	SpawnBackoffInitial time.Duration
	SpawnBackoffMax     time.Duration
	UpdateTimeout       time.Duration

	Updater    update.Checker
	Health     domain.HealthConfig
	Runner     ProcessRunner
	LogManager *logs.Manager
	Logger     *zap.Logger
	Observers  []Observer
}

// DefaultOptions returns the production timings
func DefaultOptions() Options {
	return Options{
		GracePeriod:         constants.DefaultGracePeriod,
		KillWait:            constants.DefaultKillWait,
		RestartInterval:     constants.DefaultRestartInterval,
		StopSignal:          syscall.SIGINT,
		SpawnBackoffInitial: constants.DefaultSpawnBackoffInitial,
		SpawnBackoffMax:     constants.DefaultSpawnBackoffMax,
		UpdateTimeout:       constants.DefaultUpdateTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.GracePeriod <= 0 {
		o.GracePeriod = d.GracePeriod
	}
	if o.KillWait <= 0 {
		o.KillWait = d.KillWait
	}
	if o.RestartInterval < 0 {
		o.RestartInterval = 0
	}
	if o.StopSignal == nil {
		o.StopSignal = d.StopSignal
	}
	if o.SpawnBackoffInitial <= 0 {
		o.SpawnBackoffInitial = d.SpawnBackoffInitial
	}
	if o.SpawnBackoffMax <= 0 {
		o.SpawnBackoffMax = d.SpawnBackoffMax
	}
	if o.UpdateTimeout <= 0 {
		o.UpdateTimeout = d.UpdateTimeout
	}
	if o.Updater == nil {
		o.Updater = update.Noop{}
	}
	if o.Runner == nil {
		o.Runner = NewExecRunner()
	}
	if o.LogManager == nil {
		o.LogManager = logs.NewManager(logs.DefaultManagerConfig())
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Supervisor runs one worker at a time until Shutdown is called.
//
// The loop goroutine in Run is the only code that starts or stops the
// worker. Shutdown only sets a flag and closes a channel.
type Supervisor struct {
	config    WorkerConfig
	opts      Options
	logger    *zap.Logger
	observers observers

	shutdownFlag atomic.Bool
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	forceCh      chan struct{}
	forceOnce    sync.Once
	running      atomic.Bool

	// owned by the loop goroutine
	worker *Worker
	probe  *HealthProbe

	// snapshot for Status, guarded by mu
	mu            sync.RWMutex
	state         domain.State
	startedAt     time.Time
	launches      int
	restarts      int
	spawnFailures int
	current       *domain.RunInfo
	last          *domain.RunInfo
	lastUpdate    *domain.UpdateResult
	currentProbe  *HealthProbe
}

// New creates a supervisor. The configuration is validated by Run.
func New(config WorkerConfig, opts Options) *Supervisor {
	opts = opts.withDefaults()
	return &Supervisor{
		config:     config,
		opts:       opts,
		logger:     opts.Logger,
		observers:  observers(opts.Observers),
		shutdownCh: make(chan struct{}),
		forceCh:    make(chan struct{}),
		state:      domain.StateIdle,
	}
}

// Shutdown requests a permanent stop. Safe to call from any goroutine, any
// number of times, before or during Run.
func (s *Supervisor) Shutdown() {
	s.shutdownFlag.Store(true)
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// ForceShutdown is Shutdown without the grace period: a worker being
// stopped gets SIGKILL right away.
func (s *Supervisor) ForceShutdown() {
	s.Shutdown()
	s.forceOnce.Do(func() {
		s.logger.Warn("forced shutdown, skipping grace period")
		close(s.forceCh)
	})
}

// ShuttingDown reports whether Shutdown was called
func (s *Supervisor) ShuttingDown() bool {
	return s.shutdownFlag.Load()
}

// Run supervises the worker until Shutdown is called or ctx is cancelled,
// then returns nil. The only error it returns is a *domain.ConfigError.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.config.validate(); err != nil {
		return err
	}
	if !s.running.CompareAndSwap(false, true) {
		return domain.NewConfigError(errors.New("supervisor is already running"))
	}

	stop := context.AfterFunc(ctx, s.Shutdown)
	defer stop()

	// loopCtx bounds update checks; worker runs get a context that outlives
	// it so cancellation never bypasses the termination protocol.
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.shutdownCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()
	runParent := context.WithoutCancel(ctx)

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("supervisor started",
		zap.String("command", s.config.String()),
		zap.Duration("max_runtime", s.config.MaxRuntime),
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.SpawnBackoffInitial
	bo.MaxInterval = s.opts.SpawnBackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	for !s.ShuttingDown() {
		s.setState(domain.StateCheckingUpdate)
		s.checkUpdate(loopCtx)
		if s.ShuttingDown() {
			break
		}

		s.setState(domain.StateLaunching)
		w, err := s.launch(runParent)
		if err != nil {
			delay := bo.NextBackOff()
			s.logger.Warn("worker spawn failed, retrying",
				zap.Error(err),
				zap.Duration("backoff", delay),
			)
			if !s.sleep(delay) {
				break
			}
			continue
		}
		bo.Reset()

		s.setState(domain.StateRunning)
		reason := s.wait(w)
		s.stopRun(w, reason)

		if reason == domain.ExitReasonShutdown {
			break
		}

		s.setState(domain.StateIdle)
		if !s.sleep(s.opts.RestartInterval) {
			break
		}
	}

	s.setState(domain.StateStopped)
	s.logger.Info("supervisor stopped")
	return nil
}

// checkUpdate queries the update source. Failures are logged and ignored.
func (s *Supervisor) checkUpdate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.UpdateTimeout)
	defer cancel()

	updated, err := s.opts.Updater.Check(ctx)

	result := &domain.UpdateResult{CheckedAt: time.Now(), Updated: updated}
	switch {
	case err != nil && s.ShuttingDown():
		s.logger.Debug("update check interrupted by shutdown")
	case err != nil:
		result.Error = err.Error()
		s.logger.Warn("update check failed, launching current build", zap.Error(err))
	case updated:
		s.logger.Info("update pulled")
	default:
		s.logger.Debug("no update available")
	}

	s.mu.Lock()
	s.lastUpdate = result
	s.mu.Unlock()

	s.observers.UpdateChecked(updated, err)
}

// launch starts one run of the worker
func (s *Supervisor) launch(parent context.Context) (*Worker, error) {
	runID := uuid.NewString()

	w, err := startWorker(parent, s.opts.Runner, s.config, runID, s.opts.LogManager)
	if err != nil {
		s.mu.Lock()
		s.spawnFailures++
		s.mu.Unlock()
		s.observers.SpawnFailed(err)
		return nil, err
	}

	w.force = s.forceCh

	var probe *HealthProbe
	if s.opts.Health.Enabled() {
		probe = NewHealthProbe(s.opts.Health)
		probe.Start(parent)
	}

	s.worker = w
	s.probe = probe

	run := domain.RunInfo{ID: runID, PID: w.PID(), StartedAt: w.StartedAt()}

	s.mu.Lock()
	if s.launches > 0 {
		s.restarts++
	}
	s.launches++
	s.current = &run
	s.currentProbe = probe
	s.mu.Unlock()

	s.logger.Info("worker started",
		zap.String("run_id", runID),
		zap.Int("pid", run.PID),
	)
	s.observers.WorkerStarted(run)

	return w, nil
}

// wait blocks until the first of: worker exit, max runtime, shutdown, or
// the health probe giving up.
func (s *Supervisor) wait(w *Worker) domain.ExitReason {
	timer := time.NewTimer(s.config.MaxRuntime)
	defer timer.Stop()

	var unhealthy <-chan struct{}
	if s.probe != nil {
		unhealthy = s.probe.Unhealthy()
	}

	select {
	case <-w.Done():
		return domain.ExitReasonExited
	case <-timer.C:
		return domain.ExitReasonMaxRuntime
	case <-s.shutdownCh:
		return domain.ExitReasonShutdown
	case <-unhealthy:
		return domain.ExitReasonUnhealthy
	}
}

// stopRun terminates the worker if it is still alive and releases the handle.
func (s *Supervisor) stopRun(w *Worker, reason domain.ExitReason) {
	log := s.logger.With(zap.String("run_id", w.RunID()), zap.Int("pid", w.PID()))

	if s.probe != nil {
		s.probe.Stop()
	}

	if reason != domain.ExitReasonExited {
		s.setState(domain.StateTerminating)
		log.Info("stopping worker",
			zap.Stringer("reason", reason),
			zap.String("signal", signalName(s.opts.StopSignal)),
		)
		err := w.Terminate(s.opts.StopSignal, s.opts.GracePeriod, s.opts.KillWait)
		var timeout *domain.TerminationTimeoutError
		if errors.As(err, &timeout) {
			log.Warn("worker ignored stop signal", zap.Error(err))
		}
		if !w.Exited() {
			log.Error("worker still alive after SIGKILL, holding restart until it exits")
			select {
			case <-w.Done():
			case <-s.shutdownCh:
			}
		}
	}

	run := domain.RunInfo{
		ID:         w.RunID(),
		PID:        w.PID(),
		StartedAt:  w.StartedAt(),
		EndedAt:    time.Now(),
		ExitCode:   -1,
		ExitReason: reason,
		ForceKill:  w.ForceKilled(),
	}
	if w.Exited() {
		run.ExitCode = w.ExitCode()
	}

	w.release()
	s.worker = nil
	s.probe = nil

	s.mu.Lock()
	s.current = nil
	s.currentProbe = nil
	s.last = &run
	s.mu.Unlock()

	fields := []zap.Field{
		zap.Stringer("reason", reason),
		zap.Int("exit_code", run.ExitCode),
		zap.Duration("ran", run.Duration().Round(time.Millisecond)),
	}
	if reason == domain.ExitReasonExited {
		log.Warn("worker exited on its own, restarting", fields...)
	} else {
		log.Info("worker stopped", fields...)
	}
	s.observers.WorkerExited(run)
}

// sleep waits d or until shutdown. Returns false on shutdown.
func (s *Supervisor) sleep(d time.Duration) bool {
	if s.ShuttingDown() {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.shutdownCh:
		return false
	}
}

func (s *Supervisor) setState(to domain.State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return
	}
	s.logger.Debug("state", zap.Stringer("from", from), zap.Stringer("to", to))
	s.observers.StateChanged(from, to)
}

// State returns the current loop state
func (s *Supervisor) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// WorkerPID returns the pid of the running worker, or 0
func (s *Supervisor) WorkerPID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.PID
}

// Config returns the worker configuration
func (s *Supervisor) Config() WorkerConfig {
	return s.config
}

// Status returns a snapshot of the supervisor
func (s *Supervisor) Status() domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := domain.Status{
		State:         s.state,
		StartedAt:     s.startedAt,
		Launches:      s.launches,
		Restarts:      s.restarts,
		SpawnFailures: s.spawnFailures,
		Health:        domain.HealthStatusDisabled,
	}
	if s.current != nil {
		c := *s.current
		st.Current = &c
	}
	if s.last != nil {
		l := *s.last
		st.Last = &l
	}
	if s.lastUpdate != nil {
		u := *s.lastUpdate
		st.LastUpdate = &u
	}
	switch {
	case s.currentProbe != nil:
		st.Health = s.currentProbe.State().Status
	case s.opts.Health.Enabled():
		st.Health = domain.HealthStatusUnknown
	}
	return st
}
