// Package cli wires configuration, the prompt, the instance lock, the
// supervisor and the optional status API into the minerd command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/charliek/minerd/internal/api"
	"github.com/charliek/minerd/internal/config"
	"github.com/charliek/minerd/internal/constants"
	"github.com/charliek/minerd/internal/daemon"
	"github.com/charliek/minerd/internal/domain"
	"github.com/charliek/minerd/internal/logging"
	"github.com/charliek/minerd/internal/logs"
	"github.com/charliek/minerd/internal/metrics"
	"github.com/charliek/minerd/internal/prompt"
	"github.com/charliek/minerd/internal/supervisor"
	"github.com/charliek/minerd/internal/tui"
	"github.com/charliek/minerd/internal/update"
)

// App runs one minerd instance in Dir
type App struct {
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer

	// Runner overrides the process runner; nil uses supervisor.ExecRunner
	Runner supervisor.ProcessRunner
	// HandleSignals installs SIGINT/SIGTERM/SIGHUP handling
	HandleSignals bool
	// Ready, if set, is called with the supervisor once everything is wired
	Ready func(*supervisor.Supervisor)
}

// NewApp creates an App for the current directory and terminal
func NewApp() (*App, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	return &App{
		Dir:           dir,
		Stdin:         os.Stdin,
		Stdout:        os.Stdout,
		HandleSignals: true,
	}, nil
}

// Run loads configuration, asks for the address and supervises the node
// until shutdown. extra is appended to the node's arguments.
// Configuration problems return a *domain.ConfigError before anything starts.
func (a *App) Run(ctx context.Context, extra []string) error {
	cfg, cfgPath, err := config.LoadFromDir(a.Dir)
	if err != nil {
		return domain.NewConfigError(err)
	}
	configDir := a.Dir
	if cfgPath != "" {
		configDir = filepath.Dir(cfgPath)
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	console := logging.NewRedirect(a.Stdout)
	logger := logging.NewWithWriter(console, level, cfg.Log.File, cfg.Log.JSON)
	defer func() { _ = logger.Sync() }()
	ctx = logging.NewContext(ctx, logger)

	inst, err := daemon.Acquire(a.Dir, cfgPath, logger)
	if err != nil {
		return domain.NewConfigError(err)
	}
	defer func() {
		if err := inst.Close(); err != nil {
			logger.Warn("releasing instance files", zap.Error(err))
		}
	}()

	if res, err := daemon.ReapOrphan(ctx, inst.Previous(), cfg.GracePeriodDuration(), logger); err != nil {
		logger.Warn("stopping orphaned worker", zap.Error(err))
	} else if res != daemon.ReapNone {
		logger.Info("previous worker handled", zap.String("result", string(res)))
	}

	address, err := a.resolveAddress(ctx, cfg)
	if err != nil {
		return err
	}

	env, err := cfg.WorkerEnv(configDir)
	if err != nil {
		return domain.NewConfigError(err)
	}
	workerCfg, err := supervisor.Configure(cfg.Command, cfg.ExpandArgs(address, extra...), cfg.MaxRuntimeDuration())
	if err != nil {
		return err
	}
	workerCfg = workerCfg.WithDir(cfg.WorkDir(configDir)).WithEnv(env)

	logMgr := logs.NewManager(logs.ManagerConfig{
		BufferSize:         constants.DefaultLogBufferSize,
		SubscriptionBuffer: constants.DefaultSubscriptionBuffer,
		Logger:             logger,
	})
	defer logMgr.Close()

	var sup *supervisor.Supervisor
	m := metrics.New(func() int { return sup.WorkerPID() })

	opts := supervisor.DefaultOptions()
	opts.GracePeriod = cfg.GracePeriodDuration()
	opts.RestartInterval = cfg.RestartIntervalDuration()
	opts.StopSignal = cfg.Signal()
	opts.Updater = a.updater(cfg, configDir)
	opts.Health = cfg.ToDomainHealth()
	opts.Runner = a.Runner
	opts.LogManager = logMgr
	opts.Logger = logger
	opts.Observers = []supervisor.Observer{m, inst}
	sup = supervisor.New(workerCfg, opts)

	if a.HandleSignals {
		stop := supervisor.HandleSignals(sup)
		defer stop()
	}

	var server *api.Server
	if cfg.API.Enabled {
		handlers := api.NewHandlers(sup, logMgr, cfgPath, sup.Shutdown, logger)
		server = api.NewServer(api.ServerConfig{
			Host:        cfg.API.Host,
			Port:        cfg.API.Port,
			AuthEnabled: cfg.API.Token != "",
			Token:       cfg.API.Token,
			Gatherer:    m.Registry(),
			Logger:      logger,
		}, handlers)
		if err := server.Listen(); err != nil {
			return domain.NewConfigError(err)
		}
		inst.SetAPIAddr(server.Addr())
	}

	fmt.Fprintln(a.Stdout, a.banner(cfgPath, address, workerCfg, opts, server))

	if a.Ready != nil {
		a.Ready(sup)
	}
	out := output{console: console, json: cfg.Log.JSON}
	if cfg.Dashboard {
		if cfg.Log.JSON || !a.interactive() {
			logger.Warn("dashboard needs a terminal and console logs; printing plain output")
		} else {
			out.dashboard = true
		}
	}
	return a.supervise(ctx, sup, server, logMgr, out)
}

// output selects how worker lines and supervisor logs reach the terminal
type output struct {
	console   *logging.Redirect
	json      bool
	dashboard bool
}

func (a *App) interactive() bool {
	f, ok := a.Stdout.(*os.File)
	return ok && prompt.IsTerminal(a.Stdin) && prompt.IsTerminal(f)
}

// supervise runs the loop alongside the output printer and the API server,
// and returns once the loop has stopped and both are shut down.
func (a *App) supervise(ctx context.Context, sup *supervisor.Supervisor, server *api.Server, logMgr *logs.Manager, out output) error {
	logger := logging.FromContext(ctx)

	// Subscribe before the loop starts so no line of the first run is missed
	var follow func(context.Context) error
	if out.json {
		follow = func(ctx context.Context) error {
			return logMgr.Forward(ctx, logger.Named("worker"))
		}
	} else {
		id, ch, err := logMgr.Subscribe(domain.LogFilter{})
		if err != nil {
			return err
		}
		defer logMgr.Unsubscribe(id)
		follow = func(ctx context.Context) error {
			if out.dashboard {
				a.dashboard(ctx, sup, ch, out.console, logMgr)
			}
			NewLogPrinter(a.Stdout).Follow(ctx, ch)
			return nil
		}
	}

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		return sup.Run(gctx)
	})

	// The printer outlives gctx so the final lines of the last run are shown
	printCtx, stopPrinting := context.WithCancel(logging.NewContext(context.Background(), logger))
	g.Go(func() error {
		<-done
		stopPrinting()
		return nil
	})
	g.Go(func() error {
		return follow(printCtx)
	})

	if server != nil {
		g.Go(func() error {
			if err := server.Start(); err != nil {
				return fmt.Errorf("status API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-done
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	var ce *domain.ConfigError
	if err != nil && !errors.As(err, &ce) {
		logger.Error("minerd stopped with an error", zap.Error(err))
	}
	return err
}

// dashboard runs the full-screen view until the user quits or the loop
// stops. Supervisor logs are shown inside it while it is up. Quitting the
// dashboard shuts the supervisor down.
func (a *App) dashboard(ctx context.Context, sup *supervisor.Supervisor, ch <-chan domain.LogEntry, console *logging.Redirect, logMgr *logs.Manager) {
	prev := console.Set(logMgr.SystemWriter())
	err := tui.Run(ctx, sup, ch, tui.Options{
		Input:  a.Stdin,
		Output: a.Stdout,
		OnQuit: sup.Shutdown,
	})
	console.Set(prev)
	if err != nil {
		logging.FromContext(ctx).Warn("dashboard stopped", zap.Error(err))
	}
}

// resolveAddress returns the configured address or prompts for one
func (a *App) resolveAddress(ctx context.Context, cfg *config.Config) (string, error) {
	if !cfg.NeedsAddress() {
		return cfg.Address, nil
	}
	if cfg.Address != "" {
		return cfg.Address, nil
	}

	res, err := prompt.Ask(ctx, prompt.Options{
		Title:    "Enter your miner address:",
		Default:  constants.DefaultMinerAddress,
		Validate: config.ValidateAddress,
		Input:    a.Stdin,
		Output:   a.Stdout,
	})
	if err != nil {
		if errors.Is(err, domain.ErrPromptAborted) {
			return "", err
		}
		return "", domain.NewConfigError(err)
	}

	logger := logging.FromContext(ctx)
	if res.Defaulted {
		logger.Info("no address entered, using the default", zap.String("address", res.Value))
		if !res.Interactive {
			logger.Warn("stdin is not a terminal; mining to the default address")
		}
	}
	return res.Value, nil
}

func (a *App) updater(cfg *config.Config, configDir string) update.Checker {
	if cfg.Update.Git == nil {
		return update.Noop{}
	}
	git := update.NewGit(cfg.GitPath(configDir), cfg.Update.Git.Remote, cfg.Update.Git.Branch)
	if cfg.Update.Hook == "" {
		return git
	}
	return update.WithHook(git, cfg.Update.Hook, cfg.GitPath(configDir))
}

func (a *App) banner(cfgPath, address string, wc supervisor.WorkerConfig, opts supervisor.Options, server *api.Server) string {
	if cfgPath == "" {
		cfgPath = "(defaults)"
	}
	fields := []prompt.Field{
		{Label: "config", Value: cfgPath},
		{Label: "address", Value: address},
		{Label: "command", Value: wc.String()},
		{Label: "max runtime", Value: wc.MaxRuntime.String()},
		{Label: "grace period", Value: opts.GracePeriod.String()},
	}
	if server != nil {
		fields = append(fields, prompt.Field{Label: "status api", Value: "http://" + server.Addr()})
	}
	return prompt.Banner("minerd "+Version, fields)
}
