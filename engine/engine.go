package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samaelod/dronecmd/config"
	"github.com/samaelod/dronecmd/drone"
	"github.com/samaelod/dronecmd/script"
	"github.com/samaelod/dronecmd/types"
)

var ErrBusy = errors.New("a script is already running")

// AllDrones selects every drone in the registry as the run target.
const AllDrones = -1

// Engine connects the operator surface to the drones: it owns the registry,
// the shared log and the single in-flight script run.
type Engine struct {
	Registry *drone.Registry
	Log      *Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	last     script.Report
	lastErr  error
	selected int

	ctx    context.Context
	stop   context.CancelFunc
	slog   *slog.Logger
	cfg    *config.Config
	errors script.ErrorMode
}

// NewEngine dials the fleet and returns an engine ready to run scripts.
func NewEngine(fleet *types.Fleet, cfg *config.Config, logPath string) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	lg := NewLogger(logPath, cfg.LogLines)
	sl := lg.Slog(slog.LevelInfo)

	ctx, stop := context.WithCancel(context.Background())
	reg, err := drone.Dial(ctx, fleet, DroneOptions(cfg, sl))
	if err != nil {
		stop()
		lg.Close()
		return nil, err
	}

	return newEngine(ctx, stop, reg, lg, cfg), nil
}

// NewEngineWithRegistry wraps an existing registry; used by tests and by
// callers that manage their own drones.
func NewEngineWithRegistry(reg *drone.Registry, cfg *config.Config, lg *Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if lg == nil {
		lg = NewLogger("", cfg.LogLines)
	}
	ctx, stop := context.WithCancel(context.Background())
	return newEngine(ctx, stop, reg, lg, cfg)
}

func newEngine(ctx context.Context, stop context.CancelFunc, reg *drone.Registry, lg *Logger, cfg *config.Config) *Engine {
	mode := script.ErrorModePass
	if cfg.ErrorMode == config.ErrorModeCrash {
		mode = script.ErrorModeCrash
	}
	return &Engine{
		Registry: reg,
		Log:      lg,
		selected: AllDrones,
		ctx:      ctx,
		stop:     stop,
		slog:     lg.Slog(slog.LevelInfo),
		cfg:      cfg,
		errors:   mode,
	}
}

// DroneOptions maps the app config onto transport options.
func DroneOptions(cfg *config.Config, log *slog.Logger) drone.Options {
	return drone.Options{
		QueueCap:     cfg.QueueCap,
		SendInterval: cfg.SendInterval(),
		PollInterval: cfg.PollInterval(),
		AckTimeout:   cfg.AckTimeout(),
		Logger:       log,
	}
}

func (e *Engine) Logger() *slog.Logger { return e.slog }

// Select picks the drone used by RunSelected; AllDrones clears it.
func (e *Engine) Select(idx int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = idx
}

func (e *Engine) Selected() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// Run executes src synchronously against target (AllDrones or an index).
// A single-drone run still resolves "k > cmd" lines against the full fleet.
func (e *Engine) Run(ctx context.Context, src string, target int) (script.Report, error) {
	if err := e.checkTarget(target); err != nil {
		return script.Report{}, err
	}
	in := script.NewInterpreter(e.Registry, script.Options{
		ErrorMode:    e.errors,
		LegacyDelay:  e.cfg.LegacyDelay,
		Logger:       e.slog,
		SelectedOnly: target != AllDrones,
		Selected:     target,
	})
	return in.Run(ctx, src)
}

// Start runs src in the background. Only one run may be active; the script
// text is a snapshot taken at call time.
func (e *Engine) Start(src string, target int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrBusy
	}
	if err := e.checkTarget(target); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(e.ctx)
	done := make(chan struct{})
	e.running = true
	e.cancel = cancel
	e.done = done

	if target == AllDrones {
		e.slog.Info("RUN", "target", "all")
	} else {
		e.slog.Info("RUN", "target", target)
	}

	go func() {
		defer close(done)
		defer cancel()

		rep, err := e.Run(ctx, src, target)

		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.last = rep
		e.lastErr = err
		e.mu.Unlock()
	}()

	return nil
}

// StartSelected runs src against the selected drone, or all drones when
// none is selected.
func (e *Engine) StartSelected(src string) error {
	return e.Start(src, e.Selected())
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Wait blocks until the current run, if any, has finished.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// LastReport returns the outcome of the most recent finished run.
func (e *Engine) LastReport() (script.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.lastErr
}

// Stop cancels the running script. Commands already queued keep draining.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		e.slog.Info("run stopped by user")
	}
}

// Close stops any run, closes every drone and flushes the log.
func (e *Engine) Close() {
	e.Stop()
	e.Wait()
	e.stop()
	e.Registry.Close()
	e.Log.Close()
}

// DroneView is a point-in-time summary of one drone for display.
type DroneView struct {
	Index    int
	ID       string
	Remote   string
	Status   types.DroneStatus
	Blocks   int64
	Pending  int
	Response string
	Stats    drone.Stats
}

func (e *Engine) Drones() []DroneView {
	units := e.Registry.Snapshot()
	views := make([]DroneView, 0, len(units))
	for i, u := range units {
		v := DroneView{Index: i, ID: u.ID()}
		if d, ok := u.(*drone.Drone); ok {
			v.Remote = d.RemoteAddr().String()
			v.Status = d.Status()
			v.Blocks = d.Blocks()
			v.Pending = d.Pending()
			v.Response = d.LastResponse()
			v.Stats = d.Stats()
		}
		views = append(views, v)
	}
	return views
}

func (e *Engine) checkTarget(target int) error {
	if target == AllDrones {
		return nil
	}
	if n := e.Registry.Len(); target < 0 || target >= n {
		return fmt.Errorf("run: drone index %d out of range (have %d)", target, n)
	}
	return nil
}
