package script

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/samaelod/dronecmd/drone"
	"github.com/samaelod/dronecmd/types"
)

type ErrorMode int

const (
	// ErrorModePass records line errors and keeps running.
	ErrorModePass ErrorMode = iota
	// ErrorModeCrash stops the run at the first line error.
	ErrorModeCrash
)

type Options struct {
	ErrorMode   ErrorMode
	LegacyDelay bool
	Logger      *slog.Logger

	// SelectedOnly restricts the run to drone Selected. Broadcasts and
	// awaits reach only that drone, and "k > cmd" lines go out only when k
	// is Selected. Indices keep their fleet meaning.
	SelectedOnly bool
	Selected     int
}

// Report summarises one run.
type Report struct {
	Lines    int
	Commands int // commands enqueued, counted per drone
	Delays   int
	Barriers int
	Skipped  int
	Errors   []error
	Elapsed  time.Duration
}

// Interpreter executes scripts against a registry of drones.
type Interpreter struct {
	reg  *drone.Registry
	opts Options
	log  *slog.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewInterpreter(reg *drone.Registry, opts Options) *Interpreter {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Interpreter{
		reg:   reg,
		opts:  opts,
		log:   log,
		sleep: sleepCtx,
	}
}

// Run parses src and executes it once. In pass mode the returned error is
// only ever a context error; line failures are collected in the report.
func (in *Interpreter) Run(ctx context.Context, src string) (Report, error) {
	start := time.Now()
	rep := Report{}

	prog, perrs := Parse(src, ParseOptions{LegacyDelay: in.opts.LegacyDelay})
	bad := make(map[int]error, len(perrs))
	for _, err := range perrs {
		if le, ok := err.(*LineError); ok {
			bad[le.Line] = le
		}
	}

	in.log.Info("run started", "drones", in.reg, "instructions", len(prog), "parse_errors", len(perrs))

	next := 0
	lines := len(prog) + len(perrs)
	for line := 1; line <= lines; line++ {
		if err := ctx.Err(); err != nil {
			return in.finish(rep, start, err)
		}
		rep.Lines++

		if err, ok := bad[line]; ok {
			in.log.Warn("line skipped", "err", err)
			rep.Errors = append(rep.Errors, err)
			if in.opts.ErrorMode == ErrorModeCrash {
				return in.finish(rep, start, err)
			}
			continue
		}

		ins := prog[next]
		next++

		errs, err := in.exec(ctx, ins, &rep)
		if err != nil {
			return in.finish(rep, start, err)
		}
		for _, e := range errs {
			le := &LineError{Line: ins.Line, Text: ins.Payload, Err: e}
			in.log.Warn("line failed", "err", le)
			rep.Errors = append(rep.Errors, le)
			if in.opts.ErrorMode == ErrorModeCrash {
				return in.finish(rep, start, le)
			}
		}
	}

	return in.finish(rep, start, nil)
}

func (in *Interpreter) finish(rep Report, start time.Time, err error) (Report, error) {
	rep.Elapsed = time.Since(start)
	if err != nil {
		in.log.Warn("run aborted", "lines", rep.Lines, "err", err)
		return rep, err
	}
	in.log.Info("run finished", "lines", rep.Lines, "commands", rep.Commands, "errors", len(rep.Errors), "elapsed", rep.Elapsed.Round(time.Millisecond))
	return rep, nil
}

// exec runs one instruction. Enqueue failures are returned as the first
// value; the second is a context error that ends the run.
func (in *Interpreter) exec(ctx context.Context, ins Instruction, rep *Report) ([]error, error) {
	switch ins.Kind {
	case KindSkip:
		rep.Skipped++

	case KindDelay:
		rep.Delays++
		in.log.Debug("delay", "line", ins.Line, "for", ins.Delay)
		if err := in.sleep(ctx, ins.Delay); err != nil {
			return nil, err
		}

	case KindBarrier:
		rep.Barriers++
		in.log.Debug("await", "line", ins.Line)
		var errs []error
		for _, u := range in.scope() {
			if err := u.AwaitBlocks(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				errs = append(errs, err)
			}
		}
		return errs, nil

	case KindTargeted:
		if in.opts.SelectedOnly && ins.Index != in.opts.Selected {
			in.log.Debug("target not selected", "line", ins.Line, "index", ins.Index, "selected", in.opts.Selected)
			return nil, nil
		}
		u, ok := in.reg.Get(ins.Index)
		if !ok {
			in.log.Debug("target out of range", "line", ins.Line, "index", ins.Index, "drones", in.reg.Len())
			return nil, nil
		}
		if ins.Payload == "" {
			rep.Skipped++
			return nil, nil
		}
		if err := u.AddCommand(types.Command{Text: ins.Payload, Blocking: ins.Blocking}); err != nil {
			return []error{err}, nil
		}
		rep.Commands++

	case KindBroadcast:
		if ins.Payload == "" {
			rep.Skipped++
			return nil, nil
		}
		var errs []error
		for _, u := range in.scope() {
			if err := u.AddCommand(types.Command{Text: ins.Payload, Blocking: ins.Blocking}); err != nil {
				errs = append(errs, err)
				continue
			}
			rep.Commands++
		}
		return errs, nil

	default:
		return []error{fmt.Errorf("%w: unknown instruction kind %d", ErrParse, ins.Kind)}, nil
	}

	return nil, nil
}

// scope returns the drones broadcasts and awaits apply to, in registry order.
func (in *Interpreter) scope() []drone.Unit {
	if !in.opts.SelectedOnly {
		return in.reg.Snapshot()
	}
	if u, ok := in.reg.Get(in.opts.Selected); ok {
		return []drone.Unit{u}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
