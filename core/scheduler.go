package core

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"time"

	"github.com/nexusauora-eng/Jade/perf"
	"github.com/nexusauora-eng/Jade/state"
)

// Env is the execution environment of a single node. Every function sent through DispatchChannel runs on the
// node's main loop, one at a time, and is the only code allowed to touch the node's routing state.
type Env struct {
	DispatchChannel chan func(*Node) error
	Context         context.Context
	Cancel          context.CancelCauseFunc
	Log             *slog.Logger
}

func newEnv(parent context.Context, log *slog.Logger) *Env {
	ctx, cancel := context.WithCancelCause(parent)
	return &Env{
		DispatchChannel: make(chan func(*Node) error, state.DispatchBuffer),
		Context:         ctx,
		Cancel:          cancel,
		Log:             log,
	}
}

// Dispatch Dispatches the function to run on the main thread without waiting for it to complete.
// It returns false if the node stopped before the function could be queued.
func (e *Env) Dispatch(fun func(*Node) error) bool {
	select {
	case e.DispatchChannel <- fun:
		return true
	case <-e.Context.Done():
		return false
	}
}

// DispatchWait Dispatches the function to run on the main thread and wait for it to complete.
// ctx bounds the wait of the caller, the node's own context bounds the dispatch.
func DispatchWait[T any](ctx context.Context, e *Env, fun func(*Node) (T, error)) (T, error) {
	ret := make(chan state.Pair[T, error], 1)
	wrapped := func(n *Node) error {
		res, err := fun(n)
		ret <- state.Pair[T, error]{V1: res, V2: err}
		return nil
	}
	var zero T
	select {
	case e.DispatchChannel <- wrapped:
	case <-e.Context.Done():
		return zero, fmt.Errorf("%w: %w", state.ErrNodeStopped, context.Cause(e.Context))
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case res := <-ret:
		return res.V1, res.V2
	case <-e.Context.Done():
		return zero, fmt.Errorf("%w: %w", state.ErrNodeStopped, context.Cause(e.Context))
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// RepeatTask runs fun on the calling goroutine every delay until the node stops.
func (e *Env) RepeatTask(fun func() error, delay time.Duration) {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := fun(); err != nil {
				e.Log.Debug("repeated task failed", "error", err)
			}
		case <-e.Context.Done():
			return
		}
	}
}

// MainLoop runs dispatched functions until the node's context is cancelled. A panicking or failing
// function stops this node only.
func MainLoop(n *Node) {
	e := n.Env
	e.Log.Debug("started main loop")
	for {
		select {
		case fun := <-e.DispatchChannel:
			start := time.Now()
			err := runDispatched(n, fun)
			if err != nil {
				e.Log.Error("error occurred during dispatch: ", "error", err)
				e.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if n.metrics != nil {
				n.metrics.RecordDispatch(string(n.id), elapsed)
			}
			if elapsed > state.SlowDispatchThreshold {
				e.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(e.DispatchChannel))
			}
		case <-e.Context.Done():
			e.Log.Debug("stopped main loop", "reason", context.Cause(e.Context).Error())
			return
		}
	}
}

func runDispatched(n *Node, fun func(*Node) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fun(n)
}
