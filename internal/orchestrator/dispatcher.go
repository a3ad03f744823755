package orchestrator

import (
	"context"
	"errors"
)

// Submit queues a run without waiting for it. Schedules and debounce timers
// use this path; failures are logged only. Requests are dropped when the
// queue is full or the dispatcher has stopped.
func (o *Orchestrator) Submit(req RunRequest) {
	select {
	case <-o.stopCh:
		o.logger.Debug("Dispatcher stopped; dropping run request", "unit_id", req.UnitID, "trigger", req.Trigger)
		return
	default:
	}

	select {
	case o.requests <- req:
	default:
		o.logger.Warn("Run request queue full; dropping request", "unit_id", req.UnitID, "trigger", req.Trigger)
	}
}

// Start launches the dispatcher. Runs it spawns are detached from ctx
// cancellation so shutdown never abandons a write half way through.
func (o *Orchestrator) Start(ctx context.Context) {
	if !o.started.CompareAndSwap(false, true) {
		return
	}
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(o.loopDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stopCh:
				return
			case req := <-o.requests:
				o.inflight.Add(1)
				go func() {
					defer o.inflight.Done()
					o.dispatch(runCtx, req)
				}()
			}
		}
	}()
}

func (o *Orchestrator) dispatch(ctx context.Context, req RunRequest) {
	var err error
	if req.UnitID == "" {
		err = o.RunAll(ctx, req.Trigger)
	} else {
		err = o.RunUnit(ctx, req.UnitID, req.Trigger)
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyRunning) && req.UnitID != "":
		// already logged by RunUnit
	default:
		o.logger.Error("Triggered sync failed", "unit_id", req.UnitID, "trigger", req.Trigger, "error", err)
	}
}

// Stop halts the dispatcher, drops queued requests and waits for in-flight
// runs until ctx is done.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stopOnce.Do(func() { close(o.stopCh) })

	if o.started.Load() {
		select {
		case <-o.loopDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.logger.Warn("Shutdown timed out waiting for in-flight runs")
		return ctx.Err()
	}
}
