package orchestrator

import "time"

// ensureClockLocked starts the clock goroutine if it is not running
// (must hold lock).
func (o *Orchestrator) ensureClockLocked() {
	if o.cfg.ManualClock || o.closed || o.clockStop != nil {
		return
	}

	stop := make(chan struct{})
	o.clockStop = stop
	o.wg.Add(1)
	go o.runClock(stop)
	o.logger.Debug("clock started")
}

// stopClockLocked signals the clock goroutine to exit (must hold lock). It
// is called from inside a tick, so it must not wait for the goroutine.
func (o *Orchestrator) stopClockLocked() {
	if o.clockStop == nil {
		return
	}
	close(o.clockStop)
	o.clockStop = nil
	o.logger.Debug("clock stopped")
}

func (o *Orchestrator) runClock(stop chan struct{}) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.runTick(stop)
		}
	}
}

// ClockRunning reports whether the background clock is active.
func (o *Orchestrator) ClockRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.clockStop != nil
}
