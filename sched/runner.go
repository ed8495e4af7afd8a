package sched

import (
	"context"
	"time"

	"pulsecore-go/x/timex"
)

// IdleReporter lets an opportunistic task tell the runner it has no work, so
// the host loop can sleep instead of polling. Purely an efficiency hint; on
// a microcontroller build the loop would use wfi instead.
type IdleReporter interface {
	Idle() bool
}

// Run drives Step until the context is cancelled or the scheduler halts.
// Between dispatches it sleeps up to the earliest pending deadline so the
// pulse task is never late by more than OS timer jitter.
func (s *Scheduler) Run(ctx context.Context) {
	for !s.halted {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.Step()

		if !s.idleLower() {
			continue
		}
		now := s.clock.NowMs()
		if dl, ok := s.NextDeadline(); ok && timex.After(dl, now) {
			wait := time.Duration(dl-now) * time.Millisecond
			if wait > time.Millisecond {
				wait = time.Millisecond
			}
			time.Sleep(wait)
		}
	}
}

func (s *Scheduler) idleLower() bool {
	for _, l := range [2]Level{LevelControl, LevelTransport} {
		if r, ok := s.tasks[l].(IdleReporter); ok && !r.Idle() {
			return false
		}
	}
	return true
}
