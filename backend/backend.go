// Copyright 2024 The Mudcore Authors
// This file is part of Mudcore.
//
// Mudcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Mudcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Mudcore. If not, see <http://www.gnu.org/licenses/>.

// Package backend implements the single-threaded cooperative driver loop
// (§4.9): one iteration per pass, I/O isolated into its own goroutines and
// handed back across a channel, everything else run on the one mutator
// goroutine.
package backend

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mudcore/driver/callout"
	"github.com/mudcore/driver/heartbeat"
	"github.com/mudcore/driver/intern"
	"github.com/mudcore/driver/log"
	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/session"
	"github.com/mudcore/driver/value"
	"github.com/mudcore/driver/vm"
)

// tick is the real-world pacing of one backend iteration, matching the
// original driver's 2-per-second heart-beat/call-out cadence.
const tick = 500 * time.Millisecond

// sweepInterval is how often the periodic clean_up() pass runs across
// every object (§4.9 "periodic sweep every 15 minutes").
const sweepInterval = 15 * time.Minute

// Signal bits, polled once per iteration rather than delivered as Go
// signals directly, so the single mutator goroutine never races on driver
// state (§5 "signal-flag handling").
const (
	SigNone uint32 = iota
	SigShutdown
	SigForceLowEvalCost
)

// Loop owns every scheduling collaborator and drives them forward one tick
// at a time.
type Loop struct {
	Runtime  *object.Runtime
	VM       *vm.VM
	CallOuts *callout.Wheel
	Hearts   *heartbeat.Scheduler
	Sessions *session.Manager

	signal      atomic.Uint32
	lastSweep   time.Time
	loadSamples []float64 // rolling window for query_load_av (§2.3)
}

// New constructs a Loop over already-built collaborators.
func New(rt *object.Runtime, vmachine *vm.VM, calls *callout.Wheel, hearts *heartbeat.Scheduler, sessions *session.Manager) *Loop {
	return &Loop{Runtime: rt, VM: vmachine, CallOuts: calls, Hearts: hearts, Sessions: sessions, lastSweep: time.Now()}
}

// RequestShutdown sets the orderly-shutdown flag, polled at the top of the
// next iteration (§5, the SIGUSR1 analogue).
func (l *Loop) RequestShutdown() { l.signal.Store(SigShutdown) }

// ForceLowEvalCost sets every subsequent top-level call's budget to 1, the
// emergency brake for a runaway mud (§5, the SIGUSR2 analogue).
func (l *Loop) ForceLowEvalCost() { l.signal.Store(SigForceLowEvalCost) }

// Run executes the loop until RequestShutdown is observed or ctx is
// cancelled. Network I/O runs on goroutines owned by Sessions; Run itself
// never blocks on a socket read/write, only on the per-iteration select with
// a bounded timeout (§4.9 step "select with timeout").
func (l *Loop) Run(ctx context.Context) error {
	group, ioCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return l.Sessions.Serve(ioCtx) })

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		// 1: shutdown check
		if l.signal.Load() == SigShutdown {
			log.Info("backend: orderly shutdown requested")
			l.drainAndStop()
			return group.Wait()
		}
		select {
		case <-ctx.Done():
			l.drainAndStop()
			return group.Wait()
		default:
		}

		// 2: apply force-low-eval-cost if it was raised
		if l.signal.Load() == SigForceLowEvalCost {
			l.VM.ForceEvalBudget(1)
		}

		// 3: Phase-B drain — finish reclaiming anything destructed last
		// iteration before starting a new one.
		l.Runtime.DrainPhaseB()

		// 4: reset eval cost for this iteration's top-level work
		l.VM.ResetEvalCost()

		// 5-6: wait for input or the tick deadline, whichever comes first —
		// actual socket readiness is delivered back from the session
		// package's own goroutines via Sessions.Pending(); the ticker alone
		// bounds how long one iteration can idle.
		select {
		case <-ticker.C:
		case <-ctx.Done():
			l.drainAndStop()
			return group.Wait()
		}

		// 7: process ready input
		for _, sess := range l.Sessions.Pending() {
			if err := l.Sessions.ProcessInput(sess); err != nil {
				log.Warn("backend: session input error", "session", sess.ID, "err", err)
			}
		}

		// 8-9: command-turn grant and round-robin pump (§8 invariant 8).
		l.Sessions.GrantCommandTurns()
		l.Sessions.PumpCommands(l.dispatchCommand)

		// 10: heart-beat / call-out / periodic sweep
		l.fireHeartBeats()
		l.fireCallOuts()
		if time.Since(l.lastSweep) >= sweepInterval {
			l.sweep()
			l.lastSweep = time.Now()
		}

		l.Sessions.Flush()
		l.updateLoadAverage()
	}
}

func (l *Loop) drainAndStop() {
	l.Runtime.DrainPhaseB()
	l.Sessions.CloseAll()
}

// dispatchCommand is the verb-dispatch entry point handed to Sessions (§4.11):
// walk giver's sentence list for a matching verb and apply its bound
// function, passing the remainder of the line as a single string argument
// (the original driver's add_action convention never splits the argument
// text itself — that is left to the action function).
func (l *Loop) dispatchCommand(giver *object.Object, line string) {
	verb, rest := splitVerb(line)
	for s := giver.Sentences; s != nil; s = s.Next {
		if s.Verb == nil || !matchVerb(s, verb) {
			continue
		}
		handled, err := l.callSentence(s, rest)
		if err != nil {
			log.Warn("backend: verb dispatch error", "verb", verb, "err", err)
			continue
		}
		if handled {
			return
		}
	}
	l.Sessions.Tell(giver, "What?\n")
}

func splitVerb(line string) (verb, rest string) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 2)
	verb = parts[0]
	if len(parts) == 2 {
		rest = parts[1]
	}
	return verb, rest
}

// matchVerb implements the two sentence flavors from §3.8: an exact verb,
// or (when Short is set) any input verb the sentence's verb is a prefix of.
func matchVerb(s *object.Sentence, verb string) bool {
	bound := intern.String(s.Verb)
	if s.Short {
		return strings.HasPrefix(verb, bound)
	}
	return bound == verb
}

func (l *Loop) callSentence(s *object.Sentence, rest string) (bool, error) {
	args := []value.Value{value.OwnedString(rest)}
	result, handled, err := l.VM.Apply(s.Owner, s.Target, args, false)
	if err != nil || !handled {
		return false, err
	}
	return truthy(result), nil
}

func truthy(val value.Value) bool {
	switch val.Kind() {
	case value.KindUndefined:
		return false
	case value.KindInt:
		return val.Int() != 0
	case value.KindReal:
		return val.Real() != 0
	case value.KindString:
		return val.Str() != ""
	default:
		return true
	}
}

func (l *Loop) fireHeartBeats() {
	for _, due := range l.Hearts.Tick() {
		_, _, err := l.VM.Apply(due.Object, "heart_beat", nil, false)
		if err != nil {
			l.Hearts.Poison(due.Object)
			log.Warn("backend: heart beat poisoned", "object", due.Object.Name(), "err", err)
		}
	}
}

func (l *Loop) fireCallOuts() {
	for _, f := range l.CallOuts.Tick() {
		if f.Target.Owner == nil || f.Target.Owner.Destructed() {
			continue // §4.7 "destructed-target entries silently dropped"
		}
		l.VM.CommandGiver = f.CommandGiver
		if f.Target.FuncPtr != nil {
			if _, err := l.VM.CallFuncPtr(*f.Target.FuncPtr, f.Args); err != nil {
				log.Warn("backend: call-out error", "object", f.Target.Owner.Name(), "err", err)
			}
			continue
		}
		if _, _, err := l.VM.Apply(f.Target.Owner, f.Target.FuncName, f.Args, true); err != nil {
			log.Warn("backend: call-out error", "object", f.Target.Owner.Name(), "fn", f.Target.FuncName, "err", err)
		}
	}
}

// sweep implements the periodic pass (§4.9, §2.3 supplement): every live
// object has clean_up() applied on every sweep, however recently it was
// referenced; its return value is not consulted, and reset() is not applied
// by this pass. An error from clean_up() is logged and otherwise ignored.
func (l *Loop) sweep() {
	for _, raw := range l.Runtime.Objects.AllObjects() {
		obj, ok := raw.(*object.Object)
		if !ok || obj.Destructed() {
			continue
		}
		if _, _, err := l.VM.Apply(obj, "clean_up", nil, false); err != nil {
			log.Debug("backend: clean_up error", "object", obj.Name(), "err", err)
		}
	}
}

// updateLoadAverage implements update_load_av (§2.3 supplement): it appends
// one sample of 1.0 per iteration to a 60-entry rolling window, which
// QueryLoadAv turns into iterations per second using the nominal tick.
// Commands dispatched and compiles are not counted.
func (l *Loop) updateLoadAverage() {
	const window = 60
	l.loadSamples = append(l.loadSamples, 1.0)
	if len(l.loadSamples) > window {
		l.loadSamples = l.loadSamples[len(l.loadSamples)-window:]
	}
}

// QueryLoadAv implements query_load_av() (§2.3 supplement).
func (l *Loop) QueryLoadAv() float64 {
	if len(l.loadSamples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range l.loadSamples {
		sum += s
	}
	return sum / float64(len(l.loadSamples)) / tick.Seconds()
}
