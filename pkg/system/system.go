/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package system lifts a fixed collection of actors, wired together by a
// configurable lossy/duplicating network, into a stateright.StateMachine
// over Snapshot values. It contains no model-checking logic of its own;
// it only enumerates the nondeterministic choices (deliver, drop,
// timeout) that stateright.Checker then explores.
package system

import (
	"fmt"

	stateright "github.com/helofel/stateright"
	"github.com/helofel/stateright/fingerprint"
	"github.com/helofel/stateright/pkg/actor"
)

// timerKey names one armed timer within a Snapshot.
type timerKey struct {
	Actor actor.Id
	Timer actor.TimerId
}

// Snapshot is the composite state the lifted machine operates on: every
// actor's local state, the network modeled as a set of envelopes, and the
// set of currently armed timers.
type Snapshot[Msg comparable, State any] struct {
	ActorStates []State
	Network     []actor.Envelope[Msg]
	Timers      []timerKey
}

// netKey returns a stable identity for an envelope, used both to dedup
// the network-as-set and to keep its encoding order deterministic across
// runs -- map iteration order in Go is randomized, so the set is stored
// as a sorted slice keyed by this string rather than as a Go map.
func netKey[Msg comparable](e actor.Envelope[Msg]) string {
	return fmt.Sprintf("%d>%d:%+v", e.Src, e.Dst, e.Msg)
}

func insertEnvelope[Msg comparable](net []actor.Envelope[Msg], e actor.Envelope[Msg]) []actor.Envelope[Msg] {
	key := netKey(e)
	for i, existing := range net {
		k := netKey(existing)
		if k == key {
			return net
		}
		if k > key {
			out := make([]actor.Envelope[Msg], 0, len(net)+1)
			out = append(out, net[:i]...)
			out = append(out, e)
			out = append(out, net[i:]...)
			return out
		}
	}
	return append(net, e)
}

func insertTimer(timers []timerKey, t timerKey) []timerKey {
	for i, existing := range timers {
		if existing == t {
			return timers
		}
		if existing.Actor > t.Actor || (existing.Actor == t.Actor && existing.Timer > t.Timer) {
			out := make([]timerKey, 0, len(timers)+1)
			out = append(out, timers[:i]...)
			out = append(out, t)
			out = append(out, timers[i:]...)
			return out
		}
	}
	return append(timers, t)
}

func removeTimer(timers []timerKey, t timerKey) []timerKey {
	out := make([]timerKey, 0, len(timers))
	for _, existing := range timers {
		if existing != t {
			out = append(out, existing)
		}
	}
	return out
}

func cloneStates[State any](states []State) []State {
	out := make([]State, len(states))
	copy(out, states)
	return out
}

// System configures the lifted state machine. In the zero value
// LossyNetwork and DuplicatingNetwork are false; DefaultSystem returns a
// System with both set to true. WithinBoundaryFn nil means every state
// is within boundary.
type System[Msg comparable, State any] struct {
	Actors             []actor.Actor[Msg, State]
	InitNetwork        []actor.Envelope[Msg]
	LossyNetwork       bool
	DuplicatingNetwork bool
	WithinBoundaryFn   func(Snapshot[Msg, State]) bool
	PropertyList       []stateright.Property[stateright.Model[Snapshot[Msg, State]], Snapshot[Msg, State]]
}

// WithinBoundary reports whether s should be expanded, applying the
// configured boundary function or defaulting to "always".
func (sys *System[Msg, State]) WithinBoundary(s Snapshot[Msg, State]) bool {
	if sys.WithinBoundaryFn == nil {
		return true
	}
	return sys.WithinBoundaryFn(s)
}

// Properties returns the properties attached to this System, satisfying
// stateright.Model.
func (sys *System[Msg, State]) Properties() []stateright.Property[stateright.Model[Snapshot[Msg, State]], Snapshot[Msg, State]] {
	return sys.PropertyList
}

// StateMachine returns the stateright.StateMachine this System lifts to,
// satisfying stateright.Model.
func (sys *System[Msg, State]) StateMachine() stateright.StateMachine[Snapshot[Msg, State]] {
	return &liftedMachine[Msg, State]{sys: sys}
}

// liftedMachine implements stateright.StateMachine[Snapshot[Msg, State]].
// It is unexported because it carries no behavior beyond what System
// already configures; callers obtain it via System.StateMachine.
type liftedMachine[Msg comparable, State any] struct {
	sys *System[Msg, State]
}

// Init runs OnStart for every actor in id order, collects the resulting
// outputs into ActorStates and Network, and returns the single initial
// snapshot.
func (m *liftedMachine[Msg, State]) Init(results *stateright.StepVec[Snapshot[Msg, State]]) {
	sys := m.sys
	states := make([]State, len(sys.Actors))
	var network []actor.Envelope[Msg]
	var timers []timerKey

	for i, a := range sys.Actors {
		id := actor.Id(i)
		var out actor.Out[Msg, State]
		a.OnStart(id, &out)
		s, ok := out.State()
		if !ok {
			panic(fmt.Sprintf("system: actor %d's OnStart did not call Out.SetState", id))
		}
		states[i] = s
		network = applyOut(sys, network, id, &out)
		timers = applyTimers(timers, id, &out)
	}
	for _, e := range sys.InitNetwork {
		network = insertEnvelope(network, e)
	}

	*results = append(*results, stateright.Step[Snapshot[Msg, State]]{
		Action: "INIT",
		State:  Snapshot[Msg, State]{ActorStates: states, Network: network, Timers: timers},
	})
}

func applyOut[Msg comparable, State any](sys *System[Msg, State], network []actor.Envelope[Msg], src actor.Id, out *actor.Out[Msg, State]) []actor.Envelope[Msg] {
	for _, e := range out.Sent() {
		network = insertEnvelope(network, e)
	}
	for _, msg := range out.Broadcasts() {
		for i := range sys.Actors {
			dst := actor.Id(i)
			if dst == src {
				continue
			}
			network = insertEnvelope(network, actor.Envelope[Msg]{Src: src, Dst: dst, Msg: msg})
		}
	}
	return network
}

func applyTimers[Msg, State any](timers []timerKey, id actor.Id, out *actor.Out[Msg, State]) []timerKey {
	for _, t := range out.TimersSet() {
		timers = insertTimer(timers, timerKey{Actor: id, Timer: t})
	}
	for _, t := range out.TimersCanceled() {
		timers = removeTimer(timers, timerKey{Actor: id, Timer: t})
	}
	return timers
}

// Next enumerates, for every envelope, a deliver branch and (if
// LossyNetwork) a drop branch, then a timeout branch for every armed
// timer -- in that fixed order, so BFS discovery order is reproducible.
func (m *liftedMachine[Msg, State]) Next(s Snapshot[Msg, State], results *stateright.StepVec[Snapshot[Msg, State]]) {
	sys := m.sys

	for i, e := range s.Network {
		m.deliver(sys, s, i, e, results)
		if sys.LossyNetwork {
			m.drop(s, i, results)
		}
	}
	for _, t := range s.Timers {
		m.timeout(sys, s, t, results)
	}
}

func (m *liftedMachine[Msg, State]) deliver(sys *System[Msg, State], s Snapshot[Msg, State], idx int, e actor.Envelope[Msg], results *stateright.StepVec[Snapshot[Msg, State]]) {
	var out actor.Out[Msg, State]
	sys.Actors[e.Dst].OnMsg(e.Dst, s.ActorStates[e.Dst], e.Src, e.Msg, &out)

	newStates := cloneStates(s.ActorStates)
	if newState, ok := out.State(); ok {
		newStates[e.Dst] = newState
	}

	newNetwork := s.Network
	if !sys.DuplicatingNetwork {
		newNetwork = removeAt(s.Network, idx)
	}
	newNetwork = applyOut(sys, append([]actor.Envelope[Msg]{}, newNetwork...), e.Dst, &out)

	newTimers := applyTimers(append([]timerKey{}, s.Timers...), e.Dst, &out)

	*results = append(*results, stateright.Step[Snapshot[Msg, State]]{
		Action: "deliver",
		State:  Snapshot[Msg, State]{ActorStates: newStates, Network: newNetwork, Timers: newTimers},
	})
}

func (m *liftedMachine[Msg, State]) drop(s Snapshot[Msg, State], idx int, results *stateright.StepVec[Snapshot[Msg, State]]) {
	*results = append(*results, stateright.Step[Snapshot[Msg, State]]{
		Action: "drop",
		State: Snapshot[Msg, State]{
			ActorStates: s.ActorStates,
			Network:     removeAt(s.Network, idx),
			Timers:      s.Timers,
		},
	})
}

func (m *liftedMachine[Msg, State]) timeout(sys *System[Msg, State], s Snapshot[Msg, State], t timerKey, results *stateright.StepVec[Snapshot[Msg, State]]) {
	var out actor.Out[Msg, State]
	sys.Actors[t.Actor].OnTimeout(t.Actor, s.ActorStates[t.Actor], t.Timer, &out)

	newStates := cloneStates(s.ActorStates)
	if newState, ok := out.State(); ok {
		newStates[t.Actor] = newState
	}
	newNetwork := applyOut(sys, append([]actor.Envelope[Msg]{}, s.Network...), t.Actor, &out)
	newTimers := applyTimers(append([]timerKey{}, s.Timers...), t.Actor, &out)

	*results = append(*results, stateright.Step[Snapshot[Msg, State]]{
		Action: "timeout",
		State:  Snapshot[Msg, State]{ActorStates: newStates, Network: newNetwork, Timers: newTimers},
	})
}

func removeAt[T any](s []T, idx int) []T {
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:idx]...)
	out = append(out, s[idx+1:]...)
	return out
}

// DefaultSystem returns a System with LossyNetwork and DuplicatingNetwork
// both set to true; Go's zero value for a bool field is false, which
// would otherwise silently invert the documented default, so callers
// that want the default network behavior should build on this instead
// of an empty struct literal.
func DefaultSystem[Msg comparable, State any]() *System[Msg, State] {
	return &System[Msg, State]{LossyNetwork: true, DuplicatingNetwork: true}
}

// Fingerprint is a convenience wrapper around fingerprint.Of for a
// Snapshot, used by properties and tests that want a stable key without
// importing the fingerprint package directly.
func Fingerprint[Msg comparable, State any](s Snapshot[Msg, State]) fingerprint.Fingerprint {
	return fingerprint.Of(s)
}
