/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package stateright

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/helofel/stateright/fingerprint"
	"github.com/helofel/stateright/pkg/logger"
)

// Status is the terminal or intermediate disposition of a Check call.
type Status int

const (
	// StatusPass means the frontier drained with no Always violation.
	StatusPass Status = iota
	// StatusFail means some Always property was violated.
	StatusFail
	// StatusIncomplete means the bound was exhausted with states still
	// pending expansion.
	StatusIncomplete
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "Pass"
	case StatusFail:
		return "Fail"
	case StatusIncomplete:
		return "Incomplete"
	default:
		return "unknown"
	}
}

// PropertyResult is the per-property outcome attached to a CheckResult.
type PropertyResult struct {
	Kind       PropertyKind
	Violated   bool // Always only
	Satisfied  bool // Sometimes only
	HasWitness bool
	Witness    fingerprint.Fingerprint
}

// CheckResult is returned by Checker.Check.
type CheckResult[S any] struct {
	Status Status

	// Populated when Status == StatusFail.
	FailedProperty string
	Path           []Step[S]

	// Populated when Status == StatusIncomplete.
	FrontierSize int
	VisitedCount int

	Properties map[string]PropertyResult
}

type parentEdge struct {
	parent    fingerprint.Fingerprint
	action    string
	hasParent bool
}

type propState struct {
	kind       PropertyKind
	violated   bool
	satisfied  bool
	hasWitness bool
	witness    fingerprint.Fingerprint
}

// Checker performs a breadth-first exploration of a Model's reachable state
// space, deduplicating by Fingerprint, optionally retaining enough
// information to reconstruct a labeled path to any discovered state.
type Checker[S any] struct {
	model     Model[S]
	sm        StateMachine[S]
	keepPaths KeepPaths
	logger    logger.Logger

	serveStates bool

	frontier []fingerprint.Fingerprint
	pending  map[fingerprint.Fingerprint]S
	visited  map[fingerprint.Fingerprint]struct{}
	retained map[fingerprint.Fingerprint]S // populated only when serveStates
	initial  map[fingerprint.Fingerprint]S // permanently retained for path replay

	sources map[fingerprint.Fingerprint]parentEdge

	properties []Property[Model[S], S]
	propState  map[string]*propState

	generated uint64

	firstFailureProperty string
	firstFailureFP       fingerprint.Fingerprint
	hasFailure           bool
}

// NewChecker builds a Checker for model. log may be nil, in which case a
// logger.NopLogger is used.
func NewChecker[S any](model Model[S], keepPaths KeepPaths, log logger.Logger) *Checker[S] {
	if log == nil {
		log = logger.NopLogger{}
	}
	c := &Checker[S]{
		model:     model,
		sm:        model.StateMachine(),
		keepPaths: keepPaths,
		logger:    log,
		pending:   map[fingerprint.Fingerprint]S{},
		visited:   map[fingerprint.Fingerprint]struct{}{},
		initial:   map[fingerprint.Fingerprint]S{},
		properties: model.Properties(),
		propState:  map[string]*propState{},
	}
	for _, p := range c.properties {
		c.propState[p.Name] = &propState{kind: p.Kind}
	}
	if keepPaths {
		c.sources = map[fingerprint.Fingerprint]parentEdge{}
	}
	c.seedInitialStates()
	return c
}

// EnableServing retains full states (not just fingerprints) for every
// discovered state so an external explorer can look them up after they've
// been expanded. Without this, only fingerprints survive expansion, the
// memory-frugal default.
func (c *Checker[S]) EnableServing() {
	c.serveStates = true
	if c.retained == nil {
		c.retained = map[fingerprint.Fingerprint]S{}
		for fp, s := range c.pending {
			c.retained[fp] = s
		}
	}
}

func (c *Checker[S]) seedInitialStates() {
	var buf StepVec[S]
	c.sm.Init(&buf)
	for _, step := range buf {
		fp := fingerprint.Of(step.State)
		c.initial[fp] = step.State
		if _, seen := c.visited[fp]; seen {
			continue
		}
		c.visited[fp] = struct{}{}
		c.pending[fp] = step.State
		c.frontier = append(c.frontier, fp)
		if c.serveStates {
			c.retained[fp] = step.State
		}
		c.generated++
		c.evaluateProperties(step.State)
	}
}

func (c *Checker[S]) evaluateProperties(s S) {
	fp := fingerprint.Of(s)
	for _, p := range c.properties {
		ps := c.propState[p.Name]
		switch p.Kind {
		case Always:
			if ps.violated {
				continue
			}
			if !p.Cond(c.model, s) {
				ps.violated = true
				ps.hasWitness = true
				ps.witness = fp
				if !c.hasFailure {
					c.hasFailure = true
					c.firstFailureProperty = p.Name
					c.firstFailureFP = fp
					c.logger.Log(logger.LevelError, "property violated", "property", p.Name, "fingerprint", fp)
				}
			}
		case Sometimes:
			if ps.satisfied {
				continue
			}
			if p.Cond(c.model, s) {
				ps.satisfied = true
				ps.hasWitness = true
				ps.witness = fp
				c.logger.Log(logger.LevelInfo, "property witnessed", "property", p.Name, "fingerprint", fp)
			}
		}
	}
}

// Check expands at most bound states (dequeues from the frontier),
// returning Pass once the frontier drains, Fail on the first Always
// violation (expansion halts at that point; other properties' status up to
// that point is still reported), or Incomplete if bound is exhausted first.
// Calling Check again on the same Checker resumes from where it left off.
func (c *Checker[S]) Check(bound int) CheckResult[S] {
	var buf StepVec[S]
	expanded := 0
	for !c.hasFailure && expanded < bound && len(c.frontier) > 0 {
		fp := c.frontier[0]
		c.frontier = c.frontier[1:]
		state, ok := c.pending[fp]
		if !ok {
			// Already expanded via another path to the same fingerprint;
			// nothing further to do.
			continue
		}
		delete(c.pending, fp)
		expanded++

		if !c.model.WithinBoundary(state) {
			continue
		}

		buf.Reset()
		c.sm.Next(state, &buf)
		for _, step := range buf {
			childFP := fingerprint.Of(step.State)
			if _, seen := c.visited[childFP]; seen {
				continue
			}
			c.visited[childFP] = struct{}{}
			c.pending[childFP] = step.State
			c.frontier = append(c.frontier, childFP)
			if c.serveStates {
				c.retained[childFP] = step.State
			}
			if c.keepPaths {
				c.sources[childFP] = parentEdge{parent: fp, action: step.Action, hasParent: true}
			}
			c.generated++
			c.evaluateProperties(step.State)
			if c.hasFailure {
				break
			}
		}
	}

	return c.result()
}

func (c *Checker[S]) result() CheckResult[S] {
	props := make(map[string]PropertyResult, len(c.properties))
	for _, p := range c.properties {
		ps := c.propState[p.Name]
		props[p.Name] = PropertyResult{
			Kind:       p.Kind,
			Violated:   ps.violated,
			Satisfied:  ps.satisfied,
			HasWitness: ps.hasWitness,
			Witness:    ps.witness,
		}
	}

	if c.hasFailure {
		return CheckResult[S]{
			Status:         StatusFail,
			FailedProperty: c.firstFailureProperty,
			Path:           c.pathTo(c.firstFailureFP),
			Properties:     props,
		}
	}
	if len(c.frontier) == 0 {
		return CheckResult[S]{
			Status:     StatusPass,
			Properties: props,
		}
	}
	return CheckResult[S]{
		Status:       StatusIncomplete,
		FrontierSize: len(c.frontier),
		VisitedCount: len(c.visited),
		Properties:   props,
	}
}

// GeneratedCount returns the total number of distinct states discovered so
// far (including initial states), regardless of expansion order.
func (c *Checker[S]) GeneratedCount() uint64 {
	return c.generated
}

// VisitedLen returns the number of distinct fingerprints discovered so
// far, including those still pending expansion.
func (c *Checker[S]) VisitedLen() int {
	return len(c.visited)
}

// StateByFingerprint looks up a retained state. It only returns ok for
// states the Checker still has a live copy of: pending (not yet expanded)
// states always qualify; already-expanded states only qualify when
// EnableServing was called before they were discovered.
func (c *Checker[S]) StateByFingerprint(fp fingerprint.Fingerprint) (S, bool) {
	if c.serveStates {
		s, ok := c.retained[fp]
		return s, ok
	}
	s, ok := c.pending[fp]
	return s, ok
}

// PathTo reconstructs the labeled path from an initial state to fp, for
// any fingerprint the checker has discovered -- not just a property
// witness. It returns ok=false if KeepPaths is off or fp was never
// discovered.
func (c *Checker[S]) PathTo(fp fingerprint.Fingerprint) ([]Step[S], bool) {
	if !c.keepPaths {
		return nil, false
	}
	if _, seen := c.visited[fp]; !seen {
		return nil, false
	}
	return c.pathTo(fp), true
}

// pathTo reconstructs the labeled path from an initial state to fp by
// walking the sources map backwards to collect the chain of
// (action, fingerprint) edges, then replaying the transition relation
// forward from a retained initial state to recover the intermediate S
// values -- a re-expansion cost accepted in exchange for not keeping
// every visited state alive.
func (c *Checker[S]) pathTo(fp fingerprint.Fingerprint) []Step[S] {
	if !c.keepPaths {
		return nil
	}

	type edge struct {
		action string
		fp     fingerprint.Fingerprint
	}
	var chain []edge
	cur := fp
	for {
		if s, ok := c.initial[cur]; ok {
			path := []Step[S]{{Action: "INIT", State: s}}
			current := s
			for i := len(chain) - 1; i >= 0; i-- {
				current = c.advanceAlong(current, chain[i].action, chain[i].fp)
				path = append(path, Step[S]{Action: chain[i].action, State: current})
			}
			return path
		}
		e, ok := c.sources[cur]
		if !ok {
			// No parent recorded and not an initial state: path
			// information was never retained (KeepPaths was off when this
			// state was discovered, or it predates this checker run).
			return nil
		}
		chain = append(chain, edge{action: e.action, fp: cur})
		cur = e.parent
	}
}

// advanceAlong calls Next on from and returns the successor matching action
// and targetFP, panicking if the transition relation is not deterministic
// for replay purposes -- which would itself indicate a StateMachine bug,
// since Next must be pure.
func (c *Checker[S]) advanceAlong(from S, action string, targetFP fingerprint.Fingerprint) S {
	var buf StepVec[S]
	c.sm.Next(from, &buf)
	for _, step := range buf {
		if step.Action == action && fingerprint.Of(step.State) == targetFP {
			return step.State
		}
	}
	panic(fmt.Sprintf("stateright: could not replay transition %q to fingerprint %d; StateMachine.Next is not deterministic", action, targetFP))
}

// AssertProperties returns an error describing every Always violation and
// every undischarged Sometimes property. It does not run further
// exploration; call Check first.
func (c *Checker[S]) AssertProperties() error {
	var msgs []string
	for _, p := range c.properties {
		ps := c.propState[p.Name]
		switch p.Kind {
		case Always:
			if ps.violated {
				msgs = append(msgs, fmt.Sprintf("always %q violated at fingerprint %d", p.Name, ps.witness))
			}
		case Sometimes:
			if !ps.satisfied {
				msgs = append(msgs, fmt.Sprintf("sometimes %q unsatisfied", p.Name))
			}
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.Errorf("property assertions failed: %v", msgs)
}

// AssertExample returns the labeled path to the witness of the named
// Sometimes property, or an error if it is undischarged.
func (c *Checker[S]) AssertExample(name string) ([]Step[S], error) {
	ps, ok := c.propState[name]
	if !ok {
		return nil, errors.Errorf("no such property %q", name)
	}
	if ps.kind != Sometimes {
		return nil, errors.Errorf("property %q is not a sometimes-property", name)
	}
	if !ps.satisfied {
		return nil, errors.Errorf("sometimes property %q has no witness", name)
	}
	return c.pathTo(ps.witness), nil
}

// AssertNoCounterexample returns an error if the named Always property was
// violated.
func (c *Checker[S]) AssertNoCounterexample(name string) error {
	ps, ok := c.propState[name]
	if !ok {
		return errors.Errorf("no such property %q", name)
	}
	if ps.kind != Always {
		return errors.Errorf("property %q is not an always-property", name)
	}
	if ps.violated {
		return errors.Errorf("always property %q violated at fingerprint %d", name, ps.witness)
	}
	return nil
}
