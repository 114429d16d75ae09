/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package stateright

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/helofel/stateright/fingerprint"
	"github.com/helofel/stateright/pkg/logger"
)

type parallelJob[S any] struct {
	fp    fingerprint.Fingerprint
	state S
}

// ParallelChecker is a multi-worker variant of Checker. It shares the
// frontier and visited set across a fixed pool of goroutines rather than
// running BFS in a single loop. It preserves the properties a concurrent
// explorer needs: every newly discovered state is enqueued exactly once,
// the visited set is updated atomically per fingerprint, a property
// violation halts all workers at their next safe point (between state
// expansions), and reconstructed paths are valid transitions but are
// not guaranteed to be the shortest -- unlike Checker, whose single BFS
// loop does guarantee shortest paths. Ties in discovery order across
// workers are resolved arbitrarily, so do not rely on a ParallelChecker
// counterexample being minimal.
type ParallelChecker[S any] struct {
	model     Model[S]
	sm        StateMachine[S]
	keepPaths KeepPaths
	logger    logger.Logger
	workers   int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []parallelJob[S]
	visited map[fingerprint.Fingerprint]struct{}
	initial map[fingerprint.Fingerprint]S
	sources map[fingerprint.Fingerprint]parentEdge

	properties []Property[Model[S], S]
	propState  map[string]*propState

	generated  uint64
	waiting    int
	expanded   int
	bound      int
	hasFailure bool

	firstFailureProperty string
	firstFailureFP       fingerprint.Fingerprint
}

// NewParallelChecker builds a ParallelChecker with the given worker count
// (clamped to at least 1).
func NewParallelChecker[S any](model Model[S], keepPaths KeepPaths, workers int, log logger.Logger) *ParallelChecker[S] {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	pc := &ParallelChecker[S]{
		model:      model,
		sm:         model.StateMachine(),
		keepPaths:  keepPaths,
		logger:     log,
		workers:    workers,
		visited:    map[fingerprint.Fingerprint]struct{}{},
		initial:    map[fingerprint.Fingerprint]S{},
		properties: model.Properties(),
		propState:  map[string]*propState{},
	}
	pc.cond = sync.NewCond(&pc.mu)
	for _, p := range pc.properties {
		pc.propState[p.Name] = &propState{kind: p.Kind}
	}
	if keepPaths {
		pc.sources = map[fingerprint.Fingerprint]parentEdge{}
	}
	pc.seedInitialStates()
	return pc
}

func (pc *ParallelChecker[S]) seedInitialStates() {
	var buf StepVec[S]
	pc.sm.Init(&buf)
	for _, step := range buf {
		fp := fingerprint.Of(step.State)
		pc.initial[fp] = step.State
		if _, seen := pc.visited[fp]; seen {
			continue
		}
		pc.visited[fp] = struct{}{}
		pc.queue = append(pc.queue, parallelJob[S]{fp: fp, state: step.State})
		pc.generated++
		pc.evaluateProperties(step.State)
	}
}

// evaluateProperties must be called with pc.mu held.
func (pc *ParallelChecker[S]) evaluateProperties(s S) {
	fp := fingerprint.Of(s)
	for _, p := range pc.properties {
		ps := pc.propState[p.Name]
		switch p.Kind {
		case Always:
			if ps.violated {
				continue
			}
			if !p.Cond(pc.model, s) {
				ps.violated = true
				ps.hasWitness = true
				ps.witness = fp
				if !pc.hasFailure {
					pc.hasFailure = true
					pc.firstFailureProperty = p.Name
					pc.firstFailureFP = fp
					pc.logger.Log(logger.LevelError, "property violated", "property", p.Name, "fingerprint", fp)
				}
			}
		case Sometimes:
			if ps.satisfied {
				continue
			}
			if p.Cond(pc.model, s) {
				ps.satisfied = true
				ps.hasWitness = true
				ps.witness = fp
				pc.logger.Log(logger.LevelInfo, "property witnessed", "property", p.Name, "fingerprint", fp)
			}
		}
	}
}

// Check runs the worker pool until the shared frontier drains, a bound of
// newly expanded states is exhausted, or an Always property is violated.
func (pc *ParallelChecker[S]) Check(bound int) CheckResult[S] {
	pc.mu.Lock()
	pc.bound = pc.expanded + bound
	pc.waiting = 0
	pc.mu.Unlock()

	ctx := context.Background()
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < pc.workers; i++ {
		g.Go(func() error {
			pc.runWorker()
			return nil
		})
	}
	_ = g.Wait()

	return pc.result()
}

func (pc *ParallelChecker[S]) runWorker() {
	var buf StepVec[S]
	for {
		pc.mu.Lock()
		for len(pc.queue) == 0 && pc.waiting < pc.workers-1 && !pc.hasFailure && pc.expanded < pc.bound {
			pc.waiting++
			pc.cond.Wait()
			pc.waiting--
		}
		if len(pc.queue) == 0 || pc.hasFailure || pc.expanded >= pc.bound {
			// An exited worker stays counted as idle, so the workers it
			// wakes see every other worker idle and exit too.
			pc.waiting++
			pc.mu.Unlock()
			pc.cond.Broadcast()
			return
		}
		job := pc.queue[0]
		pc.queue = pc.queue[1:]
		pc.expanded++
		pc.mu.Unlock()

		if !pc.model.WithinBoundary(job.state) {
			continue
		}

		buf.Reset()
		pc.sm.Next(job.state, &buf)

		pc.mu.Lock()
		for _, step := range buf {
			childFP := fingerprint.Of(step.State)
			if _, seen := pc.visited[childFP]; seen {
				continue
			}
			pc.visited[childFP] = struct{}{}
			pc.generated++
			if pc.keepPaths {
				pc.sources[childFP] = parentEdge{parent: job.fp, action: step.Action, hasParent: true}
			}
			pc.queue = append(pc.queue, parallelJob[S]{fp: childFP, state: step.State})
			pc.evaluateProperties(step.State)
		}
		pc.cond.Broadcast()
		pc.mu.Unlock()
	}
}

func (pc *ParallelChecker[S]) result() CheckResult[S] {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	props := make(map[string]PropertyResult, len(pc.properties))
	for _, p := range pc.properties {
		ps := pc.propState[p.Name]
		props[p.Name] = PropertyResult{
			Kind:       p.Kind,
			Violated:   ps.violated,
			Satisfied:  ps.satisfied,
			HasWitness: ps.hasWitness,
			Witness:    ps.witness,
		}
	}

	if pc.hasFailure {
		return CheckResult[S]{
			Status:         StatusFail,
			FailedProperty: pc.firstFailureProperty,
			Path:           pc.pathToLocked(pc.firstFailureFP),
			Properties:     props,
		}
	}
	if len(pc.queue) == 0 {
		return CheckResult[S]{
			Status:     StatusPass,
			Properties: props,
		}
	}
	return CheckResult[S]{
		Status:       StatusIncomplete,
		FrontierSize: len(pc.queue),
		VisitedCount: len(pc.visited),
		Properties:   props,
	}
}

// GeneratedCount returns the total number of distinct states discovered.
func (pc *ParallelChecker[S]) GeneratedCount() uint64 {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.generated
}

// pathToLocked must be called with pc.mu held.
func (pc *ParallelChecker[S]) pathToLocked(fp fingerprint.Fingerprint) []Step[S] {
	if !pc.keepPaths {
		return nil
	}
	type edge struct {
		action string
		fp     fingerprint.Fingerprint
	}
	var chain []edge
	cur := fp
	for {
		if s, ok := pc.initial[cur]; ok {
			path := []Step[S]{{Action: "INIT", State: s}}
			current := s
			for i := len(chain) - 1; i >= 0; i-- {
				current = pc.advanceAlong(current, chain[i].action, chain[i].fp)
				path = append(path, Step[S]{Action: chain[i].action, State: current})
			}
			return path
		}
		e, ok := pc.sources[cur]
		if !ok {
			return nil
		}
		chain = append(chain, edge{action: e.action, fp: cur})
		cur = e.parent
	}
}

func (pc *ParallelChecker[S]) advanceAlong(from S, action string, targetFP fingerprint.Fingerprint) S {
	var buf StepVec[S]
	pc.sm.Next(from, &buf)
	for _, step := range buf {
		if step.Action == action && fingerprint.Of(step.State) == targetFP {
			return step.State
		}
	}
	panic(fmt.Sprintf("stateright: could not replay transition %q to fingerprint %d; StateMachine.Next is not deterministic", action, targetFP))
}
