/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package stateright

import (
	"testing"

	"github.com/helofel/stateright/fingerprint"
)

// counterMachine is a minimal StateMachine for exercising the Checker in
// isolation from the actor/system packages: each state branches into
// state+1 ("inc") and state+2 ("skip"), up to a ceiling.
type counterMachine struct {
	ceiling int
}

func (m counterMachine) Init(results *StepVec[int]) {
	*results = append(*results, Step[int]{Action: "INIT", State: 0})
}

func (m counterMachine) Next(state int, results *StepVec[int]) {
	if state+1 <= m.ceiling {
		*results = append(*results, Step[int]{Action: "inc", State: state + 1})
	}
	if state+2 <= m.ceiling {
		*results = append(*results, Step[int]{Action: "skip", State: state + 2})
	}
}

type counterModel struct {
	ceiling    int
	properties []Property[Model[int], int]
}

func (m *counterModel) StateMachine() StateMachine[int] { return counterMachine{ceiling: m.ceiling} }
func (m *counterModel) Properties() []Property[Model[int], int] { return m.properties }
func (m *counterModel) WithinBoundary(int) bool                 { return true }

func newCounterModel(ceiling int, props ...Property[Model[int], int]) *counterModel {
	return &counterModel{ceiling: ceiling, properties: props}
}

func TestCheckerPassesWhenNoViolation(t *testing.T) {
	m := newCounterModel(5, NewAlways[Model[int], int]("nonnegative", func(_ Model[int], s int) bool {
		return s >= 0
	}))
	c := NewChecker[int](m, KeepPathsYes, nil)
	result := c.Check(1000)

	if result.Status != StatusPass {
		t.Fatalf("expected Pass, got %v", result.Status)
	}
	// 0,1,2,3,4,5 reachable via inc/skip combinations: every integer in
	// [0, ceiling] is reachable, so exactly ceiling+1 distinct states.
	if got := c.GeneratedCount(); got != uint64(6) {
		t.Fatalf("expected 6 distinct states, got %d", got)
	}
}

func TestCheckerFailsOnAlwaysViolation(t *testing.T) {
	m := newCounterModel(10, NewAlways[Model[int], int]("below four", func(_ Model[int], s int) bool {
		return s < 4
	}))
	c := NewChecker[int](m, KeepPathsYes, nil)
	result := c.Check(1000)

	if result.Status != StatusFail {
		t.Fatalf("expected Fail, got %v", result.Status)
	}
	if result.FailedProperty != "below four" {
		t.Fatalf("expected failure on 'below four', got %q", result.FailedProperty)
	}
	if len(result.Path) == 0 {
		t.Fatalf("expected a non-empty counterexample path")
	}
	if result.Path[0].State != 0 {
		t.Fatalf("expected path to start from the initial state 0, got %d", result.Path[0].State)
	}
	final := result.Path[len(result.Path)-1].State
	if final < 4 {
		t.Fatalf("expected final state of counterexample path to violate the property, got %d", final)
	}
	// BFS shortest-path: the violation is reachable in exactly 2 steps
	// (0 -> 2 -> 4 via "skip","skip"), so the reported path must have
	// length 3 (including the initial state), not some longer detour.
	if len(result.Path) != 3 {
		t.Fatalf("expected shortest path of length 3, got %d: %+v", len(result.Path), result.Path)
	}
}

func TestCheckerIncompleteWhenBoundExhausted(t *testing.T) {
	m := newCounterModel(1000)
	c := NewChecker[int](m, KeepPathsNo, nil)
	result := c.Check(3)

	if result.Status != StatusIncomplete {
		t.Fatalf("expected Incomplete, got %v", result.Status)
	}
	if result.FrontierSize == 0 {
		t.Fatalf("expected a non-empty frontier when incomplete")
	}
}

func TestCheckerResumesAcrossCalls(t *testing.T) {
	m := newCounterModel(5)
	c := NewChecker[int](m, KeepPathsNo, nil)

	first := c.Check(1)
	if first.Status != StatusIncomplete {
		t.Fatalf("expected first call to be incomplete, got %v", first.Status)
	}
	var last CheckResult[int]
	for i := 0; i < 100 && last.Status != StatusPass; i++ {
		last = c.Check(1)
	}
	if last.Status != StatusPass {
		t.Fatalf("expected eventual Pass after resuming, got %v", last.Status)
	}
}

func TestSometimesPropertyWitnessAndUnsatisfied(t *testing.T) {
	witnessed := NewSometimes[Model[int], int]("reaches five", func(_ Model[int], s int) bool {
		return s == 5
	})
	unsatisfiable := NewSometimes[Model[int], int]("reaches fifty", func(_ Model[int], s int) bool {
		return s == 50
	})
	m := newCounterModel(5, witnessed, unsatisfiable)
	c := NewChecker[int](m, KeepPathsYes, nil)
	result := c.Check(1000)

	if result.Status != StatusPass {
		t.Fatalf("expected Pass, got %v", result.Status)
	}
	if !result.Properties["reaches five"].Satisfied {
		t.Fatalf("expected 'reaches five' to be satisfied")
	}
	if result.Properties["reaches fifty"].Satisfied {
		t.Fatalf("expected 'reaches fifty' to be unsatisfied")
	}

	path, err := c.AssertExample("reaches five")
	if err != nil {
		t.Fatalf("AssertExample: %v", err)
	}
	if path[len(path)-1].State != 5 {
		t.Fatalf("expected witness path to end at 5, got %d", path[len(path)-1].State)
	}

	if _, err := c.AssertExample("reaches fifty"); err == nil {
		t.Fatalf("expected error asserting unsatisfied sometimes-property")
	}
}

func TestPathToTreatsInitialStatesAsParentless(t *testing.T) {
	m := newCounterModel(3)
	c := NewChecker[int](m, KeepPathsYes, nil)
	c.Check(1000)

	path, ok := c.PathTo(fingerprint.Of(0))
	if !ok {
		t.Fatalf("expected the initial state's fingerprint to be reachable")
	}
	if len(path) != 1 || path[0].State != 0 {
		t.Fatalf("expected a one-element path to the initial state, got %+v", path)
	}
}

func TestAssertPropertiesReportsAllFailures(t *testing.T) {
	m := newCounterModel(10,
		NewAlways[Model[int], int]("below four", func(_ Model[int], s int) bool { return s < 4 }),
		NewSometimes[Model[int], int]("reaches nine hundred", func(_ Model[int], s int) bool { return s == 900 }),
	)
	c := NewChecker[int](m, KeepPathsNo, nil)
	c.Check(1000)

	if err := c.AssertProperties(); err == nil {
		t.Fatalf("expected AssertProperties to report the violated always and unsatisfied sometimes")
	}
}
