/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package explorer

import (
	"encoding/json"
	"testing"

	stateright "github.com/helofel/stateright"
	"github.com/helofel/stateright/examples/tpc"
	"github.com/helofel/stateright/fingerprint"
)

// TestAdaptServesTheInitialState runs a tiny checker to completion,
// adapts it, and checks that the initial state's fingerprint resolves to
// the right JSON through the Served interface.
func TestAdaptServesTheInitialState(t *testing.T) {
	m := tpc.Model{Sys: tpc.System{RMCount: 2}}
	checker := stateright.NewChecker[tpc.State](m, stateright.KeepPathsYes, nil)
	checker.EnableServing()
	checker.Check(1_000_000)

	var init stateright.StepVec[tpc.State]
	m.StateMachine().Init(&init)
	initFP := fingerprint.Of(init[0].State)

	served := Adapt(checker)

	body, ok := served.StateJSON(initFP)
	if !ok {
		t.Fatalf("expected the initial state to be servable by fingerprint")
	}
	var resp struct {
		Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
		State       tpc.State               `json:"state"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshaling state response: %v", err)
	}
	if resp.Fingerprint != initFP {
		t.Fatalf("expected fingerprint %d, got %d", initFP, resp.Fingerprint)
	}
	for i, rm := range resp.State.RMs {
		if rm != tpc.Working {
			t.Fatalf("expected RM %d to start Working, got %v", i, rm)
		}
	}

	path, ok := served.PathJSON(initFP)
	if !ok {
		t.Fatalf("expected a path to the initial state")
	}
	var pathResp struct {
		Path []stateright.Step[tpc.State] `json:"path"`
	}
	if err := json.Unmarshal(path, &pathResp); err != nil {
		t.Fatalf("unmarshaling path response: %v", err)
	}
	if len(pathResp.Path) != 1 {
		t.Fatalf("expected a one-step path to the initial state, got %d steps", len(pathResp.Path))
	}
}

// TestAdaptUnknownFingerprintIsNotFound checks that a fingerprint never
// produced by the exploration is reported as absent, not zero-valued.
func TestAdaptUnknownFingerprintIsNotFound(t *testing.T) {
	m := tpc.Model{Sys: tpc.System{RMCount: 2}}
	checker := stateright.NewChecker[tpc.State](m, stateright.KeepPathsYes, nil)
	checker.EnableServing()
	checker.Check(1_000_000)

	served := Adapt(checker)
	if _, ok := served.StateJSON(fingerprint.Fingerprint(1)); ok {
		t.Fatalf("expected fingerprint 1 to be unknown")
	}
}
