/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package explorer

import (
	"encoding/json"

	stateright "github.com/helofel/stateright"
	"github.com/helofel/stateright/fingerprint"
)

// checkerAdapter adapts a generic *stateright.Checker[S] to the
// explorer's non-generic Served interface by marshaling states and paths
// to JSON at the boundary -- the explorer itself never needs to know S.
type checkerAdapter[S any] struct {
	checker *stateright.Checker[S]
}

// Adapt wraps checker so it can be passed to explorer.New.
func Adapt[S any](checker *stateright.Checker[S]) Served {
	return &checkerAdapter[S]{checker: checker}
}

type stateResponse[S any] struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	State       S                       `json:"state"`
}

func (a *checkerAdapter[S]) StateJSON(fp fingerprint.Fingerprint) (json.RawMessage, bool) {
	s, ok := a.checker.StateByFingerprint(fp)
	if !ok {
		return nil, false
	}
	b, err := json.Marshal(stateResponse[S]{Fingerprint: fp, State: s})
	if err != nil {
		return nil, false
	}
	return b, true
}

type pathResponse[S any] struct {
	Path []stateright.Step[S] `json:"path"`
}

func (a *checkerAdapter[S]) PathJSON(fp fingerprint.Fingerprint) (json.RawMessage, bool) {
	path, ok := a.checker.PathTo(fp)
	if !ok {
		return nil, false
	}
	b, err := json.Marshal(pathResponse[S]{Path: path})
	if err != nil {
		return nil, false
	}
	return b, true
}
