/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package status holds plain, serializable snapshots of checker and
// property state, used by cmd/checkcat's reporting. These are data
// holders only -- no behavior.
package status

import "github.com/helofel/stateright/fingerprint"

// Checker is a point-in-time snapshot of a Check() run, independent of
// any particular state type.
type Checker struct {
	Status         string
	FailedProperty string
	FrontierSize   int
	VisitedCount   int
	GeneratedCount uint64
	Properties     []Property
}

// Property is the per-property outcome within a Checker snapshot.
type Property struct {
	Name       string
	Kind       string
	Violated   bool
	Satisfied  bool
	HasWitness bool
	Witness    fingerprint.Fingerprint
}
