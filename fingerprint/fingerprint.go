/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package fingerprint computes the stable 64-bit digest used as the only
// notion of state identity throughout the checker: the visited set, the
// frontier, and the parent map all key on a Fingerprint rather than on the
// state itself.
package fingerprint

import (
	"bytes"
	"encoding/gob"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a non-zero 64-bit digest of a state. Equal states always
// yield equal fingerprints; distinct fingerprints always imply distinct
// states. Collisions between distinct states are accepted as a soundness
// concession and are not detected here.
type Fingerprint uint64

// Of computes the fingerprint of v by gob-encoding it into a canonical byte
// representation and hashing that with xxhash. v must encode deterministically
// for a given value -- in particular, map and set fields should be of types
// whose gob encoding order is stable, or callers should flatten them to a
// sorted slice before fingerprinting.
//
// The zero fingerprint is never returned; callers that need a sentinel for
// "no fingerprint" can rely on 0 being unreachable.
func Of(v interface{}) Fingerprint {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic("fingerprint: value is not gob-encodable: " + err.Error())
	}
	sum := xxhash.Sum64(buf.Bytes())
	if sum == 0 {
		// Avoid colliding with the reserved zero sentinel; this perturbation
		// is deterministic so equal states still hash equal.
		sum = 1
	}
	return Fingerprint(sum)
}

// FNV is a zero-dependency fallback digest for embedders who would rather
// avoid the xxhash module. It is not used by the checker by default.
func FNV(v interface{}) Fingerprint {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic("fingerprint: value is not gob-encodable: " + err.Error())
	}
	h := uint64(fnvOffset)
	for _, b := range buf.Bytes() {
		h ^= uint64(b)
		h *= fnvPrime
	}
	if h == 0 {
		h = 1
	}
	return Fingerprint(h)
}

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)
