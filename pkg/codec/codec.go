/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package codec adapts a message type to a byte-oriented transport for
// pkg/spawn. It is deliberately a pair of plain functions rather than an
// interface, so a serializer can be passed around as a value instead of
// behind an interface.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
)

// Codec couples an encoder and a decoder for a single message type.
type Codec[Msg any] struct {
	Encode func(Msg) ([]byte, error)
	Decode func([]byte) (Msg, error)
}

// JSON builds a Codec backed by encoding/json, for wire formats a
// non-Go peer needs to read.
func JSON[Msg any]() Codec[Msg] {
	return Codec[Msg]{
		Encode: func(m Msg) ([]byte, error) {
			return json.Marshal(m)
		},
		Decode: func(b []byte) (Msg, error) {
			var m Msg
			err := json.Unmarshal(b, &m)
			return m, err
		},
	}
}

// Gob builds a Codec backed by encoding/gob, matching the encoding the
// checker itself uses internally for fingerprinting -- useful when the
// wire format never needs to be read by a non-Go peer.
func Gob[Msg any]() Codec[Msg] {
	return Codec[Msg]{
		Encode: func(m Msg) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(m); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		Decode: func(b []byte) (Msg, error) {
			var m Msg
			err := gob.NewDecoder(bytes.NewReader(b)).Decode(&m)
			return m, err
		},
	}
}
