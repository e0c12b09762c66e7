// SPDX-License-Identifier: Apache-2.0

// Package oid implements the 20-byte object identifier used throughout
// gitxref. An OID is always a raw SHA-1 digest: equality, hashing (as a map
// key), and ordering are all bytewise, matching the Git object model.
package oid

import (
	"bytes"
	"encoding/hex"
	"errors"
)

// Size is the length in bytes of a Git object ID (SHA-1).
const Size = 20

// ErrInvalidLength is returned when a hex string does not decode to exactly
// Size bytes.
var ErrInvalidLength = errors.New("oid: wrong hex length for a 20-byte object id")

// OID is an opaque Git object identifier.
type OID [Size]byte

// Zero is the all-zero OID.
var Zero OID

// IsZero reports whether o is the all-zero OID.
func (o OID) IsZero() bool {
	return o == Zero
}

// String returns the lowercase hex encoding of o.
func (o OID) String() string {
	return hex.EncodeToString(o[:])
}

// Less orders OIDs bytewise, for deterministic iteration where the caller
// needs one.
func (o OID) Less(other OID) bool {
	return bytes.Compare(o[:], other[:]) < 0
}

// FromHex parses a 40-character hex string into an OID.
func FromHex(s string) (OID, error) {
	var o OID
	if len(s) != Size*2 {
		return o, ErrInvalidLength
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return o, err
	}
	copy(o[:], b)
	return o, nil
}

// FromBytes copies a raw 20-byte digest into an OID.
func FromBytes(b []byte) (OID, error) {
	var o OID
	if len(b) != Size {
		return o, ErrInvalidLength
	}
	copy(o[:], b)
	return o, nil
}
