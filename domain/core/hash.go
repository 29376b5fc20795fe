package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// ReportChecksum fingerprints a serialized report document so an archived
// snapshot can be checked against later mutation.
type ReportChecksum Hash

// NewReportChecksum computes the checksum over a serialized report payload.
func NewReportChecksum(payload []byte) ReportChecksum {
	return ReportChecksum(NewHash(payload))
}

func (h ReportChecksum) String() string { return Hash(h).String() }
