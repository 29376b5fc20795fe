package stats

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"strings"
)

// DeterministicBucket maps an arbitrary key onto [0, 1) by hashing it with
// SHA-256 and dividing the first eight bytes, read as a big-endian unsigned
// 64-bit integer, by 2^64-1. The same key always lands in the same spot.
func DeterministicBucket(key string) float64 {
	sum := sha256.Sum256([]byte(key))
	value := binary.BigEndian.Uint64(sum[:8])
	return float64(value) / float64(^uint64(0))
}

// UnitBucket buckets a unit within an experiment. The namespace separates
// independent decisions (ramp admission vs variant selection) so one does
// not leak information into the other.
func UnitBucket(experimentID, unitID, salt, namespace string) float64 {
	return DeterministicBucket(fmt.Sprintf("%s:%s:%s:%s", experimentID, unitID, salt, namespace))
}

// NewSeededSource derives a deterministic PRNG source from the given key
// parts. Identical parts always produce an identical stream, which keeps
// Monte-Carlo outputs and per-call policy draws reproducible.
func NewSeededSource(parts ...string) rand.Source {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	hi := binary.BigEndian.Uint64(sum[:8])
	lo := binary.BigEndian.Uint64(sum[8:16])
	return rand.NewPCG(hi, lo)
}
