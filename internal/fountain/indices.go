package fountain

import (
	"math/rand"
	"time"

	"github.com/atakgw/meshtak/internal/rng"
	"github.com/atakgw/meshtak/internal/soliton"
)

// GenerateTransferID produces a new 24-bit transfer id, xoring a random
// 24-bit value with the low 16 bits of the current unix time so ids don't
// collide across short-lived processes restarting at the same moment.
func GenerateTransferID() uint32 {
	random24 := uint32(rand.Intn(1 << 24))
	epochLow16 := uint32(time.Now().Unix()) & 0xFFFF
	return (random24 ^ epochLow16) & 0xFFFFFF
}

// DeriveSeed computes the per-block seed for block index i of a transfer,
// per the sender's seed = (transferID*31337 + i*7919) mod 2^16 rule.
func DeriveSeed(transferID uint32, i int) uint16 {
	return uint16((transferID*31337 + uint32(i)*7919) & 0xFFFF)
}

// generateIndices selects the index set for a block with the given seed,
// replicating the algorithm the peer uses bit-for-bit:
//  1. seed the Java-compatible LCG with `seed`.
//  2. always draw a degree from the Robust-Soliton CDF first (it must
//     advance the RNG even when the sampled degree is discarded).
//  3. block 0 is forced to degree 1; every other block uses the sampled
//     degree.
//  4. draw unique indices in [0, k) via repeated rng.Intn(k) calls until
//     the set reaches min(degree, k).
func generateIndices(seed uint16, k int, isFirst bool, cdf *soliton.CDF) []int {
	r := rng.New(uint64(seed))

	sampled := cdf.Draw(r)

	degree := sampled
	if isFirst {
		degree = 1
	}
	if degree > k {
		degree = k
	}

	seen := make(map[int]struct{}, degree)
	indices := make([]int, 0, degree)
	for len(indices) < degree {
		idx := int(r.Intn(int32(k)))
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}
	return indices
}

// GenerateIndices is the sender-side selection keyed by block index; the
// encoder calls generateIndices directly, and the property test uses this
// to check that it matches RegenerateIndices.
func GenerateIndices(transferID uint32, blockIndex int, k int) []int {
	seed := DeriveSeed(transferID, blockIndex)
	return generateIndices(seed, k, blockIndex == 0, soliton.Build(k))
}

// RegenerateIndices is the receive-side equivalent: it has only the seed
// carried on the wire (not the original block index), and distinguishes
// block 0 by comparing that seed against DeriveSeed(transferID, 0).
func RegenerateIndices(seed uint16, k int, transferID uint32) []int {
	isFirst := seed == DeriveSeed(transferID, 0)
	return generateIndices(seed, k, isFirst, soliton.Build(k))
}
