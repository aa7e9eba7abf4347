// Package roll provides deterministic pseudo-random rolls derived from
// string seeds. The same seed parts always produce the same value, which
// keeps the simulation reproducible for a given sequence of inputs.
package roll

import (
	"hash/fnv"
)

// Stable returns a deterministic value in [0,1) derived from the
// colon-joined seed parts (FNV-1a 64).
func Stable(parts ...string) float64 {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{':'})
		}
		h.Write([]byte(p))
	}
	// Use the top 53 bits so the float64 mantissa is fully populated.
	return float64(h.Sum64()>>11) / float64(uint64(1)<<53)
}

// Pick returns a deterministic index in [0,n) for the given seed parts.
// Returns 0 when n <= 0.
func Pick(n int, parts ...string) int {
	if n <= 0 {
		return 0
	}
	return int(Stable(parts...) * float64(n))
}

// Weighted selects an index from weights proportionally to their value,
// using a stable roll. Non-positive weights are treated as zero; if all
// weights are zero the first index wins.
func Weighted(weights []float64, parts ...string) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0
	}
	target := Stable(parts...) * total
	var acc float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if target < acc {
			return i
		}
	}
	return len(weights) - 1
}
