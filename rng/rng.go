/*
Package rng provides reproducible random streams seeded from strings.

Every stream is a ChaCha generator from lukechampine.com/frand keyed with the
SHA-256 digest of its seed string, so the same seed always yields the same
sequence. A Rand is not safe for concurrent use.*/
package rng

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"lukechampine.com/frand"
)

// chacha rounds and buffer size for seeded streams
const (
	rounds  = 12
	bufSize = 1024
)

// Rand is a seeded random stream
type Rand struct {
	seed string
	r    *frand.RNG
	buf  [8]byte

	hasGaussian bool
	nextGauss   float64
}

// New creates a stream from a seed string
func New(seed string) *Rand {
	key := sha256.Sum256([]byte(seed))
	return &Rand{seed: seed, r: frand.NewCustom(key[:], bufSize, rounds)}
}

// NewRandomSeed returns a fresh hex seed drawn from the system entropy pool
func NewRandomSeed() string {
	return hex.EncodeToString(frand.Bytes(16))
}

// Init reseeds the stream in place
func (r *Rand) Init(seed string) {
	*r = *New(seed)
}

// Seed returns the seed the stream was created with
func (r *Rand) Seed() string {
	return r.seed
}

// Uint64 returns a uniform 64-bit value
func (r *Rand) Uint64() uint64 {
	r.r.Read(r.buf[:])
	return binary.LittleEndian.Uint64(r.buf[:])
}

// Uint64n returns a uniform value in [0,n), n must be positive
func (r *Rand) Uint64n(n uint64) uint64 {
	return r.r.Uint64n(n)
}

// Intn returns a uniform value in [0,n), n must be positive
func (r *Rand) Intn(n int) int {
	return r.r.Intn(n)
}

// Float64 returns a uniform value in [0,1)
func (r *Rand) Float64() float64 {
	return r.r.Float64()
}

// Bool returns true with probability p
func (r *Rand) Bool(p float64) bool {
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	return r.Float64() < p
}

// Exponential draws from the unit exponential distribution
func (r *Rand) Exponential() float64 {
	for {
		u := r.Float64()
		if u > 1e-300 {
			return -math.Log(u)
		}
	}
}

// Gaussian draws from the standard normal distribution (polar method)
func (r *Rand) Gaussian() float64 {
	if r.hasGaussian {
		r.hasGaussian = false
		return r.nextGauss
	}
	for {
		v1 := 2*r.Float64() - 1
		v2 := 2*r.Float64() - 1
		s := v1*v1 + v2*v2
		if s >= 1 || s == 0 {
			continue
		}
		mult := math.Sqrt(-2 * math.Log(s) / s)
		r.nextGauss = v2 * mult
		r.hasGaussian = true
		return v1 * mult
	}
}

// Perm returns a random permutation of [0,n)
func (r *Rand) Perm(n int) []int {
	return r.r.Perm(n)
}

// Shuffle randomizes the order of n elements
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	r.r.Shuffle(n, swap)
}

// WeightedIndex picks an index with probability proportional to its weight.
// Non-positive weights are never picked, -1 is returned if nothing can be.
func (r *Rand) WeightedIndex(weights []float64) int {
	sum := 0.0
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum <= 0 {
		return -1
	}
	x := r.Float64() * sum
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if x < w {
			return i
		}
		x -= w
	}
	return last
}
