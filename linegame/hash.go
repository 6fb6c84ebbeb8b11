package linegame

import (
	"fmt"
	"sync"

	"github.com/dodgebc/go-linegame/rng"
)

// Hash128 is a 128-bit hash value
type Hash128 struct {
	Hash0, Hash1 uint64
}

// Xor combines two hashes
func (h Hash128) Xor(h2 Hash128) Hash128 {
	return Hash128{h.Hash0 ^ h2.Hash0, h.Hash1 ^ h2.Hash1}
}

// IsZero reports whether both halves are zero
func (h Hash128) IsZero() bool {
	return h.Hash0 == 0 && h.Hash1 == 0
}

func (h Hash128) String() string {
	return fmt.Sprintf("%016X%016X", h.Hash1, h.Hash0)
}

// ZobristGameIsOver is folded into hashes of finished positions
var ZobristGameIsOver = Hash128{0xb6f9e465597a77ee, 0xf1d583d960a4ce7f}

// SplitMix64 is the splitmix64 finalizer
func SplitMix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// MurmurMix is the murmur3 64-bit finalizer
func MurmurMix(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// RRMXMX is Pelle Evensen's rrmxmx mixer
func RRMXMX(x uint64) uint64 {
	x ^= (x >> 49) ^ (x >> 24)
	x *= 0x9fb21c651e98df25
	x ^= x >> 28
	x *= 0x9fb21c651e98df25
	x ^= x >> 28
	return x
}

// Nasam is Pelle Evensen's nasam mixer
func Nasam(x uint64) uint64 {
	x ^= (x >> 25) ^ (x >> 47)
	x *= 0x9E6C63D0676A9A99
	x ^= (x >> 23) ^ (x >> 51)
	x *= 0x9E6D62D06F6A9A9B
	x ^= (x >> 23) ^ (x >> 51)
	return x
}

// BasicLCong is a 64-bit linear congruential step
func BasicLCong(x uint64) uint64 {
	return 2862933555777941757*x + 3037000493
}

// BasicLCong2 is a second, independent linear congruential step
func BasicLCong2(x uint64) uint64 {
	return 6364136223846793005*x + 1442695040888963407
}

// HashTables holds the Zobrist tables shared by every board.
// They are built once and never modified afterwards.
type HashTables struct {
	Player [4]Hash128
	Board  [MaxArrSize][4]Hash128
	Board2 [MaxArrSize][4]Hash128
	SizeX  [MaxLen + 1]Hash128
	SizeY  [MaxLen + 1]Hash128
}

var (
	tablesOnce sync.Once
	tables     *HashTables
)

// Tables returns the process-wide Zobrist tables, building them on first use
func Tables() *HashTables {
	tablesOnce.Do(func() {
		tables = newHashTables()
	})
	return tables
}

func newHashTables() *HashTables {
	t := &HashTables{}
	r := rng.New("linegame.HashTables")
	next := func() Hash128 {
		h0 := r.Uint64()
		h1 := r.Uint64()
		return Hash128{h0, h1}
	}

	for i := range t.Player {
		t.Player[i] = next()
	}

	// empty and wall cells contribute nothing
	for i := 0; i < MaxArrSize; i++ {
		for c := Empty; c <= Wall; c++ {
			if c == Black || c == White {
				t.Board[i][c] = next()
			}
		}
	}

	// reseeded so size hashes do not depend on MaxArrSize
	r.Init("linegame.HashTables size")
	for i := 0; i <= MaxLen; i++ {
		t.SizeX[i] = next()
		t.SizeY[i] = next()
	}

	r.Init("linegame.HashTables second board set")
	for i := 0; i < MaxArrSize; i++ {
		for c := Empty; c <= Wall; c++ {
			h := next()
			t.Board2[i][c] = Hash128{MurmurMix(h.Hash0), SplitMix64(h.Hash1)}
		}
	}
	return t
}
