package governor

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// DeterministicSeed seeds every RNG handed out in deterministic mode.
const DeterministicSeed uint64 = 42

// RNGKind tags the source behind an RNG.
type RNGKind uint8

const (
	// RNGRandom is a ChaCha8 source seeded from crypto/rand.
	RNGRandom RNGKind = iota

	// RNGDeterministic is a PCG source seeded with DeterministicSeed.
	RNGDeterministic
)

func (k RNGKind) String() string {
	switch k {
	case RNGDeterministic:
		return "deterministic"
	case RNGRandom:
		return "random"
	default:
		return "unknown"
	}
}

// RNG is the random source for governed work. In deterministic mode every
// RNG produces the same sequence, across calls and across governors with the
// same config.
//
// An RNG is not safe for concurrent use.
type RNG struct {
	kind   RNGKind
	pcg    *rand.PCG     // RNGDeterministic
	chacha *rand.ChaCha8 // RNGRandom
	rnd    *rand.Rand
}

// RNG returns a fresh random source selected by DeterministicMode.
func (g *Governor) RNG() *RNG {
	return newRNG(g.cfg.DeterministicMode)
}

func newRNG(deterministic bool) *RNG {
	r := &RNG{}
	if deterministic {
		r.kind = RNGDeterministic
		r.pcg = rand.NewPCG(DeterministicSeed, DeterministicSeed)
	} else {
		var seed [32]byte
		_, _ = cryptorand.Read(seed[:]) // never fails; crashes the program instead
		r.kind = RNGRandom
		r.chacha = rand.NewChaCha8(seed)
	}
	r.rnd = rand.New(r)
	return r
}

// Kind reports which source backs the RNG.
func (r *RNG) Kind() RNGKind {
	return r.kind
}

// Uint64 returns a pseudo-random uint64. It makes RNG a rand.Source.
func (r *RNG) Uint64() uint64 {
	switch r.kind {
	case RNGDeterministic:
		return r.pcg.Uint64()
	default:
		return r.chacha.Uint64()
	}
}

// Uint32 returns a pseudo-random uint32.
func (r *RNG) Uint32() uint32 {
	return uint32(r.Uint64() >> 32)
}

// IntN returns a pseudo-random int in [0,n). It panics if n <= 0.
func (r *RNG) IntN(n int) int {
	return r.rnd.IntN(n)
}

// Float64 returns a pseudo-random float64 in [0.0,1.0).
func (r *RNG) Float64() float64 {
	return r.rnd.Float64()
}

// Read fills p with pseudo-random bytes. It always returns len(p), nil.
func (r *RNG) Read(p []byte) (int, error) {
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], r.Uint64())
		copy(p[i:], buf[:])
	}
	return len(p), nil
}

// Rand returns a *rand.Rand drawing from this RNG.
func (r *RNG) Rand() *rand.Rand {
	return r.rnd
}
