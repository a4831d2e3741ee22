package obfuscation

import (
	"crypto/rand"
	"math/big"

	"awgman/pkg/model"
)

// Generate produces a random parameter set valid for the given MTU. The
// ranges mirror the values the web UI has always handed out: small junk
// counts, handshake padding under 150 bytes, and magic headers drawn from
// disjoint ranges so the distinctness constraint holds by construction.
// I1-I5 start empty; they are opt-in per client.
func Generate(mtu int) *model.ObfuscationParams {
	s1 := 15 + randInt(min(150, mtu-s1Reserve)-15+1)

	// S2 must avoid S1+56.
	s2Max := min(150, mtu-s2Reserve)
	s2 := 15 + randInt(s2Max-15+1)
	if s2 == s1+56 {
		s2++
		if s2 > s2Max {
			s2 = 15
		}
	}

	jmin := 4 + randInt(mtu-2-4+1)
	jmax := jmin + 1 + randInt(mtu-jmin)

	return &model.ObfuscationParams{
		Jc:   4 + randInt(9),
		Jmin: jmin,
		Jmax: jmax,
		S1:   s1,
		S2:   s2,
		H1:   uint32(10000 + randInt(90000)),
		H2:   uint32(100000 + randInt(100000)),
		H3:   uint32(200000 + randInt(100000)),
		H4:   uint32(300000 + randInt(100000)),
		MTU:  mtu,
	}
}

// randInt returns a uniform value in [0, n). Uses crypto/rand so generated
// headers are not guessable from a seed.
func randInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// rand.Reader failing means the platform entropy source is broken;
		// nothing sensible to fall back to.
		panic(err)
	}
	return int(v.Int64())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
