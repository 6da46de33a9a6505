// Package hashembed is a deterministic, dependency-free Embedder used by
// tests and offline runs. It derives a pseudo-embedding from a SHA-256
// hash of the input text, so identical text always yields identical
// vectors and similar-but-distinct text does not collide.
package hashembed

import (
	"context"
	"crypto/sha256"
	"math"
)

// Embedder produces fixed-dimension float32 vectors from a rolling SHA-256
// hash of the input text. It is not a semantic embedding — it exists so
// the rest of the system can be exercised deterministically without a
// network call to a real embedding model.
type Embedder struct {
	dims int
}

// New builds a hashembed.Embedder with the given vector dimensionality.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 64
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Dimensions() int { return e.dims }

// Embed hashes text through repeated SHA-256 rounds, expanding each 32-byte
// digest into 8 float32 components (4 bytes each), until Dimensions()
// values are produced, then L2-normalizes the result.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	out := make([]float32, 0, e.dims)
	seed := []byte(text)
	for len(out) < e.dims {
		sum := sha256.Sum256(seed)
		for i := 0; i+4 <= len(sum) && len(out) < e.dims; i += 4 {
			bits := uint32(sum[i])<<24 | uint32(sum[i+1])<<16 | uint32(sum[i+2])<<8 | uint32(sum[i+3])
			// Map to [-1, 1].
			v := (float32(bits) / float32(math.MaxUint32))*2 - 1
			out = append(out, v)
		}
		seed = sum[:]
	}
	return normalize(out), nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
