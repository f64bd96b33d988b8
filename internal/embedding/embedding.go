// Package embedding defines the Embedding Gateway boundary the spec places
// out of scope ("we do not specify an embedding algorithm — only that one
// exists and produces fixed-dimension real vectors", spec §1) and ships a
// deterministic local reference implementation so internal/memory is
// runnable standalone.
package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/zeebo/blake3"
)

// Embedder maps text to a fixed-dimension real vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

const defaultDimension = 64

// Local is a deterministic, offline stand-in for a live embedding
// provider: a hashed bag-of-words projection onto a fixed-dimension vector,
// normalized to unit length so cosine similarity behaves sensibly. Every
// token is hashed with blake3 (the same content-addressing dependency used
// elsewhere in uroboros) into a bucket, signed by the hash's parity bit.
type Local struct {
	dim int
}

// NewLocal returns a Local embedder projecting onto dim dimensions. dim<=0
// uses the package default.
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = defaultDimension
	}
	return &Local{dim: dim}
}

func (l *Local) Dimension() int { return l.dim }

func (l *Local) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, l.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := blake3.New()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum(nil)
		bucket := (int(sum[0])<<8 | int(sum[1])) % l.dim
		sign := 1.0
		if sum[2]&1 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}
	normalize(vec)
	return vec, nil
}

func normalize(vec []float64) {
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range vec {
		vec[i] /= norm
	}
}

// Normalize applies the spec's "replace newlines with spaces" normalization
// to text before it is submitted to the Embedding Gateway (spec §4.5).
func Normalize(text string) string {
	return strings.ReplaceAll(text, "\n", " ")
}
