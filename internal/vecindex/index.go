package vecindex

import (
	"fmt"
	"math"
	"sort"
)

// FlatIndex is an exhaustive inner product index. Vectors are stored
// row-major in insertion order; position i is the ith added vector.
type FlatIndex struct {
	dim  int
	data []float32
}

type Hit struct {
	Pos   int
	Score float32
}

func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

func (f *FlatIndex) Dim() int {
	return f.dim
}

func (f *FlatIndex) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

func (f *FlatIndex) Vector(pos int) []float32 {
	return f.data[pos*f.dim : (pos+1)*f.dim]
}

func (f *FlatIndex) Add(vecs ...[]float32) error {
	for i, vec := range vecs {
		if len(vec) != f.dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(vec), f.dim)
		}
	}
	for _, vec := range vecs {
		f.data = append(f.data, vec...)
	}
	return nil
}

// Search returns the k best positions by inner product, best first. Ties
// keep insertion order.
func (f *FlatIndex) Search(query []float32, k int) []Hit {
	n := f.Len()
	if k > n {
		k = n
	}
	if k <= 0 || len(query) != f.dim {
		return nil
	}
	hits := make([]Hit, n)
	for pos := 0; pos < n; pos++ {
		hits[pos] = Hit{Pos: pos, Score: dot(query, f.Vector(pos))}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits[:k]
}

// Normalize returns a unit length copy of vec. The zero vector is returned
// unchanged.
func Normalize(vec []float32) []float32 {
	out := make([]float32, len(vec))
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		copy(out, vec)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
