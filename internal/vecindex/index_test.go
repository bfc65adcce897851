package vecindex

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/docqa/internal/model"
)

func TestNormalizeUnitNorm(t *testing.T) {
	vec := Normalize([]float32{3, 4, 0})
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
	require.InDelta(t, 1.0, float64(dot(vec, vec)), 1e-6)

	zero := Normalize([]float32{0, 0})
	require.Equal(t, []float32{0, 0}, zero)
}

func TestFlatIndexSearchOrder(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Add([]float32{1, 0}, []float32{0, 1}, Normalize([]float32{1, 1})))
	require.Error(t, idx.Add([]float32{1, 2, 3}))
	require.Equal(t, 3, idx.Len())

	hits := idx.Search([]float32{1, 0}, 10)
	require.Len(t, hits, 3)
	require.Equal(t, 0, hits[0].Pos)
	require.Equal(t, 2, hits[1].Pos)
	require.Equal(t, 1, hits[2].Pos)

	require.Len(t, idx.Search([]float32{1, 0}, 1), 1)
	require.Empty(t, idx.Search([]float32{1, 0}, 0))
	require.Empty(t, NewFlatIndex(2).Search([]float32{1, 0}, 3))
}

func TestCodecRoundTrip(t *testing.T) {
	idx := NewFlatIndex(3)
	require.NoError(t, idx.Add([]float32{0.1, -0.2, 0.3}, []float32{1, 0, 0}))
	decoded, err := decodeIndex(encodeIndex(idx))
	require.NoError(t, err)
	require.Equal(t, idx.dim, decoded.dim)
	require.Equal(t, idx.data, decoded.data)

	records := []model.ChunkRecord{
		{DocumentID: 7, ChunkIndex: 0, Text: "héllo wörld", Filename: "a.pdf"},
		{DocumentID: 9, ChunkIndex: 3, Text: "", Filename: ""},
	}
	got, err := decodeMetadata(encodeMetadata(records))
	require.NoError(t, err)
	require.Equal(t, records, got)

	empty, err := decodeMetadata(encodeMetadata(nil))
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestCodecRejectsDamage(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Add([]float32{1, 0}))
	data := encodeIndex(idx)
	_, err := decodeIndex(data[:len(data)-1])
	require.ErrorIs(t, err, ErrCorrupted)
	_, err = decodeIndex([]byte("nope"))
	require.ErrorIs(t, err, ErrCorrupted)

	// dim*count*4 wraps to zero in 64 bits
	forged := make([]byte, indexHeaderSize)
	copy(forged, indexMagic)
	binary.LittleEndian.PutUint16(forged[4:], codecVersion)
	binary.LittleEndian.PutUint32(forged[6:], 1<<31)
	binary.LittleEndian.PutUint32(forged[10:], 1<<31)
	require.NotPanics(t, func() {
		_, err = decodeIndex(forged)
	})
	require.ErrorIs(t, err, ErrCorrupted)
	binary.LittleEndian.PutUint32(forged[6:], 2)
	binary.LittleEndian.PutUint32(forged[10:], 1)
	_, err = decodeIndex(append(forged, 0, 0, 0, 0, 0, 0))
	require.ErrorIs(t, err, ErrCorrupted)

	meta := encodeMetadata([]model.ChunkRecord{{DocumentID: 1, Text: "abc", Filename: "f"}})
	_, err = decodeMetadata(meta[:len(meta)-1])
	require.ErrorIs(t, err, ErrCorrupted)
	_, err = decodeMetadata(append(meta, 0))
	require.ErrorIs(t, err, ErrCorrupted)
}
