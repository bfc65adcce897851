package vecindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/xxxsen/docqa/internal/model"
)

var ErrCorrupted = errors.New("vector index corrupted")

const (
	indexMagic    = "DQVI"
	metadataMagic = "DQVM"
	codecVersion  = uint16(1)

	// magic + version + dim + count
	indexHeaderSize = 4 + 2 + 4 + 4
	// magic + version + count
	metadataHeaderSize = 4 + 2 + 4
)

func encodeIndex(idx *FlatIndex) []byte {
	buf := make([]byte, indexHeaderSize+len(idx.data)*4)
	copy(buf, indexMagic)
	binary.LittleEndian.PutUint16(buf[4:], codecVersion)
	binary.LittleEndian.PutUint32(buf[6:], uint32(idx.dim))
	binary.LittleEndian.PutUint32(buf[10:], uint32(idx.Len()))
	off := indexHeaderSize
	for _, v := range idx.data {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	return buf
}

func decodeIndex(data []byte) (*FlatIndex, error) {
	if len(data) < indexHeaderSize || string(data[:4]) != indexMagic {
		return nil, fmt.Errorf("%w: bad index header", ErrCorrupted)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != codecVersion {
		return nil, fmt.Errorf("%w: unsupported index version %d", ErrCorrupted, v)
	}
	dim := int(binary.LittleEndian.Uint32(data[6:]))
	count := int(binary.LittleEndian.Uint32(data[10:]))
	if dim <= 0 {
		return nil, fmt.Errorf("%w: index dimension %d", ErrCorrupted, dim)
	}
	body := data[indexHeaderSize:]
	// derive the vector count from the body so a forged header cannot size
	// the allocation
	floats := len(body) / 4
	if len(body)%4 != 0 || floats%dim != 0 || floats/dim != count {
		return nil, fmt.Errorf("%w: index body has %d bytes for %d vectors of %d", ErrCorrupted, len(body), count, dim)
	}
	idx := &FlatIndex{dim: dim, data: make([]float32, floats)}
	for i := range idx.data {
		idx.data[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return idx, nil
}

func encodeMetadata(records []model.ChunkRecord) []byte {
	var buf bytes.Buffer
	header := make([]byte, metadataHeaderSize)
	copy(header, metadataMagic)
	binary.LittleEndian.PutUint16(header[4:], codecVersion)
	binary.LittleEndian.PutUint32(header[6:], uint32(len(records)))
	buf.Write(header)
	var fixed [12]byte
	var lenBuf [binary.MaxVarintLen64]byte
	for _, rec := range records {
		binary.LittleEndian.PutUint64(fixed[0:], uint64(rec.DocumentID))
		binary.LittleEndian.PutUint32(fixed[8:], uint32(rec.ChunkIndex))
		buf.Write(fixed[:])
		for _, s := range []string{rec.Filename, rec.Text} {
			n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
			buf.Write(lenBuf[:n])
			buf.WriteString(s)
		}
	}
	return buf.Bytes()
}

func decodeMetadata(data []byte) ([]model.ChunkRecord, error) {
	if len(data) < metadataHeaderSize || string(data[:4]) != metadataMagic {
		return nil, fmt.Errorf("%w: bad metadata header", ErrCorrupted)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != codecVersion {
		return nil, fmt.Errorf("%w: unsupported metadata version %d", ErrCorrupted, v)
	}
	count := int(binary.LittleEndian.Uint32(data[6:]))
	rest := data[metadataHeaderSize:]
	// every record needs at least 14 bytes, which bounds the allocation
	if count > len(rest)/14 {
		return nil, fmt.Errorf("%w: metadata count %d exceeds payload", ErrCorrupted, count)
	}
	records := make([]model.ChunkRecord, 0, count)
	for i := 0; i < count; i++ {
		if len(rest) < 12 {
			return nil, fmt.Errorf("%w: truncated metadata record %d", ErrCorrupted, i)
		}
		rec := model.ChunkRecord{
			DocumentID: int64(binary.LittleEndian.Uint64(rest[0:])),
			ChunkIndex: int(binary.LittleEndian.Uint32(rest[8:])),
		}
		rest = rest[12:]
		var err error
		if rec.Filename, rest, err = readString(rest); err != nil {
			return nil, fmt.Errorf("record %d filename: %w", i, err)
		}
		if rec.Text, rest, err = readString(rest); err != nil {
			return nil, fmt.Errorf("record %d text: %w", i, err)
		}
		records = append(records, rec)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing metadata bytes", ErrCorrupted, len(rest))
	}
	return records, nil
}

func readString(data []byte) (string, []byte, error) {
	n, read := binary.Uvarint(data)
	if read <= 0 || n > uint64(len(data)-read) {
		return "", nil, ErrCorrupted
	}
	end := read + int(n)
	return string(data[read:end]), data[end:], nil
}
