package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/syuya2036/vdb/distance"
)

const (
	// headerSize is the fixed size of the header region at offset 0.
	headerSize = 64

	version = uint16(1)
)

// magic identifies vdb database files.
var magic = [4]byte{'V', 'D', 'B', '0'}

// header is the in-memory form of the fixed header region.
//
// Layout (little endian):
//
//	[0:4]   magic "VDB0"
//	[4:6]   version
//	[6:7]   metric code
//	[7:8]   reserved
//	[8:12]  dimension
//	[12:16] M
//	[16:20] efConstruction
//	[20:28] entry point id
//	[28:32] max layer
//	[32:40] live node count
//	[40:48] tail (first byte past committed data)
//	[48:60] reserved
//	[60:64] CRC32 (IEEE) of bytes [0:60)
type header struct {
	Metric         distance.Metric
	Dimension      uint32
	M              uint32
	EFConstruction uint32
	EntryPoint     uint64
	MaxLayer       uint32
	Count          uint64
	Tail           uint64
}

func (h *header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], version)
	buf[6] = uint8(h.Metric)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dimension)
	binary.LittleEndian.PutUint32(buf[12:16], h.M)
	binary.LittleEndian.PutUint32(buf[16:20], h.EFConstruction)
	binary.LittleEndian.PutUint64(buf[20:28], h.EntryPoint)
	binary.LittleEndian.PutUint32(buf[28:32], h.MaxLayer)
	binary.LittleEndian.PutUint64(buf[32:40], h.Count)
	binary.LittleEndian.PutUint64(buf[40:48], h.Tail)
	binary.LittleEndian.PutUint32(buf[60:64], crc32.ChecksumIEEE(buf[:60]))
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	var h header

	if len(buf) != headerSize {
		return h, corrupt("short header: %d bytes", len(buf))
	}
	if [4]byte(buf[0:4]) != magic {
		return h, corrupt("invalid magic")
	}
	if got := binary.LittleEndian.Uint16(buf[4:6]); got != version {
		return h, corrupt("unsupported version: %d", got)
	}
	if sum := crc32.ChecksumIEEE(buf[:60]); sum != binary.LittleEndian.Uint32(buf[60:64]) {
		return h, corrupt("header checksum mismatch")
	}

	h.Metric = distance.Metric(buf[6])
	if !h.Metric.Valid() {
		return h, corrupt("invalid metric code: %d", buf[6])
	}
	h.Dimension = binary.LittleEndian.Uint32(buf[8:12])
	h.M = binary.LittleEndian.Uint32(buf[12:16])
	h.EFConstruction = binary.LittleEndian.Uint32(buf[16:20])
	h.EntryPoint = binary.LittleEndian.Uint64(buf[20:28])
	h.MaxLayer = binary.LittleEndian.Uint32(buf[28:32])
	h.Count = binary.LittleEndian.Uint64(buf[32:40])
	h.Tail = binary.LittleEndian.Uint64(buf[40:48])

	if h.M == 0 {
		return h, corrupt("invalid M: 0")
	}
	if h.Tail < headerSize {
		return h, corrupt("tail %d points inside the header region", h.Tail)
	}

	return h, nil
}

// writeHeader rewrites the header region and syncs. It is the commit point
// of every structural mutation: all record and topology writes the header
// refers to must already be durable when this is called.
func (s *Store) writeHeader() error {
	if _, err := s.file.WriteAt(s.header.encode(), 0); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync header: %w", err)
	}
	return nil
}
