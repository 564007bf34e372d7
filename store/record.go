package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/metadata"
)

const (
	// recordFixedLen is the fixed prefix of a record frame:
	// [id u64][maxLayer u16][labelLen u16][descLen u32][vecLen u32]
	recordFixedLen = 8 + 2 + 2 + 4 + 4

	// maxLabelLen bounds the label field (u16 length prefix).
	maxLabelLen = math.MaxUint16

	// maxAssignedLayer bounds the random layer draw (u16 on disk). The
	// exponential layer distribution makes values this large unreachable
	// in practice.
	maxAssignedLayer = math.MaxUint16
)

// recordRef locates a committed or pending record within the file.
type recordRef struct {
	offset   int64
	frameLen int64
	maxLayer int
	ordinal  uint32
}

func encodeRecordFrame(id uint64, vector []float32, meta metadata.Metadata, maxLayer int) []byte {
	label := []byte(meta.Label)
	desc := []byte(meta.Description)

	size := recordFixedLen + len(label) + len(desc) + 4*len(vector) + 4
	buf := make([]byte, size)

	binary.LittleEndian.PutUint64(buf[0:8], id)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(maxLayer))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(label)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(desc)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(vector)))

	off := recordFixedLen
	off += copy(buf[off:], label)
	off += copy(buf[off:], desc)
	for _, v := range vector {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}

	binary.LittleEndian.PutUint32(buf[off:], crc32.ChecksumIEEE(buf[:off]))
	return buf
}

// decodedRecord is the parsed form of a record frame.
type decodedRecord struct {
	id       uint64
	maxLayer int
	vector   []float32
	meta     metadata.Metadata
	frameLen int64
}

// decodeRecordFrame parses and verifies one record frame starting at
// buf[0]. buf may extend past the frame.
func decodeRecordFrame(buf []byte) (decodedRecord, error) {
	var rec decodedRecord

	if len(buf) < recordFixedLen {
		return rec, corrupt("truncated record frame")
	}

	labelLen := int(binary.LittleEndian.Uint16(buf[10:12]))
	descLen := int(binary.LittleEndian.Uint32(buf[12:16]))
	vecLen := int(binary.LittleEndian.Uint32(buf[16:20]))

	payloadEnd := recordFixedLen + labelLen + descLen + 4*vecLen
	if len(buf) < payloadEnd+4 {
		return rec, corrupt("truncated record frame")
	}
	if sum := crc32.ChecksumIEEE(buf[:payloadEnd]); sum != binary.LittleEndian.Uint32(buf[payloadEnd:payloadEnd+4]) {
		return rec, corrupt("record checksum mismatch")
	}

	rec.id = binary.LittleEndian.Uint64(buf[0:8])
	rec.maxLayer = int(binary.LittleEndian.Uint16(buf[8:10]))
	rec.frameLen = int64(payloadEnd + 4)

	off := recordFixedLen
	rec.meta.Label = string(buf[off : off+labelLen])
	off += labelLen
	rec.meta.Description = string(buf[off : off+descLen])
	off += descLen

	rec.vector = make([]float32, vecLen)
	for i := range rec.vector {
		rec.vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}

	return rec, nil
}

// AppendRecord serializes the vector record plus zeroed topology slots for
// layers 0..maxLayer and appends them to the file. The data is durable when
// AppendRecord returns, but invisible to a subsequent Open until Commit
// rewrites the header.
func (s *Store) AppendRecord(id uint64, vector []float32, meta metadata.Metadata, maxLayer int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if _, ok := s.refs[id]; ok {
		return &ErrDuplicateID{ID: id}
	}
	if len(meta.Label) > maxLabelLen {
		return fmt.Errorf("label exceeds %d bytes", maxLabelLen)
	}
	if maxLayer < 0 || maxLayer > maxAssignedLayer {
		return fmt.Errorf("invalid layer assignment: %d", maxLayer)
	}
	if s.header.Dimension == 0 {
		if len(vector) == 0 {
			return &distance.ErrDimensionMismatch{Expected: 1, Actual: 0}
		}
	} else if len(vector) != int(s.header.Dimension) {
		return &distance.ErrDimensionMismatch{Expected: int(s.header.Dimension), Actual: len(vector)}
	}

	frame := encodeRecordFrame(id, vector, meta, maxLayer)

	node := make([]byte, 0, len(frame)+int(s.slotsLen(maxLayer)))
	node = append(node, frame...)
	for layer := 0; layer <= maxLayer; layer++ {
		node = append(node, encodeSlot(nil, s.capacity(layer))...)
	}

	if _, err := s.file.WriteAt(node, s.tail); err != nil {
		return fmt.Errorf("failed to append record %d: %w", id, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync record %d: %w", id, err)
	}

	if s.header.Dimension == 0 {
		// First record fixes the dimensionality; persisted with the
		// commit that publishes it.
		s.header.Dimension = uint32(len(vector))
	}

	s.refs[id] = &recordRef{
		offset:   s.tail,
		frameLen: int64(len(frame)),
		maxLayer: maxLayer,
		ordinal:  uint32(len(s.order)),
	}
	s.order = append(s.order, id)
	s.tail += int64(len(node))

	return nil
}

// ReadRecord returns the vector and metadata stored for id.
func (s *Store) ReadRecord(id uint64) ([]float32, metadata.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.readRecordLocked(id)
	if err != nil {
		return nil, metadata.Metadata{}, err
	}
	return rec.vector, rec.meta, nil
}

// Vector returns the vector stored for id.
func (s *Store) Vector(id uint64) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.readRecordLocked(id)
	if err != nil {
		return nil, err
	}
	return rec.vector, nil
}

func (s *Store) readRecordLocked(id uint64) (decodedRecord, error) {
	if s.file == nil {
		return decodedRecord{}, ErrClosed
	}

	ref, ok := s.refs[id]
	if !ok {
		return decodedRecord{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	buf := make([]byte, ref.frameLen)
	if _, err := s.file.ReadAt(buf, ref.offset); err != nil {
		return decodedRecord{}, fmt.Errorf("failed to read record %d: %w", id, err)
	}

	rec, err := decodeRecordFrame(buf)
	if err != nil {
		return decodedRecord{}, err
	}
	if rec.id != id {
		return decodedRecord{}, corrupt("record at offset %d has id %d, index says %d", ref.offset, rec.id, id)
	}

	return rec, nil
}
