package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Topology slots are fixed-capacity per-layer neighbor lists co-located
// with their record. Slot layout: [count u32][id u64 x capacity][crc u32].
// A slot update is a single positioned write followed by fsync, which keeps
// individual neighbor lists atomic even though a whole insertion is not.

func slotLen(capacity int) int64 {
	return int64(4 + 8*capacity + 4)
}

// capacity returns the degree bound for a layer: 2M at the base layer,
// M above it.
func (s *Store) capacity(layer int) int {
	if layer == 0 {
		return 2 * int(s.header.M)
	}
	return int(s.header.M)
}

// slotsLen returns the total topology size for a node with the given
// assigned layer.
func (s *Store) slotsLen(maxLayer int) int64 {
	return slotLen(s.capacity(0)) + int64(maxLayer)*slotLen(s.capacity(1))
}

// slotOffset returns the file offset of the neighbor slot for one layer of
// a node. Layer 0 comes first, then layers 1..maxLayer.
func (s *Store) slotOffset(ref *recordRef, layer int) int64 {
	base := ref.offset + ref.frameLen
	if layer == 0 {
		return base
	}
	return base + slotLen(s.capacity(0)) + int64(layer-1)*slotLen(s.capacity(1))
}

func encodeSlot(ids []uint64, capacity int) []byte {
	buf := make([]byte, slotLen(capacity))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(ids)))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(buf[4+8*i:12+8*i], id)
	}
	n := len(buf) - 4
	binary.LittleEndian.PutUint32(buf[n:], crc32.ChecksumIEEE(buf[:n]))
	return buf
}

func decodeSlot(buf []byte, capacity int) ([]uint64, error) {
	n := len(buf) - 4
	if sum := crc32.ChecksumIEEE(buf[:n]); sum != binary.LittleEndian.Uint32(buf[n:]) {
		return nil, corrupt("neighbor slot checksum mismatch")
	}

	count := int(binary.LittleEndian.Uint32(buf[0:4]))
	if count > capacity {
		return nil, corrupt("neighbor slot count %d exceeds capacity %d", count, capacity)
	}

	ids := make([]uint64, count)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint64(buf[4+8*i : 12+8*i])
	}
	return ids, nil
}

// SetNeighbors durably replaces the neighbor list of id at the given layer.
func (s *Store) SetNeighbors(id uint64, layer int, neighbors []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}

	ref, ok := s.refs[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if layer < 0 || layer > ref.maxLayer {
		return fmt.Errorf("node %d has no layer %d (assigned layer %d)", id, layer, ref.maxLayer)
	}
	if bound := s.capacity(layer); len(neighbors) > bound {
		return fmt.Errorf("neighbor list for node %d layer %d exceeds degree bound: %d > %d", id, layer, len(neighbors), bound)
	}

	if _, err := s.file.WriteAt(encodeSlot(neighbors, s.capacity(layer)), s.slotOffset(ref, layer)); err != nil {
		return fmt.Errorf("failed to write neighbors of %d: %w", id, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync neighbors of %d: %w", id, err)
	}

	return nil
}

// Neighbors returns the neighbor list of id at the given layer. Neighbor
// ids that do not resolve to a known record (left behind by an interrupted
// insertion) are filtered out; search treats such edges as absent.
func (s *Store) Neighbors(id uint64, layer int) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.file == nil {
		return nil, ErrClosed
	}

	ref, ok := s.refs[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if layer < 0 || layer > ref.maxLayer {
		return nil, nil
	}

	capacity := s.capacity(layer)
	buf := make([]byte, slotLen(capacity))
	if _, err := s.file.ReadAt(buf, s.slotOffset(ref, layer)); err != nil {
		return nil, fmt.Errorf("failed to read neighbors of %d: %w", id, err)
	}

	ids, err := decodeSlot(buf, capacity)
	if err != nil {
		return nil, err
	}

	live := ids[:0]
	for _, n := range ids {
		if _, ok := s.refs[n]; ok {
			live = append(live, n)
		}
	}
	return live, nil
}
