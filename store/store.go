package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/internal/fs"
)

// ErrClosed is returned when an operation is attempted on a closed store.
var ErrClosed = errors.New("store is closed")

// DefaultM is the default maximum degree per node per layer (layer 0
// allows twice as many).
const DefaultM = 12

// DefaultEFConstruction is the default beam width used when connecting a
// new node.
const DefaultEFConstruction = 200

// Options represents the options for opening a Store.
type Options struct {
	// Dimension pins the vector dimensionality at open time. Zero means
	// the first inserted vector decides.
	Dimension int

	// M is the maximum degree per node per layer for a newly created
	// file. Ignored when the file already exists: construction
	// parameters are fixed at creation.
	M int

	// EFConstruction is the construction beam width recorded in a newly
	// created file. Ignored when the file already exists.
	EFConstruction int

	// FS overrides the file system, primarily for fault-injection tests.
	FS fs.FileSystem
}

// DefaultOptions holds the default open options.
var DefaultOptions = Options{
	Dimension:      0,
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	FS:             fs.Default,
}

// Store owns the single database file: the header region, the append-only
// record region, and the in-place-updated topology slots. Every mutating
// method syncs before returning; the header is rewritten last (Commit) so
// that a crash at any point leaves the file loadable as the state before
// or after the logical operation.
type Store struct {
	mu   sync.RWMutex
	fsys fs.FileSystem
	file fs.File
	path string

	header header

	// committedDim mirrors the dimension the last commit (or Open)
	// established, so Rollback can undo an adoption by a pending append.
	committedDim uint32

	// refs indexes committed and pending records; order holds ids in
	// append order (the ordinal space used by graph traversal).
	refs  map[uint64]*recordRef
	order []uint64

	// tail is the next append offset, including pending records. The
	// header's tail trails it until Commit.
	tail int64
}

// Open opens the database file at path, creating it with an initialized
// empty header if it does not exist. For an existing file the header is
// validated against the requested metric and dimension, and the record
// index is rebuilt by scanning the committed region.
//
// The store assumes single-process access; no cross-process file locking
// is attempted.
func Open(path string, metric distance.Metric, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if !metric.Valid() {
		return nil, fmt.Errorf("unsupported metric: %v", metric)
	}
	if opts.M < 2 {
		opts.M = DefaultM
	}
	if opts.EFConstruction < 1 {
		opts.EFConstruction = DefaultEFConstruction
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}

	s := &Store{
		fsys: opts.FS,
		path: path,
		refs: make(map[uint64]*recordRef),
	}

	_, statErr := opts.FS.Stat(path)
	switch {
	case statErr == nil:
		if err := s.load(metric, opts); err != nil {
			if s.file != nil {
				_ = s.file.Close()
			}
			return nil, err
		}
	case os.IsNotExist(statErr):
		if err := s.create(metric, opts); err != nil {
			if s.file != nil {
				_ = s.file.Close()
			}
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	return s, nil
}

func (s *Store) create(metric distance.Metric, opts Options) error {
	file, err := s.fsys.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", s.path, err)
	}
	s.file = file

	s.header = header{
		Metric:         metric,
		Dimension:      uint32(opts.Dimension),
		M:              uint32(opts.M),
		EFConstruction: uint32(opts.EFConstruction),
		Tail:           headerSize,
	}
	s.tail = headerSize
	s.committedDim = s.header.Dimension

	return s.writeHeader()
}

func (s *Store) load(metric distance.Metric, opts Options) error {
	file, err := s.fsys.OpenFile(s.path, os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	s.file = file

	buf := make([]byte, headerSize)
	if _, err := file.ReadAt(buf, 0); err != nil {
		return corruptCause(err, "failed to read header")
	}

	h, err := decodeHeader(buf)
	if err != nil {
		return err
	}

	if h.Metric != metric {
		return &ErrSchemaMismatch{Field: "metric", Expected: metric.String(), Actual: h.Metric.String()}
	}
	if opts.Dimension > 0 && h.Dimension > 0 && uint32(opts.Dimension) != h.Dimension {
		return &ErrSchemaMismatch{
			Field:    "dimension",
			Expected: fmt.Sprintf("%d", opts.Dimension),
			Actual:   fmt.Sprintf("%d", h.Dimension),
		}
	}

	s.header = h
	if h.Dimension == 0 && opts.Dimension > 0 {
		// Empty file; adopt the caller's dimension. Persisted with the
		// first commit.
		s.header.Dimension = uint32(opts.Dimension)
	}
	s.committedDim = s.header.Dimension

	if err := s.scan(); err != nil {
		return err
	}

	// Discard any uncommitted tail left behind by an interrupted
	// insertion.
	st, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	if st.Size() > s.tail {
		if err := file.Truncate(s.tail); err != nil {
			return fmt.Errorf("failed to truncate uncommitted tail: %w", err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("failed to sync after truncate: %w", err)
		}
	}

	return nil
}

// scan rebuilds the id index by walking the committed record region.
func (s *Store) scan() error {
	off := int64(headerSize)

	for i := uint64(0); i < s.header.Count; i++ {
		frame, err := s.readFrameAt(off)
		if err != nil {
			return corruptCause(err, "record %d/%d unreadable", i+1, s.header.Count)
		}
		if len(frame.vector) != int(s.header.Dimension) {
			return corrupt("record %d has dimension %d, header says %d", frame.id, len(frame.vector), s.header.Dimension)
		}
		if _, ok := s.refs[frame.id]; ok {
			return corrupt("duplicate id %d in record region", frame.id)
		}

		s.refs[frame.id] = &recordRef{
			offset:   off,
			frameLen: frame.frameLen,
			maxLayer: frame.maxLayer,
			ordinal:  uint32(i),
		}
		s.order = append(s.order, frame.id)

		off += frame.frameLen + s.slotsLen(frame.maxLayer)
	}

	if uint64(off) != s.header.Tail {
		return corrupt("committed region ends at %d, header says %d", off, s.header.Tail)
	}
	s.tail = off

	if s.header.Count > 0 {
		ep, ok := s.refs[s.header.EntryPoint]
		if !ok {
			return corrupt("entry point %d references a missing node", s.header.EntryPoint)
		}
		if ep.maxLayer < int(s.header.MaxLayer) {
			return corrupt("entry point %d has layer %d, header says %d", s.header.EntryPoint, ep.maxLayer, s.header.MaxLayer)
		}
	}

	return nil
}

// readFrameAt reads and decodes the record frame starting at off. It first
// reads the fixed prefix to size the full frame.
func (s *Store) readFrameAt(off int64) (decodedRecord, error) {
	fixed := make([]byte, recordFixedLen)
	if _, err := s.file.ReadAt(fixed, off); err != nil {
		return decodedRecord{}, fmt.Errorf("failed to read record prefix: %w", err)
	}

	labelLen := int(binary.LittleEndian.Uint16(fixed[10:12]))
	descLen := int(binary.LittleEndian.Uint32(fixed[12:16]))
	vecLen := int(binary.LittleEndian.Uint32(fixed[16:20]))

	total := recordFixedLen + labelLen + descLen + 4*vecLen + 4
	buf := make([]byte, total)
	if _, err := s.file.ReadAt(buf, off); err != nil {
		return decodedRecord{}, fmt.Errorf("failed to read record frame: %w", err)
	}

	return decodeRecordFrame(buf)
}

// Commit durably publishes all appends and topology updates since the last
// commit by rewriting the header with the given entry point and max layer.
func (s *Store) Commit(entryPoint uint64, maxLayer int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if maxLayer < 0 {
		return fmt.Errorf("invalid max layer: %d", maxLayer)
	}
	if len(s.order) > 0 {
		if _, ok := s.refs[entryPoint]; !ok {
			return fmt.Errorf("%w: entry point %d", ErrNotFound, entryPoint)
		}
	}

	prev := s.header
	s.header.EntryPoint = entryPoint
	s.header.MaxLayer = uint32(maxLayer)
	s.header.Count = uint64(len(s.order))
	s.header.Tail = uint64(s.tail)

	if err := s.writeHeader(); err != nil {
		s.header = prev
		return err
	}
	s.committedDim = s.header.Dimension

	return nil
}

// Rollback discards records appended since the last commit, restoring the
// in-memory index to the committed state. The appended bytes stay in the
// file but are overwritten by the next append and truncated by the next
// Open. Topology slots of committed nodes that were linked to a discarded
// record are left as written; Neighbors filters ids with no record.
func (s *Store) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uint64(len(s.order)) <= s.header.Count {
		return
	}

	pending := s.order[s.header.Count:]
	s.tail = s.refs[pending[0]].offset
	for _, id := range pending {
		delete(s.refs, id)
	}
	s.order = s.order[:s.header.Count]
	s.header.Dimension = s.committedDim
}

// EntryPoint returns the committed entry point and max layer. ok is false
// when the graph is empty.
func (s *Store) EntryPoint() (id uint64, maxLayer int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.header.Count == 0 {
		return 0, 0, false
	}
	return s.header.EntryPoint, int(s.header.MaxLayer), true
}

// Contains reports whether id has a record (committed or pending).
func (s *Store) Contains(id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.refs[id]
	return ok
}

// Ordinal returns the dense append-order index of id. Ordinals are stable
// for the lifetime of the file and back the visited sets used by graph
// traversal.
func (s *Store) Ordinal(id uint64) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.refs[id]
	if !ok {
		return 0, false
	}
	return ref.ordinal, true
}

// Count returns the number of records, including ones appended but not yet
// committed.
func (s *Store) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.order))
}

// IDs returns all record ids in append order.
func (s *Store) IDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint64, len(s.order))
	copy(ids, s.order)
	return ids
}

// NodeLayer returns the assigned maximum layer of id.
func (s *Store) NodeLayer(id uint64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.refs[id]
	if !ok {
		return 0, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return ref.maxLayer, nil
}

// Dimension returns the vector dimensionality, or 0 if not yet fixed.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int(s.header.Dimension)
}

// Metric returns the configured distance metric.
func (s *Store) Metric() distance.Metric {
	return s.header.Metric
}

// M returns the configured maximum degree per layer.
func (s *Store) M() int {
	return int(s.header.M)
}

// EFConstruction returns the configured construction beam width.
func (s *Store) EFConstruction() int {
	return int(s.header.EFConstruction)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the file handle. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", s.path, err)
	}
	return nil
}
