// Package store implements the single-file persistent store backing the
// database: vector records with metadata, per-node per-layer neighbor
// lists, and the header that ties them together.
//
// # File layout
//
//   - Header region: 64 bytes at offset 0 (magic, version, metric,
//     dimension, construction parameters, entry point, max layer, count,
//     committed tail, CRC32).
//   - Record region: append-only frames, each carrying id, assigned layer,
//     label, optional description, the vector, and a CRC32.
//   - Topology slots: directly after each record frame, one fixed-capacity
//     neighbor slot per layer (2M ids at layer 0, M above), updated in
//     place.
//
// # Durability
//
// Every mutating method writes and fsyncs before returning. The header is
// rewritten only by Commit, after everything it references is durable, so
// a crash between writes leaves at worst an unreferenced tail that the
// next Open truncates. Individual record frames and neighbor slots are
// each written with a single positioned write and carry their own
// checksum, so readers never observe a torn record.
package store
