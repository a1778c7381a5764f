// Package indexes maintains the materialized secondary indexes of feedview.
//
// # Overview
//
// A Registry holds index Definitions in declaration order. Each definition
// names an ordered list of field paths; a record gets one entry per index
// whose every path resolves to a non-null, non-object value. There are no
// partial entries.
//
// The Indexer is the map stage. Index takes a batch of records, runs the
// validator, and writes entries for all registered indexes together with
// one changelog row per surviving record. The whole batch is a single store
// batch, so readers see all of it or nothing.
//
// # Key layout
//
//   - Entry:      'I' + str(index) + enc(c1) + ... + enc(cN) + 0x01 +
//     u64be(seq) + log -> locator TLV
//
//   - Changelog:  'C' + u64be(commit seq) -> locator TLV
//
//   - Head:       "Mhead" -> u64be(last commit seq)
//
//   - Checkpoint: 'S' + name -> TLV B<blob> H<xxhash64(blob)>
//
// enc is the order-preserving encoding of package keys, so a range of
// entry keys is a range of component values. The 0x01 suffix orders records
// with equal components by sequence, then by log.
//
// # Changelog
//
// Changelog rows are numbered in the order records became indexed, across
// all logs. Live readers take a snapshot and the head together (Snapshot),
// backfill from the snapshot, then follow rows above the head. Since both
// come from under the commit lock, every record is seen exactly once.
// Wait hands out a channel that the next commit closes.
//
// # Late indexes
//
// AddIndex registers a definition while records keep arriving. New commits
// index it inline right away. Older records are backfilled from the
// changelog as of registration, resolving each through the Resolver. Until
// the backfill finishes the entry is not Ready and the planner skips it.
//
// # Metrics
//
// Prometheus counters report batches, indexed and rejected records, entries
// per index, the changelog head and reindex runs, results and durations.
package indexes
