// Package store provides durable, crash-safe persistence of hierarchical
// JSON documents scoped by project and sub-path.
//
// The facade composes four collaborators:
//   - filestore: raw file access with atomic temp+rename writes
//   - cache: TTL + LRU + byte-budget in-memory cache
//   - writequeue: per-project FIFO serialization of mutations
//   - schema: legacy alias migration and advisory validation
//
// Reads consult the cache and fall through to disk plus normalization.
// Writes acquire the project's FIFO chain, normalize, persist atomically,
// invalidate the cache, and release. All mutations for one project execute
// strictly sequentially, even across document names and sub-paths; reads
// never block on the queue, so callers needing read-your-writes semantics
// must await the save before reading.
//
// On-disk layout:
//
//	{dataDir}/{name}.json                                   global scope
//	{dataDir}/projects/{projectID}/{name}.json              project scope
//	{dataDir}/projects/{projectID}/paths/{path}/{name}.json path scope
//
// Coordination is in-process only: atomic rename still prevents partial-file
// corruption when separate OS processes share a data directory, but the
// write queue's total-order guarantee does not extend across processes.
package store
