// Package store holds the two device-local collections the sync engine works
// against, plus the one-shot migration from the older single-table layout.
//
//   - PendingStore: queue of records the backend has not acknowledged yet.
//     Append and remove only; never rewritten by merge logic.
//   - ServerCache: last known full backend snapshot. Replace only; every Set
//     overwrites all prior content.
//   - Migrator: splits the legacy table into the two collections above.
//
// Both collections persist through a kv.Store. Storage failures (quota,
// serialization) are logged and leave the persisted state unchanged; they
// are never propagated into code paths that do not expect them.
package store
