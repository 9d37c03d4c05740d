// Package kv provides the device-local key space the sync engine persists to.
//
// The key space is a flat map of string keys to opaque byte values, with two
// backings:
//   - SQLite: durable, one row per key in table kv (mattn/go-sqlite3).
//   - Memory: process-local, for tests and ephemeral runs.
//
// Both enforce an optional byte quota over the sum of stored values, so the
// callers see the same "quota exceeded" failure a browser-style local store
// produces. A write that would exceed the quota fails with ErrQuotaExceeded
// and leaves every key unchanged.
//
// Both also implement Leaser. The sync coordinator holds a lease for the
// length of a pass so that two processes sharing one database file never
// push the same queue at once.
//
// The SQLite file runs in WAL mode with synchronous=NORMAL and a 5 second
// busy timeout, through a single connection per handle. Schema changes are
// tracked in PRAGMA user_version.
package kv
