// Package engine reconciles the local pending queue with the herd registry.
//
// The Coordinator runs a sync pass in two phases. PUSH creates every pending
// record on the backend, one at a time and in insertion order, removing each
// record from the queue as soon as the backend confirms it. FETCH then
// replaces the server cache with a full snapshot. A failed push leaves the
// record queued for the next pass; a failed fetch leaves the previous
// snapshot in place.
//
// Only one pass runs at a time. A Sync call that arrives while another is in
// flight returns ErrSyncInProgress without touching the stores or the
// backend.
//
// The Mutator edits and deletes records outside a full pass and reports what
// happened as an Outcome. The Assembler merges both stores into the list a
// user sees, pending records first. Components publish what they did on a
// Bus so views can refresh without being called directly.
package engine
