// Package record defines the animal record shapes shared by the local stores,
// the backend client, and the display layer, plus the codec that normalizes
// raw form input before anything is written to storage.
//
// A record exists in one of two places on the device:
//   - Pending: created or edited locally, not yet acknowledged by the backend.
//     Identified by a store-local LocalID.
//   - Cached: mirrored from the last full backend snapshot. Identified by the
//     backend-assigned numeric ID.
//
// Because a pending record has no backend ID, the pair (animal number,
// creation timestamp) is used to correlate the two. See DedupKey.
package record
