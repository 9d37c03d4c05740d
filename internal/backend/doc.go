// Package backend talks to the herd registry REST service.
//
// Only the surface the sync engine consumes is implemented:
//
//	POST   /register               create one record, responds with its id
//	PUT    /register/update        update by (animalNumber, createdAt)
//	DELETE /register               delete by (animalNumber, createdAt)
//	GET    /export-multi-tenant    full snapshot, {count, items} or a bare array
//
// Every request carries "Authorization: Bearer <token>" from a TokenSource.
// A missing token fails before anything is sent.
//
// Request bodies use the client's camelCase field names. Snapshot rows come
// back in the service's snake_case and are decoded leniently: ids and
// weights may arrive as JSON numbers or numeric strings, dates as full
// timestamps.
package backend
