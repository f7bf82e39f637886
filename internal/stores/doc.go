// Package stores provides the short-lived credential stores behind the
// purchase redemption flow: one-time passwords keyed by (account, item) and
// single-use download tokens keyed by an opaque identifier.
//
// # Design
//
// Two backends implement [CredentialStore]. [MemoryCredentialStore] guards two
// maps with one coarse mutex, so every operation is a single critical section.
// [RedisCredentialStore] persists versioned, binary-encoded records with a TTL;
// redemption uses WATCH/MULTI optimistic transactions with bounded retry and
// token consumption uses GETDEL, so check-expiry-and-delete is indivisible.
// OTP secrets are stored as SHA-256 digests and compared in constant time.
// Expiry is checked lazily at access time on both backends.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for credentials. It
// does NOT decide what a caller is told about a failed redemption; the flows
// package collapses every store error on that path into one generic denial.
//
// # What this package must NOT do
//
//   - Import goDeliver or any sibling internal package other than internal.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores
