// Package goDeliver grants time-limited, single-use access to purchased digital
// files. A checkout issues one one-time password (OTP) per purchased item and
// embeds them in a rendered invoice; an OTP is exchanged for a download token
// that lives five minutes and can be spent exactly once.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goDeliver is the public surface. It exposes [Engine], [Builder], [Config], the
// collaborator interfaces ([AccountDirectory], [FileRegistry], [InvoiceRenderer],
// [PurchaseLedger]) and value types. Flow orchestration and credential storage
// live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or record encodings in its public API.
//   - Tell a caller why a redemption was denied. The reason goes to audit only.
//   - Log or audit plaintext OTP secrets.
//   - Import any sub-package that re-imports goDeliver (no import cycles).
package goDeliver
