// Package internal contains helper utilities that are intentionally private to goDeliver,
// most notably secure random generation for one-time passwords and download tokens.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for checkout and redemption
//   - stores: credential store backends (memory, Redis)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goDeliver API.
//   - Be imported by any package outside the goDeliver module.
package internal
