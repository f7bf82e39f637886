// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunCheckout, RunExchangeSecret, RunFetch,
// RunStatusCheck) accepts a typed dependency struct and returns results
// without side-effects beyond those dependencies. This keeps the Engine type
// thin and lets every branch be tested with stub dependencies.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store, account directory,
// invoice renderer, purchase ledger, file registry, audit dispatcher and
// metrics. They do NOT own any of these resources; ownership stays with the
// Engine.
//
// Redemption flows translate every store failure into the single public
// denial error. The precise reason is only passed to EmitAudit.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goDeliver (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
