// Package middleware holds the net/http middleware shared by the storefront
// routes.
//
//   - [RequireAdmin] guards admin routes with a bearer token verified by
//     jwt.Manager and injects the claims into the request context.
//   - [RequestContext] attaches a request id and client IP for audit events.
//
// Neither middleware makes decisions of its own beyond pass or reject.
package middleware
