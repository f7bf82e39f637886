// Package httpapi exposes the storefront over HTTP with a chi router.
//
// Buyer routes drive the credential lifecycle: POST /checkout issues one-time
// passwords, POST /verify-password trades one for a download link, and
// GET /download/{token} spends that link. Every refused redemption gets the
// same response whatever the cause. Admin routes manage the catalog and
// require a bearer token minted by POST /admin/login.
package httpapi
