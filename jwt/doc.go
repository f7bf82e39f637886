// Package jwt issues and verifies the short-lived bearer tokens that
// authorize the storefront's admin endpoints.
package jwt
