// Package middleware guards HTTP handlers with contestauth access tokens.
//
// [RequireAuth] reads the Authorization header, validates the bearer token
// and stores the claims in the request context. [RequireRole] and
// [RequireAdmin] add a role check on top. Tokens are verified locally; no
// store is consulted.
package middleware
