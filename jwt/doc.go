// Package jwt mints and verifies the access and refresh tokens handed out by
// the auth engine. Both token kinds carry a typ claim and are never accepted
// in place of one another.
package jwt
