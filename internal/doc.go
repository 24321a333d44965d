// Package internal holds helpers private to contestauth: OTP code generation
// and hashing.
//
// Sub-packages:
//
//   - rate: Redis fixed-window counters for signin and code requests
//   - stores: the Redis OTP record store
package internal
