// Package stores persists outstanding OTP records in Redis.
//
// Each email maps to one hash holding the SHA-256 of the code, its expiry in
// unix milliseconds and the failed attempt count. Verification runs as a
// single Lua script so concurrent wrong guesses cannot overshoot the attempt
// ceiling. The store never sees a plaintext code.
package stores
