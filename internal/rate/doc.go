// Package rate implements fixed-window Redis counters: INCR, then EXPIRE on
// the first hit of a window.
//
// Key prefixes:
//   - rl:login:     failed signins per email
//   - rl:login-ip:  failed signins per client IP
//   - rl:otp:       code requests per email
//   - rl:otp-ip:    code requests per client IP
package rate
