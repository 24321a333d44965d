// Package session is the client half of the session lifecycle.
//
// A [Manager] holds the current access token and user profile in memory and
// renews the token shortly before it expires by calling a [Refresher]. Any
// renewal failure signs the client out. The refresh token itself never passes
// through this package: [HTTPRefresher] keeps it in a cookie jar and the
// server reads it from the refreshToken cookie.
//
// # Timers
//
// A Manager owns at most one pending renewal timer. Every reschedule, logout
// and close stops the old timer and advances a generation counter; a callback
// or refresh result carrying an older generation is discarded, so a timer
// that fires after logout cannot restore the session.
package session
