// Package contestauth implements the authentication session lifecycle of
// the contest platform: email one-time passcodes with bounded attempts and
// expiry, stateless access and refresh JWTs, and signin.
//
// Build an [Engine] with [New]:
//
//	engine, err := contestauth.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithUserStore(users).
//		WithMailer(mailer).
//		Build()
//
// OTP records live in Redis and are verified by a single Lua script, so the
// attempt ceiling holds under concurrent guesses. Tokens carry a typ claim
// and access tokens are never accepted where a refresh token is expected.
//
// There is no server-side session table. Refresh tokens are not rotated and
// cannot be revoked before they expire; [Engine.SecurityReport] states this
// explicitly.
//
// Sub-packages: httpapi serves the HTTP surface, session is the client-side
// manager that renews access tokens ahead of expiry, memstore and mongostore
// implement [UserStore], mail implements [Mailer].
package contestauth
