// Package httpapi exposes the contestauth engine over JSON HTTP.
//
// [NewRouter] mounts signup, OTP verification, signin, refresh and signout
// under a prefix (default /api/v1/user) using gorilla/mux, plus /health and
// an optional /metrics handler at the root. The refresh token only ever
// travels in the refreshToken cookie; response bodies carry the access token.
// Engine errors are mapped to status codes through [contestauth.KindOf].
package httpapi
