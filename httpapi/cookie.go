package httpapi

import (
	"net/http"
	"time"

	"github.com/code100x/contestauth"
)

func refreshCookie(cfg contestauth.Config, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.Cookie.Name,
		Value:    value,
		Path:     cfg.Cookie.Path,
		Domain:   cfg.Cookie.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure(),
		SameSite: cfg.Cookie.SameSite,
	}
}

func setRefreshCookie(w http.ResponseWriter, cfg contestauth.Config, token string) {
	http.SetCookie(w, refreshCookie(cfg, token, int(cfg.JWT.RefreshTTL/time.Second)))
}

// clearRefreshCookie sends Max-Age=0 with the same attributes so the browser
// drops the cookie it holds.
func clearRefreshCookie(w http.ResponseWriter, cfg contestauth.Config) {
	http.SetCookie(w, refreshCookie(cfg, "", -1))
}

func readRefreshCookie(r *http.Request, cfg contestauth.Config) string {
	c, err := r.Cookie(cfg.Cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}
