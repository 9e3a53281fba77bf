package goGate

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// cookieCodec seals refresh JWTs into tamper-evident cookie values. The JWT
// already carries its own signature; the cookie layer adds an HMAC over the
// cookie name and, with a block key, encryption.
type cookieCodec struct {
	name  string
	codec *securecookie.SecureCookie
}

func newCookieCodec(cfg RefreshConfig, maxAge time.Duration) *cookieCodec {
	var block []byte
	if cfg.CookieBlockKey != "" {
		block = []byte(cfg.CookieBlockKey)
	}
	sc := securecookie.New([]byte(cfg.CookieHashKey), block)
	sc.SetSerializer(securecookie.NopEncoder{})
	sc.MaxAge(int(maxAge / time.Second))
	return &cookieCodec{name: cfg.CookieName, codec: sc}
}

func (c *cookieCodec) Encode(token string) (string, error) {
	return c.codec.Encode(c.name, []byte(token))
}

func (c *cookieCodec) Decode(value string) (string, error) {
	var raw []byte
	if err := c.codec.Decode(c.name, value, &raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func (e *Engine) refreshCookie(value string, expires time.Time) *http.Cookie {
	cfg := e.config.Refresh
	sameSite, _ := parseSameSite(cfg.CookieSameSite)
	c := &http.Cookie{
		Name:     cfg.CookieName,
		Value:    value,
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		HttpOnly: true,
		SameSite: sameSite,
	}
	if value == "" {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		return c
	}
	c.Expires = expires
	c.MaxAge = int(expires.Sub(e.now()) / time.Second)
	return c
}

// setRefreshCookie writes the sealed refresh cookie and the CSRF header of g.
func (e *Engine) setRefreshCookie(w http.ResponseWriter, g *Grant) {
	http.SetCookie(w, e.refreshCookie(g.RefreshToken, g.RefreshExpiresAt))
	w.Header().Set(e.config.Refresh.CSRFHeader, g.CSRFToken)
}

func (e *Engine) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, e.refreshCookie("", time.Time{}))
}

// refreshCookieValue returns the raw refresh cookie of r, or "".
func (e *Engine) refreshCookieValue(r *http.Request) string {
	c, err := r.Cookie(e.config.Refresh.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
