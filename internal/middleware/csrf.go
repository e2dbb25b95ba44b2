package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/habits/internal/model"
)

const (
	// csrfCookieName はダブルサブミット用トークンのCookie名。JavaScriptから読めるようHttpOnlyにしない。
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfTokenBytes = 32
	csrfCookieTTL  = 24 * 60 * 60
)

// CSRFConfig はCSRFミドルウェアの設定。
// TrustedOriginsはCookie一致に加えてOriginヘッダーを許可するオリジン。空ならOrigin検査は行わない。
type CSRFConfig struct {
	CookieSecure   bool
	CookieDomain   string
	TrustedOrigins []string
}

type csrfGuard struct {
	config  CSRFConfig
	origins map[string]bool
}

func newCSRFGuard(config CSRFConfig) *csrfGuard {
	origins := make(map[string]bool, len(config.TrustedOrigins))
	for _, o := range config.TrustedOrigins {
		origins[o] = true
	}
	return &csrfGuard{config: config, origins: origins}
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF検証ミドルウェアを返す。
// GET/HEAD/OPTIONSは検証せず、トークンCookieが無ければ発行する。
// それ以外のメソッドはCookieとX-CSRF-Tokenヘッダーの一致を要求し、失敗時は403 CSRF_INVALID。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	g := newCSRFGuard(config)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if _, err := r.Cookie(csrfCookieName); err != nil {
					if _, err := g.issue(w); err != nil {
						slog.ErrorContext(r.Context(), "failed to generate CSRF token", slog.String("error", err.Error()))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if reason := g.check(r); reason != "" {
				slog.WarnContext(r.Context(), "CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFInvalidError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler は {"token": ...} を返すハンドラー。Cookieに既存トークンがあればそれを使う。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	g := newCSRFGuard(config)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(csrfCookieName); err == nil {
			token = c.Value
		}
		if token == "" {
			var err error
			if token, err = g.issue(w); err != nil {
				slog.ErrorContext(r.Context(), "failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

// check は検証失敗の理由を返す。通過時は空文字列。
func (g *csrfGuard) check(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && len(g.origins) > 0 && !g.origins[origin] && !sameHost(origin, r.Host) {
		return "untrusted origin"
	}

	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	switch {
	case header == "":
		return "missing header token"
	case subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1:
		return "token mismatch"
	}
	return ""
}

func (g *csrfGuard) issue(w http.ResponseWriter) (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   g.config.CookieDomain,
		MaxAge:   csrfCookieTTL,
		Secure:   g.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	return err == nil && u.Host == host
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
