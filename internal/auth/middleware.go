package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vietbevis/clothes-shop-chat/internal/errs"
)

type contextKey string

const ctxUID contextKey = "uid"

// Verifier is the verified-token decode shared by the HTTP middleware and
// the websocket handshake: decrypt the token, then require a live session.
type Verifier struct {
	Secret   string
	Sessions *SessionStore
}

func (v *Verifier) Verify(ctx context.Context, token string) (*TokenPayload, error) {
	p, err := ParseToken(token, v.Secret)
	if err != nil {
		return nil, errs.Unauthorized("invalid token")
	}
	ok, err := v.Sessions.Exists(ctx, token)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if !ok {
		return nil, errs.Unauthorized("session expired")
	}
	return p, nil
}

type Config struct {
	Header       string
	BearerPrefix string
	QueryKey     string
	PublicPaths  []string
}

func (c Config) isPublic(path string) bool {
	for _, p := range c.PublicPaths {
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Wrap enforces token auth on every path not listed as public.
func Wrap(cfg Config, v *Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tok := ExtractToken(r, cfg.Header, cfg.BearerPrefix, cfg.QueryKey)
		if tok == "" {
			writeUnauthorized(w, "missing token")
			return
		}
		p, err := v.Verify(r.Context(), tok)
		if err != nil {
			writeUnauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUID(r.Context(), p.UserID)))
	})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"kind": errs.KindUnauthorized, "message": msg},
	})
}

// WithUID attaches the authenticated user id to ctx.
func WithUID(ctx context.Context, uid int64) context.Context {
	return context.WithValue(ctx, ctxUID, uid)
}

// UIDFromContext returns the authenticated user id, 0 when absent.
func UIDFromContext(ctx context.Context) int64 {
	v, _ := ctx.Value(ctxUID).(int64)
	return v
}
