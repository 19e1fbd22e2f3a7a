// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sextafeira/sexta/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済み主体を格納するためのキー。
var principalContextKey = contextKey("principal")

// AccessTokenVerifier はアクセストークンの検証に必要なインターフェース。
type AccessTokenVerifier interface {
	VerifyAccess(token string) (model.Principal, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済み主体をリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダー不在・形式不正・期限切れ・改ざんはいずれも同一の401 UNAUTHORIZEDを返す。
func NewAuthMiddleware(verifier AccessTokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w)
				return
			}

			principal, err := verifier.VerifyAccess(token)
			if err != nil || principal.SubjectID == "" {
				writeUnauthorized(w)
				return
			}

			setLoggedUserID(r.Context(), principal.SubjectID)
			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewOptionalAuthMiddleware は有効なBearerトークンがある場合のみ認証済み主体を注入する。
// トークンが無い、または無効な場合もリクエストはそのまま後続に渡す。
func NewOptionalAuthMiddleware(verifier AccessTokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			principal, err := verifier.VerifyAccess(token)
			if err != nil || principal.SubjectID == "" {
				next.ServeHTTP(w, r)
				return
			}
			setLoggedUserID(r.Context(), principal.SubjectID)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから認証済み主体を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	if !ok || principal.SubjectID == "" {
		return model.Principal{}, false
	}
	return principal, true
}

// ContextWithPrincipal はコンテキストに認証済み主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。スキーム名の大文字小文字は区別しない。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="sexta"`)
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}
