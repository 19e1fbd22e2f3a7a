package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sextafeira/sexta/internal/model"
)

// トークン種別。typクレームに格納し、検証時に一致を確認する。
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrTokenExpired はトークンの有効期限切れを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid は署名不正・形式不正・種別不一致などを表す。
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenClaims はアクセストークン・リフレッシュトークン共通のクレーム。
// Emailはアクセストークンのみに含まれる。
type TokenClaims struct {
	jwt.RegisteredClaims
	Type  string `json:"typ"`
	Email string `json:"email,omitempty"`
}

// TokenConfig はトークン発行の設定。
// AccessSecretとRefreshSecretは必須で、互いに異なる値でなければならない。
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenManager はアクセストークンとリフレッシュトークンの発行・検証を行う。
// 種別ごとに独立したシークレットで署名する。
type TokenManager struct {
	config TokenConfig
	now    func() time.Time
}

// TokenOption はTokenManagerのオプション。
type TokenOption func(*TokenManager)

// WithClock は現在時刻の取得関数を差し替える。テストで有効期限を制御する際に使う。
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// NewTokenManager はTokenManagerを生成する。
// シークレットが未設定、または両シークレットが同一の場合はエラーを返す。
func NewTokenManager(config TokenConfig, opts ...TokenOption) (*TokenManager, error) {
	if len(config.AccessSecret) == 0 {
		return nil, fmt.Errorf("access token secret is required")
	}
	if len(config.RefreshSecret) == 0 {
		return nil, fmt.Errorf("refresh token secret is required")
	}
	if string(config.AccessSecret) == string(config.RefreshSecret) {
		return nil, fmt.Errorf("access and refresh token secrets must differ")
	}
	if config.AccessTTL <= 0 || config.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}

	m := &TokenManager{
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// IssueAccess はprincipalのアクセストークンを発行する。
func (m *TokenManager) IssueAccess(principal model.Principal) (string, error) {
	return m.sign(principal.SubjectID, principal.Email, tokenTypeAccess, m.config.AccessTTL, m.config.AccessSecret)
}

// IssueRefresh はsubjectIDのリフレッシュトークンを発行する。
func (m *TokenManager) IssueRefresh(subjectID string) (string, error) {
	return m.sign(subjectID, "", tokenTypeRefresh, m.config.RefreshTTL, m.config.RefreshSecret)
}

// VerifyAccess はアクセストークンを検証し、principalを返す。
// 期限切れはErrTokenExpired、それ以外の失敗はErrTokenInvalidを返す。
func (m *TokenManager) VerifyAccess(token string) (model.Principal, error) {
	claims, err := m.parse(token, tokenTypeAccess, m.config.AccessSecret)
	if err != nil {
		return model.Principal{}, err
	}
	return model.Principal{SubjectID: claims.Subject, Email: claims.Email}, nil
}

// VerifyRefresh はリフレッシュトークンをリフレッシュ用シークレットのみで検証し、subjectIDを返す。
func (m *TokenManager) VerifyRefresh(token string) (string, error) {
	claims, err := m.parse(token, tokenTypeRefresh, m.config.RefreshSecret)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// AccessTTL はアクセストークンの有効期間を返す。
func (m *TokenManager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// RefreshTTL はリフレッシュトークンの有効期間を返す。
func (m *TokenManager) RefreshTTL() time.Duration {
	return m.config.RefreshTTL
}

func (m *TokenManager) sign(subjectID, email, tokenType string, ttl time.Duration, secret []byte) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("subject ID is required")
	}

	now := m.now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:  tokenType,
		Email: email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (m *TokenManager) parse(token, tokenType string, secret []byte) (*TokenClaims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.Type != tokenType || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
