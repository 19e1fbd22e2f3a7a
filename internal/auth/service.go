// Package auth はパスワード認証、トークン発行・検証、パスワードリセットを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sextafeira/sexta/internal/metrics"
	"github.com/sextafeira/sexta/internal/model"
	"github.com/sextafeira/sexta/internal/notify"
	"github.com/sextafeira/sexta/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ResetTokenTTL time.Duration // リセットトークンの有効期間
	ResetURLBase  string        // リセット画面のベースURL（BASE_URL）
}

// AuthResult は登録・ログイン成功時の結果。
// Accountにはパスワードハッシュやリセットトークンのハッシュを含まない。
type AuthResult struct {
	Account      *model.Account
	AccessToken  string
	RefreshToken string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	repo     repository.AccountRepository
	hasher   PasswordHasher
	tokens   *TokenManager
	notifier notify.ResetNotifier
	metrics  metrics.MetricsCollector
	config   ServiceConfig
	now      func() time.Time

	// 未登録メールアドレスでのログイン時にも照合コストを揃えるためのダミーハッシュ
	dummyOnce sync.Once
	dummyHash string
	dummyErr  error
}

// ServiceOption はServiceのオプション。
type ServiceOption func(*Service)

// WithMetrics はメトリクス収集を有効にする。
func WithMetrics(m metrics.MetricsCollector) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithServiceClock は現在時刻の取得関数を差し替える。
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService はServiceを生成する。
func NewService(
	repo repository.AccountRepository,
	hasher PasswordHasher,
	tokens *TokenManager,
	notifier notify.ResetNotifier,
	config ServiceConfig,
	opts ...ServiceOption,
) *Service {
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = DefaultResetTokenTTL
	}
	s := &Service{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register は新規アカウントを作成し、アクセストークンとリフレッシュトークンを発行する。
// メールアドレスが登録済みの場合はDUPLICATE_EMAILを返す。
func (s *Service) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateNewPassword(password); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		s.recordRegistration(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		s.recordRegistration(metrics.OutcomeFailure)
		return nil, model.NewDuplicateEmailError()
	}

	passwordHash, err := s.hash(ctx, password)
	if err != nil {
		s.recordRegistration(metrics.OutcomeError)
		return nil, err
	}

	now := s.now()
	account := &model.Account{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 同時登録はCreateの一意制約で検出される
	if err := s.repo.Create(ctx, account, passwordHash); err != nil {
		if model.IsCode(err, model.ErrCodeDuplicateEmail) {
			s.recordRegistration(metrics.OutcomeFailure)
			return nil, err
		}
		s.recordRegistration(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	result, err := s.issuePair(account)
	if err != nil {
		s.recordRegistration(metrics.OutcomeError)
		return nil, err
	}

	s.recordRegistration(metrics.OutcomeSuccess)
	slog.InfoContext(ctx, "account registered",
		slog.String("user_id", account.ID),
	)

	return result, nil
}

// Login はメールアドレスとパスワードを照合し、トークンを発行する。
// アカウントが存在しない場合とパスワードが誤っている場合は同一のINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("メールアドレスとパスワードは必須です")
	}

	creds, err := s.repo.FindCredentialsByEmail(ctx, email)
	if err != nil {
		s.recordLogin(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	if creds == nil {
		// 応答時間からアカウントの有無を推測されないよう、ダミーハッシュで照合する
		if err := s.verifyDummy(ctx, password); err != nil {
			s.recordLogin(metrics.OutcomeError)
			return nil, err
		}
		s.recordLogin(metrics.OutcomeFailure)
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.verify(ctx, password, creds.PasswordHash)
	if err != nil {
		s.recordLogin(metrics.OutcomeError)
		return nil, err
	}
	if !ok {
		s.recordLogin(metrics.OutcomeFailure)
		slog.InfoContext(ctx, "login failed",
			slog.String("user_id", creds.ID),
		)
		return nil, model.NewInvalidCredentialsError()
	}

	account := creds.Account
	result, err := s.issuePair(&account)
	if err != nil {
		s.recordLogin(metrics.OutcomeError)
		return nil, err
	}

	s.recordLogin(metrics.OutcomeSuccess)
	slog.InfoContext(ctx, "account logged in",
		slog.String("user_id", account.ID),
	)

	return result, nil
}

// Refresh はリフレッシュトークンを検証し、新しいアクセストークンのみを発行する。
// リフレッシュトークンはローテーションしない。
// 期限切れ・不正・アカウント削除済みはいずれもINVALID_TOKENを返す。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	subjectID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.recordRefresh(metrics.OutcomeFailure)
		return "", model.NewInvalidTokenError()
	}

	account, err := s.repo.FindByID(ctx, subjectID)
	if err != nil {
		s.recordRefresh(metrics.OutcomeError)
		return "", fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		s.recordRefresh(metrics.OutcomeFailure)
		return "", model.NewInvalidTokenError()
	}

	accessToken, err := s.tokens.IssueAccess(model.Principal{SubjectID: account.ID, Email: account.Email})
	if err != nil {
		s.recordRefresh(metrics.OutcomeError)
		return "", err
	}

	s.recordRefresh(metrics.OutcomeSuccess)
	return accessToken, nil
}

// Logout はログアウトを受け付ける。
// サーバー側でのトークン失効は行わず、発行済みトークンは有効期限まで有効なままとなる。
func (s *Service) Logout(ctx context.Context, subjectID string) error {
	slog.InfoContext(ctx, "account logged out",
		slog.String("user_id", subjectID),
	)
	return nil
}

// CurrentUser は認証済み主体のアカウントを返す。削除済みの場合はUSER_NOT_FOUNDを返す。
func (s *Service) CurrentUser(ctx context.Context, subjectID string) (*model.Account, error) {
	account, err := s.repo.FindByID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return account, nil
}

// ChangePassword は現在のパスワードを照合したうえで新しいパスワードに変更する。
// 現在のパスワードが一致しない場合は状態を変更せずINVALID_CREDENTIALSを返す。
func (s *Service) ChangePassword(ctx context.Context, subjectID, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return model.NewValidationError("現在のパスワードは必須です")
	}
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}

	creds, err := s.repo.FindCredentialsByID(ctx, subjectID)
	if err != nil {
		s.recordPasswordChange(metrics.OutcomeError)
		return fmt.Errorf("failed to find account: %w", err)
	}
	if creds == nil {
		s.recordPasswordChange(metrics.OutcomeFailure)
		return model.NewUserNotFoundError()
	}

	ok, err := s.verify(ctx, currentPassword, creds.PasswordHash)
	if err != nil {
		s.recordPasswordChange(metrics.OutcomeError)
		return err
	}
	if !ok {
		s.recordPasswordChange(metrics.OutcomeFailure)
		return model.NewInvalidCredentialsError()
	}

	newHash, err := s.hash(ctx, newPassword)
	if err != nil {
		s.recordPasswordChange(metrics.OutcomeError)
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, subjectID, newHash); err != nil {
		s.recordPasswordChange(metrics.OutcomeError)
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.recordPasswordChange(metrics.OutcomeSuccess)
	slog.InfoContext(ctx, "password changed",
		slog.String("user_id", subjectID),
	)
	return nil
}

// ForgotPassword はリセットトークンを発行し、通知手段に渡す。
// 未発行のリセットトークンは上書きされ即座に無効になる。
// アカウントの有無を推測されないよう、未登録のメールアドレスでもnilを返す。
// 通知の失敗はログに記録し、呼び出し元には返さない。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	s.observe(func(m metrics.MetricsCollector) { m.RecordResetRequested() })

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		slog.DebugContext(ctx, "password reset requested for unknown email")
		return nil
	}

	token, err := GenerateResetToken()
	if err != nil {
		return err
	}
	tokenHash, err := s.hash(ctx, token)
	if err != nil {
		return err
	}

	expiresAt := s.now().Add(s.config.ResetTokenTTL)
	if err := s.repo.SetResetToken(ctx, account.ID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	resetURL := notify.BuildResetURL(s.config.ResetURLBase, token)
	if err := s.notifier.SendPasswordReset(ctx, account.Email, account.Name, resetURL); err != nil {
		slog.ErrorContext(ctx, "failed to deliver password reset notification",
			slog.String("user_id", account.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	slog.InfoContext(ctx, "password reset issued",
		slog.String("user_id", account.ID),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// ResetPassword はリセットトークンを照合し、パスワードを再設定する。
// 一致するトークンがない場合、期限切れの場合、使用済みの場合はINVALID_OR_EXPIRED_TOKENを返す。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}
	if !isWellFormedResetToken(token) {
		s.recordResetCompleted(metrics.OutcomeFailure)
		return model.NewInvalidOrExpiredTokenError()
	}

	now := s.now()
	candidates, err := s.repo.ListActiveResetTokens(ctx, now)
	if err != nil {
		s.recordResetCompleted(metrics.OutcomeError)
		return fmt.Errorf("failed to list reset tokens: %w", err)
	}

	var matched *model.ResetCandidate
	for i := range candidates {
		ok, err := s.verify(ctx, token, candidates[i].ResetTokenHash)
		if err != nil {
			s.recordResetCompleted(metrics.OutcomeError)
			return err
		}
		if ok {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		s.recordResetCompleted(metrics.OutcomeFailure)
		return model.NewInvalidOrExpiredTokenError()
	}

	newHash, err := s.hash(ctx, newPassword)
	if err != nil {
		s.recordResetCompleted(metrics.OutcomeError)
		return err
	}

	// 照合後に他のリクエストが消費・上書きしていた場合は失敗とする
	consumed, err := s.repo.ConsumeResetToken(ctx, matched.AccountID, matched.ResetTokenHash, newHash, now)
	if err != nil {
		s.recordResetCompleted(metrics.OutcomeError)
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if !consumed {
		s.recordResetCompleted(metrics.OutcomeFailure)
		return model.NewInvalidOrExpiredTokenError()
	}

	s.recordResetCompleted(metrics.OutcomeSuccess)
	slog.InfoContext(ctx, "password reset completed",
		slog.String("user_id", matched.AccountID),
	)
	return nil
}

// VerifyAccess はアクセストークンを検証する。認証ミドルウェアから利用する。
func (s *Service) VerifyAccess(token string) (model.Principal, error) {
	return s.tokens.VerifyAccess(token)
}

// RefreshTTL はリフレッシュトークンの有効期間を返す。Cookieの有効期限に使う。
func (s *Service) RefreshTTL() time.Duration {
	return s.tokens.RefreshTTL()
}

func (s *Service) issuePair(account *model.Account) (*AuthResult, error) {
	accessToken, err := s.tokens.IssueAccess(model.Principal{SubjectID: account.ID, Email: account.Email})
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.IssueRefresh(account.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Account:      account,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *Service) hash(ctx context.Context, plaintext string) (string, error) {
	start := time.Now()
	hashed, err := s.hasher.Hash(ctx, plaintext)
	s.observe(func(m metrics.MetricsCollector) { m.RecordHashDuration("hash", time.Since(start)) })
	return hashed, err
}

func (s *Service) verify(ctx context.Context, plaintext, hashed string) (bool, error) {
	start := time.Now()
	ok, err := s.hasher.Verify(ctx, plaintext, hashed)
	s.observe(func(m metrics.MetricsCollector) { m.RecordHashDuration("verify", time.Since(start)) })
	return ok, err
}

func (s *Service) verifyDummy(ctx context.Context, password string) error {
	s.dummyOnce.Do(func() {
		s.dummyHash, s.dummyErr = s.hasher.Hash(context.Background(), "sexta-dummy-password")
	})
	if s.dummyErr != nil {
		return s.dummyErr
	}
	_, err := s.verify(ctx, password, s.dummyHash)
	return err
}

func (s *Service) observe(fn func(m metrics.MetricsCollector)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

func (s *Service) recordRegistration(outcome string) {
	s.observe(func(m metrics.MetricsCollector) { m.RecordRegistration(outcome) })
}

func (s *Service) recordLogin(outcome string) {
	s.observe(func(m metrics.MetricsCollector) { m.RecordLogin(outcome) })
}

func (s *Service) recordRefresh(outcome string) {
	s.observe(func(m metrics.MetricsCollector) { m.RecordRefresh(outcome) })
}

func (s *Service) recordPasswordChange(outcome string) {
	s.observe(func(m metrics.MetricsCollector) { m.RecordPasswordChange(outcome) })
}

func (s *Service) recordResetCompleted(outcome string) {
	s.observe(func(m metrics.MetricsCollector) { m.RecordResetCompleted(outcome) })
}
