package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sextafeira/sexta/internal/model"
	"github.com/sextafeira/sexta/internal/repository"
)

// --- テスト用の実装 ---

// memoryAccountRepo はインメモリのAccountRepository。
type memoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount

	// 指定時にエラーを返す
	findErr error
}

type memoryAccount struct {
	account     model.Account
	hash        string
	resetHash   string
	resetExpiry time.Time
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{accounts: make(map[string]*memoryAccount)}
}

func (r *memoryAccountRepo) byEmail(email string) *memoryAccount {
	for _, a := range r.accounts {
		if a.account.Email == email {
			return a
		}
	}
	return nil
}

func (r *memoryAccountRepo) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if a := r.byEmail(email); a != nil {
		acc := a.account
		return &acc, nil
	}
	return nil, nil
}

func (r *memoryAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if a, ok := r.accounts[id]; ok {
		acc := a.account
		return &acc, nil
	}
	return nil, nil
}

func (r *memoryAccountRepo) FindCredentialsByEmail(_ context.Context, email string) (*model.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if a := r.byEmail(email); a != nil {
		return &model.Credentials{Account: a.account, PasswordHash: a.hash}, nil
	}
	return nil, nil
}

func (r *memoryAccountRepo) FindCredentialsByID(_ context.Context, id string) (*model.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return &model.Credentials{Account: a.account, PasswordHash: a.hash}, nil
	}
	return nil, nil
}

func (r *memoryAccountRepo) Create(_ context.Context, account *model.Account, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byEmail(account.Email) != nil {
		return model.NewDuplicateEmailError()
	}
	r.accounts[account.ID] = &memoryAccount{account: *account, hash: passwordHash}
	return nil
}

func (r *memoryAccountRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return model.NewUserNotFoundError()
	}
	a.hash = passwordHash
	return nil
}

func (r *memoryAccountRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return model.NewUserNotFoundError()
	}
	a.resetHash, a.resetExpiry = tokenHash, expiresAt
	return nil
}

func (r *memoryAccountRepo) ClearResetToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return model.NewUserNotFoundError()
	}
	a.resetHash, a.resetExpiry = "", time.Time{}
	return nil
}

func (r *memoryAccountRepo) ListActiveResetTokens(_ context.Context, now time.Time) ([]model.ResetCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ResetCandidate
	for id, a := range r.accounts {
		if a.resetHash != "" && a.resetExpiry.After(now) {
			out = append(out, model.ResetCandidate{AccountID: id, ResetTokenHash: a.resetHash, ResetExpiresAt: a.resetExpiry})
		}
	}
	return out, nil
}

func (r *memoryAccountRepo) ConsumeResetToken(_ context.Context, id, tokenHash, newPasswordHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.resetHash != tokenHash || !a.resetExpiry.After(now) {
		return false, nil
	}
	a.hash = newPasswordHash
	a.resetHash, a.resetExpiry = "", time.Time{}
	return true, nil
}

func (r *memoryAccountRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return model.NewUserNotFoundError()
	}
	delete(r.accounts, id)
	return nil
}

func (r *memoryAccountRepo) storedHash(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].hash
}

var _ repository.AccountRepository = (*memoryAccountRepo)(nil)

// fakeHasher はbcryptを使わない高速なPasswordHasher。呼び出しごとに異なるハッシュを返す。
type fakeHasher struct {
	mu      sync.Mutex
	counter int
	hashErr error
}

func (h *fakeHasher) Hash(_ context.Context, plaintext string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	h.mu.Lock()
	h.counter++
	n := h.counter
	h.mu.Unlock()
	return fmt.Sprintf("fake$%d$%s", n, plaintext), nil
}

func (h *fakeHasher) Verify(_ context.Context, plaintext, hashed string) (bool, error) {
	parts := strings.SplitN(hashed, "$", 3)
	if len(parts) != 3 || parts[0] != "fake" {
		return false, errors.New("malformed hash")
	}
	return parts[2] == plaintext, nil
}

// recordingNotifier は送信されたリセットURLを記録する。
type recordingNotifier struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, to, name, resetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, resetURL)
	return n.err
}

func (n *recordingNotifier) lastToken(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.urls) == 0 {
		t.Fatal("no reset notification was sent")
	}
	u, err := url.Parse(n.urls[len(n.urls)-1])
	if err != nil {
		t.Fatalf("invalid reset URL: %v", err)
	}
	return path.Base(u.Path)
}

type serviceFixture struct {
	svc      *Service
	repo     *memoryAccountRepo
	hasher   *fakeHasher
	notifier *recordingNotifier
	clock    *testClock
	tokens   *TokenManager
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	tokens := newTestTokenManager(t, clock)
	repo := newMemoryAccountRepo()
	hasher := &fakeHasher{}
	notifier := &recordingNotifier{}
	svc := NewService(repo, hasher, tokens, notifier, ServiceConfig{
		ResetTokenTTL: time.Hour,
		ResetURLBase:  "https://app.example.com",
	}, WithServiceClock(clock.Now))
	return &serviceFixture{svc: svc, repo: repo, hasher: hasher, notifier: notifier, clock: clock, tokens: tokens}
}

func mustRegister(t *testing.T, f *serviceFixture, email, password, name string) *AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), email, password, name)
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return result
}

// --- テスト ---

// TestService_ConcreteScenario は登録・ログイン・失敗・期限切れの一連の流れを検証する。
func TestService_ConcreteScenario(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	reg := mustRegister(t, f, "a@x.com", "Secret123!", "Ana")
	if reg.Account.Email != "a@x.com" {
		t.Errorf("registered email = %q, want %q", reg.Account.Email, "a@x.com")
	}

	login, err := f.svc.Login(ctx, "a@x.com", "Secret123!")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(login.AccessToken, claims); err != nil {
		t.Fatalf("failed to decode access token: %v", err)
	}
	if claims.Email != "a@x.com" {
		t.Errorf("access token email claim = %q, want %q", claims.Email, "a@x.com")
	}

	if _, err := f.svc.Login(ctx, "a@x.com", "wrong"); !model.IsCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("Login(wrong) error = %v, want INVALID_CREDENTIALS", err)
	}

	f.clock.Advance(16 * time.Minute)
	if _, err := f.tokens.VerifyAccess(login.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("VerifyAccess after TTL = %v, want ErrTokenExpired", err)
	}
}

func TestService_RegisterThenLogin_SameSubject(t *testing.T) {
	tests := []struct {
		email    string
		password string
		name     string
	}{
		{"a@x.com", "Secret123!", "Ana"},
		{"  Mixed.Case@Example.ORG ", "correct horse battery", "Bo"},
		{"taro@example.jp", "パスワード1234", "山田太郎"},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			f := newServiceFixture(t)
			ctx := context.Background()

			reg := mustRegister(t, f, tt.email, tt.password, tt.name)
			login, err := f.svc.Login(ctx, tt.email, tt.password)
			if err != nil {
				t.Fatalf("Login returned error: %v", err)
			}

			regPrincipal, err := f.svc.VerifyAccess(reg.AccessToken)
			if err != nil {
				t.Fatalf("VerifyAccess(register) returned error: %v", err)
			}
			loginPrincipal, err := f.svc.VerifyAccess(login.AccessToken)
			if err != nil {
				t.Fatalf("VerifyAccess(login) returned error: %v", err)
			}
			if regPrincipal.SubjectID != loginPrincipal.SubjectID {
				t.Errorf("subject mismatch: %q vs %q", regPrincipal.SubjectID, loginPrincipal.SubjectID)
			}
			if loginPrincipal.Email != NormalizeEmail(tt.email) {
				t.Errorf("principal email = %q, want %q", loginPrincipal.Email, NormalizeEmail(tt.email))
			}
		})
	}
}

func TestService_Register_DoesNotStorePlaintext(t *testing.T) {
	f := newServiceFixture(t)
	reg := mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	if got := f.repo.storedHash(reg.Account.ID); got == "Secret123!" || got == "" {
		t.Errorf("stored hash = %q, want a hash", got)
	}
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	_, err := f.svc.Register(context.Background(), "A@X.COM", "Another123!", "Other")
	if !model.IsCode(err, model.ErrCodeDuplicateEmail) {
		t.Errorf("Register error = %v, want DUPLICATE_EMAIL", err)
	}
}

func TestService_Register_Validation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		user     string
	}{
		{"メールアドレス不正", "not-an-email", "Secret123!", "Ana"},
		{"パスワードが短い", "a@x.com", "short", "Ana"},
		{"名前が短い", "a@x.com", "Secret123!", " A "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			_, err := f.svc.Register(context.Background(), tt.email, tt.password, tt.user)
			if !model.IsCode(err, model.ErrCodeValidation) {
				t.Errorf("Register error = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

// TestService_Register_HashFailureIsInternal はハッシュ化の失敗が認証エラーにならないことを検証する。
func TestService_Register_HashFailureIsInternal(t *testing.T) {
	f := newServiceFixture(t)
	f.hasher.hashErr = errors.New("entropy exhausted")

	_, err := f.svc.Register(context.Background(), "a@x.com", "Secret123!", "Ana")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("hash failure should not be an APIError, got %v", apiErr)
	}
}

// TestService_Login_UniformInvalidCredentials は未登録とパスワード誤りが同一エラーになることを検証する。
func TestService_Login_UniformInvalidCredentials(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	_, wrongPassword := f.svc.Login(ctx, "a@x.com", "WrongPass1!")
	_, unknownEmail := f.svc.Login(ctx, "nobody@x.com", "WrongPass1!")

	var a, b *model.APIError
	if !errors.As(wrongPassword, &a) || !errors.As(unknownEmail, &b) {
		t.Fatalf("expected APIErrors, got %v and %v", wrongPassword, unknownEmail)
	}
	if *a != *b {
		t.Errorf("errors differ: %+v vs %+v", a, b)
	}
	if a.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", a.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestService_Login_RepositoryErrorIsInternal(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.findErr = errors.New("connection reset")

	_, err := f.svc.Login(context.Background(), "a@x.com", "Secret123!")
	if err == nil || model.IsCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("Login error = %v, want internal error", err)
	}
}

func TestService_Refresh(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	reg := mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	t.Run("新しいアクセストークンを発行", func(t *testing.T) {
		access, err := f.svc.Refresh(ctx, reg.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh returned error: %v", err)
		}
		principal, err := f.svc.VerifyAccess(access)
		if err != nil {
			t.Fatalf("VerifyAccess returned error: %v", err)
		}
		if principal.SubjectID != reg.Account.ID || principal.Email != "a@x.com" {
			t.Errorf("principal = %+v", principal)
		}
	})

	t.Run("アクセストークンでは再発行できない", func(t *testing.T) {
		if _, err := f.svc.Refresh(ctx, reg.AccessToken); !model.IsCode(err, model.ErrCodeInvalidToken) {
			t.Errorf("Refresh(access) error = %v, want INVALID_TOKEN", err)
		}
	})

	t.Run("不正なトークン", func(t *testing.T) {
		if _, err := f.svc.Refresh(ctx, "garbage"); !model.IsCode(err, model.ErrCodeInvalidToken) {
			t.Errorf("Refresh(garbage) error = %v, want INVALID_TOKEN", err)
		}
	})

	t.Run("削除済みアカウント", func(t *testing.T) {
		if err := f.repo.DeleteByID(ctx, reg.Account.ID); err != nil {
			t.Fatalf("DeleteByID returned error: %v", err)
		}
		if _, err := f.svc.Refresh(ctx, reg.RefreshToken); !model.IsCode(err, model.ErrCodeInvalidToken) {
			t.Errorf("Refresh(deleted) error = %v, want INVALID_TOKEN", err)
		}
	})
}

func TestService_Refresh_Expired(t *testing.T) {
	f := newServiceFixture(t)
	reg := mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	f.clock.Advance(8 * 24 * time.Hour)
	if _, err := f.svc.Refresh(context.Background(), reg.RefreshToken); !model.IsCode(err, model.ErrCodeInvalidToken) {
		t.Errorf("Refresh(expired) error = %v, want INVALID_TOKEN", err)
	}
}

func TestService_CurrentUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	reg := mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	account, err := f.svc.CurrentUser(ctx, reg.Account.ID)
	if err != nil {
		t.Fatalf("CurrentUser returned error: %v", err)
	}
	if account.Name != "Ana" {
		t.Errorf("Name = %q, want %q", account.Name, "Ana")
	}

	if _, err := f.svc.CurrentUser(ctx, "missing"); !model.IsCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("CurrentUser(missing) error = %v, want USER_NOT_FOUND", err)
	}
}

func TestService_Logout(t *testing.T) {
	f := newServiceFixture(t)
	if err := f.svc.Logout(context.Background(), "user-1"); err != nil {
		t.Errorf("Logout returned error: %v", err)
	}
}

func TestService_ChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	reg := mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	if err := f.svc.ChangePassword(ctx, reg.Account.ID, "Secret123!", "NewSecret456!"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if _, err := f.svc.Login(ctx, "a@x.com", "NewSecret456!"); err != nil {
		t.Errorf("Login with new password failed: %v", err)
	}
	if _, err := f.svc.Login(ctx, "a@x.com", "Secret123!"); !model.IsCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("Login with old password error = %v, want INVALID_CREDENTIALS", err)
	}
}

// TestService_ChangePassword_WrongCurrent は現在のパスワード誤りでハッシュが変わらないことを検証する。
func TestService_ChangePassword_WrongCurrent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	reg := mustRegister(t, f, "a@x.com", "Secret123!", "Ana")
	before := f.repo.storedHash(reg.Account.ID)

	err := f.svc.ChangePassword(ctx, reg.Account.ID, "NotMyPassword", "NewSecret456!")
	if !model.IsCode(err, model.ErrCodeInvalidCredentials) {
		t.Fatalf("ChangePassword error = %v, want INVALID_CREDENTIALS", err)
	}
	if after := f.repo.storedHash(reg.Account.ID); after != before {
		t.Errorf("stored hash changed: %q -> %q", before, after)
	}
}

func TestService_ChangePassword_Validation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	reg := mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	if err := f.svc.ChangePassword(ctx, reg.Account.ID, "", "NewSecret456!"); !model.IsCode(err, model.ErrCodeValidation) {
		t.Errorf("empty current password error = %v, want VALIDATION_ERROR", err)
	}
	if err := f.svc.ChangePassword(ctx, reg.Account.ID, "Secret123!", "short"); !model.IsCode(err, model.ErrCodeValidation) {
		t.Errorf("short new password error = %v, want VALIDATION_ERROR", err)
	}
}

func TestService_ForgotAndResetPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	if err := f.svc.ForgotPassword(ctx, "A@x.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	token := f.notifier.lastToken(t)
	if !isWellFormedResetToken(token) {
		t.Fatalf("delivered token is malformed: %q", token)
	}

	if err := f.svc.ResetPassword(ctx, token, "Brand-new-1"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}
	if _, err := f.svc.Login(ctx, "a@x.com", "Brand-new-1"); err != nil {
		t.Errorf("Login with reset password failed: %v", err)
	}

	// 使用済みトークンは再利用できない
	if err := f.svc.ResetPassword(ctx, token, "Another-new-2"); !model.IsCode(err, model.ErrCodeInvalidOrExpiredToken) {
		t.Errorf("second ResetPassword error = %v, want INVALID_OR_EXPIRED_TOKEN", err)
	}
}

// TestService_ForgotPassword_SupersedesPreviousToken は再発行で前のトークンが無効になることを検証する。
func TestService_ForgotPassword_SupersedesPreviousToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	if err := f.svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	first := f.notifier.lastToken(t)

	if err := f.svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	second := f.notifier.lastToken(t)

	if err := f.svc.ResetPassword(ctx, first, "Brand-new-1"); !model.IsCode(err, model.ErrCodeInvalidOrExpiredToken) {
		t.Errorf("ResetPassword(first) error = %v, want INVALID_OR_EXPIRED_TOKEN", err)
	}
	if err := f.svc.ResetPassword(ctx, second, "Brand-new-1"); err != nil {
		t.Errorf("ResetPassword(second) returned error: %v", err)
	}
}

func TestService_ResetPassword_Expired(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	mustRegister(t, f, "a@x.com", "Secret123!", "Ana")

	if err := f.svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	token := f.notifier.lastToken(t)

	f.clock.Advance(time.Hour + time.Second)
	if err := f.svc.ResetPassword(ctx, token, "Brand-new-1"); !model.IsCode(err, model.ErrCodeInvalidOrExpiredToken) {
		t.Errorf("ResetPassword(expired) error = %v, want INVALID_OR_EXPIRED_TOKEN", err)
	}
}

func TestService_ResetPassword_UnknownToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	mustRegister(t, f, "a@x.com", "Secret123!", "Ana")
	if err := f.svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"形式不正", "not-a-token"},
		{"未発行", strings.Repeat("0", ResetTokenBytes*2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.svc.ResetPassword(ctx, tt.token, "Brand-new-1"); !model.IsCode(err, model.ErrCodeInvalidOrExpiredToken) {
				t.Errorf("ResetPassword error = %v, want INVALID_OR_EXPIRED_TOKEN", err)
			}
		})
	}
}

// TestService_ResetPassword_ConcurrentSingleUse は同一トークンの同時使用で成功が1件のみであることを検証する。
func TestService_ResetPassword_ConcurrentSingleUse(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	mustRegister(t, f, "a@x.com", "Secret123!", "Ana")
	if err := f.svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	token := f.notifier.lastToken(t)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.ResetPassword(ctx, token, fmt.Sprintf("Concurrent-%02d", i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !model.IsCode(err, model.ErrCodeInvalidOrExpiredToken) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", succeeded)
	}
}

// TestService_ForgotPassword_UnknownEmail は未登録でもエラーを返さず通知もしないことを検証する。
func TestService_ForgotPassword_UnknownEmail(t *testing.T) {
	f := newServiceFixture(t)

	if err := f.svc.ForgotPassword(context.Background(), "nobody@x.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	if len(f.notifier.urls) != 0 {
		t.Errorf("notification sent for unknown email: %v", f.notifier.urls)
	}
}

func TestService_ForgotPassword_NotifierFailureIsAcknowledged(t *testing.T) {
	f := newServiceFixture(t)
	mustRegister(t, f, "a@x.com", "Secret123!", "Ana")
	f.notifier.err = errors.New("smtp down")

	if err := f.svc.ForgotPassword(context.Background(), "a@x.com"); err != nil {
		t.Errorf("ForgotPassword returned error: %v", err)
	}
}

func TestService_ForgotPassword_InvalidEmail(t *testing.T) {
	f := newServiceFixture(t)

	if err := f.svc.ForgotPassword(context.Background(), "bad"); !model.IsCode(err, model.ErrCodeValidation) {
		t.Errorf("ForgotPassword error = %v, want VALIDATION_ERROR", err)
	}
}

// TestService_WithBcrypt は実際のbcryptで登録・ログインが成立することを検証する。
func TestService_WithBcrypt(t *testing.T) {
	clock := &testClock{t: time.Now()}
	svc := NewService(newMemoryAccountRepo(), NewBcryptHasher(MinBcryptCost, 2), newTestTokenManager(t, clock),
		&recordingNotifier{}, ServiceConfig{ResetURLBase: "https://app.example.com"}, WithServiceClock(clock.Now))
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@x.com", "Secret123!", "Ana"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if _, err := svc.Login(ctx, "a@x.com", "Secret123!"); err != nil {
		t.Errorf("Login returned error: %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@x.com", "Secret123!"); !model.IsCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("Login(unknown) error = %v, want INVALID_CREDENTIALS", err)
	}
}
