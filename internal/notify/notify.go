// Package notify はパスワードリセットなどの利用者向け通知の送信を提供する。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
)

// ResetNotifier はパスワードリセット用リンクを利用者に届けるインターフェース。
// resetURLには平文のリセットトークンが含まれるため、実装はこれをログに出力してはならない。
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, to, name, resetURL string) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendFunc はメール送信処理。テストで差し替える。
type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// SMTPNotifier はSMTPでリセットメールを送信するResetNotifierの実装。
type SMTPNotifier struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSMTPNotifier はSMTPNotifierを生成する。
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{
		cfg: cfg,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendPasswordReset はリセット用リンクを含むメールを送信する。
func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = n.cfg.From
	e.To = []string{to}
	e.Subject = "パスワード再設定のご案内"
	e.Text = []byte(resetMailBody(name, resetURL))

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	if err := n.send(e, addr, auth); err != nil {
		return fmt.Errorf("failed to send password reset mail: %w", err)
	}
	return nil
}

func resetMailBody(name, resetURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 様\n\n", name)
	b.WriteString("パスワード再設定のリクエストを受け付けました。\n")
	b.WriteString("以下のリンクから新しいパスワードを設定してください。\n\n")
	b.WriteString(resetURL)
	b.WriteString("\n\nこのリンクは一度のみ有効です。心当たりがない場合はこのメールを破棄してください。\n")
	return b.String()
}

// LogNotifier はメールを送信せず、送信イベントのみをログに記録するResetNotifierの実装。
// SMTP未設定の開発環境で使用する。リセットURLは記録しない。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendPasswordReset は送信先のみをログに記録する。
func (n *LogNotifier) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	n.logger.InfoContext(ctx, "password reset notification suppressed (SMTP not configured)",
		slog.String("to", to),
	)
	return nil
}

// BuildResetURL はフロントエンドのリセット画面URLにトークンを付与する。
func BuildResetURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/reset-password/" + url.PathEscape(token)
}

// compile-time interface check
var (
	_ ResetNotifier = (*SMTPNotifier)(nil)
	_ ResetNotifier = (*LogNotifier)(nil)
)
