// Package cleanup は期限切れパスワードリセットトークンの定期クリアジョブを提供する。
// 期限切れのトークンは照合時にも無視されるが、ハッシュと有効期限のペアを
// 同時にNULLへ戻して行を整理しておく。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/sextafeira/sexta/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const clearExpiredResetTokensQuery = `UPDATE accounts
 SET reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = now()
 WHERE reset_token_expiry IS NOT NULL AND reset_token_expiry <= $1`

// CleanupJob は期限切れリセットトークンのクリアジョブ。
// 冪等であり、対象がなくてもエラーにならない。
type CleanupJob struct {
	db      Executor
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。collectorはnilでもよい。
func NewCleanupJob(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *CleanupJob {
	return &CleanupJob{
		db:      db,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// Run は有効期限が現在時刻以前のリセットトークンをクリアする。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, clearExpiredResetTokensQuery, j.now())
	if err != nil {
		j.logger.Error("リセットトークンのクリアに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("リセットトークンのクリアに失敗: %w", err)
	}

	clearedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("クリア件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("クリア件数の取得に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordResetTokensCleared(clearedCount)
	}

	duration := time.Since(start)
	j.logger.Info("リセットトークンのクリアジョブが完了しました",
		slog.Int64("cleared_count", clearedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、以降interval毎にRunを実行する。ctxがキャンセルされるまでブロックする。
// 実行失敗はログに記録して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("cleanup run failed, will retry on next tick")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Warn("cleanup run failed, will retry on next tick")
			}
		}
	}
}
