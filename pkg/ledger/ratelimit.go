package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DefaultRateLimit は1ウィンドウあたりの既定の許可リクエスト数です。
	DefaultRateLimit = 10
	// DefaultRateWindow は固定ウィンドウの既定幅です。
	DefaultRateWindow = 60 * time.Second
)

// RateLimiter は DB に記録を残す固定ウィンドウ方式のレートリミッターです。
// 複数プロセスから同じ DB を共有しても上限が一貫します。
type RateLimiter struct {
	db *gorm.DB
}

// NewRateLimiter は DB ハンドルを注入して RateLimiter を初期化します。
func NewRateLimiter(db *gorm.DB) (*RateLimiter, error) {
	if db == nil {
		return nil, fmt.Errorf("db (*gorm.DB) is required")
	}
	return &RateLimiter{db: db}, nil
}

// Allow はキーに対するリクエストを記録し、ウィンドウ内の件数が上限以下なら true を返します。
// DB 障害時は制限せずに通します。レート制限の不調で本処理を巻き添えにしないためです。
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	since := time.Now().Add(-window)

	var count int64
	err := r.db.WithContext(ctx).Model(&RateLimitEntry{}).
		Where("key = ? AND created_at >= ?", key, since).
		Count(&count).Error
	if err != nil {
		slog.WarnContext(ctx, "レート制限の集計に失敗したため制限せずに通します", "key", key, "error", err)
		return true
	}
	if count >= int64(limit) {
		return false
	}

	entry := &RateLimitEntry{ID: uuid.New(), Key: key}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		slog.WarnContext(ctx, "レート制限の記録に失敗しました", "key", key, "error", err)
	}
	return true
}

// Prune はウィンドウ外の古い記録を削除します。
func (r *RateLimiter) Prune(ctx context.Context, olderThan time.Duration) error {
	threshold := time.Now().Add(-olderThan)
	err := r.db.WithContext(ctx).
		Where("created_at < ?", threshold).
		Delete(&RateLimitEntry{}).Error
	if err != nil {
		return fmt.Errorf("レート制限記録の削除に失敗しました: %w", err)
	}
	return nil
}
