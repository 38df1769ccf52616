package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// 購入金額（セント）から付与クレジット数への対応表。
var creditsByAmountCents = map[int]int{
	1000: 10,
	5000: 70,
}

// Ledger はクレジット残高と消費トランザクションを管理する台帳です。
// すべての更新は gorm のトランザクション内で行い、残高が負になる経路を持ちません。
type Ledger struct {
	db *gorm.DB
}

// NewLedger は DB ハンドルを注入して Ledger を初期化します。
func NewLedger(db *gorm.DB) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("db (*gorm.DB) is required")
	}
	return &Ledger{db: db}, nil
}

// Credits は現在の残高を返します。ユーザー未登録は残高0として扱います。
func (l *Ledger) Credits(ctx context.Context, userID string) (int, error) {
	var user User
	err := l.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("残高の取得に失敗しました: %w", err)
	}
	return user.Credits, nil
}

// Debit は残高を1減らし、PENDING のトランザクションを作成します。
// 減算は `credits > 0` を条件に行うため、同時実行でも残高が負になりません。
// 残高が足りない場合は何も書き込まず ErrInsufficientCredit を返します。
func (l *Ledger) Debit(ctx context.Context, userID string, metadata map[string]any) (*CreditTransaction, error) {
	record := &CreditTransaction{
		ID:     uuid.New(),
		UserID: userID,
		Amount: -1,
		Status: domain.TxPending,
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			record.Metadata = string(raw)
		} else {
			slog.WarnContext(ctx, "メタデータの整形に失敗しました", "user_id", userID, "error", err)
		}
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&User{}).
			Where("id = ? AND credits > 0", userID).
			UpdateColumn("credits", gorm.Expr("credits - ?", 1))
		if result.Error != nil {
			return fmt.Errorf("残高の減算に失敗しました: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrInsufficientCredit
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("トランザクションの作成に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "クレジットを消費しました", "user_id", userID, "transaction_id", record.ID)
	return record, nil
}

// Transaction はトランザクションを取得します。見つからない場合は ErrToken を返します。
// 継続トークンが指すレコードの実在確認に使うため、不在はトークン異常として扱います。
func (l *Ledger) Transaction(ctx context.Context, txID uuid.UUID) (*CreditTransaction, error) {
	var record CreditTransaction
	err := l.db.WithContext(ctx).First(&record, "id = ?", txID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: トランザクションが見つかりません", domain.ErrToken)
		}
		return nil, fmt.Errorf("トランザクションの取得に失敗しました: %w", err)
	}
	return &record, nil
}

// Complete はトランザクションを COMPLETED に確定します。
// 既に終端状態（COMPLETED/FAILED）のレコードには何もしません。
func (l *Ledger) Complete(ctx context.Context, txID uuid.UUID) error {
	result := l.db.WithContext(ctx).Model(&CreditTransaction{}).
		Where("id = ? AND status = ?", txID, domain.TxPending).
		Update("status", domain.TxCompleted)
	if result.Error != nil {
		return fmt.Errorf("トランザクションの確定に失敗しました: %w", result.Error)
	}
	return nil
}

// Refund は PENDING のトランザクションを FAILED にし、残高を1戻します。
// 状態の再確認と返金を同一トランザクションで行うため、二重返金は起きません。
func (l *Ledger) Refund(ctx context.Context, txID uuid.UUID) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record CreditTransaction
		if err := tx.First(&record, "id = ?", txID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return fmt.Errorf("トランザクションの取得に失敗しました: %w", err)
		}
		if record.Status != domain.TxPending {
			return nil
		}

		result := tx.Model(&CreditTransaction{}).
			Where("id = ? AND status = ?", txID, domain.TxPending).
			Update("status", domain.TxFailed)
		if result.Error != nil {
			return fmt.Errorf("トランザクションの失敗記録に失敗しました: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&User{}).
			Where("id = ?", record.UserID).
			UpdateColumn("credits", gorm.Expr("credits + ?", 1)).Error; err != nil {
			return fmt.Errorf("返金に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "クレジットを返金しました", "transaction_id", txID)
	return nil
}

// SweepStale は一定時間を過ぎても PENDING のままのトランザクションをまとめて返金します。
// 個々の返金は独立して処理し、1件の失敗が残りを止めないようにします。
func (l *Ledger) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	threshold := time.Now().Add(-olderThan)

	var stale []CreditTransaction
	err := l.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.TxPending, threshold).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("滞留トランザクションの検索に失敗しました: %w", err)
	}

	refunded := 0
	for _, record := range stale {
		if err := l.Refund(ctx, record.ID); err != nil {
			slog.WarnContext(ctx, "滞留トランザクションの返金に失敗しました",
				"transaction_id", record.ID, "error", err)
			continue
		}
		refunded++
	}

	if refunded > 0 {
		slog.InfoContext(ctx, "滞留トランザクションを返金しました", "count", refunded)
	}
	return refunded, nil
}

// Grant は購入金額に応じてクレジットを付与します。
// explicitCredits が正の場合はそちらを優先し、対応表にない金額は付与せずエラーを返します。
func (l *Ledger) Grant(ctx context.Context, userID string, amountCents, explicitCredits int) (int, error) {
	credits := explicitCredits
	if credits <= 0 {
		mapped, ok := creditsByAmountCents[amountCents]
		if !ok {
			return 0, fmt.Errorf("%w: 未対応の購入金額です (%d)", domain.ErrInvalidInput, amountCents)
		}
		credits = mapped
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.First(&user, "id = ?", userID).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			return tx.Create(&User{ID: userID, Credits: credits}).Error
		case err != nil:
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		default:
			return tx.Model(&User{}).
				Where("id = ?", userID).
				UpdateColumn("credits", gorm.Expr("credits + ?", credits)).Error
		}
	})
	if err != nil {
		return 0, fmt.Errorf("クレジットの付与に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "クレジットを付与しました", "user_id", userID, "credits", credits)
	return credits, nil
}

// RecordOutput は完成した成果物と生成設定を記録します。
func (l *Ledger) RecordOutput(ctx context.Context, userID, url string, settings map[string]any) error {
	record := &Output{
		ID:     uuid.New(),
		UserID: userID,
		URL:    url,
	}
	if settings != nil {
		if raw, err := json.Marshal(settings); err == nil {
			record.Settings = string(raw)
		} else {
			slog.WarnContext(ctx, "設定レコードの整形に失敗しました", "user_id", userID, "url", url, "error", err)
		}
	}
	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("成果物の記録に失敗しました: %w", err)
	}
	return nil
}

// Outputs はユーザーの成果物を新しい順に返します。
func (l *Ledger) Outputs(ctx context.Context, userID string, limit int) ([]Output, error) {
	if limit <= 0 {
		limit = 50
	}
	var outputs []Output
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&outputs).Error
	if err != nil {
		return nil, fmt.Errorf("成果物一覧の取得に失敗しました: %w", err)
	}
	return outputs, nil
}
