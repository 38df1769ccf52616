package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// User はクレジット残高を持つ利用者レコードです。
// 認証基盤は外部にあり、ここでは残高の器としてのみ扱います。
type User struct {
	ID        string `gorm:"type:text;primaryKey"`
	Credits   int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreditTransaction は生成1回分のクレジット消費を表す台帳レコードです。
// Amount は常に -1 で、Status が PENDING の間だけ払い戻しの対象になります。
type CreditTransaction struct {
	ID       uuid.UUID                `gorm:"type:uuid;primaryKey"`
	UserID   string                   `gorm:"type:text;not null;index"`
	Amount   int                      `gorm:"not null"`
	Status   domain.TransactionStatus `gorm:"type:text;not null;index"`
	Metadata string                   `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time
}

// RateLimitEntry は固定ウィンドウ方式のリクエスト記録です。
type RateLimitEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Key       string    `gorm:"type:text;not null;index"`
	CreatedAt time.Time `gorm:"not null;index"`
}

// Output は完成した成果物の所在と生成時の設定を記録します。
type Output struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID   string    `gorm:"type:text;not null;index"`
	URL      string    `gorm:"type:text;not null"`
	Settings string    `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;index"`
}

// Models は自動マイグレーション対象のモデル一覧を返します。
func Models() []any {
	return []any{&User{}, &CreditTransaction{}, &RateLimitEntry{}, &Output{}}
}
