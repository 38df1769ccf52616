package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// パイプライン全体で共有する失敗分類です。
// クレジット返金の要否を呼び出し側が判断できるよう、失敗の種別を区別します。
var (
	ErrAuthentication     = errors.New("認証されていません")
	ErrRateLimited        = errors.New("リクエストが多すぎます。しばらく待ってから再試行してください")
	ErrInsufficientCredit = errors.New("クレジットが不足しています")
	ErrInvalidInput       = errors.New("入力が不正です")
	ErrToken              = errors.New("トークンが無効または期限切れです")
	ErrDecode             = errors.New("画像をデコードできません")
	ErrTemplateNotFound   = errors.New("テンプレート画像が見つかりません")
	ErrConfiguration      = errors.New("レイアウト座標の設定が見つかりません")
	ErrGeometry           = errors.New("射影変換の計算に失敗しました")
	ErrPersistence        = errors.New("成果物の保存に失敗しました")
)

// CollaboratorKind は外部生成モデル呼び出しの失敗種別です。
type CollaboratorKind string

const (
	CollaboratorOverloaded    CollaboratorKind = "overloaded"
	CollaboratorQuotaExceeded CollaboratorKind = "quota_exceeded"
	CollaboratorSafetyBlocked CollaboratorKind = "safety_rejected"
	CollaboratorMisconfigured CollaboratorKind = "misconfigured"
	CollaboratorNoImage       CollaboratorKind = "no_image"
)

// CollaboratorError は外部生成モデルの失敗を種別付きで表します。
// ステップ内での自動リトライは行わない契約のため、種別は呼び出し側への
// リトライ可否のヒントとしてそのまま返します。
type CollaboratorError struct {
	Kind CollaboratorKind
	Err  error
}

func (e *CollaboratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("背景生成に失敗しました (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("背景生成に失敗しました (%s)", e.Kind)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// UserMessage は内部詳細を含まない利用者向けメッセージを返します。
func (e *CollaboratorError) UserMessage() string {
	switch e.Kind {
	case CollaboratorOverloaded:
		return "生成サービスが混み合っています。少し待ってから再試行してください"
	case CollaboratorQuotaExceeded:
		return "生成サービスの利用枠を使い切りました。しばらくしてから再試行してください"
	case CollaboratorSafetyBlocked:
		return "この画像は安全フィルターにより処理できませんでした。別の画像でお試しください"
	case CollaboratorMisconfigured:
		return "生成サービスの設定に問題があります。運営までお問い合わせください"
	default:
		return "背景の生成に失敗しました。再試行してください"
	}
}

// Retryable は同じ入力での再試行に意味がある失敗かどうかを返します。
func Retryable(err error) bool {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.Kind == CollaboratorOverloaded || ce.Kind == CollaboratorQuotaExceeded || ce.Kind == CollaboratorNoImage
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrPersistence)
}

// HTTPStatus は失敗分類を外部インターフェースのステータスコードへ写像します。
func HTTPStatus(err error) int {
	var ce *CollaboratorError
	switch {
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInsufficientCredit):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrToken):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDecode),
		errors.Is(err, ErrTemplateNotFound), errors.Is(err, ErrConfiguration):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		switch ce.Kind {
		case CollaboratorOverloaded:
			return http.StatusServiceUnavailable
		case CollaboratorQuotaExceeded:
			return http.StatusTooManyRequests
		default:
			return http.StatusInternalServerError
		}
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage は任意の失敗から利用者向けメッセージを取り出します。
// 分類外のエラーは内部詳細を漏らさず汎用メッセージに落とします。
func UserMessage(err error) string {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.UserMessage()
	}
	for _, sentinel := range []error{
		ErrAuthentication, ErrRateLimited, ErrInsufficientCredit, ErrInvalidInput,
		ErrToken, ErrDecode, ErrTemplateNotFound, ErrConfiguration, ErrGeometry, ErrPersistence,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "処理に失敗しました。再試行してください"
}
