package domain

import "strings"

// LayoutStyleID はモックアップテンプレートのスタイル識別子です。
type LayoutStyleID string

const (
	StyleBasic           LayoutStyleID = "Basic"
	StyleRotated         LayoutStyleID = "Rotated"
	StyleRotatedLeftFace LayoutStyleID = "Rotated-left-facing"
)

// KnownStyles は静的レイアウト設定に必ずエントリを持つスタイル一覧です。
func KnownStyles() []LayoutStyleID {
	return []LayoutStyleID{StyleBasic, StyleRotated, StyleRotatedLeftFace}
}

// FontID はヘッドライン描画に使うフォント識別子です。
type FontID string

const (
	FontStandard    FontID = "standard"
	FontHandwritten FontID = "handwritten"
	FontModern      FontID = "modern"
)

// NormalizeFontID は未知のフォント指定を standard にフォールバックします。
func NormalizeFontID(id string) FontID {
	switch FontID(id) {
	case FontHandwritten, FontModern:
		return FontID(id)
	default:
		return FontStandard
	}
}

// MaxHeadlineLength はヘッドライン文字列の上限（文字数）です。
const MaxHeadlineLength = 50

// HeadlineSpec はステップ3で画像に焼き込むテキストの指定です。
// 独立しては永続化されず、最終画像と設定レコードに畳み込まれます。
type HeadlineSpec struct {
	Text  string
	Font  FontID
	Color string
}

// Validate はヘッドライン指定を検証します。空テキストはパススルー扱いのため許容します。
func (h HeadlineSpec) Validate() error {
	if len([]rune(h.Text)) > MaxHeadlineLength {
		return ErrInvalidInput
	}
	return nil
}

// BackgroundID は背景生成のプリセット識別子です。
type BackgroundID string

const (
	BackgroundCharcoal   BackgroundID = "charcoal"
	BackgroundDeepIndigo BackgroundID = "deep_indigo"
	BackgroundDarkSlate  BackgroundID = "dark_slate"
	BackgroundCustom     BackgroundID = "custom"
)

// backgroundPrompts はプリセットIDから生成モデルへ渡すスタイル文言への対応表です。
var backgroundPrompts = map[BackgroundID]string{
	BackgroundCharcoal:   "modern Black to light grey gradient",
	BackgroundDeepIndigo: "deep indigo to purple vibrant gradient",
	BackgroundDarkSlate:  "dark slate gray minimalist surface",
}

const defaultCustomPrompt = "modern minimalist background"

// ResolveBackgroundPrompt はプリセット／カスタム指定をスタイル文言へ解決します。
// 未知のプリセットは charcoal に、空のカスタム文言は既定文言にフォールバックします。
func ResolveBackgroundPrompt(id BackgroundID, custom string) string {
	if id == BackgroundCustom {
		if p := strings.TrimSpace(custom); p != "" {
			return p
		}
		return defaultCustomPrompt
	}
	if p, ok := backgroundPrompts[id]; ok {
		return p
	}
	return backgroundPrompts[BackgroundCharcoal]
}

// TransactionStatus は生成トランザクションの状態です。
// 終端状態（COMPLETED / FAILED）へは一度だけ遷移し、以後は変更されません。
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
)

// ImageResult は生成された画像データとそのメタデータです。
type ImageResult struct {
	Data     []byte
	MimeType string
}

// WarpRequest はステップ1（射影ワープ）への入力です。
type WarpRequest struct {
	Screenshot []byte
	Style      LayoutStyleID
}

// BackgroundRequest はステップ2（背景生成）への入力です。
type BackgroundRequest struct {
	Image        []byte
	BackgroundID BackgroundID
	CustomPrompt string
	Skip         bool
	Token        string
}

// TextRequest はステップ3（テキスト合成＋永続化）への入力です。
// Style / BackgroundID は設定レコードの記録用で、画像処理そのものには影響しません。
type TextRequest struct {
	Image        []byte
	Headline     HeadlineSpec
	Token        string
	Style        LayoutStyleID
	BackgroundID BackgroundID
}

// StepResult は中間ステップの成果物（画像＋継続トークン）です。
type StepResult struct {
	Image ImageResult
	Token string
}

// FinalResult はステップ3完了時の成果物です。
type FinalResult struct {
	Image    ImageResult
	AssetURL string
}

// GenerateRequest は単一呼び出しモード（3ステップ一括実行）への入力です。
type GenerateRequest struct {
	Screenshot   []byte
	Style        LayoutStyleID
	BackgroundID BackgroundID
	CustomPrompt string
	Skip         bool
	Headline     HeadlineSpec
}
