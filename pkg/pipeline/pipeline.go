package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
	"github.com/shouni/phone-mockup-kit/pkg/ledger"
)

// GeometryWarper はステップ1（射影ワープ合成）を抽象化します。
type GeometryWarper interface {
	Warp(screenshot []byte, style domain.LayoutStyleID) ([]byte, error)
}

// BackgroundReplacer はステップ2（背景生成）を抽象化します。
type BackgroundReplacer interface {
	ReplaceBackground(ctx context.Context, imagePNG []byte, stylePrompt string) (*domain.ImageResult, error)
}

// TextOverlayer はステップ3（テキスト合成）を抽象化します。
type TextOverlayer interface {
	Overlay(imagePNG []byte, spec domain.HeadlineSpec) ([]byte, error)
}

// CreditLedger は台帳操作のうちパイプラインが必要とする範囲です。
type CreditLedger interface {
	Debit(ctx context.Context, userID string, metadata map[string]any) (*ledger.CreditTransaction, error)
	Transaction(ctx context.Context, txID uuid.UUID) (*ledger.CreditTransaction, error)
	Complete(ctx context.Context, txID uuid.UUID) error
	Refund(ctx context.Context, txID uuid.UUID) error
	RecordOutput(ctx context.Context, userID, url string, settings map[string]any) error
}

// RateGate はリクエスト頻度の制御を抽象化します。
type RateGate interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// Pipeline は3ステップの画像生成を、クレジット消費と継続トークンで束ねる状態機械です。
// 各ステップはステートレスで、順序と整合性はトークンの検証だけで保証されます。
type Pipeline struct {
	warper      GeometryWarper
	synthesizer BackgroundReplacer
	compositor  TextOverlayer
	ledger      CreditLedger
	gate        RateGate
	tokens      *TokenService
	assets      AssetStore

	rateLimit  int
	rateWindow time.Duration
	now        func() time.Time
}

// NewPipeline は全依存関係を注入して Pipeline を初期化します。
func NewPipeline(
	warper GeometryWarper,
	synthesizer BackgroundReplacer,
	compositor TextOverlayer,
	creditLedger CreditLedger,
	gate RateGate,
	tokens *TokenService,
	assets AssetStore,
) (*Pipeline, error) {
	if warper == nil {
		return nil, fmt.Errorf("warper (GeometryWarper) is required")
	}
	if synthesizer == nil {
		return nil, fmt.Errorf("synthesizer (BackgroundReplacer) is required")
	}
	if compositor == nil {
		return nil, fmt.Errorf("compositor (TextOverlayer) is required")
	}
	if creditLedger == nil {
		return nil, fmt.Errorf("creditLedger (CreditLedger) is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("gate (RateGate) is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("tokens (*TokenService) is required")
	}
	if assets == nil {
		return nil, fmt.Errorf("assets (AssetStore) is required")
	}
	return &Pipeline{
		warper:      warper,
		synthesizer: synthesizer,
		compositor:  compositor,
		ledger:      creditLedger,
		gate:        gate,
		tokens:      tokens,
		assets:      assets,
		rateLimit:   ledger.DefaultRateLimit,
		rateWindow:  ledger.DefaultRateWindow,
		now:         time.Now,
	}, nil
}

// StepWarp はレート制限とクレジット消費を経てスクリーンショットを端末へはめ込みます。
// ワープに失敗した場合はその場で返金し、PENDING を残しません。
func (p *Pipeline) StepWarp(ctx context.Context, userID string, req domain.WarpRequest) (*domain.StepResult, error) {
	if !p.gate.Allow(ctx, "step1:"+userID, p.rateLimit, p.rateWindow) {
		return nil, domain.ErrRateLimited
	}

	tx, err := p.ledger.Debit(ctx, userID, map[string]any{"style": string(req.Style)})
	if err != nil {
		return nil, err
	}

	warped, err := p.warper.Warp(req.Screenshot, req.Style)
	if err != nil {
		if refundErr := p.ledger.Refund(ctx, tx.ID); refundErr != nil {
			slog.ErrorContext(ctx, "ワープ失敗後の返金に失敗しました",
				"transaction_id", tx.ID, "error", refundErr)
		}
		return nil, err
	}

	token, err := p.tokens.Issue(userID, 1, tx.ID, ImageHash(warped))
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "ワープ合成が完了しました", "user_id", userID, "transaction_id", tx.ID)
	return &domain.StepResult{
		Image: domain.ImageResult{Data: warped, MimeType: "image/png"},
		Token: token,
	}, nil
}

// StepBackground はレート制限とステップ1トークンの検証を経て、背景を生成モデルで置き換えます。
// Skip 指定時は画像をそのまま通し、トークンだけを次ステップ用に再発行します。
// 生成モデルの失敗時は返金してトランザクションを閉じます。
func (p *Pipeline) StepBackground(ctx context.Context, userID string, req domain.BackgroundRequest) (*domain.StepResult, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: 画像がありません", domain.ErrInvalidInput)
	}
	if !p.gate.Allow(ctx, "step2:"+userID, p.rateLimit, p.rateWindow) {
		return nil, domain.ErrRateLimited
	}

	claims, err := p.tokens.Verify(req.Token, userID, 1, ImageHash(req.Image))
	if err != nil {
		return nil, err
	}
	txID, _, err := p.pendingTransaction(ctx, claims.TransactionID)
	if err != nil {
		return nil, err
	}

	if req.Skip {
		token, err := p.tokens.Issue(userID, 2, txID, ImageHash(req.Image))
		if err != nil {
			return nil, err
		}
		return &domain.StepResult{
			Image: domain.ImageResult{Data: req.Image, MimeType: "image/png"},
			Token: token,
		}, nil
	}

	prompt := domain.ResolveBackgroundPrompt(req.BackgroundID, req.CustomPrompt)
	result, err := p.synthesizer.ReplaceBackground(ctx, req.Image, prompt)
	if err != nil {
		if refundErr := p.ledger.Refund(ctx, txID); refundErr != nil {
			slog.ErrorContext(ctx, "背景生成失敗後の返金に失敗しました",
				"transaction_id", txID, "error", refundErr)
		}
		return nil, err
	}

	token, err := p.tokens.Issue(userID, 2, txID, ImageHash(result.Data))
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "背景生成が完了しました", "user_id", userID, "transaction_id", txID)
	return &domain.StepResult{Image: *result, Token: token}, nil
}

// StepText はレート制限とステップ2トークンの検証を経て、テキストを焼き込んで成果物を永続化します。
// 保存に失敗した場合はトランザクションを PENDING のまま残し、定期返金に委ねます。
func (p *Pipeline) StepText(ctx context.Context, userID string, req domain.TextRequest) (*domain.FinalResult, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: 画像がありません", domain.ErrInvalidInput)
	}
	if !p.gate.Allow(ctx, "step3:"+userID, p.rateLimit, p.rateWindow) {
		return nil, domain.ErrRateLimited
	}

	claims, err := p.tokens.Verify(req.Token, userID, 2, ImageHash(req.Image))
	if err != nil {
		return nil, err
	}
	txID, _, err := p.pendingTransaction(ctx, claims.TransactionID)
	if err != nil {
		return nil, err
	}

	final, err := p.compositor.Overlay(req.Image, req.Headline)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("mockup-%d.png", p.now().Unix())
	url, err := p.assets.Save(ctx, userID, name, final)
	if err != nil {
		return nil, err
	}

	settings := map[string]any{
		"style":      string(req.Style),
		"background": string(req.BackgroundID),
		"headline":   req.Headline.Text,
		"font":       string(req.Headline.Font),
		"color":      req.Headline.Color,
	}
	if err := p.ledger.RecordOutput(ctx, userID, url, settings); err != nil {
		// 成果物自体は保存済みのため、記録の失敗で全体を失敗させない
		slog.WarnContext(ctx, "成果物レコードの保存に失敗しました", "url", url, "error", err)
	}

	if err := p.ledger.Complete(ctx, txID); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "生成が完了しました", "user_id", userID, "transaction_id", txID, "url", url)
	return &domain.FinalResult{
		Image:    domain.ImageResult{Data: final, MimeType: "image/png"},
		AssetURL: url,
	}, nil
}

// GenerateAll は3ステップを単一呼び出しで連結して実行します。
// progress は各ステージ開始時に呼ばれます（nil 可）。
func (p *Pipeline) GenerateAll(ctx context.Context, userID string, req domain.GenerateRequest, progress func(stage string)) (*domain.FinalResult, error) {
	notify := func(stage string) {
		if progress != nil {
			progress(stage)
		}
	}

	notify("warp")
	step1, err := p.StepWarp(ctx, userID, domain.WarpRequest{
		Screenshot: req.Screenshot,
		Style:      req.Style,
	})
	if err != nil {
		return nil, err
	}

	notify("background")
	step2, err := p.StepBackground(ctx, userID, domain.BackgroundRequest{
		Image:        step1.Image.Data,
		BackgroundID: req.BackgroundID,
		CustomPrompt: req.CustomPrompt,
		Skip:         req.Skip,
		Token:        step1.Token,
	})
	if err != nil {
		return nil, err
	}

	notify("text")
	return p.StepText(ctx, userID, domain.TextRequest{
		Image:        step2.Image.Data,
		Headline:     req.Headline,
		Token:        step2.Token,
		Style:        req.Style,
		BackgroundID: req.BackgroundID,
	})
}

// pendingTransaction はトークン内のトランザクションIDを解決し、PENDING であることを確認します。
func (p *Pipeline) pendingTransaction(ctx context.Context, raw string) (uuid.UUID, *ledger.CreditTransaction, error) {
	txID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: トランザクションIDが不正です", domain.ErrToken)
	}
	tx, err := p.ledger.Transaction(ctx, txID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if tx.Status != domain.TxPending {
		return uuid.Nil, nil, fmt.Errorf("%w: トランザクションは既に確定しています", domain.ErrToken)
	}
	return txID, tx, nil
}
