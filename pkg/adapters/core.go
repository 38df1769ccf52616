package adapters

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// GenerativeClient は画像生成モデルとの通信を抽象化するインターフェースです。
type GenerativeClient interface {
	GenerateImage(ctx context.Context, model string, parts []*genai.Part, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenaiClient は google.golang.org/genai SDK を使った GenerativeClient の本番実装です。
type GenaiClient struct {
	client *genai.Client
}

// NewGenaiClient は SDK クライアントを注入して GenaiClient を初期化します。
func NewGenaiClient(client *genai.Client) (*GenaiClient, error) {
	if client == nil {
		return nil, fmt.Errorf("client (*genai.Client) is required")
	}
	return &GenaiClient{client: client}, nil
}

// GenerateImage は単一ユーザーターンとして生成リクエストを実行します。
func (c *GenaiClient) GenerateImage(ctx context.Context, model string, parts []*genai.Part, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	contents := []*genai.Content{{Parts: parts, Role: genai.RoleUser}}
	return c.client.Models.GenerateContent(ctx, model, contents, cfg)
}

// ExtractImage は生成モデルの応答から最初の画像パートを取り出します。
// 応答の入れ子構造をたどるのはこの関数だけであり、下流は型付きの結果だけを扱います。
func ExtractImage(resp *genai.GenerateContentResponse) (*domain.ImageResult, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &domain.CollaboratorError{
			Kind: domain.CollaboratorNoImage,
			Err:  errors.New("生成モデルからの有効な応答がありませんでした"),
		}
	}

	// 現在の仕様では最初の候補 (Candidate) のみを利用する。
	candidate := resp.Candidates[0]

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &domain.ImageResult{
					Data:     part.InlineData.Data,
					MimeType: part.InlineData.MIMEType,
				}, nil
			}
		}
	}

	// 安全フィルター等によるブロックの確認
	if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		return nil, &domain.CollaboratorError{
			Kind: domain.CollaboratorSafetyBlocked,
			Err:  fmt.Errorf("生成が異常終了しました (FinishReason: %s)", candidate.FinishReason),
		}
	}

	return nil, &domain.CollaboratorError{
		Kind: domain.CollaboratorNoImage,
		Err:  errors.New("画像データが見つかりませんでした"),
	}
}

// ClassifyError は通信エラーを失敗種別へ分類します。
// 分類は呼び出し側へのリトライ可否のヒントになります。
func ClassifyError(err error) *domain.CollaboratorError {
	var ce *domain.CollaboratorError
	if errors.As(err, &ce) {
		return ce
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return &domain.CollaboratorError{Kind: domain.CollaboratorQuotaExceeded, Err: err}
		case 500, 502, 503, 504:
			return &domain.CollaboratorError{Kind: domain.CollaboratorOverloaded, Err: err}
		case 400, 401, 403, 404:
			return &domain.CollaboratorError{Kind: domain.CollaboratorMisconfigured, Err: err}
		}
	}

	// APIエラー以外（タイムアウト等）は一時的な障害として扱う
	return &domain.CollaboratorError{Kind: domain.CollaboratorOverloaded, Err: err}
}
