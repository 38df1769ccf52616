package adapters

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
	"github.com/shouni/phone-mockup-kit/pkg/imgutil"
)

// DefaultModel は背景生成に使う既定のモデル名です。
const DefaultModel = "gemini-2.5-flash-image"

const (
	useImageCompression     = true
	imageCompressionQuality = 75
)

// 背景以外（端末・画面内容・反射・影・輪郭）を固定したまま背景だけを
// 差し替えるための指示文。%s にスタイル文言が入ります。
const backgroundPromptTemplate = `Take the uploaded image and change only the background behind the phone. ` +
	`Keep the phone, whatever UI or content is shown on its screen, all reflections, shadows, and edges exactly the same. ` +
	`Do not modify the screen content, phone colors, or composition - only update the background to %s ` +
	`with no visible banding or artifacts.`

// BackgroundSynthesizer は合成画像の背景だけを外部生成モデルで置き換えるアダプターです。
// 呼び出しは1回限りで、ステップ内での自動リトライは行いません（二重請求の防止）。
type BackgroundSynthesizer struct {
	client GenerativeClient
	model  string
}

// NewBackgroundSynthesizer は依存関係を注入して BackgroundSynthesizer を初期化します。
func NewBackgroundSynthesizer(client GenerativeClient, model string) (*BackgroundSynthesizer, error) {
	if client == nil {
		return nil, fmt.Errorf("client (GenerativeClient) is required")
	}
	if model == "" {
		model = DefaultModel
	}
	return &BackgroundSynthesizer{client: client, model: model}, nil
}

// ReplaceBackground は現在の合成画像とスタイル文言を生成モデルへ送り、
// 背景だけが差し替わった画像を受け取ります。
func (s *BackgroundSynthesizer) ReplaceBackground(ctx context.Context, imagePNG []byte, stylePrompt string) (*domain.ImageResult, error) {
	payload := imagePNG
	mimeType := "image/png"

	// 転送量削減のための圧縮。失敗しても元データで続行する。
	if useImageCompression {
		if compressed, err := imgutil.CompressToJPEG(imagePNG, imageCompressionQuality); err == nil {
			payload = compressed
			mimeType = "image/jpeg"
		}
	}

	parts := []*genai.Part{
		{Text: fmt.Sprintf(backgroundPromptTemplate, stylePrompt)},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: payload}},
	}

	slog.InfoContext(ctx, "背景生成をリクエストします", "model", s.model, "prompt", stylePrompt)

	resp, err := s.client.GenerateImage(ctx, s.model, parts, nil)
	if err != nil {
		return nil, ClassifyError(err)
	}

	return ExtractImage(resp)
}
