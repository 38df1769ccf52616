package adapters

import (
	"context"

	"google.golang.org/genai"
)

// mockClient は GenerativeClient のテスト用モックです。
type mockClient struct {
	generateFunc func(ctx context.Context, model string, parts []*genai.Part, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

	lastModel string
	lastParts []*genai.Part
	called    bool
}

func (m *mockClient) GenerateImage(ctx context.Context, model string, parts []*genai.Part, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.called = true
	m.lastModel = model
	m.lastParts = parts
	if m.generateFunc != nil {
		return m.generateFunc(ctx, model, parts, cfg)
	}
	return nil, nil
}

// inlineImageResponse は InlineData を1つ含む応答を組み立てるヘルパーです。
func inlineImageResponse(data []byte, mimeType string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{
						{Text: "generated"},
						{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
					},
				},
				FinishReason: genai.FinishReasonStop,
			},
		},
	}
}

// finishedResponse は画像を含まず指定の FinishReason で終わった応答を返します。
func finishedResponse(reason genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content:      &genai.Content{Parts: []*genai.Part{{Text: "blocked"}}},
				FinishReason: reason,
			},
		},
	}
}
