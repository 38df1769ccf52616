package pipeline

import (
	"context"
	"time"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// mockWarper は GeometryWarper のテスト用モックです。
type mockWarper struct {
	warpFunc func(screenshot []byte, style domain.LayoutStyleID) ([]byte, error)
	called   int
}

func (m *mockWarper) Warp(screenshot []byte, style domain.LayoutStyleID) ([]byte, error) {
	m.called++
	if m.warpFunc != nil {
		return m.warpFunc(screenshot, style)
	}
	return append([]byte("warped:"), screenshot...), nil
}

// mockSynthesizer は BackgroundReplacer のテスト用モックです。
type mockSynthesizer struct {
	replaceFunc func(ctx context.Context, imagePNG []byte, stylePrompt string) (*domain.ImageResult, error)
	lastPrompt  string
	called      int
}

func (m *mockSynthesizer) ReplaceBackground(ctx context.Context, imagePNG []byte, stylePrompt string) (*domain.ImageResult, error) {
	m.called++
	m.lastPrompt = stylePrompt
	if m.replaceFunc != nil {
		return m.replaceFunc(ctx, imagePNG, stylePrompt)
	}
	return &domain.ImageResult{
		Data:     append([]byte("background:"), imagePNG...),
		MimeType: "image/png",
	}, nil
}

// mockOverlayer は TextOverlayer のテスト用モックです。
type mockOverlayer struct {
	overlayFunc func(imagePNG []byte, spec domain.HeadlineSpec) ([]byte, error)
	called      int
}

func (m *mockOverlayer) Overlay(imagePNG []byte, spec domain.HeadlineSpec) ([]byte, error) {
	m.called++
	if m.overlayFunc != nil {
		return m.overlayFunc(imagePNG, spec)
	}
	return append([]byte("text:"), imagePNG...), nil
}

// stubGate は常に固定の判定を返す RateGate です。
type stubGate struct {
	allow bool
}

func (g *stubGate) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	return g.allow
}
