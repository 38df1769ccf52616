package typography

import (
	"image"
	"image/color"
	"log/slog"
	"strings"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
	"github.com/shouni/phone-mockup-kit/pkg/imgutil"
)

// Compositor はヘッドラインを最終画像へ焼き込むテキスト合成器です。
// ステップ3の中核処理を担います。
type Compositor struct{}

// NewCompositor は Compositor を初期化します。
func NewCompositor() *Compositor {
	return &Compositor{}
}

// Overlay はヘッドラインを描画した PNG を返します。
//
// 空のヘッドラインは入力をそのまま返します（バイト単位で不変）。
// フォントや描画の失敗は生成全体を失敗させる理由にならないため、
// 警告ログを残して入力画像を無加工で返します。
func (c *Compositor) Overlay(imagePNG []byte, spec domain.HeadlineSpec) ([]byte, error) {
	if strings.TrimSpace(spec.Text) == "" {
		return imagePNG, nil
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	src, err := imgutil.Decode(imagePNG)
	if err != nil {
		return nil, err
	}

	// フォントメトリクスを入力サイズに依存させないため、先に正準解像度へ揃える。
	canvas := imgutil.ResizeCanonical(src)

	out, err := c.render(canvas, spec)
	if err != nil {
		slog.Warn("テキスト描画に失敗したため画像を無加工で返します", "error", err)
		return imagePNG, nil
	}
	return out, nil
}

func (c *Compositor) render(canvas *image.NRGBA, spec domain.HeadlineSpec) ([]byte, error) {
	f, err := FontFor(spec.Font)
	if err != nil {
		return nil, err
	}

	w := canvas.Bounds().Dx()
	h := canvas.Bounds().Dy()

	headlineLen := len([]rune(spec.Text))
	fontSize := FontSizeFor(w, headlineLen)
	lines := WrapHeadline(spec.Text, MaxCharsPerLine(w, fontSize))

	lr := newLineRenderer(f, fontSize)
	fill := ParseColor(spec.Color)

	lineHeight := float64(fontSize) * lineHeightRatio
	baselineY := float64(h)*topMarginRatio + float64(fontSize)

	for _, line := range lines {
		width, err := lr.measure(line)
		if err != nil {
			return nil, err
		}
		originX := (float64(w) - f26ToFloat(width)) / 2

		mask, err := lr.rasterize(line, w, h, originX, baselineY)
		if err != nil {
			return nil, err
		}

		// 先にシャドウ、上にテキスト本体。全行で同一のフィルタパラメータを共有する。
		shadow := scaleAlpha(gaussianBlurAlpha(mask, shadowSigma), shadowAlpha)
		drawMasked(canvas, shadow, color.NRGBA{A: 255}, image.Pt(0, shadowOffsetY))
		drawMasked(canvas, mask, fill, image.Point{})

		baselineY += lineHeight
	}

	return imgutil.EncodePNG(canvas)
}
