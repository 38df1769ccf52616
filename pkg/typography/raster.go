package typography

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// ドロップシャドウのパラメータ。任意の背景上でも可読性を保つための固定値です。
const (
	shadowSigma   = 3.0
	shadowOffsetY = 2
	shadowAlpha   = 0.5
)

// lineRenderer は1本のテキスト行をベクターグリフ輪郭として描画します。
// システムのフォントレンダラは使わず、どの環境でも同一のグリフ形状を得ます。
type lineRenderer struct {
	font *sfnt.Font
	buf  sfnt.Buffer
	ppem fixed.Int26_6
}

func newLineRenderer(f *sfnt.Font, sizePx int) *lineRenderer {
	return &lineRenderer{font: f, ppem: fixed.I(sizePx)}
}

// measure は行の実測幅（グリフ送り幅の合計）を返します。
func (lr *lineRenderer) measure(text string) (fixed.Int26_6, error) {
	var width fixed.Int26_6
	for _, r := range text {
		adv, ok, err := lr.advance(r)
		if err != nil {
			return 0, err
		}
		if ok {
			width += adv
		}
	}
	return width, nil
}

// advance はルーンの送り幅を返します。グリフを持たないルーンは ok=false です。
func (lr *lineRenderer) advance(r rune) (fixed.Int26_6, bool, error) {
	gi, err := lr.font.GlyphIndex(&lr.buf, r)
	if err != nil {
		return 0, false, fmt.Errorf("グリフ索引の取得に失敗しました: %w", err)
	}
	if gi == 0 {
		return 0, false, nil
	}
	adv, err := lr.font.GlyphAdvance(&lr.buf, gi, lr.ppem, font.HintingNone)
	if err != nil {
		return 0, false, fmt.Errorf("グリフ送り幅の取得に失敗しました: %w", err)
	}
	return adv, true, nil
}

// rasterize は行をキャンバスと同寸のアルファマスクへ描画します。
// originX はペンの開始X座標、baselineY は行のベースラインY座標です。
func (lr *lineRenderer) rasterize(text string, w, h int, originX, baselineY float64) (*image.Alpha, error) {
	rast := vector.NewRasterizer(w, h)
	penX := originX

	for _, r := range text {
		gi, err := lr.font.GlyphIndex(&lr.buf, r)
		if err != nil {
			return nil, fmt.Errorf("グリフ索引の取得に失敗しました: %w", err)
		}
		if gi == 0 {
			continue
		}

		segs, err := lr.font.LoadGlyph(&lr.buf, gi, lr.ppem, nil)
		if err != nil {
			return nil, fmt.Errorf("グリフ輪郭の読み込みに失敗しました: %w", err)
		}
		appendSegments(rast, segs, penX, baselineY)

		adv, err := lr.font.GlyphAdvance(&lr.buf, gi, lr.ppem, font.HintingNone)
		if err != nil {
			return nil, fmt.Errorf("グリフ送り幅の取得に失敗しました: %w", err)
		}
		penX += f26ToFloat(adv)
	}

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	rast.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask, nil
}

// appendSegments はグリフ輪郭のセグメント列をラスタライザへ追加します。
// 輪郭座標はベースライン原点・Y下向きなので、ペン位置だけ平行移動します。
func appendSegments(rast *vector.Rasterizer, segs sfnt.Segments, dx, dy float64) {
	tx := func(p fixed.Point26_6) (float32, float32) {
		return float32(f26ToFloat(p.X) + dx), float32(f26ToFloat(p.Y) + dy)
	}
	for _, seg := range segs {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			x, y := tx(seg.Args[0])
			rast.MoveTo(x, y)
		case sfnt.SegmentOpLineTo:
			x, y := tx(seg.Args[0])
			rast.LineTo(x, y)
		case sfnt.SegmentOpQuadTo:
			x1, y1 := tx(seg.Args[0])
			x2, y2 := tx(seg.Args[1])
			rast.QuadTo(x1, y1, x2, y2)
		case sfnt.SegmentOpCubeTo:
			x1, y1 := tx(seg.Args[0])
			x2, y2 := tx(seg.Args[1])
			x3, y3 := tx(seg.Args[2])
			rast.CubeTo(x1, y1, x2, y2, x3, y3)
		}
	}
}

func f26ToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// gaussianBlurAlpha は分離型ガウスぼかし（水平・垂直の2パス）をマスクへ適用します。
func gaussianBlurAlpha(src *image.Alpha, sigma float64) *image.Alpha {
	if sigma <= 0 {
		out := image.NewAlpha(src.Bounds())
		copy(out.Pix, src.Pix)
		return out
	}

	radius := int(math.Ceil(sigma * 3))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	// 水平パス
	tmp := image.NewAlpha(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				sx := x + k - radius
				if sx < 0 {
					sx = 0
				} else if sx >= w {
					sx = w - 1
				}
				acc += weight * float64(src.Pix[y*src.Stride+sx])
			}
			tmp.Pix[y*tmp.Stride+x] = uint8(acc + 0.5)
		}
	}

	// 垂直パス
	out := image.NewAlpha(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				sy := y + k - radius
				if sy < 0 {
					sy = 0
				} else if sy >= h {
					sy = h - 1
				}
				acc += weight * float64(tmp.Pix[sy*tmp.Stride+x])
			}
			out.Pix[y*out.Stride+x] = uint8(acc + 0.5)
		}
	}
	return out
}

// scaleAlpha はマスクの不透明度を一様に減衰させた新しいマスクを返します。
func scaleAlpha(src *image.Alpha, factor float64) *image.Alpha {
	out := image.NewAlpha(src.Bounds())
	for i, v := range src.Pix {
		out.Pix[i] = uint8(float64(v)*factor + 0.5)
	}
	return out
}

// drawMasked はマスクを通して単色を dst へ合成します。offset はシャドウ用のずらしです。
func drawMasked(dst draw.Image, mask *image.Alpha, c color.Color, offset image.Point) {
	rect := mask.Bounds().Add(offset)
	draw.DrawMask(dst, rect, image.NewUniform(c), image.Point{}, mask, mask.Bounds().Min, draw.Over)
}
