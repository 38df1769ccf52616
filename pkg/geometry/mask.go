package geometry

import (
	"image"
	"image/color"
	"math"
)

// クロマキー（グリーンバック）検出の HSV 閾値。
// 色相は OpenCV 互換の 0–180 スケール、彩度・明度は 0–255 スケールです。
const (
	chromaHueMin = 30.0
	chromaHueMax = 90.0
	chromaSatMin = 40.0
	chromaValMin = 40.0
)

// ChromaMask はテンプレート内のグリーンバック領域を示すマスクを返します。
// マスク値 255 のピクセルだけが合成対象であり、それ以外は変更してはなりません。
func ChromaMask(img *image.NRGBA) *image.Alpha {
	b := img.Bounds()
	mask := image.NewAlpha(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			h, s, v := rgbToHSV(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			if h >= chromaHueMin && h <= chromaHueMax && s >= chromaSatMin && v >= chromaValMin {
				mask.SetAlpha(x, y, color.Alpha{A: 255})
			}
		}
	}
	return mask
}

// rgbToHSV は OpenCV 互換スケール（H: 0–180, S/V: 0–255）で HSV 値を返します。
func rgbToHSV(r, g, b uint8) (float64, float64, float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	v := max * 255

	var s float64
	if max > 0 {
		s = delta / max * 255
	}

	var hDeg float64
	switch {
	case delta == 0:
		hDeg = 0
	case max == rf:
		hDeg = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		hDeg = 60 * ((bf-rf)/delta + 2)
	default:
		hDeg = 60 * ((rf-gf)/delta + 4)
	}
	if hDeg < 0 {
		hDeg += 360
	}

	return hDeg / 2, s, v
}

// CompositeMasked は warped の画素を mask の立っている位置だけ base に書き込んだ
// 新しいバッファを返します。base 自体は変更しません。
func CompositeMasked(base, warped *image.NRGBA, mask *image.Alpha) *image.NRGBA {
	b := base.Bounds()
	out := image.NewNRGBA(b)
	copy(out.Pix, base.Pix)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.AlphaAt(x, y).A == 0 {
				continue
			}
			src := warped.PixOffset(x, y)
			dst := out.PixOffset(x, y)
			copy(out.Pix[dst:dst+4], warped.Pix[src:src+4])
		}
	}
	return out
}
