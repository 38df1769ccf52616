package geometry

import (
	"image"
	"math"
)

// WarpPerspective は src を射影変換 fwd（src座標 -> 出力座標）で幅 w ・高さ h の
// バッファへワープします。双一次補間を用い、写像元が src の外に出るピクセルは
// 完全透明で埋めます。
func WarpPerspective(src *image.NRGBA, fwd *Homography, w, h int) (*image.NRGBA, error) {
	inv, err := fwd.Invert()
	if err != nil {
		return nil, err
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	srcW := src.Bounds().Dx()
	srcH := src.Bounds().Dy()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := inv.Apply(float64(x), float64(y))
			if math.IsInf(sx, 0) || sx < 0 || sy < 0 || sx > float64(srcW-1) || sy > float64(srcH-1) {
				// 透明の境界埋め。NewNRGBA はゼロ初期化なので書き込み不要。
				continue
			}
			r, g, b, a := sampleBilinear(src, sx, sy)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = r
			dst.Pix[i+1] = g
			dst.Pix[i+2] = b
			dst.Pix[i+3] = a
		}
	}
	return dst, nil
}

// sampleBilinear は (sx, sy) 周辺4ピクセルの双一次補間値を返します。
func sampleBilinear(src *image.NRGBA, sx, sy float64) (uint8, uint8, uint8, uint8) {
	x0 := int(math.Floor(sx))
	y0 := int(math.Floor(sy))
	x1 := x0 + 1
	y1 := y0 + 1

	maxX := src.Bounds().Dx() - 1
	maxY := src.Bounds().Dy() - 1
	if x1 > maxX {
		x1 = maxX
	}
	if y1 > maxY {
		y1 = maxY
	}

	fx := sx - float64(x0)
	fy := sy - float64(y0)

	w00 := (1 - fx) * (1 - fy)
	w10 := fx * (1 - fy)
	w01 := (1 - fx) * fy
	w11 := fx * fy

	i00 := src.PixOffset(x0, y0)
	i10 := src.PixOffset(x1, y0)
	i01 := src.PixOffset(x0, y1)
	i11 := src.PixOffset(x1, y1)

	blend := func(off int) uint8 {
		v := w00*float64(src.Pix[i00+off]) +
			w10*float64(src.Pix[i10+off]) +
			w01*float64(src.Pix[i01+off]) +
			w11*float64(src.Pix[i11+off])
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v + 0.5)
	}

	return blend(0), blend(1), blend(2), blend(3)
}
