package geometry

import (
	"fmt"
	"math"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// Point は画像ピクセル座標系の2次元点です。
type Point struct {
	X float64
	Y float64
}

// Quad は読み順（左上・右上・右下・左下）に並んだ4点の四角形です。
type Quad [4]Point

// RectQuad は矩形 (0,0)-(w,h) を読み順の Quad として返します。
func RectQuad(w, h float64) Quad {
	return Quad{{0, 0}, {w, 0}, {w, h}, {0, h}}
}

// Homography は平面四角形を別の四角形へ写す 3x3 射影変換です。
type Homography struct {
	m [3][3]float64
}

const pivotEpsilon = 1e-9

// EstimateHomography は4点対応から射影変換を推定します（DLT 8x8 直接解法）。
// 共線など退化した対応では domain.ErrGeometry を返します。
func EstimateHomography(src, dst Quad) (*Homography, error) {
	// 各対応点 (x,y)->(u,v) につき2本の一次方程式を立てる。
	// u = (h0 x + h1 y + h2) / (h6 x + h7 y + 1) を展開した形。
	var a [8][8]float64
	var b [8]float64
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		a[2*i] = [8]float64{x, y, 1, 0, 0, 0, -u * x, -u * y}
		b[2*i] = u
		a[2*i+1] = [8]float64{0, 0, 0, x, y, 1, -v * x, -v * y}
		b[2*i+1] = v
	}

	h, err := solveLinear8(a, b)
	if err != nil {
		return nil, err
	}

	return &Homography{m: [3][3]float64{
		{h[0], h[1], h[2]},
		{h[3], h[4], h[5]},
		{h[6], h[7], 1},
	}}, nil
}

// solveLinear8 は部分ピボット選択付きガウス消去法で 8x8 連立一次方程式を解きます。
func solveLinear8(a [8][8]float64, b [8]float64) ([8]float64, error) {
	var zero [8]float64
	for col := 0; col < 8; col++ {
		// ピボット行の選択
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < pivotEpsilon {
			return zero, fmt.Errorf("%w: 対応点が退化しています（共線または重複）", domain.ErrGeometry)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		// 前進消去
		for row := col + 1; row < 8; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < 8; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}

	// 後退代入
	var x [8]float64
	for row := 7; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < 8; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

// Apply は点 (x, y) を射影変換した先の座標を返します。
func (h *Homography) Apply(x, y float64) (float64, float64) {
	w := h.m[2][0]*x + h.m[2][1]*y + h.m[2][2]
	if math.Abs(w) < pivotEpsilon {
		return math.Inf(1), math.Inf(1)
	}
	u := (h.m[0][0]*x + h.m[0][1]*y + h.m[0][2]) / w
	v := (h.m[1][0]*x + h.m[1][1]*y + h.m[1][2]) / w
	return u, v
}

// Invert は逆変換（余因子行列による 3x3 逆行列）を返します。
func (h *Homography) Invert() (*Homography, error) {
	m := h.m
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < pivotEpsilon {
		return nil, fmt.Errorf("%w: 射影変換が特異です", domain.ErrGeometry)
	}

	inv := [3][3]float64{
		{
			(m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det,
			(m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det,
			(m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det,
		},
		{
			(m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det,
			(m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det,
			(m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det,
		},
		{
			(m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det,
			(m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det,
			(m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det,
		},
	}
	return &Homography{m: inv}, nil
}
