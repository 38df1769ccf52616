package imgutil

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

const (
	// WorkingWidth はワープ処理前にスクリーンショットを正規化する作業解像度（幅）です。
	// 幾何計算のコストを抑えつつ、スタイル間で一貫した座標系を保つための固定値です。
	WorkingWidth = 1200

	// CanonicalWidth / CanonicalHeight はテキスト描画前の最終キャンバス解像度です。
	// フォントメトリクスと折返し計算を入力サイズに依存させないための固定値です。
	CanonicalWidth  = 1320
	CanonicalHeight = 2868
)

// Decode は画像バイト列を NRGBA（4チャネル）へ正規化してデコードします。
// デコード不能、または寸法ゼロの画像は domain.ErrDecode を返します。
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: 画像データが空です", domain.ErrDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	nrgba := imaging.Clone(img)
	if nrgba.Bounds().Dx() <= 0 || nrgba.Bounds().Dy() <= 0 {
		return nil, fmt.Errorf("%w: 画像の寸法がゼロです", domain.ErrDecode)
	}
	return nrgba, nil
}

// NormalizeWorking はスクリーンショットを作業解像度（幅 1200px）へ揃えます。
// 高さはアスペクト比を保って追従させます。
func NormalizeWorking(img image.Image) *image.NRGBA {
	return imaging.Resize(img, WorkingWidth, 0, imaging.Lanczos)
}

// ResizeCanonical は最終キャンバス解像度（1320x2868）へ高品質リサンプリングします。
func ResizeCanonical(img image.Image) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, CanonicalWidth, CanonicalHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// EncodePNG は画像を PNG バイト列へエンコードします。
func EncodePNG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("PNGエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// CompressToJPEG は画像データ（PNG, GIF, JPEG等）をJPEG形式に圧縮します。
// 外部生成モデルへ送る前の転送量削減に使います。
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
