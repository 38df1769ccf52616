package imgutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// テスト用のダミー画像（単色の矩形）を作成するヘルパー
func dummyImageData(t *testing.T, w, h int, format string) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}

	buf := new(bytes.Buffer)
	var err error
	switch format {
	case "png":
		err = png.Encode(buf, img)
	case "jpeg":
		err = jpeg.Encode(buf, img, nil)
	default:
		t.Fatalf("unsupported format: %s", format)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	t.Run("正常なPNGをNRGBAにデコードできること", func(t *testing.T) {
		img, err := Decode(dummyImageData(t, 10, 20, "png"))
		require.NoError(t, err)
		assert.Equal(t, 10, img.Bounds().Dx())
		assert.Equal(t, 20, img.Bounds().Dy())
	})

	t.Run("不正なデータはErrDecodeになること", func(t *testing.T) {
		_, err := Decode([]byte("this is not an image"))
		assert.ErrorIs(t, err, domain.ErrDecode)
	})

	t.Run("空データはErrDecodeになること", func(t *testing.T) {
		_, err := Decode(nil)
		assert.ErrorIs(t, err, domain.ErrDecode)
	})
}

func TestNormalizeWorking(t *testing.T) {
	t.Run("幅が1200に揃い、アスペクト比が保たれること", func(t *testing.T) {
		src := image.NewNRGBA(image.Rect(0, 0, 600, 1200))
		got := NormalizeWorking(src)
		assert.Equal(t, WorkingWidth, got.Bounds().Dx())
		assert.Equal(t, 2400, got.Bounds().Dy())
	})
}

func TestResizeCanonical(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 200))
	got := ResizeCanonical(src)
	assert.Equal(t, CanonicalWidth, got.Bounds().Dx())
	assert.Equal(t, CanonicalHeight, got.Bounds().Dy())
}

func TestEncodePNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	data, err := EncodePNG(src)
	require.NoError(t, err)

	_, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestCompressToJPEG(t *testing.T) {
	t.Run("正常なPNG画像をJPEGに圧縮できること", func(t *testing.T) {
		got, err := CompressToJPEG(dummyImageData(t, 10, 10, "png"), 75)
		require.NoError(t, err)
		require.NotEmpty(t, got)

		_, format, err := image.Decode(bytes.NewReader(got))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
	})

	t.Run("不正なデータを与えた場合にエラーを返すこと", func(t *testing.T) {
		_, err := CompressToJPEG([]byte("broken"), 75)
		assert.Error(t, err)
	})
}
