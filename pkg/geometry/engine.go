package geometry

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
	"github.com/shouni/phone-mockup-kit/pkg/imgutil"
)

// TemplateSource はスタイルIDからテンプレート画像を引くためのインターフェースです。
type TemplateSource interface {
	Template(style domain.LayoutStyleID) (*image.NRGBA, error)
}

// DirTemplates はディレクトリ上の <style>.png を読み込む TemplateSource 実装です。
// テンプレートは不変アセットなので、初回読み込み後はプロセス内でキャッシュします。
type DirTemplates struct {
	dir   string
	mu    sync.RWMutex
	cache map[domain.LayoutStyleID]*image.NRGBA
}

// NewDirTemplates はテンプレートディレクトリを指す TemplateSource を作成します。
func NewDirTemplates(dir string) (*DirTemplates, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	return &DirTemplates{
		dir:   dir,
		cache: make(map[domain.LayoutStyleID]*image.NRGBA),
	}, nil
}

// Template はテンプレート画像を返します。未知のスタイルは domain.ErrTemplateNotFound です。
func (d *DirTemplates) Template(style domain.LayoutStyleID) (*image.NRGBA, error) {
	d.mu.RLock()
	if img, ok := d.cache[style]; ok {
		d.mu.RUnlock()
		return img, nil
	}
	d.mu.RUnlock()

	path := filepath.Join(d.dir, string(style)+".png")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: スタイル %q (%v)", domain.ErrTemplateNotFound, style, err)
	}

	img, err := imgutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("テンプレート %q のデコードに失敗しました: %w", style, err)
	}

	d.mu.Lock()
	d.cache[style] = img
	d.mu.Unlock()
	return img, nil
}

// Engine はスクリーンショットをテンプレートのグリーンバック領域へ射影合成する
// ワープエンジンです。ステップ1の中核処理を担います。
type Engine struct {
	templates TemplateSource
	layout    *LayoutTable
}

// NewEngine は依存関係を注入して Engine を初期化します。
func NewEngine(templates TemplateSource, layout *LayoutTable) (*Engine, error) {
	if templates == nil {
		return nil, fmt.Errorf("templates (TemplateSource) is required")
	}
	if layout == nil {
		return nil, fmt.Errorf("layout (LayoutTable) is required")
	}
	return &Engine{templates: templates, layout: layout}, nil
}

// Warp はスクリーンショットをスタイルのテンプレートへ合成した PNG を返します。
//
// 処理順序:
//  1. スクリーンショットをデコードし、作業解像度（幅1200）へ正規化する
//  2. 正規化後の四隅からレイアウト表の貼り込み先四角形への射影変換を推定する
//  3. テンプレートと同寸のバッファへワープする（範囲外は透明埋め）
//  4. テンプレートの HSV クロマキーで検出した領域にだけワープ結果を書き込む
//
// 不変条件: マスク外のピクセルはテンプレートとバイト単位で一致します。
func (e *Engine) Warp(screenshot []byte, style domain.LayoutStyleID) ([]byte, error) {
	shot, err := imgutil.Decode(screenshot)
	if err != nil {
		return nil, err
	}
	shot = imgutil.NormalizeWorking(shot)

	template, err := e.templates.Template(style)
	if err != nil {
		return nil, err
	}

	dstQuad, err := e.layout.Quad(style)
	if err != nil {
		return nil, err
	}

	srcQuad := RectQuad(float64(shot.Bounds().Dx()), float64(shot.Bounds().Dy()))
	h, err := EstimateHomography(srcQuad, dstQuad)
	if err != nil {
		return nil, err
	}

	warped, err := WarpPerspective(shot, h, template.Bounds().Dx(), template.Bounds().Dy())
	if err != nil {
		return nil, err
	}

	mask := ChromaMask(template)
	composed := CompositeMasked(template, warped, mask)

	return imgutil.EncodePNG(composed)
}
