package geometry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// LayoutTable はスタイルIDからテンプレート座標系の貼り込み先四角形への静的対応表です。
// 起動時に一度だけ読み込まれ、以後は不変です。
type LayoutTable struct {
	quads map[domain.LayoutStyleID]Quad
}

// DefaultLayoutTable は同梱3スタイルの組み込み座標を返します。
// 座標は各テンプレート画像（1320x2868）のグリーンバック領域に対応します。
func DefaultLayoutTable() *LayoutTable {
	return &LayoutTable{quads: map[domain.LayoutStyleID]Quad{
		domain.StyleBasic: {
			{330, 764}, {990, 764}, {990, 2196}, {330, 2196},
		},
		domain.StyleRotated: {
			{394, 702}, {1012, 788}, {962, 2260}, {344, 2122},
		},
		domain.StyleRotatedLeftFace: {
			{308, 788}, {926, 702}, {976, 2122}, {358, 2260},
		},
	}}
}

// LoadLayoutTable は layout.json（スタイルID -> [[x,y] x4]）から対応表を読み込みます。
func LoadLayoutTable(path string) (*LayoutTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("レイアウト座標ファイルの読み込みに失敗しました: %w", err)
	}

	var raw map[string][4][2]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("レイアウト座標ファイルの解析に失敗しました: %w", err)
	}

	quads := make(map[domain.LayoutStyleID]Quad, len(raw))
	for style, pts := range raw {
		var q Quad
		for i, p := range pts {
			q[i] = Point{X: p[0], Y: p[1]}
		}
		quads[domain.LayoutStyleID(style)] = q
	}
	return &LayoutTable{quads: quads}, nil
}

// Quad はスタイルの貼り込み先四角形を返します。
// 未知のスタイルは暗黙のデフォルトに落とさず domain.ErrConfiguration を返します。
func (t *LayoutTable) Quad(style domain.LayoutStyleID) (Quad, error) {
	q, ok := t.quads[style]
	if !ok {
		return Quad{}, fmt.Errorf("%w: スタイル %q", domain.ErrConfiguration, style)
	}
	return q, nil
}

// Styles は対応表に登録されているスタイル一覧を返します。
func (t *LayoutTable) Styles() []domain.LayoutStyleID {
	out := make([]domain.LayoutStyleID, 0, len(t.quads))
	for s := range t.quads {
		out = append(out, s)
	}
	return out
}
