package typography

import (
	"fmt"
	"sync"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// フォントは実行環境に依存しない描画のため組み込み TTF を使い、
// プロセス内で一度だけ解析して以後は読み取り専用で共有します。
var (
	fontOnce  sync.Once
	fontCache map[domain.FontID]*sfnt.Font
	fontErr   error
)

func loadFonts() {
	parsed := make(map[domain.FontID]*sfnt.Font, 3)
	for id, ttf := range map[domain.FontID][]byte{
		domain.FontStandard:    goregular.TTF,
		domain.FontHandwritten: goitalic.TTF,
		domain.FontModern:      gobold.TTF,
	} {
		f, err := sfnt.Parse(ttf)
		if err != nil {
			fontErr = fmt.Errorf("組み込みフォント %s の解析に失敗しました: %w", id, err)
			return
		}
		parsed[id] = f
	}
	fontCache = parsed
}

// FontFor はフォントIDに対応する解析済みフォントを返します。
// 未知のIDは standard にフォールバックします。
func FontFor(id domain.FontID) (*sfnt.Font, error) {
	fontOnce.Do(loadFonts)
	if fontErr != nil {
		return nil, fontErr
	}
	if f, ok := fontCache[id]; ok {
		return f, nil
	}
	return fontCache[domain.FontStandard], nil
}
