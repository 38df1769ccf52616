package typography

import "strings"

// レイアウト定数。キャンバス解像度が固定のため、すべて幅・高さに対する比率で定義します。
const (
	// textWidthRatio はテキストに許す横幅の比率（左右マージン込みで 85%）です。
	textWidthRatio = 0.85
	// avgGlyphWidthRatio はフォントサイズに対する平均グリフ幅の見積もりです。
	avgGlyphWidthRatio = 0.6
	// lineHeightRatio は行送りの比率です。
	lineHeightRatio = 1.2
	// topMarginRatio は1行目の開始位置（キャンバス高さに対する比率）です。
	topMarginRatio = 0.08
)

// FontSizeFor はヘッドライン長に応じた段階的なフォントサイズ（px）を返します。
// 長文ほど小さくし、折返し後も横マージン内に収まるようにします。
func FontSizeFor(canvasWidth, headlineLen int) int {
	switch {
	case headlineLen > 50:
		return int(float64(canvasWidth) * 0.04)
	case headlineLen > 30:
		return int(float64(canvasWidth) * 0.05)
	default:
		return int(float64(canvasWidth) * 0.06)
	}
}

// MaxCharsPerLine は1行に詰め込める最大文字数の見積もりを返します。
func MaxCharsPerLine(canvasWidth, fontSize int) int {
	textWidth := float64(canvasWidth) * textWidthRatio
	return int(textWidth / (float64(fontSize) * avgGlyphWidthRatio))
}

// WrapHeadline は貪欲法でヘッドラインを折り返します。
// ハイフネーションは行わず、行末の余分な空白は取り除きます。
func WrapHeadline(text string, maxChars int) []string {
	words := strings.Split(text, " ")

	var lines []string
	current := ""
	for _, word := range words {
		if len([]rune(current+word)) > maxChars {
			if trimmed := strings.TrimSpace(current); trimmed != "" {
				lines = append(lines, trimmed)
			}
			current = word + " "
		} else {
			current += word + " "
		}
	}
	if trimmed := strings.TrimSpace(current); trimmed != "" {
		lines = append(lines, trimmed)
	}
	return lines
}
