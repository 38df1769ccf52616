package typography

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFontSizeFor(t *testing.T) {
	const w = 1320

	t.Run("30文字以下は幅の6%になること", func(t *testing.T) {
		assert.Equal(t, 79, FontSizeFor(w, 14))
		assert.Equal(t, 79, FontSizeFor(w, 30))
	})

	t.Run("31〜50文字は幅の5%になること", func(t *testing.T) {
		assert.Equal(t, 66, FontSizeFor(w, 31))
		assert.Equal(t, 66, FontSizeFor(w, 50))
	})

	t.Run("51文字以上は幅の4%になること", func(t *testing.T) {
		assert.Equal(t, 52, FontSizeFor(w, 51))
	})
}

func TestWrapHeadline(t *testing.T) {
	t.Run("貪欲法で折り返されること", func(t *testing.T) {
		lines := WrapHeadline("Track your day", 10)
		assert.Equal(t, []string{"Track your", "day"}, lines)
	})

	t.Run("上限以内なら1行のままであること", func(t *testing.T) {
		lines := WrapHeadline("Track your day", 28)
		assert.Equal(t, []string{"Track your day"}, lines)
	})

	t.Run("行末の空白が取り除かれること", func(t *testing.T) {
		for _, line := range WrapHeadline("one two three four five six", 9) {
			assert.Equal(t, strings.TrimSpace(line), line)
		}
	})

	t.Run("50文字のヘッドラインが決定的に折り返され、推定幅が85%に収まること", func(t *testing.T) {
		const headline = "Track your day with beautiful device mockups now!!"
		require.Len(t, []rune(headline), 50)

		const canvasW = 1320
		fontSize := FontSizeFor(canvasW, len([]rune(headline)))
		maxChars := MaxCharsPerLine(canvasW, fontSize)

		lines := WrapHeadline(headline, maxChars)
		assert.Equal(t, []string{
			"Track your day with",
			"beautiful device mockups",
			"now!!",
		}, lines)

		// 最長行の推定幅（文字数 x 平均グリフ幅）が 85% マージン内に収まる
		limit := float64(canvasW) * textWidthRatio
		for _, line := range lines {
			estimated := float64(len([]rune(line))) * float64(fontSize) * avgGlyphWidthRatio
			assert.LessOrEqual(t, estimated, limit, "line %q", line)
		}

		// 同じ入力からは常に同じ結果（決定性）
		assert.Equal(t, lines, WrapHeadline(headline, maxChars))
	})
}

func TestParseColor(t *testing.T) {
	t.Run("色名を解釈できること", func(t *testing.T) {
		c := ParseColor("white")
		assert.EqualValues(t, 255, c.R)
		assert.EqualValues(t, 255, c.A)
	})

	t.Run("16進6桁を解釈できること", func(t *testing.T) {
		c := ParseColor("#ff8000")
		assert.EqualValues(t, 0xff, c.R)
		assert.EqualValues(t, 0x80, c.G)
		assert.EqualValues(t, 0x00, c.B)
	})

	t.Run("16進3桁を解釈できること", func(t *testing.T) {
		c := ParseColor("#f00")
		assert.EqualValues(t, 0xff, c.R)
		assert.EqualValues(t, 0x00, c.G)
	})

	t.Run("解釈できない指定は白に落ちること", func(t *testing.T) {
		assert.Equal(t, ParseColor("white"), ParseColor("not-a-color"))
	})
}
