package typography

import (
	"image/color"
	"strconv"
	"strings"
)

// namedColors はヘッドライン色の名前指定に使える対応表です。
var namedColors = map[string]color.NRGBA{
	"white":  {255, 255, 255, 255},
	"black":  {0, 0, 0, 255},
	"red":    {220, 53, 69, 255},
	"blue":   {13, 110, 253, 255},
	"green":  {25, 135, 84, 255},
	"yellow": {255, 193, 7, 255},
	"orange": {253, 126, 20, 255},
	"purple": {111, 66, 193, 255},
	"pink":   {214, 51, 132, 255},
	"gray":   {128, 128, 128, 255},
}

// ParseColor は色名または16進表記（#rgb / #rrggbb）を解釈します。
// 解釈できない場合は白にフォールバックします。
func ParseColor(s string) color.NRGBA {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c
	}

	hex := strings.TrimPrefix(s, "#")
	switch len(hex) {
	case 3:
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			r := uint8(v >> 8 & 0xF)
			g := uint8(v >> 4 & 0xF)
			b := uint8(v & 0xF)
			return color.NRGBA{r*16 + r, g*16 + g, b*16 + b, 255}
		}
	case 6:
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return color.NRGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}
		}
	}

	return namedColors["white"]
}
