package canvas

import (
	"image/color"
	"strconv"
	"strings"
)

// ParseHex parses "#rgb" or "#rrggbb". Unparseable input yields opaque black
// and ok=false.
func ParseHex(s string) (c color.RGBA, ok bool) {
	c.A = 0xff
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return c, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return c, false
	}
	c.R, c.G, c.B = uint8(v>>16), uint8(v>>8), uint8(v)
	return c, true
}

// displayColor swaps pure black and white so default ink stays visible on a
// dark background.
func displayColor(c string, dark bool) string {
	switch strings.ToLower(c) {
	case "#000000":
		if dark {
			return "#ffffff"
		}
	case "#ffffff":
		if !dark {
			return "#000000"
		}
	}
	return c
}
