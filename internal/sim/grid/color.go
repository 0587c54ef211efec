package grid

import "fmt"

// Color is an sRGB color carried on the wire as "#RRGGBB".
type Color struct {
	R, G, B uint8
}

var (
	ColorSnakeGreen = Color{R: 0, G: 255, B: 0}
	ColorHeadGreen  = Color{R: 0, G: 200, B: 0}
	ColorAppleRed   = Color{R: 255, G: 0, B: 0}
)

// Palette is the order server-assigned snake colors are handed out in.
var Palette = []Color{
	ColorSnakeGreen,
	{R: 0, G: 128, B: 255},
	{R: 255, G: 200, B: 0},
	{R: 200, G: 0, B: 255},
	{R: 255, G: 128, B: 0},
	{R: 0, G: 220, B: 220},
	{R: 255, G: 80, B: 160},
	{R: 160, G: 255, B: 80},
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ParseColor decodes a "#RRGGBB" string.
func ParseColor(s string) (Color, error) {
	var c Color
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("bad color %q", s)
	}
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("bad color %q", s)
	}
	return c, nil
}
