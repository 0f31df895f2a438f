// Package coloransi wraps text in ANSI colour escapes.
package coloransi

import (
	"fmt"
	"strings"
)

// ColorCode is either an SGR foreground code (low byte) or a 24-bit RGB
// colour (upper three bytes).
type ColorCode uint32

const (
	Black   ColorCode = 30
	Red     ColorCode = 31
	Green   ColorCode = 32
	Yellow  ColorCode = 33
	Blue    ColorCode = 34
	Magenta ColorCode = 35
	Cyan    ColorCode = 36
	White   ColorCode = 37

	BrightBlack   ColorCode = Black + 60
	BrightRed     ColorCode = Red + 60
	BrightGreen   ColorCode = Green + 60
	BrightYellow  ColorCode = Yellow + 60
	BrightBlue    ColorCode = Blue + 60
	BrightMagenta ColorCode = Magenta + 60
	BrightCyan    ColorCode = Cyan + 60
	BrightWhite   ColorCode = White + 60

	BackgroundOffset ColorCode = 10

	RGBMask ColorCode = 0xFFFFFF00
)

func RGB(r, g, b uint8) ColorCode {
	return ColorCode(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8)
}

var (
	ColorOrange    = RGB(255, 140, 0)
	ColorTeal      = RGB(0, 128, 128)
	ColorLimeGreen = RGB(50, 205, 50)
)

func (c ColorCode) IsRGB() bool {
	return c&RGBMask != 0
}

func (c ColorCode) rgb() (ColorCode, ColorCode, ColorCode) {
	return (c >> 24) & 0xFF, (c >> 16) & 0xFF, (c >> 8) & 0xFF
}

// OneForeground returns the escape selecting code as foreground
func OneForeground(code ColorCode) string {
	if code.IsRGB() {
		r, g, b := code.rgb()
		return fmt.Sprintf("\033[38;2;%d;%d;%dm", r, g, b)
	}
	return fmt.Sprintf("\033[%dm", code)
}

// OneBackground returns the escape selecting code as background
func OneBackground(code ColorCode) string {
	if code.IsRGB() {
		r, g, b := code.rgb()
		return fmt.Sprintf("\033[48;2;%d;%d;%dm", r, g, b)
	}
	return fmt.Sprintf("\033[%dm", code+BackgroundOffset)
}

func Reset() string {
	return "\033[0m"
}

func join(v []interface{}) string {
	args := make([]string, len(v))
	for i, arg := range v {
		args[i] = fmt.Sprint(arg)
	}
	return strings.Join(args, " ")
}

// Color formats the given text with the specified foreground and background colors.
func Color(fg, bg ColorCode, v ...interface{}) string {
	return OneForeground(fg) + OneBackground(bg) + join(v) + Reset()
}

// Foreground formats the given text with the specified foreground color.
func Foreground(fg ColorCode, v ...interface{}) string {
	return OneForeground(fg) + join(v) + Reset()
}

// Painter applies colours only when Enabled, so callers can render the same
// way to a terminal and to a pipe.
type Painter struct {
	Enabled bool
}

func (p Painter) Color(fg, bg ColorCode, v ...interface{}) string {
	if !p.Enabled {
		return join(v)
	}
	return Color(fg, bg, v...)
}

func (p Painter) Foreground(fg ColorCode, v ...interface{}) string {
	if !p.Enabled {
		return join(v)
	}
	return Foreground(fg, v...)
}
