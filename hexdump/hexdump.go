// Package hexdump renders memory read from a target as annotated hex lines.
package hexdump

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"procmem/bytebuf"
	"procmem/coloransi"
	"procmem/endian"
	"procmem/process/memory_map"
)

type Options struct {
	BytesPerLine int
	GroupSize    int
	ShowASCII    bool

	// Start is the address of data[0]; the offset column counts from it
	Start       uint64
	OffsetWidth int
	MaxLines    int

	Highlight []byte

	// Pointer-sized words that land inside Regions are listed after the
	// ASCII column. PointerSize 0 turns this off.
	Regions     []memory_map.MemoryMapItem
	PointerSize int
	Order       endian.Order

	Painter      coloransi.Painter
	OffsetColor  coloransi.ColorCode
	HexColor     coloransi.ColorCode
	ZeroColor    coloransi.ColorCode
	ASCIIColor   coloransi.ColorCode
	OtherColor   coloransi.ColorCode
	MatchColor   coloransi.ColorCode
	PointerColor coloransi.ColorCode
}

func DefaultOptions() Options {
	return Options{
		BytesPerLine: 16,
		GroupSize:    1,
		ShowASCII:    true,
		OffsetWidth:  8,
		Order:        endian.Native,
		OffsetColor:  coloransi.ColorTeal,
		HexColor:     coloransi.ColorLimeGreen,
		ZeroColor:    coloransi.BrightBlack,
		ASCIIColor:   coloransi.White,
		OtherColor:   coloransi.Red,
		MatchColor:   coloransi.Yellow,
		PointerColor: coloransi.ColorOrange,
	}
}

func Dump(data []byte, o Options) string {
	var sb strings.Builder
	DumpToWriter(&sb, data, o)
	return sb.String()
}

// DumpBuffer dumps the buffer's contents, decoding pointers in its byte order
func DumpBuffer(buf *bytebuf.Buffer, o Options) string {
	o.Order = buf.Order()
	return Dump(buf.Data(), o)
}

func DumpToWriter(w io.Writer, data []byte, o Options) {
	if o.BytesPerLine <= 0 {
		o.BytesPerLine = 16
	}
	if o.GroupSize <= 0 {
		o.GroupSize = 1
	}
	if o.OffsetWidth <= 0 {
		o.OffsetWidth = 8
	}

	highlighted := matches(data, o.Highlight)

	lines := 0
	for offset := 0; offset < len(data); offset += o.BytesPerLine {
		if o.MaxLines > 0 && lines >= o.MaxLines {
			fmt.Fprintf(w, "... %d more bytes\n", len(data)-offset)
			return
		}
		end := min(offset+o.BytesPerLine, len(data))
		writeLine(w, data[offset:end], highlighted[offset:end], o.Start+uint64(offset), o)
		lines++
	}
}

// matches marks every byte covered by an occurrence of pattern
func matches(data, pattern []byte) []bool {
	marks := make([]bool, len(data))
	if len(pattern) == 0 {
		return marks
	}
	for i := 0; i+len(pattern) <= len(data); i++ {
		if bytes.Equal(data[i:i+len(pattern)], pattern) {
			for j := range pattern {
				marks[i+j] = true
			}
		}
	}
	return marks
}

func writeLine(w io.Writer, line []byte, marks []bool, addr uint64, o Options) {
	p := o.Painter

	fmt.Fprint(w, p.Foreground(o.OffsetColor, fmt.Sprintf("%0*x", o.OffsetWidth, addr)), "  ")

	half := o.BytesPerLine / 2
	split := o.BytesPerLine >= 8 && half%o.GroupSize == 0

	var width int
	for i := 0; i < o.BytesPerLine; i++ {
		if i > 0 && i%o.GroupSize == 0 {
			if split && i == half {
				fmt.Fprint(w, " | ")
			} else {
				fmt.Fprint(w, " ")
			}
		}
		if i >= len(line) {
			width += 2
			continue
		}
		if width > 0 {
			fmt.Fprint(w, strings.Repeat(" ", width))
			width = 0
		}
		fmt.Fprint(w, hexByte(p, line[i], marks[i], o))
	}
	fmt.Fprint(w, strings.Repeat(" ", width))

	if o.ShowASCII {
		fmt.Fprint(w, " | ")
		for i, b := range line {
			fmt.Fprint(w, asciiByte(p, b, marks[i], o))
		}
	}

	if ptrs := pointers(line, o); len(ptrs) > 0 {
		fmt.Fprint(w, " |")
		for _, ptr := range ptrs {
			fmt.Fprint(w, " ", p.Foreground(o.PointerColor, fmt.Sprintf("0x%x", ptr)))
		}
	}

	fmt.Fprintln(w)
}

func hexByte(p coloransi.Painter, b byte, marked bool, o Options) string {
	s := fmt.Sprintf("%02x", b)
	switch {
	case marked:
		return p.Color(o.MatchColor, coloransi.Black, s)
	case b == 0:
		return p.Foreground(o.ZeroColor, s)
	}
	return p.Foreground(o.HexColor, s)
}

func asciiByte(p coloransi.Painter, b byte, marked bool, o Options) string {
	switch {
	case marked:
		return p.Color(o.MatchColor, coloransi.Black, string(rune(b)))
	case b == 0:
		return p.Foreground(o.ZeroColor, ".")
	case b >= 0x80 || !unicode.IsPrint(rune(b)):
		return p.Foreground(o.OtherColor, ".")
	}
	return p.Foreground(o.ASCIIColor, string(rune(b)))
}

// pointers decodes every aligned pointer-sized word of line and keeps the
// ones that point into a known region
func pointers(line []byte, o Options) []uint64 {
	if len(o.Regions) == 0 || (o.PointerSize != 4 && o.PointerSize != 8) {
		return nil
	}

	buf := bytebuf.NewFromBytes(line, o.Order)

	var found []uint64
	for i := 0; i+o.PointerSize <= len(line); i += o.PointerSize {
		var v uint64
		if o.PointerSize == 8 {
			v, _ = buf.OffsetUINT64(i)
		} else {
			v32, _ := buf.OffsetUINT32(i)
			v = uint64(v32)
		}
		if v != 0 && memory_map.IsValidAddress(v, o.Regions) {
			found = append(found, v)
		}
	}
	return found
}
