package main

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"procmem/bytebuf"
	"procmem/endian"
)

// codec converts between text and one value stored at index 0 of a buffer
type codec struct {
	size   int
	format func(b *bytebuf.Buffer) (string, error)
	parse  func(b *bytebuf.Buffer, s string) error
}

func intCodec[T int8 | int16 | int32 | int64]() codec {
	bits := bytebuf.SizeOf[T]() * 8
	return codec{
		size: bytebuf.SizeOf[T](),
		format: func(b *bytebuf.Buffer) (string, error) {
			v, err := bytebuf.GetAt[T](b, 0)
			return strconv.FormatInt(int64(v), 10), err
		},
		parse: func(b *bytebuf.Buffer, s string) error {
			v, err := strconv.ParseInt(s, 0, bits)
			if err != nil {
				return err
			}
			return bytebuf.PutAt(b, 0, T(v))
		},
	}
}

func uintCodec[T uint8 | uint16 | uint32 | uint64 | uintptr](hexFormat bool) codec {
	bits := bytebuf.SizeOf[T]() * 8
	return codec{
		size: bytebuf.SizeOf[T](),
		format: func(b *bytebuf.Buffer) (string, error) {
			v, err := bytebuf.GetAt[T](b, 0)
			if hexFormat {
				return fmt.Sprintf("0x%X", uint64(v)), err
			}
			return strconv.FormatUint(uint64(v), 10), err
		},
		parse: func(b *bytebuf.Buffer, s string) error {
			v, err := strconv.ParseUint(s, 0, bits)
			if err != nil {
				return err
			}
			return bytebuf.PutAt(b, 0, T(v))
		},
	}
}

func floatCodec[T float32 | float64]() codec {
	bits := bytebuf.SizeOf[T]() * 8
	return codec{
		size: bytebuf.SizeOf[T](),
		format: func(b *bytebuf.Buffer) (string, error) {
			v, err := bytebuf.GetAt[T](b, 0)
			return strconv.FormatFloat(float64(v), 'g', -1, bits), err
		},
		parse: func(b *bytebuf.Buffer, s string) error {
			v, err := strconv.ParseFloat(s, bits)
			if err != nil {
				return err
			}
			return bytebuf.PutAt(b, 0, T(v))
		},
	}
}

var codecs = map[string]codec{
	"i8":  intCodec[int8](),
	"i16": intCodec[int16](),
	"i32": intCodec[int32](),
	"i64": intCodec[int64](),
	"u8":  uintCodec[uint8](false),
	"u16": uintCodec[uint16](false),
	"u32": uintCodec[uint32](false),
	"u64": uintCodec[uint64](false),
	"ptr": uintCodec[uintptr](true),
	"f32": floatCodec[float32](),
	"f64": floatCodec[float64](),
}

func typeNames() string {
	names := make([]string, 0, len(codecs)+1)
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(append([]string{"bytes"}, names...), ", ")
}

func lookupCodec(name string) (codec, error) {
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return codec{}, fmt.Errorf("unknown type %q, want one of %s", name, typeNames())
	}
	return c, nil
}

// encodeValue renders the text value of type name into a buffer of order
func encodeValue(name, value string, order endian.Order) (*bytebuf.Buffer, error) {
	if name == "bytes" {
		data, err := hex.DecodeString(strings.ReplaceAll(value, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("bad hex bytes %q: %w", value, err)
		}
		return bytebuf.NewFromBytes(data, order), nil
	}

	c, err := lookupCodec(name)
	if err != nil {
		return nil, err
	}
	buf := bytebuf.NewWithOrder(order)
	if err := c.parse(buf, value); err != nil {
		return nil, fmt.Errorf("bad %s value %q: %w", name, value, err)
	}
	return buf, nil
}
