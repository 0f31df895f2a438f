package endian

import (
	"encoding/binary"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawBytes returns the in-memory bytes of v
func rawBytes[T Number](v T) []byte {
	out := make([]byte, unsafe.Sizeof(v))
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&v)), len(out)))
	return out
}

func TestHostOrderIsConcrete(t *testing.T) {
	assert.NotEqual(t, Native, HostOrder)
	assert.Equal(t, HostOrder, Native.Resolve())
	assert.Equal(t, Big, Big.Resolve())
}

func TestNativeToBig(t *testing.T) {
	v := uint32(0x11223344)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, rawBytes(NativeToBig(v)))
}

func TestNativeToLittle(t *testing.T) {
	v := uint32(0x11223344)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, rawBytes(NativeToLittle(v)))
}

func TestNativeToOrder(t *testing.T) {
	v := int64(1)
	assert.Equal(t, NativeToBig(v), NativeToOrder(v, Big))
	assert.Equal(t, NativeToLittle(v), NativeToOrder(v, Little))
	assert.Equal(t, v, NativeToOrder(v, Native))
}

func TestOrderToNativeRoundTrip(t *testing.T) {
	for _, order := range []Order{Native, Big, Little} {
		t.Run(order.String(), func(t *testing.T) {
			assert.Equal(t, uint16(0xBEEF), OrderToNative(NativeToOrder(uint16(0xBEEF), order), order))
			assert.Equal(t, int32(-123456), OrderToNative(NativeToOrder(int32(-123456), order), order))
			assert.Equal(t, uint64(0x0102030405060708), OrderToNative(NativeToOrder(uint64(0x0102030405060708), order), order))
			assert.Equal(t, int8(-7), OrderToNative(NativeToOrder(int8(-7), order), order))
		})
	}
}

func TestBigAndLittleToNative(t *testing.T) {
	assert.Equal(t, uint32(1), BigToNative(NativeToBig(uint32(1))))
	assert.Equal(t, uint32(1), LittleToNative(NativeToLittle(uint32(1))))
}

func TestFloatSwapUsesBitPattern(t *testing.T) {
	f := float32(10.1)
	big := NativeToBig(f)

	want := make([]byte, 4)
	binary.BigEndian.PutUint32(want, math.Float32bits(f))
	assert.Equal(t, want, rawBytes(big))
	assert.Equal(t, f, BigToNative(big))

	d := 10.1
	little := NativeToLittle(d)
	want = make([]byte, 8)
	binary.LittleEndian.PutUint64(want, math.Float64bits(d))
	assert.Equal(t, want, rawBytes(little))
	assert.Equal(t, d, LittleToNative(little))
}

func TestSingleByteIsUnchanged(t *testing.T) {
	assert.Equal(t, uint8(0xAB), NativeToBig(uint8(0xAB)))
	assert.Equal(t, int8(-1), NativeToLittle(int8(-1)))
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    Order
		wantErr bool
	}{
		{"native", Native, false},
		{"", Native, false},
		{"BIG", Big, false},
		{"be", Big, false},
		{"little", Little, false},
		{"le", Little, false},
		{"middle", Native, true},
	}
	for _, tt := range tests {
		got, err := ParseOrder(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestOrderFlagValue(t *testing.T) {
	var o Order
	require.NoError(t, o.Set("big"))
	assert.Equal(t, Big, o)
	assert.Equal(t, "big", o.String())
	assert.Equal(t, "order", o.Type())
	assert.Error(t, o.Set("sideways"))
}
