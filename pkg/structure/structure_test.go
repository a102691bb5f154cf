package structure

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefineRejectsInvalidLayouts(t *testing.T) {
	child := MustDefine("child", 2, Uint("x", 16))

	tests := []struct {
		name   string
		size   int
		fields []Field
	}{
		{"zero size", 0, nil},
		{"empty name", 1, []Field{Uint("", 8)}},
		{"zero width", 1, []Field{Bits("a", 0), Uint("b", 8)}},
		{"duplicate name", 2, []Field{Uint("a", 8), Uint("a", 8)}},
		{"too few bits", 2, []Field{Bits("a", 3)}},
		{"reads past end", 1, []Field{Bits("a", 9)}},
		{"misaligned scalar", 2, []Field{Bits("a", 4), Uint("b", 8), Bits("c", 4)}},
		{"scalar not byte multiple", 2, []Field{Uint("a", 12), Bits("b", 4)}},
		{"integer too wide", 17, []Field{Bits("a", 129), Bits("b", 7)}},
		{"nil child", 2, []Field{Struct("s", nil)}},
		{"misaligned nested", 3, []Field{Bits("a", 4), Struct("s", child), Bits("b", 4)}},
		{"zero repeat", 1, []Field{Array("r", child, 0), Uint("a", 8)}},
		{"unknown kind", 1, []Field{{Name: "a", Bits: 8}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Define("test", tt.size, tt.fields...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDescription), "got %v", err)
		})
	}
}

func TestDefineRoundsToWholeBytes(t *testing.T) {
	d, err := Define("rounded", 2, Bits("a", 3), Bits("b", 10))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Size())

	off, ok := d.Offset("b")
	require.True(t, ok)
	assert.Equal(t, uint(3), off)

	assert.Panics(t, func() { MustDefine("bad", 4, Uint("a", 8)) })
}

func TestFieldWidthsSurviveEncoding(t *testing.T) {
	pattern := Uint128{Hi: 0xA5A5A5A5A5A5A5A5, Lo: 0x5A5A5A5A5A5A5A5A}

	for _, width := range []uint{1, 7, 8, 9, 64, 65, 127, 128} {
		for _, shift := range []uint{0, 3, 7} {
			t.Run(fmt.Sprintf("w%d_off%d", width, shift), func(t *testing.T) {
				var fields []Field
				if shift > 0 {
					fields = append(fields, Bits("pad", shift))
				}
				fields = append(fields, Bits("v", width))
				size := int((shift + width + 7) / 8)
				d, err := Define("span", size, fields...)
				require.NoError(t, err)

				for _, want := range []Uint128{pattern.And(mask(width)), mask(width), U128(1)} {
					b := New(d)
					if shift > 0 {
						require.NoError(t, b.SetUint128("pad", mask(shift)))
					}
					require.NoError(t, b.SetUint128("v", want))

					dec, err := Decode(d, b.Bytes())
					require.NoError(t, err)
					assert.Equal(t, want, dec.Uint128("v"))
					if shift > 0 {
						assert.Equal(t, mask(shift), dec.Uint128("pad"), "neighbouring bits changed")
					}

					again, err := Decode(d, dec.Encode())
					require.NoError(t, err)
					assert.Equal(t, want, again.Uint128("v"))
				}
			})
		}
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	d := MustDefine("sixteen", 16, Uint("a", 64), Uint("b", 64))

	for n := 0; n <= 40; n++ {
		if n == d.Size() {
			continue
		}
		_, err := Decode(d, make([]byte, n))
		require.Error(t, err, "length %d", n)
		assert.True(t, errors.Is(err, ErrSizeMismatch))

		var se *SizeError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 16, se.Want)
		assert.Equal(t, n, se.Got)
	}
}

func testLayout() *Description {
	entry := MustDefine("entry", 3, Uint("id", 8), Bits("flag", 1), Bits("level", 7), Uint("value", 8))
	header := MustDefine("header", 2, Bits("type", 5), Bits("qualifier", 3), Uint("version", 8))
	return MustDefine("record", 32,
		Struct("header", header),
		Uint("length", 16),
		Array("entries", entry, 4),
		Bytes("name", 8),
		Uint("big", 56),
		Bits("low", 4),
		Bits("high", 4),
	)
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	d := testLayout()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 100; i++ {
		buf := make([]byte, d.Size())
		rng.Read(buf)

		dec, err := Decode(d, buf)
		require.NoError(t, err)
		assert.Equal(t, buf, dec.Encode())

		// Rebuilding from the decoded field values gives the same bytes.
		b := New(d)
		for _, fv := range dec.Fields() {
			switch fv.Kind {
			case Scalar, Bitfield:
				require.NoError(t, b.SetUint128(fv.Name, fv.Value))
			case ByteArray:
				require.NoError(t, b.SetBytes(fv.Name, fv.Bytes))
			case Nested:
				require.NoError(t, b.SetNested(fv.Name, fv.Nested[0]))
			case Repeated:
				for j, el := range fv.Nested {
					require.NoError(t, b.SetElement(fv.Name, j, el))
				}
			}
		}
		assert.Equal(t, buf, b.Bytes())
	}
}

func TestDecodedOwnsItsBuffer(t *testing.T) {
	d := MustDefine("pair", 2, Uint("a", 8), Uint("b", 8))
	buf := []byte{1, 2}

	dec, err := Decode(d, buf)
	require.NoError(t, err)
	buf[0] = 0xff
	assert.Equal(t, uint64(1), dec.Uint("a"))

	out := dec.Encode()
	out[1] = 0xff
	assert.Equal(t, uint64(2), dec.Uint("b"))
}

func TestFieldExtraction(t *testing.T) {
	t.Run("little endian scalar", func(t *testing.T) {
		d := MustDefine("le", 4, Uint("a", 16), Uint("b", 16))
		dec, err := Decode(d, []byte{0x34, 0x12, 0x78, 0x56})
		require.NoError(t, err)
		assert.Equal(t, uint64(0x1234), dec.Uint("a"))
		assert.Equal(t, uint64(0x5678), dec.Uint("b"))
	})

	t.Run("bitfields lsb first", func(t *testing.T) {
		d := MustDefine("bits", 1, Bits("lo", 3), Bits("hi", 5))
		dec, err := Decode(d, []byte{0xA6})
		require.NoError(t, err)
		assert.Equal(t, uint64(6), dec.Uint("lo"))
		assert.Equal(t, uint64(20), dec.Uint("hi"))
	})

	t.Run("bitfield crossing a byte", func(t *testing.T) {
		d := MustDefine("cross", 2, Bits("a", 4), Bits("b", 8), Bits("c", 4))
		dec, err := Decode(d, []byte{0x21, 0x43})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), dec.Uint("a"))
		assert.Equal(t, uint64(0x32), dec.Uint("b"))
		assert.Equal(t, uint64(4), dec.Uint("c"))
	})

	t.Run("odd width scalar", func(t *testing.T) {
		d := MustDefine("oui", 3, Uint("oui", 24))
		dec, err := Decode(d, []byte{0x01, 0x02, 0x03})
		require.NoError(t, err)
		assert.Equal(t, uint64(0x030201), dec.Uint("oui"))
	})

	t.Run("128 bit scalar", func(t *testing.T) {
		d := MustDefine("wide", 16, Uint("n", 128))
		buf := make([]byte, 16)
		buf[0] = 0x01
		buf[8] = 0x02
		dec, err := Decode(d, buf)
		require.NoError(t, err)
		assert.Equal(t, Uint128{Hi: 2, Lo: 1}, dec.Uint128("n"))
		assert.Panics(t, func() { dec.Uint("n") })
	})
}

func TestNestedAndRepeated(t *testing.T) {
	d := testLayout()
	buf := make([]byte, d.Size())
	buf[0] = 0x45 // type 5, qualifier 2
	buf[1] = 7
	for i := 0; i < 4; i++ {
		buf[4+i*3] = byte(10 + i)
		buf[5+i*3] = byte(i<<1 | 1)
		buf[6+i*3] = byte(100 + i)
	}

	dec, err := Decode(d, buf)
	require.NoError(t, err)

	h := dec.Nested("header")
	assert.Equal(t, uint64(5), h.Uint("type"))
	assert.Equal(t, uint64(2), h.Uint("qualifier"))
	assert.Equal(t, uint64(7), h.Uint("version"))

	entries := dec.Array("entries")
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, uint64(10+i), e.Uint("id"))
		assert.True(t, e.Flag("flag"))
		assert.Equal(t, uint64(i), e.Uint("level"))
		assert.Equal(t, uint64(100+i), e.Uint("value"))
	}
}

func TestFieldsIteration(t *testing.T) {
	dec := New(testLayout()).Decoded()
	fields := dec.Fields()

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"header", "length", "entries", "name", "big", "low", "high"}, names)

	assert.Equal(t, uint(0), fields[0].BitOffset)
	assert.Equal(t, Nested, fields[0].Kind)
	assert.Len(t, fields[0].Nested, 1)
	assert.Equal(t, uint(16), fields[1].BitOffset)
	assert.Equal(t, Repeated, fields[2].Kind)
	assert.Len(t, fields[2].Nested, 4)
	assert.Equal(t, ByteArray, fields[3].Kind)
	assert.Len(t, fields[3].Bytes, 8)
	assert.Equal(t, uint(248), fields[5].BitOffset)
	assert.Equal(t, uint(4), fields[6].BitWidth)

	_, ok := dec.Lookup("missing")
	assert.False(t, ok)
	fv, ok := dec.Lookup("length")
	require.True(t, ok)
	assert.Equal(t, Scalar, fv.Kind)
}

func TestASCII(t *testing.T) {
	d := MustDefine("strings", 16, Bytes("plain", 8), Bytes("ata", 8))
	b := New(d)
	require.NoError(t, b.SetBytes("plain", []byte(" ACME\x00\x00\x00")))
	require.NoError(t, b.SetBytes("ata", []byte("TS0100  ")))
	dec := b.Decoded()

	assert.Equal(t, "ACME", dec.ASCII("plain"))
	assert.Equal(t, "ST1000", dec.SwappedASCII("ata"))

	empty := New(d).Decoded()
	assert.Equal(t, "", empty.ASCII("plain"))
	assert.Equal(t, "", empty.SwappedASCII("ata"))
}

func TestAccessorMisuse(t *testing.T) {
	dec := New(testLayout()).Decoded()

	assert.Panics(t, func() { dec.Uint("missing") })
	assert.Panics(t, func() { dec.Uint("name") })
	assert.Panics(t, func() { dec.Bytes("length") })
	assert.Panics(t, func() { dec.Nested("entries") })
	assert.Panics(t, func() { dec.Array("header") })
}

func TestBuilderErrors(t *testing.T) {
	d := testLayout()
	b := New(d)

	assert.Error(t, b.Set("missing", 1))
	assert.Error(t, b.Set("name", 1))
	assert.Error(t, b.Set("low", 16))
	assert.NoError(t, b.Set("low", 15))
	assert.Error(t, b.SetBytes("name", make([]byte, 9)))
	assert.Error(t, b.SetElement("entries", 4, New(d).Decoded()))

	other := MustDefine("other", 2, Uint("x", 16))
	assert.Error(t, b.SetNested("header", New(other).Decoded()))
}

func TestUint128(t *testing.T) {
	assert.Equal(t, "0", Uint128{}.String())
	assert.Equal(t, "18446744073709551616", Uint128{Hi: 1}.String())
	assert.Equal(t, "340282366920938463463374607431768211455", mask(128).String())

	v := U128(0x8000000000000001)
	assert.Equal(t, Uint128{Hi: 1, Lo: 2}, v.Lsh(1))
	assert.Equal(t, v, v.Lsh(1).Rsh(1))
	assert.Equal(t, Uint128{Hi: 0x8000000000000001}, v.Lsh(64))
	assert.Equal(t, Uint128{}, v.Lsh(128))
	assert.True(t, v.IsUint64())
	assert.False(t, v.Lsh(1).IsUint64())
	assert.Equal(t, uint(65), v.Lsh(1).bitLen())
}
