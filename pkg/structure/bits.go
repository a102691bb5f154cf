package structure

import "encoding/binary"

// readBits extracts width bits starting at bit off. Bit i of the buffer lives
// in byte i/8 at position i%8.
func readBits(data []byte, off, width uint) Uint128 {
	if off%8 == 0 && width%8 == 0 {
		return readAligned(data[off/8:off/8+width/8])
	}

	var v Uint128
	var got uint
	for got < width {
		pos := off + got
		shift := pos % 8
		n := 8 - shift
		if n > width-got {
			n = width - got
		}
		chunk := uint64(data[pos/8]>>shift) & (1<<n - 1)
		v = v.Or(U128(chunk).Lsh(got))
		got += n
	}
	return v
}

func readAligned(b []byte) Uint128 {
	switch len(b) {
	case 1:
		return U128(uint64(b[0]))
	case 2:
		return U128(uint64(binary.LittleEndian.Uint16(b)))
	case 4:
		return U128(uint64(binary.LittleEndian.Uint32(b)))
	case 8:
		return U128(binary.LittleEndian.Uint64(b))
	case 16:
		return Uint128{Lo: binary.LittleEndian.Uint64(b[:8]), Hi: binary.LittleEndian.Uint64(b[8:])}
	}

	var v Uint128
	for i := len(b) - 1; i >= 0; i-- {
		v = v.Lsh(8).Or(U128(uint64(b[i])))
	}
	return v
}

// writeBits stores the low width bits of v starting at bit off, leaving the
// surrounding bits untouched.
func writeBits(data []byte, off, width uint, v Uint128) {
	var put uint
	for put < width {
		pos := off + put
		shift := pos % 8
		n := 8 - shift
		if n > width-put {
			n = width - put
		}
		m := byte(uint16(1)<<n-1) << shift
		chunk := byte(v.Rsh(put).Lo) << shift
		data[pos/8] = data[pos/8]&^m | chunk&m
		put += n
	}
}
