package structure

import (
	"fmt"
	"math/big"
	"math/bits"
)

// Uint128 is an unsigned 128-bit integer. NVMe reports its data unit and
// command counters at this width.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// U128 widens a uint64.
func U128(v uint64) Uint128 {
	return Uint128{Lo: v}
}

// IsUint64 reports whether the value fits in 64 bits.
func (u Uint128) IsUint64() bool {
	return u.Hi == 0
}

// Uint64 returns the low 64 bits.
func (u Uint128) Uint64() uint64 {
	return u.Lo
}

// Float64 returns the nearest float64, for metrics.
func (u Uint128) Float64() float64 {
	return float64(u.Hi)*(1<<64) + float64(u.Lo)
}

// Big returns the value as a big.Int.
func (u Uint128) Big() *big.Int {
	b := new(big.Int).SetUint64(u.Hi)
	b.Lsh(b, 64)
	return b.Or(b, new(big.Int).SetUint64(u.Lo))
}

// String formats the value in decimal.
func (u Uint128) String() string {
	if u.Hi == 0 {
		return fmt.Sprintf("%d", u.Lo)
	}
	return u.Big().String()
}

// Lsh shifts left by n bits.
func (u Uint128) Lsh(n uint) Uint128 {
	switch {
	case n == 0:
		return u
	case n >= 128:
		return Uint128{}
	case n >= 64:
		return Uint128{Hi: u.Lo << (n - 64)}
	default:
		return Uint128{Hi: u.Hi<<n | u.Lo>>(64-n), Lo: u.Lo << n}
	}
}

// Rsh shifts right by n bits.
func (u Uint128) Rsh(n uint) Uint128 {
	switch {
	case n == 0:
		return u
	case n >= 128:
		return Uint128{}
	case n >= 64:
		return Uint128{Lo: u.Hi >> (n - 64)}
	default:
		return Uint128{Hi: u.Hi >> n, Lo: u.Lo>>n | u.Hi<<(64-n)}
	}
}

// Or returns the bitwise OR.
func (u Uint128) Or(v Uint128) Uint128 {
	return Uint128{Hi: u.Hi | v.Hi, Lo: u.Lo | v.Lo}
}

// And returns the bitwise AND.
func (u Uint128) And(v Uint128) Uint128 {
	return Uint128{Hi: u.Hi & v.Hi, Lo: u.Lo & v.Lo}
}

// mask returns a value with the low n bits set.
func mask(n uint) Uint128 {
	if n >= 128 {
		return Uint128{Hi: ^uint64(0), Lo: ^uint64(0)}
	}
	if n >= 64 {
		return Uint128{Hi: 1<<(n-64) - 1, Lo: ^uint64(0)}
	}
	return Uint128{Lo: 1<<n - 1}
}

// bitLen returns the number of significant bits.
func (u Uint128) bitLen() uint {
	if u.Hi != 0 {
		return 64 + uint(bits.Len64(u.Hi))
	}
	return uint(bits.Len64(u.Lo))
}
