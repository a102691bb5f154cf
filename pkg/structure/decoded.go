package structure

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrSizeMismatch is matched by every *SizeError.
var ErrSizeMismatch = errors.New("size mismatch")

// SizeError reports a buffer whose length differs from the layout size.
type SizeError struct {
	Structure string
	Want      int
	Got       int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: %s: want %d bytes, got %d", ErrSizeMismatch, e.Structure, e.Want, e.Got)
}

// Is makes errors.Is(err, ErrSizeMismatch) hold.
func (e *SizeError) Is(target error) bool {
	return target == ErrSizeMismatch
}

// Decoded is a structure instance. It owns a private copy of its bytes and
// computes field values from offsets on demand.
type Decoded struct {
	desc *Description
	raw  []byte
}

// Decode copies data into a new Decoded. The length must equal desc.Size().
func Decode(desc *Description, data []byte) (*Decoded, error) {
	if len(data) != desc.size {
		return nil, &SizeError{Structure: desc.name, Want: desc.size, Got: len(data)}
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Decoded{desc: desc, raw: raw}, nil
}

// Encode returns a copy of the underlying bytes.
func (d *Decoded) Encode() []byte {
	out := make([]byte, len(d.raw))
	copy(out, d.raw)
	return out
}

// Description returns the layout d was decoded with.
func (d *Decoded) Description() *Description {
	return d.desc
}

// Equal reports whether both instances share a layout and bytes.
func (d *Decoded) Equal(o *Decoded) bool {
	return d.desc == o.desc && bytes.Equal(d.raw, o.raw)
}

// Uint returns an integer field. It panics if the field is missing, is not
// an integer, or is wider than 64 bits.
func (d *Decoded) Uint(name string) uint64 {
	f, off := d.desc.lookup(name)
	if f.Kind != Scalar && f.Kind != Bitfield {
		panic(fmt.Sprintf("structure: %s.%s is %v, not an integer", d.desc.name, name, f.Kind))
	}
	if f.Bits > 64 {
		panic(fmt.Sprintf("structure: %s.%s is %d bits wide, use Uint128", d.desc.name, name, f.Bits))
	}
	return readBits(d.raw, off, f.Bits).Lo
}

// Uint128 returns an integer field of any width.
func (d *Decoded) Uint128(name string) Uint128 {
	f, off := d.desc.lookup(name)
	if f.Kind != Scalar && f.Kind != Bitfield {
		panic(fmt.Sprintf("structure: %s.%s is %v, not an integer", d.desc.name, name, f.Kind))
	}
	return readBits(d.raw, off, f.Bits)
}

// Flag reports whether a one-bit field is set.
func (d *Decoded) Flag(name string) bool {
	return d.Uint(name) != 0
}

// Bytes returns a copy of a byte array field.
func (d *Decoded) Bytes(name string) []byte {
	f, off := d.desc.lookup(name)
	if f.Kind != ByteArray {
		panic(fmt.Sprintf("structure: %s.%s is %v, not a byte array", d.desc.name, name, f.Kind))
	}
	out := make([]byte, f.Bits/8)
	copy(out, d.raw[off/8:])
	return out
}

// ASCII returns a byte array field as text with trailing and leading spaces
// and NULs removed.
func (d *Decoded) ASCII(name string) string {
	return trimASCII(d.Bytes(name))
}

// SwappedASCII is ASCII for ATA strings, which store two characters per
// little-endian word.
func (d *Decoded) SwappedASCII(name string) string {
	b := d.Bytes(name)
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
	return trimASCII(b)
}

func trimASCII(b []byte) string {
	return strings.Trim(string(b), " \x00")
}

// Nested decodes a sub-structure field.
func (d *Decoded) Nested(name string) *Decoded {
	f, off := d.desc.lookup(name)
	if f.Kind != Nested {
		panic(fmt.Sprintf("structure: %s.%s is %v, not a nested structure", d.desc.name, name, f.Kind))
	}
	return d.slice(f.Child, off/8)
}

// Array decodes every element of a repeated field in order.
func (d *Decoded) Array(name string) []*Decoded {
	f, off := d.desc.lookup(name)
	if f.Kind != Repeated {
		panic(fmt.Sprintf("structure: %s.%s is %v, not a repeated structure", d.desc.name, name, f.Kind))
	}
	return d.elements(f, off)
}

func (d *Decoded) elements(f Field, off uint) []*Decoded {
	out := make([]*Decoded, f.Count)
	start := off / 8
	for i := range out {
		out[i] = d.slice(f.Child, start+uint(i*f.Child.size))
	}
	return out
}

func (d *Decoded) slice(child *Description, start uint) *Decoded {
	raw := make([]byte, child.size)
	copy(raw, d.raw[start:])
	return &Decoded{desc: child, raw: raw}
}

// FieldValue is one decoded field, as returned by Fields and Lookup.
// Exactly one of Value, Bytes or Nested is meaningful, depending on Kind.
type FieldValue struct {
	Name      string
	BitOffset uint
	BitWidth  uint
	Kind      Kind
	Value     Uint128
	Bytes     []byte
	Nested    []*Decoded
}

// Lookup returns a single field without panicking.
func (d *Decoded) Lookup(name string) (FieldValue, bool) {
	i, ok := d.desc.index[name]
	if !ok {
		return FieldValue{}, false
	}
	return d.value(i), true
}

// Fields returns every top-level field in layout order.
func (d *Decoded) Fields() []FieldValue {
	out := make([]FieldValue, len(d.desc.fields))
	for i := range d.desc.fields {
		out[i] = d.value(i)
	}
	return out
}

func (d *Decoded) value(i int) FieldValue {
	f, off := d.desc.fields[i], d.desc.offsets[i]
	fv := FieldValue{Name: f.Name, BitOffset: off, BitWidth: f.Bits, Kind: f.Kind}
	switch f.Kind {
	case Scalar, Bitfield:
		fv.Value = readBits(d.raw, off, f.Bits)
	case ByteArray:
		fv.Bytes = make([]byte, f.Bits/8)
		copy(fv.Bytes, d.raw[off/8:])
	case Nested:
		fv.Nested = []*Decoded{d.slice(f.Child, off/8)}
	case Repeated:
		fv.Nested = d.elements(f, off)
	}
	return fv
}
