package structure

import "fmt"

// Builder assembles a buffer field by field. The zero buffer is all zeroes.
type Builder struct {
	desc *Description
	raw  []byte
}

// New returns a Builder for desc.
func New(desc *Description) *Builder {
	return &Builder{desc: desc, raw: make([]byte, desc.size)}
}

// From returns a Builder seeded with the bytes of an existing instance.
func From(d *Decoded) *Builder {
	return &Builder{desc: d.desc, raw: d.Encode()}
}

func (b *Builder) field(name string, kinds ...Kind) (Field, uint, error) {
	i, ok := b.desc.index[name]
	if !ok {
		return Field{}, 0, fmt.Errorf("%s has no field %q", b.desc.name, name)
	}
	f := b.desc.fields[i]
	for _, k := range kinds {
		if f.Kind == k {
			return f, b.desc.offsets[i], nil
		}
	}
	return Field{}, 0, fmt.Errorf("%s.%s is %v", b.desc.name, name, f.Kind)
}

// Set stores an integer field.
func (b *Builder) Set(name string, v uint64) error {
	return b.SetUint128(name, U128(v))
}

// SetUint128 stores an integer field of any width. Values that do not fit
// are rejected.
func (b *Builder) SetUint128(name string, v Uint128) error {
	f, off, err := b.field(name, Scalar, Bitfield)
	if err != nil {
		return err
	}
	if v.bitLen() > f.Bits {
		return fmt.Errorf("%s.%s: value %s does not fit in %d bits", b.desc.name, name, v, f.Bits)
	}
	writeBits(b.raw, off, f.Bits, v)
	return nil
}

// SetBytes stores a byte array field. Shorter input is zero padded.
func (b *Builder) SetBytes(name string, p []byte) error {
	f, off, err := b.field(name, ByteArray)
	if err != nil {
		return err
	}
	n := int(f.Bits / 8)
	if len(p) > n {
		return fmt.Errorf("%s.%s: %d bytes do not fit in %d", b.desc.name, name, len(p), n)
	}
	dst := b.raw[off/8 : off/8+uint(n)]
	clear(dst)
	copy(dst, p)
	return nil
}

// SetNested stores a nested structure.
func (b *Builder) SetNested(name string, v *Decoded) error {
	f, off, err := b.field(name, Nested)
	if err != nil {
		return err
	}
	if v.desc != f.Child {
		return fmt.Errorf("%s.%s: expected %s, got %s", b.desc.name, name, f.Child.name, v.desc.name)
	}
	copy(b.raw[off/8:], v.raw)
	return nil
}

// SetElement stores element i of a repeated field.
func (b *Builder) SetElement(name string, i int, v *Decoded) error {
	f, off, err := b.field(name, Repeated)
	if err != nil {
		return err
	}
	if i < 0 || i >= f.Count {
		return fmt.Errorf("%s.%s: index %d out of range [0,%d)", b.desc.name, name, i, f.Count)
	}
	if v.desc != f.Child {
		return fmt.Errorf("%s.%s: expected %s, got %s", b.desc.name, name, f.Child.name, v.desc.name)
	}
	copy(b.raw[off/8+uint(i*f.Child.size):], v.raw)
	return nil
}

// Bytes returns a copy of the buffer built so far.
func (b *Builder) Bytes() []byte {
	out := make([]byte, len(b.raw))
	copy(out, b.raw)
	return out
}

// Decoded returns the buffer as a Decoded.
func (b *Builder) Decoded() *Decoded {
	return &Decoded{desc: b.desc, raw: b.Bytes()}
}
