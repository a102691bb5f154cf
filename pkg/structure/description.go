// Package structure describes fixed-layout binary records and decodes raw
// device responses against those descriptions.
//
// A Description is an ordered list of fields, each with an explicit width in
// bits. Fields are laid out back to back starting at bit 0, least significant
// bit first within each byte, and multi-byte integers are little-endian. The
// layouts used by ATA, SCSI pass-through and NVMe are authored once at package
// init and never change afterwards.
package structure

import (
	"errors"
	"fmt"
)

// Kind classifies a field.
type Kind int

const (
	// Scalar is a byte-aligned unsigned integer of 8 to 128 bits.
	Scalar Kind = iota + 1
	// Bitfield is an unsigned integer of 1 to 128 bits at any bit offset.
	Bitfield
	// Nested is a sub-structure decoded with its own Description.
	Nested
	// ByteArray is a fixed number of raw bytes.
	ByteArray
	// Repeated is a nested Description repeated a fixed number of times.
	Repeated
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Bitfield:
		return "bitfield"
	case Nested:
		return "nested"
	case ByteArray:
		return "bytes"
	case Repeated:
		return "repeated"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MaxIntBits is the widest integer field the codec reads.
const MaxIntBits = 128

// ErrInvalidDescription is returned when a layout is malformed.
var ErrInvalidDescription = errors.New("invalid structure description")

// Field is one entry of a Description. Widths are always explicit.
type Field struct {
	Name  string
	Bits  uint
	Kind  Kind
	Child *Description
	Count int
}

// Uint declares a byte-aligned little-endian integer of the given bit width.
func Uint(name string, bits uint) Field {
	return Field{Name: name, Bits: bits, Kind: Scalar}
}

// Bits declares a bitfield of the given width.
func Bits(name string, bits uint) Field {
	return Field{Name: name, Bits: bits, Kind: Bitfield}
}

// Bytes declares a fixed-length byte array.
func Bytes(name string, n int) Field {
	return Field{Name: name, Bits: uint(n) * 8, Kind: ByteArray}
}

// Struct declares a nested sub-structure.
func Struct(name string, child *Description) Field {
	f := Field{Name: name, Kind: Nested, Child: child}
	if child != nil {
		f.Bits = uint(child.size) * 8
	}
	return f
}

// Array declares count consecutive copies of child.
func Array(name string, child *Description, count int) Field {
	f := Field{Name: name, Kind: Repeated, Child: child, Count: count}
	if child != nil && count > 0 {
		f.Bits = uint(child.size) * 8 * uint(count)
	}
	return f
}

// Description is an immutable, validated layout.
type Description struct {
	name    string
	size    int
	fields  []Field
	offsets []uint
	index   map[string]int
}

// Define validates a layout of size bytes. The summed field widths, rounded
// up to a whole byte, must equal size.
func Define(name string, size int, fields ...Field) (*Description, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s: size must be positive, got %d", ErrInvalidDescription, name, size)
	}

	d := &Description{
		name:    name,
		size:    size,
		fields:  make([]Field, len(fields)),
		offsets: make([]uint, len(fields)),
		index:   make(map[string]int, len(fields)),
	}
	copy(d.fields, fields)

	limit := uint(size) * 8
	var off uint
	for i, f := range d.fields {
		if err := validateField(f, off); err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidDescription, name, f.Name, err)
		}
		if _, dup := d.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidDescription, name, f.Name)
		}
		if off+f.Bits > limit {
			return nil, fmt.Errorf("%w: %s.%s: bits [%d:%d] exceed %d-byte structure",
				ErrInvalidDescription, name, f.Name, off, off+f.Bits, size)
		}
		d.index[f.Name] = i
		d.offsets[i] = off
		off += f.Bits
	}

	if (off+7)/8 != uint(size) {
		return nil, fmt.Errorf("%w: %s: fields cover %d bits, declared size is %d bytes",
			ErrInvalidDescription, name, off, size)
	}

	return d, nil
}

// MustDefine is Define for package-level layouts; it panics on error.
func MustDefine(name string, size int, fields ...Field) *Description {
	d, err := Define(name, size, fields...)
	if err != nil {
		panic(err)
	}
	return d
}

func validateField(f Field, off uint) error {
	if f.Name == "" {
		return fmt.Errorf("field name is empty")
	}
	if f.Bits == 0 {
		return fmt.Errorf("width must be positive")
	}

	switch f.Kind {
	case Bitfield:
		if f.Bits > MaxIntBits {
			return fmt.Errorf("bitfield width %d exceeds %d", f.Bits, MaxIntBits)
		}
	case Scalar:
		if f.Bits > MaxIntBits {
			return fmt.Errorf("integer width %d exceeds %d", f.Bits, MaxIntBits)
		}
		if f.Bits%8 != 0 || off%8 != 0 {
			return fmt.Errorf("integer must be byte-aligned and a whole number of bytes")
		}
	case ByteArray:
		if off%8 != 0 {
			return fmt.Errorf("byte array must be byte-aligned")
		}
	case Nested, Repeated:
		if f.Child == nil {
			return fmt.Errorf("missing child description")
		}
		if off%8 != 0 {
			return fmt.Errorf("nested structure must be byte-aligned")
		}
		want := uint(f.Child.size) * 8
		if f.Kind == Repeated {
			if f.Count <= 0 {
				return fmt.Errorf("repeat count must be positive")
			}
			want *= uint(f.Count)
		}
		if f.Bits != want {
			return fmt.Errorf("width %d does not match child size %d", f.Bits, want)
		}
	default:
		return fmt.Errorf("unknown kind %v", f.Kind)
	}

	return nil
}

// Name returns the layout name.
func (d *Description) Name() string {
	return d.name
}

// Size returns the declared size in bytes.
func (d *Description) Size() int {
	return d.size
}

// Fields returns a copy of the field list.
func (d *Description) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Offset returns the bit offset of the named field.
func (d *Description) Offset(name string) (uint, bool) {
	i, ok := d.index[name]
	if !ok {
		return 0, false
	}
	return d.offsets[i], true
}

func (d *Description) lookup(name string) (Field, uint) {
	i, ok := d.index[name]
	if !ok {
		panic(fmt.Sprintf("structure: %s has no field %q", d.name, name))
	}
	return d.fields[i], d.offsets[i]
}
