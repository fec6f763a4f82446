// Package binstruct encodes and decodes packed C binary structures.
//
// The kernel ioctl ABI exchanges fixed-layout structures: native byte
// order, no implicit padding, every field at a fixed offset. This package
// describes such a layout once, as an ordered list of typed fields, and
// reuses the description for every encode and decode:
//
//	args := binstruct.MustNew(
//	    binstruct.U64("tree_id"),
//	    binstruct.U32("nr_items"),
//	    binstruct.Pad(4),
//	)
//	buf, err := args.Encode(binstruct.Values{"tree_id": 1})
//	rec, err := args.Decode(buf, 0)
//
// Field kinds form a closed set: unsigned integers of 8/16/32/64 bits,
// a single raw byte (Char), fixed-width byte arrays (Bytes), fixed-width
// NUL-terminated text (CString), anonymous padding (Pad), and nested
// structures (Nested). Alignment is never inferred; layouts that need
// padding declare it explicitly, which keeps every descriptor byte-exact
// against its C counterpart.
package binstruct

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// Field Kinds
// ============================================================================

// Kind identifies the wire representation of a single field.
type Kind int

const (
	// KindU8 is an unsigned 8-bit integer.
	KindU8 Kind = iota
	// KindU16 is an unsigned 16-bit integer in native byte order.
	KindU16
	// KindU32 is an unsigned 32-bit integer in native byte order.
	KindU32
	// KindU64 is an unsigned 64-bit integer in native byte order.
	KindU64
	// KindChar is a single raw byte, decoded as byte rather than uint64.
	KindChar
	// KindBytes is a fixed-width byte array, decoded as []byte.
	KindBytes
	// KindCString is a fixed-width byte array decoded as text up to the
	// first NUL. Encoding truncates or NUL-pads to the declared width.
	KindCString
	// KindPad is anonymous padding: zero-filled on encode, skipped on
	// decode, absent from decoded records.
	KindPad
	// KindStruct is a nested structure with its own descriptor.
	KindStruct
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindChar:
		return "char"
	case KindBytes:
		return "bytes"
	case KindCString:
		return "cstring"
	case KindPad:
		return "pad"
	case KindStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// ============================================================================
// Field Definitions
// ============================================================================

// Field is one entry of a structure layout. Build fields with the
// constructors below rather than struct literals; New validates either way.
type Field struct {
	// Name identifies the field in Values and Record maps. Padding
	// fields are anonymous and must have an empty name.
	Name string

	// Kind selects the wire representation.
	Kind Kind

	// Width is the byte width for Bytes, CString and Pad fields.
	// All other kinds have a fixed width and must declare 1 here
	// (the constructors do).
	Width int

	// Sub is the nested layout for Struct fields, nil otherwise.
	Sub *Descriptor
}

// U8 declares an unsigned 8-bit integer field.
func U8(name string) Field { return Field{Name: name, Kind: KindU8, Width: 1} }

// U16 declares an unsigned 16-bit integer field in native byte order.
func U16(name string) Field { return Field{Name: name, Kind: KindU16, Width: 1} }

// U32 declares an unsigned 32-bit integer field in native byte order.
func U32(name string) Field { return Field{Name: name, Kind: KindU32, Width: 1} }

// U64 declares an unsigned 64-bit integer field in native byte order.
func U64(name string) Field { return Field{Name: name, Kind: KindU64, Width: 1} }

// Char declares a single raw byte field.
func Char(name string) Field { return Field{Name: name, Kind: KindChar, Width: 1} }

// Bytes declares a fixed-width byte array field of the given width.
func Bytes(name string, width int) Field {
	return Field{Name: name, Kind: KindBytes, Width: width}
}

// CString declares a fixed-width text field of the given width. Values
// shorter than the width are NUL-padded; longer values are truncated.
// Decoding stops at the first NUL.
func CString(name string, width int) Field {
	return Field{Name: name, Kind: KindCString, Width: width}
}

// Pad declares anonymous padding of the given width.
func Pad(width int) Field { return Field{Kind: KindPad, Width: width} }

// Nested declares a field holding a nested structure.
func Nested(name string, sub *Descriptor) Field {
	return Field{Name: name, Kind: KindStruct, Width: 1, Sub: sub}
}

// size returns the encoded width of the field in bytes.
func (f Field) size() int {
	switch f.Kind {
	case KindU8, KindChar:
		return 1
	case KindU16:
		return 2
	case KindU32:
		return 4
	case KindU64:
		return 8
	case KindBytes, KindCString, KindPad:
		return f.Width
	case KindStruct:
		return f.Sub.size
	default:
		return 0
	}
}

// signature returns the field's contribution to the layout signature,
// following the C struct format convention: B/H/L/Q for integers, c for a
// raw byte, <n>s for byte arrays and text, <n>x for padding. Nested
// structures contribute their own signature inline.
func (f Field) signature() string {
	switch f.Kind {
	case KindU8:
		return "B"
	case KindU16:
		return "H"
	case KindU32:
		return "L"
	case KindU64:
		return "Q"
	case KindChar:
		return "c"
	case KindBytes, KindCString:
		if f.Width == 1 {
			return "s"
		}
		return strconv.Itoa(f.Width) + "s"
	case KindPad:
		if f.Width == 1 {
			return "x"
		}
		return strconv.Itoa(f.Width) + "x"
	case KindStruct:
		return f.Sub.signature
	default:
		return "?"
	}
}

// ============================================================================
// Descriptor
// ============================================================================

// Descriptor is a validated, immutable structure layout. A descriptor is
// safe for concurrent use; typical usage builds them once at package level
// with MustNew and shares them for the life of the process.
type Descriptor struct {
	fields    []Field
	size      int
	signature string
}

// New builds a descriptor from an ordered field list.
//
// Parameters:
//   - fields: Field definitions in declaration order
//
// Returns:
//   - *Descriptor: Validated layout
//   - error: ErrDefinition if any field is malformed
//
// Validation enforces that every non-padding field has a unique non-empty
// name, every width is positive, and every nested field carries a
// descriptor. Definition errors do not depend on runtime data, so a layout
// that constructs once will construct always.
func New(fields ...Field) (*Descriptor, error) {
	seen := make(map[string]struct{}, len(fields))
	size := 0
	var sig strings.Builder

	for i, f := range fields {
		switch f.Kind {
		case KindU8, KindU16, KindU32, KindU64, KindChar, KindBytes, KindCString, KindStruct:
			if f.Name == "" {
				return nil, fmt.Errorf("field %d: missing name: %w", i, ErrDefinition)
			}
			if _, dup := seen[f.Name]; dup {
				return nil, fmt.Errorf("field %q: duplicate name: %w", f.Name, ErrDefinition)
			}
			seen[f.Name] = struct{}{}
		case KindPad:
			if f.Name != "" {
				return nil, fmt.Errorf("field %d: padding must be anonymous: %w", i, ErrDefinition)
			}
		default:
			return nil, fmt.Errorf("field %d: unknown kind %d: %w", i, int(f.Kind), ErrDefinition)
		}

		if f.Width < 1 {
			return nil, fmt.Errorf("field %d: width %d is not positive: %w", i, f.Width, ErrDefinition)
		}
		if f.Width > 1 {
			switch f.Kind {
			case KindBytes, KindCString, KindPad:
			default:
				return nil, fmt.Errorf("field %d: width %d on fixed-size kind %s: %w", i, f.Width, f.Kind, ErrDefinition)
			}
		}
		if f.Kind == KindStruct && f.Sub == nil {
			return nil, fmt.Errorf("field %q: nested field has no descriptor: %w", f.Name, ErrDefinition)
		}

		size += f.size()
		sig.WriteString(f.signature())
	}

	return &Descriptor{
		fields:    append([]Field(nil), fields...),
		size:      size,
		signature: sig.String(),
	}, nil
}

// MustNew is New for package-level layout tables: it panics on a
// definition error instead of returning it.
func MustNew(fields ...Field) *Descriptor {
	d, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return d
}

// Size returns the encoded size of the structure in bytes. The size is
// exact: encode always produces it and decode always consumes it.
func (d *Descriptor) Size() int { return d.size }

// Signature returns a compact string describing the layout, one token per
// field (nested layouts inline). Two descriptors with equal signatures
// have identical wire formats.
func (d *Descriptor) Signature() string { return d.signature }
