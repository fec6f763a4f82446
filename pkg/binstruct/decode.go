package binstruct

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ============================================================================
// Decoding - Packed Bytes → Field Records
// ============================================================================

// Record holds decoded field values by name. Integer fields decode as
// uint64 regardless of width, Char as byte, Bytes as []byte, CString as
// string, and nested structures as nested Records. Padding never appears.
//
// The typed accessors return the zero value when the name is absent or of
// another kind, which keeps call sites linear when walking kernel items.
type Record map[string]any

// Uint returns the named integer field, widening Char bytes as well.
func (r Record) Uint(name string) uint64 {
	switch v := r[name].(type) {
	case uint64:
		return v
	case byte:
		return uint64(v)
	default:
		return 0
	}
}

// Byte returns the named Char field.
func (r Record) Byte(name string) byte {
	b, _ := r[name].(byte)
	return b
}

// Bytes returns the named byte array field.
func (r Record) Bytes(name string) []byte {
	b, _ := r[name].([]byte)
	return b
}

// String returns the named text field.
func (r Record) String(name string) string {
	s, _ := r[name].(string)
	return s
}

// Sub returns the named nested record.
func (r Record) Sub(name string) Record {
	sub, _ := r[name].(Record)
	return sub
}

// Decode reads one structure from buf starting at off.
//
// Parameters:
//   - buf: Source bytes, at least off+Size() long
//   - off: Byte offset of the structure within buf
//
// Returns:
//   - Record: Decoded field values
//   - error: ErrDecode if the buffer cannot hold the structure
//
// Fields decode in declaration order. Decode never fails on field content:
// any bit pattern of the right length is a valid structure, so the only
// failure is a short or mis-addressed buffer.
func (d *Descriptor) Decode(buf []byte, off int) (Record, error) {
	if off < 0 {
		return nil, fmt.Errorf("offset %d is negative: %w", off, ErrDecode)
	}
	if off+d.size > len(buf) {
		return nil, fmt.Errorf("structure needs %d bytes at offset %d, buffer holds %d: %w",
			d.size, off, len(buf), ErrDecode)
	}
	return d.decodeFrom(buf[off : off+d.size]), nil
}

// decodeFrom reads the structure from src, which is exactly d.size bytes.
func (d *Descriptor) decodeFrom(src []byte) Record {
	rec := make(Record, len(d.fields))
	off := 0
	for _, f := range d.fields {
		width := f.size()
		field := src[off : off+width]
		off += width

		switch f.Kind {
		case KindU8:
			rec[f.Name] = uint64(field[0])
		case KindU16:
			rec[f.Name] = uint64(binary.NativeEndian.Uint16(field))
		case KindU32:
			rec[f.Name] = uint64(binary.NativeEndian.Uint32(field))
		case KindU64:
			rec[f.Name] = binary.NativeEndian.Uint64(field)
		case KindChar:
			rec[f.Name] = field[0]
		case KindBytes:
			rec[f.Name] = append([]byte(nil), field...)
		case KindCString:
			rec[f.Name] = cstring(field)
		case KindPad:
			// Skipped: padding carries no value.
		case KindStruct:
			rec[f.Name] = f.Sub.decodeFrom(field)
		}
	}
	return rec
}

// cstring returns the text before the first NUL, or the whole field when
// no terminator is present (a value that exactly fills its width).
func cstring(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}
