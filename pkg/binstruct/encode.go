package binstruct

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ============================================================================
// Encoding - Field Values → Packed Bytes
// ============================================================================

// Values supplies field values for Encode, keyed by field name. Fields
// absent from the map encode as zero (integers and bytes zero, text empty),
// so a nil Values encodes an all-zero structure. Keys that match no field
// are ignored. Nested fields take a nested Values map.
type Values map[string]any

// Encode packs the values into a freshly allocated buffer of exactly
// Size() bytes.
//
// Parameters:
//   - values: Field values by name (nil = all defaults)
//
// Returns:
//   - []byte: Packed structure, len == Size()
//   - error: ErrEncode if a value does not fit its field
//
// Integer fields accept any Go integer type and reject negative values and
// values wider than the field. Bytes and CString fields accept string or
// []byte and truncate or zero-pad to the declared width. Char fields accept
// a byte-sized integer or a non-empty string (first byte taken).
func (d *Descriptor) Encode(values Values) ([]byte, error) {
	buf := make([]byte, d.size)
	if err := d.encodeTo(buf, values); err != nil {
		return nil, err
	}
	return buf, nil
}

// encodeTo packs values into buf, which must hold at least d.size bytes.
func (d *Descriptor) encodeTo(buf []byte, values Values) error {
	off := 0
	for _, f := range d.fields {
		if err := encodeField(buf[off:off+f.size()], f, values[f.Name]); err != nil {
			return err
		}
		off += f.size()
	}
	return nil
}

// encodeField writes one field value into dst, which is exactly the
// field's width. A nil value writes the field's zero form.
func encodeField(dst []byte, f Field, value any) error {
	switch f.Kind {
	case KindU8, KindU16, KindU32, KindU64:
		return encodeUint(dst, f, value)

	case KindChar:
		if value == nil {
			dst[0] = 0
			return nil
		}
		if s, ok := value.(string); ok {
			if len(s) == 0 {
				return fmt.Errorf("field %q: empty string for char: %w", f.Name, ErrEncode)
			}
			dst[0] = s[0]
			return nil
		}
		n, ok := toUint64(value)
		if !ok || n > math.MaxUint8 {
			return fmt.Errorf("field %q: %T does not fit char: %w", f.Name, value, ErrEncode)
		}
		dst[0] = byte(n)
		return nil

	case KindBytes, KindCString:
		// Shorter values leave the tail zero, which NUL-terminates text
		// for free; values at or beyond the width are truncated.
		switch v := value.(type) {
		case nil:
		case string:
			copy(dst, v)
		case []byte:
			copy(dst, v)
		default:
			return fmt.Errorf("field %q: cannot encode %T as %s: %w", f.Name, value, f.Kind, ErrEncode)
		}
		return nil

	case KindPad:
		return nil

	case KindStruct:
		switch v := value.(type) {
		case nil:
			return f.Sub.encodeTo(dst, nil)
		case Values:
			return f.Sub.encodeTo(dst, v)
		case map[string]any:
			return f.Sub.encodeTo(dst, v)
		default:
			return fmt.Errorf("field %q: nested value must be Values, got %T: %w", f.Name, value, ErrEncode)
		}

	default:
		return fmt.Errorf("field %q: unknown kind %d: %w", f.Name, int(f.Kind), ErrEncode)
	}
}

// encodeUint writes an unsigned integer field in native byte order.
func encodeUint(dst []byte, f Field, value any) error {
	var n uint64
	if value != nil {
		v, ok := toUint64(value)
		if !ok {
			return fmt.Errorf("field %q: cannot encode %T as %s: %w", f.Name, value, f.Kind, ErrEncode)
		}
		n = v
	}

	switch f.Kind {
	case KindU8:
		if n > math.MaxUint8 {
			return fmt.Errorf("field %q: %d exceeds u8: %w", f.Name, n, ErrEncode)
		}
		dst[0] = byte(n)
	case KindU16:
		if n > math.MaxUint16 {
			return fmt.Errorf("field %q: %d exceeds u16: %w", f.Name, n, ErrEncode)
		}
		binary.NativeEndian.PutUint16(dst, uint16(n))
	case KindU32:
		if n > math.MaxUint32 {
			return fmt.Errorf("field %q: %d exceeds u32: %w", f.Name, n, ErrEncode)
		}
		binary.NativeEndian.PutUint32(dst, uint32(n))
	case KindU64:
		binary.NativeEndian.PutUint64(dst, n)
	}
	return nil
}

// toUint64 widens any Go integer to uint64. Negative values do not
// convert: every field kind is unsigned.
func toUint64(value any) (uint64, bool) {
	switch n := value.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case uintptr:
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int16:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int8:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
