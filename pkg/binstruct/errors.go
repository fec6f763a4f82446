package binstruct

import "errors"

// ============================================================================
// Standard Codec Errors
// ============================================================================

// These errors separate the three failure classes of the codec. Callers
// should match them with errors.Is rather than comparing messages.
//
// Usage Pattern:
//
//	rec, err := desc.Decode(buf, 0)
//	if err != nil {
//	    if errors.Is(err, binstruct.ErrDecode) {
//	        // short or malformed buffer
//	    }
//	}
//
// Error Wrapping:
// All codec functions wrap these sentinels with field-level context:
//
//	fmt.Errorf("field %q: value out of range: %w", name, ErrEncode)

var (
	// ErrDefinition indicates a malformed layout definition.
	//
	// This error is returned by New when:
	//   - A field name is empty (padding excepted) or duplicated
	//   - A width or repeat count is not positive
	//   - A nested field has no descriptor
	//
	// Layouts are fixed at startup, so this is a programmer error:
	// it never depends on runtime data.
	ErrDefinition = errors.New("invalid structure definition")

	// ErrEncode indicates a value that cannot be written into its field.
	//
	// This error is returned when:
	//   - A value's type is not accepted by the field kind
	//   - An integer is negative or exceeds the field width
	//   - A nested value is not a Values map
	ErrEncode = errors.New("cannot encode value")

	// ErrDecode indicates a buffer that cannot be read as the layout.
	//
	// This error is returned when:
	//   - The buffer is shorter than the structure size
	//   - The read offset is negative or past the end
	ErrDecode = errors.New("cannot decode buffer")
)
