package binstruct

import "fmt"

// ============================================================================
// Buffer - Sequential Decoding Cursor
// ============================================================================

// Buffer decodes a sequence of structures from one byte slice, tracking a
// cursor so callers never do offset arithmetic. Kernel search results are
// shaped this way: a header structure followed by a variable-length
// payload, repeated until the buffer is exhausted.
//
//	cur := binstruct.NewBuffer(resultBuf)
//	for range nrItems {
//	    hdr, err := cur.Next(searchHeader)
//	    ...
//	    cur.Skip(int(hdr.Uint("len")))
//	}
//
// Buffer does not copy its input and is not safe for concurrent use.
type Buffer struct {
	data []byte
	off  int
}

// NewBuffer wraps data with the cursor at offset zero.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Next decodes one structure at the cursor and advances past it.
//
// Parameters:
//   - d: Layout of the next structure
//
// Returns:
//   - Record: Decoded field values
//   - error: ErrDecode if fewer than d.Size() bytes remain
//
// On error the cursor does not move.
func (b *Buffer) Next(d *Descriptor) (Record, error) {
	rec, err := d.Decode(b.data, b.off)
	if err != nil {
		return nil, err
	}
	b.off += d.Size()
	return rec, nil
}

// Skip advances the cursor n bytes without decoding, stepping over
// variable-length payloads between structures.
//
// Parameters:
//   - n: Bytes to skip
//
// Returns:
//   - error: ErrDecode if n is negative or exceeds Remaining()
func (b *Buffer) Skip(n int) error {
	if n < 0 {
		return fmt.Errorf("skip of %d bytes: %w", n, ErrDecode)
	}
	if n > b.Remaining() {
		return fmt.Errorf("skip of %d bytes with %d remaining: %w", n, b.Remaining(), ErrDecode)
	}
	b.off += n
	return nil
}

// Remaining returns the byte count between the cursor and the end.
func (b *Buffer) Remaining() int { return len(b.data) - b.off }

// Offset returns the cursor position from the start of the buffer.
func (b *Buffer) Offset() int { return b.off }
