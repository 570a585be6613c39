/*
package bytedec implements little-endian integer decoding and a forward-only
cursor over a byte window. It is used by the on-disk structure parsers.
*/
package bytedec

// Uint composes an unsigned integer from b treating b[0] as the least
// significant byte. It panics if b is longer than 4 bytes.
func Uint(b []byte) uint32 {
	if len(b) > 4 {
		panic("bytedec: span longer than 4 bytes")
	}
	var v uint32
	for i, c := range b {
		v |= uint32(c) << (8 * i)
	}
	return v
}

// Cursor consumes a byte window from front to back.
// Taking more bytes than remain panics.
type Cursor struct {
	data []byte
	off  int
}

// NewCursor returns a cursor positioned at the start of b.
func NewCursor(b []byte) Cursor {
	return Cursor{data: b}
}

// Len returns the number of bytes not yet consumed.
func (c *Cursor) Len() int { return len(c.data) - c.off }

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int { return c.off }

// TakeOne consumes and returns a single byte.
func (c *Cursor) TakeOne() byte {
	if c.Len() < 1 {
		panic("bytedec: cursor exhausted")
	}
	b := c.data[c.off]
	c.off++
	return b
}

// TakeN consumes n bytes and returns them. The returned slice aliases the
// underlying window.
func (c *Cursor) TakeN(n int) []byte {
	if n < 0 || c.Len() < n {
		panic("bytedec: cursor exhausted")
	}
	b := c.data[c.off : c.off+n : c.off+n]
	c.off += n
	return b
}

// TakeUint consumes n bytes (1..4) and decodes them with [Uint].
func (c *Cursor) TakeUint(n int) uint32 {
	return Uint(c.TakeN(n))
}

// Skip discards n bytes.
func (c *Cursor) Skip(n int) {
	c.TakeN(n)
}
