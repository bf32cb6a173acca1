// Package cursor provides a bounds-checked sequential reader over an
// immutable byte slice, aware of byte order and of the two runtime
// selected widths DWARF needs: the file offset width (32 or 64-bit DWARF
// format) and the target machine address width.
package cursor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/leb128"
)

var (
	// ErrOutOfData read past the end of the cursor's span
	ErrOutOfData = errors.New("out of data")
	// ErrBadWidth offset or address width is not 4 or 8
	ErrBadWidth = errors.New("unsupported width, expected 4 or 8 bytes")
)

// Cursor reads forward through a byte span.
//
// A Cursor is a small value: copying it derives an independent reader over
// the same bytes, and a failed read never moves it.
type Cursor struct {
	order binary.ByteOrder
	data  []byte // not yet consumed
	pos   uint64 // offset of data[0] within the original span

	offsetSize  int
	addressSize int
	segmentSize int
}

// New returns a cursor over data. The offset width defaults to 4 (32-bit
// DWARF format), the address width to 8.
func New(data []byte, order binary.ByteOrder) Cursor {
	return Cursor{
		order:       order,
		data:        data,
		offsetSize:  4,
		addressSize: 8,
	}
}

// At returns a cursor over data whose positions are reported relative to
// base, for reading a sub-span while keeping section offsets.
func At(data []byte, base uint64, order binary.ByteOrder) Cursor {
	c := New(data, order)
	c.pos = base
	return c
}

// WithOffsetSize returns a copy of c reading offsets of n bytes.
func (c Cursor) WithOffsetSize(n int) Cursor {
	c.offsetSize = n
	return c
}

// WithAddressSize returns a copy of c reading addresses of n bytes.
func (c Cursor) WithAddressSize(n int) Cursor {
	c.addressSize = n
	return c
}

// WithSegmentSize returns a copy of c reading segment selectors of n bytes.
func (c Cursor) WithSegmentSize(n int) Cursor {
	c.segmentSize = n
	return c
}

func (c *Cursor) Order() binary.ByteOrder { return c.order }
func (c *Cursor) OffsetSize() int         { return c.offsetSize }
func (c *Cursor) AddressSize() int        { return c.addressSize }
func (c *Cursor) SegmentSize() int        { return c.segmentSize }

// Pos returns the position of the next byte to be read.
func (c *Cursor) Pos() uint64 { return c.pos }

// Len returns the number of unread bytes.
func (c *Cursor) Len() int { return len(c.data) }

// Empty reports whether all bytes have been consumed.
func (c *Cursor) Empty() bool { return len(c.data) == 0 }

// Bytes returns the unread bytes without consuming them.
func (c *Cursor) Bytes() []byte { return c.data }

func (c *Cursor) outOfData(want int) error {
	return fmt.Errorf("%w: need %d bytes at offset %#x, have %d", ErrOutOfData, want, c.pos, len(c.data))
}

// Fixed consumes and returns the next n bytes.
func (c *Cursor) Fixed(n int) ([]byte, error) {
	if n < 0 || len(c.data) < n {
		return nil, c.outOfData(n)
	}
	b := c.data[:n:n]
	c.data = c.data[n:]
	c.pos += uint64(n)
	return b, nil
}

// Skip consumes n bytes.
func (c *Cursor) Skip(n int) error {
	_, err := c.Fixed(n)
	return err
}

// Sub consumes the next n bytes and returns a cursor over just them,
// inheriting the byte order and widths of c.
func (c *Cursor) Sub(n int) (Cursor, error) {
	pos := c.pos
	b, err := c.Fixed(n)
	if err != nil {
		return Cursor{}, err
	}
	sub := *c
	sub.data = b
	sub.pos = pos
	return sub, nil
}

// U8 reads one byte. Single bytes never need byte swapping.
func (c *Cursor) U8() (uint8, error) {
	b, err := c.Fixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a 2-byte value in the cursor's byte order.
func (c *Cursor) U16() (uint16, error) {
	b, err := c.Fixed(2)
	if err != nil {
		return 0, err
	}
	return c.order.Uint16(b), nil
}

// U32 reads a 4-byte value in the cursor's byte order.
func (c *Cursor) U32() (uint32, error) {
	b, err := c.Fixed(4)
	if err != nil {
		return 0, err
	}
	return c.order.Uint32(b), nil
}

// U64 reads an 8-byte value in the cursor's byte order.
func (c *Cursor) U64() (uint64, error) {
	b, err := c.Fixed(8)
	if err != nil {
		return 0, err
	}
	return c.order.Uint64(b), nil
}

// Uint reads an n-byte unsigned value, n in {1, 2, 4, 8}, widened to 64 bits.
func (c *Cursor) Uint(n int) (uint64, error) {
	switch n {
	case 1:
		v, err := c.U8()
		return uint64(v), err
	case 2:
		v, err := c.U16()
		return uint64(v), err
	case 4:
		v, err := c.U32()
		return uint64(v), err
	case 8:
		return c.U64()
	}
	return 0, fmt.Errorf("%w: got %d", ErrBadWidth, n)
}

// Offset reads a section offset of the cursor's offset width.
func (c *Cursor) Offset() (uint64, error) {
	if c.offsetSize != 4 && c.offsetSize != 8 {
		return 0, fmt.Errorf("%w: offset size %d", ErrBadWidth, c.offsetSize)
	}
	return c.Uint(c.offsetSize)
}

// Address reads a target address of the cursor's address width.
func (c *Cursor) Address() (uint64, error) {
	if c.addressSize != 4 && c.addressSize != 8 {
		return 0, fmt.Errorf("%w: address size %d", ErrBadWidth, c.addressSize)
	}
	return c.Uint(c.addressSize)
}

// Segment reads a segment selector of the cursor's segment width, which may
// be zero.
func (c *Cursor) Segment() (uint64, error) {
	if c.segmentSize == 0 {
		return 0, nil
	}
	return c.Uint(c.segmentSize)
}

// ULEB128 reads an unsigned LEB128 value.
func (c *Cursor) ULEB128() (uint64, error) {
	v, n, err := leb128.DecodeUnsigned(c.data)
	if err != nil {
		return 0, c.lebError(err)
	}
	c.data = c.data[n:]
	c.pos += uint64(n)
	return v, nil
}

// SLEB128 reads a signed LEB128 value.
func (c *Cursor) SLEB128() (int64, error) {
	v, n, err := leb128.DecodeSigned(c.data)
	if err != nil {
		return 0, c.lebError(err)
	}
	c.data = c.data[n:]
	c.pos += uint64(n)
	return v, nil
}

func (c *Cursor) lebError(err error) error {
	if errors.Is(err, leb128.ErrTruncated) {
		return fmt.Errorf("%w: leb128 at offset %#x", ErrOutOfData, c.pos)
	}
	return fmt.Errorf("%w at offset %#x", err, c.pos)
}

// CString consumes a null-terminated string and returns its bytes
// including the terminator.
func (c *Cursor) CString() ([]byte, error) {
	i := bytes.IndexByte(c.data, 0)
	if i < 0 {
		return nil, fmt.Errorf("%w: unterminated string at offset %#x", ErrOutOfData, c.pos)
	}
	return c.Fixed(i + 1)
}
