package dwarf

import (
	"encoding/binary"
	"fmt"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
)

const (
	dwarf64Escape   = 0xffffffff
	reservedInitLen = 0xfffffff0
)

// Encoding the widths and byte order that hold for every value inside one
// unit. It is captured once from the unit header and passed by value.
type Encoding struct {
	Order      binary.ByteOrder
	Version    uint16
	OffsetSize int // 4 for 32-bit DWARF, 8 for 64-bit DWARF
	AddrSize   int
}

// Is64 reports whether the unit uses the 64-bit DWARF format.
func (e Encoding) Is64() bool { return e.OffsetSize == 8 }

// readInitialLength decodes a unit's initial length field and returns the
// unit length, the width of the length field itself (4 or 12) and the
// offset width it implies (4 or 8).
//
// see DWARFv4 7.4 32-Bit and 64-Bit DWARF Formats
func readInitialLength(c *cursor.Cursor) (length uint64, fieldSize, offsetSize int, err error) {
	l, err := c.U32()
	if err != nil {
		return 0, 0, 0, err
	}
	switch {
	case l == dwarf64Escape:
		length, err = c.U64()
		if err != nil {
			return 0, 0, 0, err
		}
		return length, 12, 8, nil
	case l < reservedInitLen:
		return uint64(l), 4, 4, nil
	}
	return 0, 0, 0, fmt.Errorf("%w: %#x, expected 0xffffffff or < 0xfffffff0", ErrBadInitialLength, l)
}

// UnitHeader a compilation or type unit header.
//
// see DWARFv4 7.5.1 and DWARFv5 7.5.1 Unit Headers
type UnitHeader struct {
	Offset       uint64 // offset of the unit in its section
	Length       uint64 // unit_length, excluding the length field
	LengthSize   int    // 4, or 12 in the 64-bit format
	Version      uint16
	Type         UnitType
	AbbrevOffset uint64
	AddrSize     uint8

	Signature  uint64 // type units
	TypeOffset uint64 // type units, unit-relative
	DWOID      uint64 // skeleton and split compile units
}

// NextOffset returns the section offset of the following unit.
func (h *UnitHeader) NextOffset() uint64 {
	return h.Offset + uint64(h.LengthSize) + h.Length
}

// Unit a decoded unit header plus a cursor over its DIE bytes.
type Unit struct {
	UnitHeader

	enc     Encoding
	section string
	data    cursor.Cursor
}

// Encoding returns the widths and byte order of the unit's values.
func (u *Unit) Encoding() Encoding { return u.enc }

// Is64 reports whether the unit uses the 64-bit DWARF format.
func (u *Unit) Is64() bool { return u.enc.Is64() }

// DataOffset returns the section offset of the unit's first DIE.
func (u *Unit) DataOffset() uint64 { return u.data.Pos() }

// Cursor returns a fresh cursor over the unit's DIE bytes, configured with
// the unit's offset and address widths.
func (u *Unit) Cursor() cursor.Cursor { return u.data }

// Section returns the name of the section the unit was read from.
func (u *Unit) Section() string { return u.section }

// Contains reports whether the section offset off lies inside the unit.
func (u *Unit) Contains(off uint64) bool {
	return off >= u.Offset && off < u.NextOffset()
}

// IsTypeUnit reports whether the header carries a type signature.
func (u *Unit) IsTypeUnit() bool {
	return u.Type == UTType || u.Type == UTSplitType
}

func (u *Unit) String() string {
	format := "32-bit"
	if u.Is64() {
		format = "64-bit"
	}
	return fmt.Sprintf("unit@%#x v%d %s %s len=%#x abbrev=%#x addr_size=%d",
		u.Offset, u.Version, u.Type, format, u.Length, u.AbbrevOffset, u.AddrSize)
}

// UnitIterator walks the units of .debug_info (or .debug_types) in order,
// using each unit's length to find the next.
type UnitIterator struct {
	c       cursor.Cursor
	section string
	types   bool
	err     error
}

// NewUnitIterator iterates the units of a .debug_info section.
func NewUnitIterator(info []byte, order binary.ByteOrder) *UnitIterator {
	return &UnitIterator{c: cursor.New(info, order), section: SectionInfo}
}

// NewTypeUnitIterator iterates the type units of a version 4 .debug_types
// section.
func NewTypeUnitIterator(types []byte, order binary.ByteOrder) *UnitIterator {
	return &UnitIterator{c: cursor.New(types, order), section: SectionTypes, types: true}
}

// Offset returns the section offset at which the next unit starts. After
// the last unit it equals the section length.
func (it *UnitIterator) Offset() uint64 { return it.c.Pos() }

// Err returns the error that stopped the iteration, if any. Errors in a
// single unit's header do not stop it.
func (it *UnitIterator) Err() error { return it.err }

// Next returns the next unit, or nil at the end of the section.
//
// A unit whose length field could be read but whose header is malformed
// is reported and skipped: calling Next again moves on to the following
// unit. A malformed or overlong length field stops the iteration.
func (it *UnitIterator) Next() (*Unit, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.c.Empty() {
		return nil, nil
	}

	start := it.c.Pos()
	length, fieldSize, offsetSize, err := readInitialLength(&it.c)
	if err != nil {
		it.err = decodeError(it.section, start, err)
		return nil, it.err
	}
	if length > uint64(it.c.Len()) {
		it.err = decodeError(it.section, start,
			fmt.Errorf("%w: unit length %#x exceeds remaining %#x bytes", ErrOutOfData, length, it.c.Len()))
		return nil, it.err
	}
	body, err := it.c.Sub(int(length))
	if err != nil {
		it.err = decodeError(it.section, start, err)
		return nil, it.err
	}

	u := &Unit{
		UnitHeader: UnitHeader{Offset: start, Length: length, LengthSize: fieldSize},
		section:    it.section,
	}
	body = body.WithOffsetSize(offsetSize)
	if err := it.readHeader(&body, u); err != nil {
		return nil, decodeError(it.section, start, err)
	}

	u.enc = Encoding{
		Order:      body.Order(),
		Version:    u.Version,
		OffsetSize: offsetSize,
		AddrSize:   int(u.AddrSize),
	}
	u.data = body.WithAddressSize(int(u.AddrSize))
	return u, nil
}

func (it *UnitIterator) readHeader(c *cursor.Cursor, u *Unit) (err error) {
	if u.Version, err = c.U16(); err != nil {
		return err
	}
	if u.Version < 2 || u.Version > 5 {
		return fmt.Errorf("%w: version %d, expected 2 <= version <= 5", ErrUnsupportedVersion, u.Version)
	}

	if u.Version >= 5 {
		var ut uint8
		if ut, err = c.U8(); err != nil {
			return err
		}
		u.Type = UnitType(ut)
		if u.AddrSize, err = c.U8(); err != nil {
			return err
		}
		if u.AbbrevOffset, err = c.Offset(); err != nil {
			return err
		}
		switch u.Type {
		case UTType, UTSplitType:
			return readTypeSignature(c, u)
		case UTSkeleton, UTSplitCompile:
			u.DWOID, err = c.U64()
			return err
		}
		return nil
	}

	if u.AbbrevOffset, err = c.Offset(); err != nil {
		return err
	}
	if u.AddrSize, err = c.U8(); err != nil {
		return err
	}
	u.Type = UTCompile
	if it.types {
		u.Type = UTType
		return readTypeSignature(c, u)
	}
	return nil
}

func readTypeSignature(c *cursor.Cursor, u *Unit) (err error) {
	if u.Signature, err = c.U64(); err != nil {
		return err
	}
	u.TypeOffset, err = c.Offset()
	return err
}

// SniffByteOrder guesses the byte order of .debug_info from the version
// field of its first unit, whose high byte is always zero. It falls back
// to big endian when the section is too short or the guess is ambiguous.
func SniffByteOrder(info []byte) binary.ByteOrder {
	at := 4
	if len(info) >= 4 && binary.LittleEndian.Uint32(info) == dwarf64Escape {
		at = 12
	}
	if len(info) < at+2 {
		return binary.BigEndian
	}
	x, y := info[at], info[at+1]
	if x != 0 && y == 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
