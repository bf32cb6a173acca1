package fixture

import (
	"encoding/binary"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/leb128"
)

// Buf appends encoded values in a fixed byte order.
type Buf struct {
	Order binary.ByteOrder
	B     []byte
}

// NewBuf returns an empty little-endian buffer unless order is given.
func NewBuf(order binary.ByteOrder) *Buf {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Buf{Order: order}
}

func (b *Buf) U8(v uint8) *Buf { b.B = append(b.B, v); return b }

func (b *Buf) U16(v uint16) *Buf {
	var tmp [2]byte
	b.Order.PutUint16(tmp[:], v)
	b.B = append(b.B, tmp[:]...)
	return b
}

func (b *Buf) U32(v uint32) *Buf {
	var tmp [4]byte
	b.Order.PutUint32(tmp[:], v)
	b.B = append(b.B, tmp[:]...)
	return b
}

func (b *Buf) U64(v uint64) *Buf {
	var tmp [8]byte
	b.Order.PutUint64(tmp[:], v)
	b.B = append(b.B, tmp[:]...)
	return b
}

// Uint appends v in n bytes, n in {1, 2, 4, 8}.
func (b *Buf) Uint(v uint64, n int) *Buf {
	switch n {
	case 1:
		return b.U8(uint8(v))
	case 2:
		return b.U16(uint16(v))
	case 4:
		return b.U32(uint32(v))
	}
	return b.U64(v)
}

func (b *Buf) ULEB(v uint64) *Buf { b.B = leb128.AppendUnsigned(b.B, v); return b }
func (b *Buf) SLEB(v int64) *Buf  { b.B = leb128.AppendSigned(b.B, v); return b }
func (b *Buf) Raw(p ...byte) *Buf { b.B = append(b.B, p...); return b }

// CString appends s and its terminating null byte.
func (b *Buf) CString(s string) *Buf {
	b.B = append(b.B, s...)
	b.B = append(b.B, 0)
	return b
}

func (b *Buf) Len() int      { return len(b.B) }
func (b *Buf) Bytes() []byte { return b.B }

// AttrSpec one attribute/form pair of an abbreviation. Const is written
// after the form when Form is DW_FORM_implicit_const.
type AttrSpec struct {
	Attr  uint64
	Form  uint64
	Const int64
}

// Abbrev one abbreviation declaration
type Abbrev struct {
	Code     uint64
	Tag      uint64
	Children bool
	Attrs    []AttrSpec
}

const formImplicitConst = 0x21

// AbbrevTable encodes abbrevs followed by the terminating zero code.
func AbbrevTable(abbrevs ...Abbrev) []byte {
	b := NewBuf(nil)
	for _, a := range abbrevs {
		b.ULEB(a.Code).ULEB(a.Tag)
		if a.Children {
			b.U8(1)
		} else {
			b.U8(0)
		}
		for _, s := range a.Attrs {
			b.ULEB(s.Attr).ULEB(s.Form)
			if s.Form == formImplicitConst {
				b.SLEB(s.Const)
			}
		}
		b.ULEB(0).ULEB(0)
	}
	b.ULEB(0)
	return b.Bytes()
}

// Unit a compilation unit to encode. Body holds the DIE bytes.
type Unit struct {
	Version      uint16
	Format64     bool
	UnitType     uint8 // version 5 only
	AbbrevOffset uint64
	AddrSize     uint8
	Signature    uint64 // type units
	TypeOffset   uint64 // type units
	TypeUnit     bool   // version 4 .debug_types layout or version 5 DW_UT_type
	Body         []byte
}

// Encode returns the unit header and body with a correct unit_length.
func (u Unit) Encode(order binary.ByteOrder) []byte {
	offSize := 4
	if u.Format64 {
		offSize = 8
	}

	rest := NewBuf(order).U16(u.Version)
	if u.Version >= 5 {
		rest.U8(u.UnitType).U8(u.AddrSize).Uint(u.AbbrevOffset, offSize)
	} else {
		rest.Uint(u.AbbrevOffset, offSize).U8(u.AddrSize)
	}
	if u.TypeUnit {
		rest.U64(u.Signature).Uint(u.TypeOffset, offSize)
	}
	rest.Raw(u.Body...)

	out := NewBuf(order)
	if u.Format64 {
		out.U32(0xffffffff).U64(uint64(rest.Len()))
	} else {
		out.U32(uint32(rest.Len()))
	}
	return out.Raw(rest.Bytes()...).Bytes()
}

// CompileUnitImage returns an ELF image holding one compilation unit with
// a single childless DW_TAG_compile_unit DIE whose DW_AT_name is an inline
// DW_FORM_string.
func CompileUnitImage(order binary.ByteOrder, name string) []byte {
	const (
		tagCompileUnit = 0x11
		atName         = 0x03
		formString     = 0x08
	)
	abbrev := AbbrevTable(Abbrev{
		Code: 1, Tag: tagCompileUnit,
		Attrs: []AttrSpec{{Attr: atName, Form: formString}},
	})
	body := NewBuf(order).ULEB(1).CString(name).Bytes()
	info := Unit{Version: 4, AddrSize: 8, Body: body}.Encode(order)

	e := &ELF{
		Class:   64,
		Order:   order,
		Machine: EM_X86_64,
		Sections: []Section{
			{Name: ".text", Type: SHT_PROGBITS, Flags: 0x6, Addr: 0x401000, Data: []byte{0x90, 0xc3}},
			{Name: ".debug_abbrev", Type: SHT_PROGBITS, Data: abbrev},
			{Name: ".debug_info", Type: SHT_PROGBITS, Data: info},
		},
	}
	return e.MustBuild()
}
