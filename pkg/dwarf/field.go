package dwarf

import (
	"bytes"
	"fmt"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
	"github.com/hitzhangjie/dwarfy/pkg/dwarf/leb128"
)

// Class the kind of value a form encodes.
type Class int

const (
	ClassUnknown Class = iota
	ClassAddress
	ClassAddrIndex
	ClassBlock
	ClassConstant
	ClassExprLoc
	ClassFlag
	ClassReference
	ClassRefAddr
	ClassRefSig8
	ClassSecOffset
	ClassString
	ClassStrIndex
	ClassStrOffset
	ClassListIndex
)

var classNames = [...]string{
	ClassUnknown:   "unknown",
	ClassAddress:   "address",
	ClassAddrIndex: "addrx",
	ClassBlock:     "block",
	ClassConstant:  "constant",
	ClassExprLoc:   "exprloc",
	ClassFlag:      "flag",
	ClassReference: "reference",
	ClassRefAddr:   "ref_addr",
	ClassRefSig8:   "ref_sig8",
	ClassSecOffset: "sec_offset",
	ClassString:    "string",
	ClassStrIndex:  "strx",
	ClassStrOffset: "strp",
	ClassListIndex: "listx",
}

func (c Class) String() string {
	if c >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Field one attribute of a DIE: its name, the form it was encoded with and
// the raw bytes of its value. Values are interpreted on demand.
//
// Raw holds the value bytes as they appear in the section: fixed-width
// forms hold their N bytes, LEB128 forms hold the encoded bytes, inline
// strings include the terminating NUL and block forms hold the payload
// without the length prefix. Forms that carry no bytes hold an empty Raw.
type Field struct {
	Attr   Attr
	Form   Form // the actual form, after DW_FORM_indirect is resolved
	Raw    []byte
	Offset uint64 // section offset of the value

	// Const the value of a DW_FORM_implicit_const attribute, taken from
	// the abbreviation.
	Const int64

	enc  Encoding
	unit uint64 // offset of the owning unit, for unit-relative references
}

// Class returns the kind of value the field's form encodes.
func (f *Field) Class() Class {
	switch f.Form {
	case FormAddr:
		return ClassAddress
	case FormAddrx, FormAddrx1, FormAddrx2, FormAddrx3, FormAddrx4:
		return ClassAddrIndex
	case FormBlock, FormBlock1, FormBlock2, FormBlock4, FormData16:
		return ClassBlock
	case FormData1, FormData2, FormData4, FormData8, FormSdata, FormUdata, FormImplicitConst:
		return ClassConstant
	case FormExprloc:
		return ClassExprLoc
	case FormFlag, FormFlagPresent:
		return ClassFlag
	case FormRef1, FormRef2, FormRef4, FormRef8, FormRefUdata:
		return ClassReference
	case FormRefAddr, FormRefSup4, FormRefSup8:
		return ClassRefAddr
	case FormRefSig8:
		return ClassRefSig8
	case FormSecOffset:
		return ClassSecOffset
	case FormString:
		return ClassString
	case FormStrx, FormStrx1, FormStrx2, FormStrx3, FormStrx4:
		return ClassStrIndex
	case FormStrp, FormLineStrp, FormStrpSup:
		return ClassStrOffset
	case FormLoclistx, FormRnglistx:
		return ClassListIndex
	}
	return ClassUnknown
}

func (f *Field) classError(want string) error {
	return fmt.Errorf("%w: %s (%s) as %s", ErrFormClass, f.Attr, f.Form, want)
}

// Uint decodes the value as an unsigned integer. It serves every form that
// holds a fixed-width or ULEB128 number: addresses, constants, flags,
// references, section offsets and indexes.
func (f *Field) Uint() (uint64, error) {
	switch f.Form {
	case FormUdata, FormRefUdata, FormStrx, FormAddrx, FormLoclistx, FormRnglistx:
		v, _, err := leb128.DecodeUnsigned(f.Raw)
		return v, err
	case FormSdata:
		v, _, err := leb128.DecodeSigned(f.Raw)
		return uint64(v), err
	case FormImplicitConst:
		return uint64(f.Const), nil
	case FormFlagPresent:
		return 1, nil
	case FormStrx3, FormAddrx3:
		if len(f.Raw) != 3 {
			return 0, f.classError("unsigned integer")
		}
		return f.uint24(), nil
	case FormString, FormBlock, FormBlock1, FormBlock2, FormBlock4, FormExprloc, FormData16:
		return 0, f.classError("unsigned integer")
	}
	c := cursor.New(f.Raw, f.enc.Order)
	v, err := c.Uint(len(f.Raw))
	if err != nil {
		return 0, f.classError("unsigned integer")
	}
	return v, nil
}

func (f *Field) uint24() uint64 {
	b := f.Raw
	if f.enc.Order.Uint16([]byte{1, 0}) == 1 {
		return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16
	}
	return uint64(b[2]) | uint64(b[1])<<8 | uint64(b[0])<<16
}

// Int decodes a constant as a signed integer. Fixed-width data forms are
// sign-extended from their width.
func (f *Field) Int() (int64, error) {
	switch f.Form {
	case FormSdata:
		v, _, err := leb128.DecodeSigned(f.Raw)
		return v, err
	case FormImplicitConst:
		return f.Const, nil
	case FormUdata:
		v, _, err := leb128.DecodeUnsigned(f.Raw)
		return int64(v), err
	case FormData1, FormData2, FormData4, FormData8:
		u, err := f.Uint()
		if err != nil {
			return 0, err
		}
		shift := 64 - 8*uint(len(f.Raw))
		return int64(u<<shift) >> shift, nil
	}
	return 0, f.classError("signed integer")
}

// Flag decodes a DW_FORM_flag or DW_FORM_flag_present value.
func (f *Field) Flag() (bool, error) {
	switch f.Form {
	case FormFlag:
		if len(f.Raw) == 1 {
			return f.Raw[0] != 0, nil
		}
	case FormFlagPresent:
		return true, nil
	}
	return false, f.classError("flag")
}

// Block returns the payload of a block, exprloc or data16 value.
func (f *Field) Block() ([]byte, error) {
	switch f.Class() {
	case ClassBlock, ClassExprLoc:
		return f.Raw, nil
	}
	return nil, f.classError("block")
}

// InlineString returns a DW_FORM_string value without its terminator.
// Strings held in other sections are resolved by Data.FieldString.
func (f *Field) InlineString() (string, error) {
	if f.Form != FormString {
		return "", f.classError("inline string")
	}
	return string(bytes.TrimSuffix(f.Raw, []byte{0})), nil
}

// Ref returns the .debug_info offset a reference points to. Unit-relative
// forms are rebased on the owning unit.
func (f *Field) Ref() (uint64, error) {
	switch f.Class() {
	case ClassReference:
		v, err := f.Uint()
		if err != nil {
			return 0, err
		}
		return f.unit + v, nil
	case ClassRefAddr:
		return f.Uint()
	}
	return 0, f.classError("reference")
}

// Val returns the value in its most natural Go type, for display.
func (f *Field) Val() interface{} {
	var (
		v   interface{}
		err error
	)
	switch f.Class() {
	case ClassString:
		v, err = f.InlineString()
	case ClassFlag:
		v, err = f.Flag()
	case ClassBlock, ClassExprLoc:
		v, err = f.Block()
	case ClassReference, ClassRefAddr:
		v, err = f.Ref()
	case ClassConstant:
		if f.Form == FormSdata || f.Form == FormImplicitConst {
			v, err = f.Int()
		} else {
			v, err = f.Uint()
		}
	default:
		v, err = f.Uint()
	}
	if err != nil {
		return err
	}
	return v
}

// readField consumes one attribute value of the given spec from c.
//
// A DW_FORM_indirect spec reads the actual form from the stream first; an
// indirect form naming DW_FORM_indirect again is corrupt input.
func readField(c *cursor.Cursor, enc Encoding, spec AttrSpec) (Field, error) {
	f := Field{Attr: spec.Attr, Form: spec.Form, enc: enc}

	if f.Form == FormIndirect {
		v, err := c.ULEB128()
		if err != nil {
			return f, err
		}
		f.Form = Form(v)
		switch f.Form {
		case FormIndirect:
			return f, fmt.Errorf("%w: %s", ErrNestedIndirect, f.Attr)
		case FormImplicitConst:
			// the constant lives in the abbreviation, which an indirect
			// attribute does not have
			return f, fmt.Errorf("%w: %s via DW_FORM_indirect", ErrUnknownForm, f.Form)
		}
	}
	if f.Form.v5Only() && enc.Version < 5 {
		return f, fmt.Errorf("%w: %s in a version %d unit", ErrUnknownForm, f.Form, enc.Version)
	}

	f.Offset = c.Pos()
	var err error
	switch f.Form {
	case FormAddr:
		f.Raw, err = c.Fixed(enc.AddrSize)

	case FormData1, FormRef1, FormFlag, FormStrx1, FormAddrx1:
		f.Raw, err = c.Fixed(1)
	case FormData2, FormRef2, FormStrx2, FormAddrx2:
		f.Raw, err = c.Fixed(2)
	case FormStrx3, FormAddrx3:
		f.Raw, err = c.Fixed(3)
	case FormData4, FormRef4, FormRefSup4, FormStrx4, FormAddrx4:
		f.Raw, err = c.Fixed(4)
	case FormData8, FormRef8, FormRefSig8, FormRefSup8:
		f.Raw, err = c.Fixed(8)
	case FormData16:
		f.Raw, err = c.Fixed(16)

	case FormBlock1:
		var n uint8
		if n, err = c.U8(); err == nil {
			f.Raw, err = c.Fixed(int(n))
		}
	case FormBlock2:
		var n uint16
		if n, err = c.U16(); err == nil {
			f.Raw, err = c.Fixed(int(n))
		}
	case FormBlock4:
		var n uint32
		if n, err = c.U32(); err == nil {
			f.Raw, err = readBlock(c, uint64(n))
		}
	case FormBlock, FormExprloc:
		var n uint64
		if n, err = c.ULEB128(); err == nil {
			f.Raw, err = readBlock(c, n)
		}

	case FormString:
		f.Raw, err = c.CString()

	case FormSdata:
		f.Raw, err = rawLEB(c, true)
	case FormUdata, FormRefUdata, FormStrx, FormAddrx, FormLoclistx, FormRnglistx:
		f.Raw, err = rawLEB(c, false)

	case FormStrp, FormSecOffset, FormLineStrp, FormStrpSup:
		f.Raw, err = c.Fixed(enc.OffsetSize)
	case FormRefAddr:
		// address sized in version 2, offset sized from version 3 on
		if enc.Version == 2 {
			f.Raw, err = c.Fixed(enc.AddrSize)
		} else {
			f.Raw, err = c.Fixed(enc.OffsetSize)
		}

	case FormFlagPresent:
		f.Raw = []byte{}
	case FormImplicitConst:
		f.Raw = []byte{}
		f.Const = spec.ImplicitConst

	default:
		return f, fmt.Errorf("%w: %s for %s", ErrUnknownForm, f.Form, f.Attr)
	}
	return f, err
}

func readBlock(c *cursor.Cursor, n uint64) ([]byte, error) {
	if n > uint64(c.Len()) {
		return nil, fmt.Errorf("%w: block of %d bytes at offset %#x, have %d", ErrOutOfData, n, c.Pos(), c.Len())
	}
	return c.Fixed(int(n))
}

// rawLEB consumes one LEB128 value and returns its encoded bytes.
func rawLEB(c *cursor.Cursor, signed bool) ([]byte, error) {
	before := *c
	var err error
	if signed {
		_, err = c.SLEB128()
	} else {
		_, err = c.ULEB128()
	}
	if err != nil {
		return nil, err
	}
	n := int(c.Pos() - before.Pos())
	return before.Fixed(n)
}
