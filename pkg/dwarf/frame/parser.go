// Package frame contains data structures and
// related functions for parsing and searching
// through Dwarf .debug_frame data.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
)

const (
	cieID32 = 0xffffffff
	cieID64 = 0xffffffffffffffff
)

type parsefunc func(*parseContext) parsefunc

// parseContext context which helps parsing the CIE and FDEs stored in .debug_frame
type parseContext struct {
	staticBase uint64

	c       cursor.Cursor
	entries FrameDescriptionEntries
	cies    map[uint64]*CommonInformationEntry

	// the entry being parsed
	start  uint64
	length uint64
	body   cursor.Cursor

	ptrSize int
	err     error
}

// Parse takes in data (a byte slice) and returns FrameDescriptionEntries,
// which is a slice of FrameDescriptionEntry. Each FrameDescriptionEntry
// has a pointer to CommonInformationEntry.
//
// Entries parsed before a malformed one are returned with the error.
func Parse(data []byte, order binary.ByteOrder, staticBase uint64, ptrSize int) (FrameDescriptionEntries, error) {
	pctx := &parseContext{
		c:          cursor.New(data, order).WithAddressSize(ptrSize),
		entries:    newFrameIndex(),
		cies:       map[uint64]*CommonInformationEntry{},
		staticBase: staticBase,
		ptrSize:    ptrSize,
	}

	for fn := parselength; fn != nil; {
		fn = fn(pctx)
	}
	pctx.entries.Sort()
	if pctx.err != nil {
		return pctx.entries, errors.Wrapf(pctx.err, "parse .debug_frame entry at %#x", pctx.start)
	}
	return pctx.entries, nil
}

func (ctx *parseContext) fail(err error) parsefunc {
	ctx.err = err
	return nil
}

// parselength parse the length of CIE or FDE, then the CIE_id of a CIE or
// the CIE_pointer of an FDE
func parselength(ctx *parseContext) parsefunc {
	if ctx.c.Empty() {
		return nil
	}
	ctx.start = ctx.c.Pos()

	l, err := ctx.c.U32()
	if err != nil {
		return ctx.fail(err)
	}
	if l == 0 {
		// ZERO terminator
		return parselength
	}

	offsetSize := 4
	ctx.length = uint64(l)
	if l == cieID32 {
		if ctx.length, err = ctx.c.U64(); err != nil {
			return ctx.fail(err)
		}
		offsetSize = 8
	} else if l >= 0xfffffff0 {
		return ctx.fail(fmt.Errorf("reserved length %#x", l))
	}

	if ctx.length > uint64(ctx.c.Len()) {
		return ctx.fail(errors.Wrapf(cursor.ErrOutOfData, "entry length %#x", ctx.length))
	}
	ctx.body, _ = ctx.c.Sub(int(ctx.length))
	ctx.body = ctx.body.WithOffsetSize(offsetSize)

	id, err := ctx.body.Offset()
	if err != nil {
		return ctx.fail(err)
	}
	if (offsetSize == 4 && id == cieID32) || (offsetSize == 8 && id == cieID64) {
		return parseCIE
	}
	cie, ok := ctx.cies[id]
	if !ok {
		return ctx.fail(fmt.Errorf("FDE refers to unknown CIE at %#x", id))
	}
	return parseFDE(cie)
}

// parseFDE parse FDE entry
func parseFDE(cie *CommonInformationEntry) parsefunc {
	return func(ctx *parseContext) parsefunc {
		fde := &FrameDescriptionEntry{Offset: ctx.start, Length: ctx.length, CIE: cie, order: ctx.c.Order()}

		// parsing initial_location and address_range of FDE
		size := ctx.ptrSize
		if cie.AddressSize != 0 {
			size = int(cie.AddressSize)
		}
		fde.addrSize = size
		c := ctx.body.WithAddressSize(size).WithSegmentSize(int(cie.SegmentSize))
		if _, err := c.Segment(); err != nil {
			return ctx.fail(err)
		}
		begin, err := c.Address()
		if err != nil {
			return ctx.fail(err)
		}
		fde.size, err = c.Address()
		if err != nil {
			return ctx.fail(err)
		}
		fde.begin = begin + ctx.staticBase

		// parsing instructions of FDE
		fde.Instructions = c.Bytes()
		ctx.entries = append(ctx.entries, fde)

		// prepare to parse next FDE or CIE
		return parselength
	}
}

// parseCIE parse CIE entry
func parseCIE(ctx *parseContext) parsefunc {
	cie := &CommonInformationEntry{Offset: ctx.start, Length: ctx.length, staticBase: ctx.staticBase}
	c := &ctx.body

	var err error
	// parse version
	if cie.Version, err = c.U8(); err != nil {
		return ctx.fail(err)
	}

	// parse augmentation
	aug, err := c.CString()
	if err != nil {
		return ctx.fail(err)
	}
	cie.Augmentation = string(aug[:len(aug)-1])

	// parse address and segment selector size, version 4 only
	if cie.Version >= 4 {
		if cie.AddressSize, err = c.U8(); err != nil {
			return ctx.fail(err)
		}
		if cie.SegmentSize, err = c.U8(); err != nil {
			return ctx.fail(err)
		}
	}

	// parse code alignment factor
	if cie.CodeAlignmentFactor, err = c.ULEB128(); err != nil {
		return ctx.fail(err)
	}

	// parse data alignment factor
	if cie.DataAlignmentFactor, err = c.SLEB128(); err != nil {
		return ctx.fail(err)
	}

	// parse return address register, a single byte in version 1
	if cie.Version == 1 {
		var r uint8
		r, err = c.U8()
		cie.ReturnAddressRegister = uint64(r)
	} else {
		cie.ReturnAddressRegister, err = c.ULEB128()
	}
	if err != nil {
		return ctx.fail(err)
	}

	// The rest of this entry consists of the instructions
	cie.InitialInstructions = c.Bytes()
	ctx.cies[ctx.start] = cie

	// prepare to parse FDEs following this CIE
	return parselength
}
