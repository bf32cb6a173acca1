package frame

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
)

// Call frame instruction opcodes
//
// see DWARFv4 7.23 Call Frame Information
const (
	DW_CFA_nop                          = 0x00
	DW_CFA_set_loc                      = 0x01
	DW_CFA_advance_loc1                 = 0x02
	DW_CFA_advance_loc2                 = 0x03
	DW_CFA_advance_loc4                 = 0x04
	DW_CFA_offset_extended              = 0x05
	DW_CFA_restore_extended             = 0x06
	DW_CFA_undefined                    = 0x07
	DW_CFA_same_value                   = 0x08
	DW_CFA_register                     = 0x09
	DW_CFA_remember_state               = 0x0a
	DW_CFA_restore_state                = 0x0b
	DW_CFA_def_cfa                      = 0x0c
	DW_CFA_def_cfa_register             = 0x0d
	DW_CFA_def_cfa_offset               = 0x0e
	DW_CFA_def_cfa_expression           = 0x0f
	DW_CFA_expression                   = 0x10
	DW_CFA_offset_extended_sf           = 0x11
	DW_CFA_def_cfa_sf                   = 0x12
	DW_CFA_def_cfa_offset_sf            = 0x13
	DW_CFA_val_offset                   = 0x14
	DW_CFA_val_offset_sf                = 0x15
	DW_CFA_val_expression               = 0x16
	DW_CFA_GNU_args_size                = 0x2e
	DW_CFA_GNU_negative_offset_extended = 0x2f
	DW_CFA_advance_loc                  = 0x1 << 6 // high 2 bits: 0x1
	DW_CFA_offset                       = 0x2 << 6 // high 2 bits: 0x2
	DW_CFA_restore                      = 0x3 << 6 // high 2 bits: 0x3
	lowSixBits                          = 0x3f
)

// operand kinds, in stream order
const (
	opULEB = iota
	opSLEB
	opU8
	opU16
	opU32
	opAddr
	opBlock
)

type opcode struct {
	name     string
	operands []int
}

var opcodes = map[byte]opcode{
	DW_CFA_nop:                          {"DW_CFA_nop", nil},
	DW_CFA_set_loc:                      {"DW_CFA_set_loc", []int{opAddr}},
	DW_CFA_advance_loc1:                 {"DW_CFA_advance_loc1", []int{opU8}},
	DW_CFA_advance_loc2:                 {"DW_CFA_advance_loc2", []int{opU16}},
	DW_CFA_advance_loc4:                 {"DW_CFA_advance_loc4", []int{opU32}},
	DW_CFA_offset_extended:              {"DW_CFA_offset_extended", []int{opULEB, opULEB}},
	DW_CFA_restore_extended:             {"DW_CFA_restore_extended", []int{opULEB}},
	DW_CFA_undefined:                    {"DW_CFA_undefined", []int{opULEB}},
	DW_CFA_same_value:                   {"DW_CFA_same_value", []int{opULEB}},
	DW_CFA_register:                     {"DW_CFA_register", []int{opULEB, opULEB}},
	DW_CFA_remember_state:               {"DW_CFA_remember_state", nil},
	DW_CFA_restore_state:                {"DW_CFA_restore_state", nil},
	DW_CFA_def_cfa:                      {"DW_CFA_def_cfa", []int{opULEB, opULEB}},
	DW_CFA_def_cfa_register:             {"DW_CFA_def_cfa_register", []int{opULEB}},
	DW_CFA_def_cfa_offset:               {"DW_CFA_def_cfa_offset", []int{opULEB}},
	DW_CFA_def_cfa_expression:           {"DW_CFA_def_cfa_expression", []int{opBlock}},
	DW_CFA_expression:                   {"DW_CFA_expression", []int{opULEB, opBlock}},
	DW_CFA_offset_extended_sf:           {"DW_CFA_offset_extended_sf", []int{opULEB, opSLEB}},
	DW_CFA_def_cfa_sf:                   {"DW_CFA_def_cfa_sf", []int{opULEB, opSLEB}},
	DW_CFA_def_cfa_offset_sf:            {"DW_CFA_def_cfa_offset_sf", []int{opSLEB}},
	DW_CFA_val_offset:                   {"DW_CFA_val_offset", []int{opULEB, opULEB}},
	DW_CFA_val_offset_sf:                {"DW_CFA_val_offset_sf", []int{opULEB, opSLEB}},
	DW_CFA_val_expression:               {"DW_CFA_val_expression", []int{opULEB, opBlock}},
	DW_CFA_GNU_args_size:                {"DW_CFA_GNU_args_size", []int{opULEB}},
	DW_CFA_GNU_negative_offset_extended: {"DW_CFA_GNU_negative_offset_extended", []int{opULEB, opULEB}},
}

// Instruction one decoded call frame instruction. Operands are widened to
// int64; block operands are kept in Block.
type Instruction struct {
	Opcode   byte
	Name     string
	Operands []int64
	Block    []byte
}

func (in Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(in.Name)
	for i, v := range in.Operands {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", v)
	}
	if in.Block != nil {
		fmt.Fprintf(&sb, " [% x]", in.Block)
	}
	return sb.String()
}

// Decode lists the call frame instructions in b without executing them.
// addrSize is the width of DW_CFA_set_loc operands, 0 meaning 8.
func Decode(b []byte, order binary.ByteOrder, addrSize int) ([]Instruction, error) {
	if addrSize == 0 {
		addrSize = 8
	}
	c := cursor.New(b, order).WithAddressSize(addrSize)

	var out []Instruction
	for !c.Empty() {
		at := c.Pos()
		op, _ := c.U8()

		// the high 2 bits select the primary opcodes with an inline operand
		switch op &^ lowSixBits {
		case DW_CFA_advance_loc:
			out = append(out, Instruction{Opcode: DW_CFA_advance_loc, Name: "DW_CFA_advance_loc", Operands: []int64{int64(op & lowSixBits)}})
			continue
		case DW_CFA_offset:
			off, err := c.ULEB128()
			if err != nil {
				return out, fmt.Errorf("instruction at %#x: %w", at, err)
			}
			out = append(out, Instruction{Opcode: DW_CFA_offset, Name: "DW_CFA_offset", Operands: []int64{int64(op & lowSixBits), int64(off)}})
			continue
		case DW_CFA_restore:
			out = append(out, Instruction{Opcode: DW_CFA_restore, Name: "DW_CFA_restore", Operands: []int64{int64(op & lowSixBits)}})
			continue
		}

		def, ok := opcodes[op]
		if !ok {
			return out, fmt.Errorf("instruction at %#x: unknown opcode %#x", at, op)
		}
		in := Instruction{Opcode: op, Name: def.name}
		for _, kind := range def.operands {
			if err := readOperand(&c, kind, &in); err != nil {
				return out, fmt.Errorf("instruction at %#x: %w", at, err)
			}
		}
		out = append(out, in)
	}
	return out, nil
}

func readOperand(c *cursor.Cursor, kind int, in *Instruction) error {
	var (
		v   uint64
		err error
	)
	switch kind {
	case opULEB:
		v, err = c.ULEB128()
	case opSLEB:
		var s int64
		s, err = c.SLEB128()
		v = uint64(s)
	case opU8:
		var b uint8
		b, err = c.U8()
		v = uint64(b)
	case opU16:
		var h uint16
		h, err = c.U16()
		v = uint64(h)
	case opU32:
		var w uint32
		w, err = c.U32()
		v = uint64(w)
	case opAddr:
		v, err = c.Address()
	case opBlock:
		var n uint64
		if n, err = c.ULEB128(); err != nil {
			return err
		}
		if n > uint64(c.Len()) {
			return fmt.Errorf("%w: expression of %d bytes", cursor.ErrOutOfData, n)
		}
		in.Block, err = c.Fixed(int(n))
		return err
	}
	if err != nil {
		return err
	}
	in.Operands = append(in.Operands, int64(v))
	return nil
}
