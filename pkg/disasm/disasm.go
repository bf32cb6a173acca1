// Package disasm prints x86 machine code, for looking at the bytes a
// function's address range covers.
package disasm

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// ErrSyntax unsupported assembler syntax
var ErrSyntax = errors.New("invalid asm syntax, expected go, gnu or intel")

// Disassemble decodes at most max instructions from code, which is loaded
// at addr, and writes one line per instruction to w. mode is 32 or 64.
func Disassemble(w io.Writer, code []byte, addr, max uint64, syntax string, mode int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 8, ' ', 0)

	offset := uint64(0)
	count := uint64(0)

	for count < max && offset < uint64(len(code)) {
		inst, err := x86asm.Decode(code[offset:], mode)
		if err != nil {
			tw.Flush()
			return errors.Wrapf(err, "x86asm decode at %#x", addr+offset)
		}

		asm, err := instSyntax(inst, addr+offset, syntax)
		if err != nil {
			return err
		}

		end := offset + uint64(inst.Len)
		fmt.Fprintf(tw, "%#x:\t% x\t%s\n", addr+offset, code[offset:end], asm)
		offset = end
		count++
	}
	return tw.Flush()
}

func instSyntax(inst x86asm.Inst, pc uint64, syntax string) (string, error) {
	asm := ""
	switch syntax {
	case "go":
		asm = x86asm.GoSyntax(inst, pc, nil)
	case "gnu":
		asm = x86asm.GNUSyntax(inst, pc, nil)
	case "intel":
		asm = x86asm.IntelSyntax(inst, pc, nil)
	default:
		return "", errors.Wrap(ErrSyntax, syntax)
	}
	return asm, nil
}
