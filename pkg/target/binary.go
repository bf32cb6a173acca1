// Package target holds the binary being inspected: its mapped bytes, the
// parsed ELF file, the debug sections and the symbol layer built on them.
package target

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hitzhangjie/dwarfy/internal/mapfile"
	"github.com/hitzhangjie/dwarfy/pkg/disasm"
	"github.com/hitzhangjie/dwarfy/pkg/dwarf"
	"github.com/hitzhangjie/dwarfy/pkg/elf"
	"github.com/hitzhangjie/dwarfy/pkg/symbol"
)

// Current the binary opened by the browse session
var Current *Binary

// ErrNoCode no loaded segment or section covers the address
var ErrNoCode = errors.New("address not in any loaded section")

const (
	shfAlloc = 0x2
	ptLoad   = 1

	emI386  = 3
	emX8664 = 62

	maxDisassemble = 1 << 20
)

// Options how Open decodes the file
type Options struct {
	Logger *zap.Logger

	// Order forces the byte order of the debug sections. When nil the ELF
	// header decides, unless Sniff asks to guess it from .debug_info.
	Order binary.ByteOrder
	Sniff bool
}

// Binary an opened ELF file with debug information
type Binary struct {
	Path string
	ELF  *elf.File
	Data *dwarf.Data

	mapped *mapfile.File
	info   *symbol.BinaryInfo
	log    *zap.Logger
}

// Open maps path and collects its debug sections.
func Open(path string, opts Options) (*Binary, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	mf, err := mapfile.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	b := &Binary{Path: path, mapped: mf, log: log}
	if err = b.load(opts); err != nil {
		mf.Close()
		return nil, errors.Wrap(err, path)
	}
	log.Debug("binary loaded", zap.String("path", path), zap.Stringer("elf", b.ELF))
	return b, nil
}

func (b *Binary) load(opts Options) (err error) {
	if b.ELF, err = elf.Open(b.mapped.Data); err != nil {
		return err
	}

	dopts := []dwarf.Option{dwarf.WithLogger(b.log)}
	order := opts.Order
	if order == nil && opts.Sniff {
		if info, ok, _ := b.ELF.SectionDataByName(dwarf.SectionInfo); ok {
			order = dwarf.SniffByteOrder(info)
		}
	}
	if order != nil {
		dopts = append(dopts, dwarf.WithByteOrder(order))
	}
	b.Data, err = dwarf.New(b.ELF, dopts...)
	return err
}

// Close unmaps the file. b must not be used afterwards.
func (b *Binary) Close() error {
	return b.mapped.Close()
}

// Symbols returns the compile units, functions and frames, analysing the
// debug information on first use.
func (b *Binary) Symbols() (*symbol.BinaryInfo, error) {
	if b.info != nil {
		return b.info, nil
	}
	bi, err := symbol.Analyze(b.Data)
	if err != nil {
		return nil, err
	}
	b.info = bi
	return bi, nil
}

// ReadMemory copies the file bytes loaded at addr into buf and returns the
// number of bytes copied, which stops at the end of the covering PT_LOAD
// segment. Images without program headers fall back to SHF_ALLOC sections.
func (b *Binary) ReadMemory(addr uint64, buf []byte) (int, error) {
	for _, p := range b.ELF.Progs {
		if p.Type != ptLoad || addr < p.Vaddr || addr-p.Vaddr >= p.Filesz {
			continue
		}
		data, err := b.ELF.ProgData(p)
		if err != nil {
			return 0, err
		}
		return copy(buf, data[addr-p.Vaddr:]), nil
	}
	if len(b.ELF.Progs) > 0 {
		return 0, errors.Wrapf(ErrNoCode, "%#x", addr)
	}

	for _, s := range b.ELF.Sections {
		if s.Flags&shfAlloc == 0 || addr < s.Addr || addr-s.Addr >= s.Size {
			continue
		}
		data, err := b.ELF.SectionData(s)
		if err != nil {
			return 0, err
		}
		if addr-s.Addr >= uint64(len(data)) {
			// SHT_NOBITS
			continue
		}
		return copy(buf, data[addr-s.Addr:]), nil
	}
	return 0, errors.Wrapf(ErrNoCode, "%#x", addr)
}

// Disassemble writes at most max instructions starting at addr.
func (b *Binary) Disassemble(w io.Writer, addr, max uint64, syntax string) error {
	mode := 64
	switch b.ELF.Machine {
	case emX8664:
	case emI386:
		mode = 32
	default:
		return errors.Errorf("disassemble %s: only x86 is supported", b.ELF.MachineName())
	}

	size := 16 * max
	if size > maxDisassemble {
		size = maxDisassemble
	}
	dat := make([]byte, size)
	n, err := b.ReadMemory(addr, dat)
	if err != nil {
		return err
	}
	return disasm.Disassemble(w, dat[:n], addr, max, syntax, mode)
}
