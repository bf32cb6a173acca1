// Package elf reads the identification, header, program header table and
// section header table of an ELF image held in memory and resolves sections
// by name.
//
// Symbols and relocations are not decoded.
package elf

import (
	"bytes"
	stdelf "debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
)

var (
	// ErrNotElf the buffer does not start with the ELF magic
	ErrNotElf = errors.New("not an ELF file")
	// ErrBadIdent class, data encoding or version is not recognised
	ErrBadIdent = errors.New("bad ELF identification")
	// ErrBadSectionTable the section header table is inconsistent
	ErrBadSectionTable = errors.New("bad ELF section header table")
	// ErrBadProgramTable the program header table is inconsistent
	ErrBadProgramTable = errors.New("bad ELF program header table")
)

const (
	identSize = 16

	class32 = 1
	class64 = 2

	dataLSB = 1
	dataMSB = 2

	versionCurrent = 1

	shdr32Size = 40
	shdr64Size = 64

	phdr32Size = 32
	phdr64Size = 56

	pnXNum = 0xffff

	shnUndef  = 0
	shnXIndex = 0xffff

	shtNobits = 8
)

var magic = []byte{0x7f, 'E', 'L', 'F'}

// Ident the e_ident bytes
type Ident struct {
	Class      uint8
	Data       uint8
	Version    uint8
	OSABI      uint8
	ABIVersion uint8
}

// Header the ELF file header, class-width fields widened to 64 bits
type Header struct {
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// Section a section header with its resolved name
type Section struct {
	Index     int
	Name      string
	NameOff   uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

// TypeName returns the conventional name of the section type, e.g. SHT_PROGBITS.
func (s *Section) TypeName() string {
	return stdelf.SectionType(s.Type).String()
}

// Prog a program header, class-width fields widened to 64 bits
type Prog struct {
	Index  int
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// TypeName returns the conventional name of the segment type, e.g. PT_LOAD.
func (p *Prog) TypeName() string {
	return stdelf.ProgType(p.Type).String()
}

// FlagsString returns the segment permissions, e.g. PF_R+PF_X.
func (p *Prog) FlagsString() string {
	return stdelf.ProgFlag(p.Flags).String()
}

// File an ELF image backed by a caller-owned byte slice
type File struct {
	Ident
	Header
	ByteOrder binary.ByteOrder
	Sections  []*Section
	Progs     []*Prog

	data []byte
}

// Open parses the ELF identification, header, program header table and
// section header table in data. data must stay unmodified while the File and any slice returned by
// SectionData are in use.
func Open(data []byte) (*File, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic) {
		return nil, ErrNotElf
	}
	if len(data) < identSize {
		return nil, errors.Wrap(ErrBadIdent, "truncated e_ident")
	}

	f := &File{data: data}
	f.Ident = Ident{
		Class:      data[4],
		Data:       data[5],
		Version:    data[6],
		OSABI:      data[7],
		ABIVersion: data[8],
	}

	var width int
	switch f.Class {
	case class32:
		width = 4
	case class64:
		width = 8
	default:
		return nil, errors.Wrapf(ErrBadIdent, "class %d", f.Class)
	}

	switch f.Data {
	case dataLSB:
		f.ByteOrder = binary.LittleEndian
	case dataMSB:
		f.ByteOrder = binary.BigEndian
	default:
		return nil, errors.Wrapf(ErrBadIdent, "data encoding %d", f.Data)
	}

	if f.Ident.Version != versionCurrent {
		return nil, errors.Wrapf(ErrBadIdent, "ident version %d", f.Ident.Version)
	}

	// class-width header fields are read as offsets of the class width
	c := cursor.At(data[identSize:], identSize, f.ByteOrder).WithOffsetSize(width)
	if err := f.readHeader(&c); err != nil {
		return nil, errors.Wrap(err, "read ELF header")
	}
	if f.Header.Version != versionCurrent {
		return nil, errors.Wrapf(ErrBadIdent, "header version %d", f.Header.Version)
	}

	if err := f.readSections(width); err != nil {
		return nil, err
	}
	if err := f.readProgs(width); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) readHeader(c *cursor.Cursor) error {
	var err error
	h := &f.Header
	read16 := func(v *uint16) {
		if err == nil {
			*v, err = c.U16()
		}
	}
	read32 := func(v *uint32) {
		if err == nil {
			*v, err = c.U32()
		}
	}
	readOff := func(v *uint64) {
		if err == nil {
			*v, err = c.Offset()
		}
	}

	read16(&h.Type)
	read16(&h.Machine)
	read32(&h.Version)
	readOff(&h.Entry)
	readOff(&h.Phoff)
	readOff(&h.Shoff)
	read32(&h.Flags)
	read16(&h.Ehsize)
	read16(&h.Phentsize)
	read16(&h.Phnum)
	read16(&h.Shentsize)
	read16(&h.Shnum)
	read16(&h.Shstrndx)
	return err
}

func (f *File) readSections(width int) error {
	h := f.Header
	if h.Shoff == 0 {
		return nil
	}

	want := shdr64Size
	if width == 4 {
		want = shdr32Size
	}
	if int(h.Shentsize) != want {
		return errors.Wrapf(ErrBadSectionTable, "shentsize %d, expected %d", h.Shentsize, want)
	}
	if h.Shoff >= uint64(len(f.data)) {
		return errors.Wrapf(ErrBadSectionTable, "shoff %#x beyond end of file", h.Shoff)
	}

	// section 0 carries the real count and string table index when they
	// do not fit in the header
	first, err := f.readSection(0, width)
	if err != nil {
		return err
	}
	shnum := uint64(h.Shnum)
	if shnum == 0 {
		shnum = first.Size
	}
	if shnum == 0 {
		return nil
	}
	shstrndx := uint64(h.Shstrndx)
	if shstrndx == shnXIndex {
		shstrndx = uint64(first.Link)
	}

	if shnum > (uint64(len(f.data))-h.Shoff)/uint64(want) {
		return errors.Wrapf(ErrBadSectionTable, "%d section headers at %#x exceed file size %d", shnum, h.Shoff, len(f.data))
	}

	f.Sections = make([]*Section, 0, shnum)
	f.Sections = append(f.Sections, first)
	for i := 1; i < int(shnum); i++ {
		s, err := f.readSection(i, width)
		if err != nil {
			return err
		}
		f.Sections = append(f.Sections, s)
	}

	if shstrndx == shnUndef {
		return nil
	}
	if shstrndx >= shnum {
		return errors.Wrapf(ErrBadSectionTable, "shstrndx %d out of range [0,%d)", shstrndx, shnum)
	}
	names, err := f.SectionData(f.Sections[shstrndx])
	if err != nil {
		return errors.Wrap(err, "read section name table")
	}
	for _, s := range f.Sections {
		if s.Name, err = cstring(names, s.NameOff); err != nil {
			return errors.Wrapf(err, "name of section %d", s.Index)
		}
	}
	return nil
}

func (f *File) readSection(i int, width int) (*Section, error) {
	size := shdr64Size
	if width == 4 {
		size = shdr32Size
	}
	start := f.Header.Shoff + uint64(i*size)
	if start+uint64(size) > uint64(len(f.data)) {
		return nil, errors.Wrapf(cursor.ErrOutOfData, "section header %d at %#x", i, start)
	}
	c := cursor.At(f.data[start:start+uint64(size)], start, f.ByteOrder).WithOffsetSize(width)

	var err error
	s := &Section{Index: i}
	read32 := func(v *uint32) {
		if err == nil {
			*v, err = c.U32()
		}
	}
	readOff := func(v *uint64) {
		if err == nil {
			*v, err = c.Offset()
		}
	}

	// 32-bit and 64-bit section headers share the field order, only the
	// class-width fields change size
	read32(&s.NameOff)
	read32(&s.Type)
	readOff(&s.Flags)
	readOff(&s.Addr)
	readOff(&s.Offset)
	readOff(&s.Size)
	read32(&s.Link)
	read32(&s.Info)
	readOff(&s.Addralign)
	readOff(&s.Entsize)
	if err != nil {
		return nil, errors.Wrapf(err, "section header %d", i)
	}
	return s, nil
}

func (f *File) readProgs(width int) error {
	h := f.Header
	phnum := uint64(h.Phnum)
	if phnum == pnXNum && len(f.Sections) > 0 {
		// the real count lives in sh_info of section 0
		phnum = uint64(f.Sections[0].Info)
	}
	if h.Phoff == 0 || phnum == 0 {
		return nil
	}

	want := phdr64Size
	if width == 4 {
		want = phdr32Size
	}
	if int(h.Phentsize) != want {
		return errors.Wrapf(ErrBadProgramTable, "phentsize %d, expected %d", h.Phentsize, want)
	}
	if h.Phoff >= uint64(len(f.data)) || phnum > (uint64(len(f.data))-h.Phoff)/uint64(want) {
		return errors.Wrapf(ErrBadProgramTable, "%d program headers at %#x exceed file size %d", phnum, h.Phoff, len(f.data))
	}

	f.Progs = make([]*Prog, 0, phnum)
	for i := 0; i < int(phnum); i++ {
		start := h.Phoff + uint64(i*want)
		c := cursor.At(f.data[start:start+uint64(want)], start, f.ByteOrder).WithOffsetSize(width)

		var err error
		p := &Prog{Index: i}
		read32 := func(v *uint32) {
			if err == nil {
				*v, err = c.U32()
			}
		}
		readOff := func(v *uint64) {
			if err == nil {
				*v, err = c.Offset()
			}
		}

		// p_flags moves from after p_memsz to after p_type in ELF64
		read32(&p.Type)
		if width == 8 {
			read32(&p.Flags)
		}
		readOff(&p.Off)
		readOff(&p.Vaddr)
		readOff(&p.Paddr)
		readOff(&p.Filesz)
		readOff(&p.Memsz)
		if width == 4 {
			read32(&p.Flags)
		}
		readOff(&p.Align)
		if err != nil {
			return errors.Wrapf(err, "program header %d", i)
		}
		f.Progs = append(f.Progs, p)
	}
	return nil
}

func cstring(strtab []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(strtab)) {
		if off == 0 {
			return "", nil
		}
		return "", errors.Wrapf(cursor.ErrOutOfData, "string offset %#x beyond table of %d bytes", off, len(strtab))
	}
	s := strtab[off:]
	end := bytes.IndexByte(s, 0)
	if end < 0 {
		return "", errors.Wrapf(cursor.ErrOutOfData, "unterminated string at %#x", off)
	}
	return string(s[:end]), nil
}

// Is64 reports whether the file is ELFCLASS64.
func (f *File) Is64() bool { return f.Class == class64 }

// MachineName returns the conventional name of e_machine, e.g. EM_X86_64.
func (f *File) MachineName() string {
	return stdelf.Machine(f.Machine).String()
}

// Section returns the first section named name. A missing section is not
// an error: ok is false.
func (f *File) Section(name string) (*Section, bool) {
	for _, s := range f.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// SectionData returns the bytes [Offset, Offset+Size) of s within the backing
// buffer. SHT_NOBITS sections occupy no file bytes and yield an empty slice.
func (f *File) SectionData(s *Section) ([]byte, error) {
	if s.Type == shtNobits {
		return nil, nil
	}
	end := s.Offset + s.Size
	if end < s.Offset || end > uint64(len(f.data)) {
		return nil, errors.Wrapf(cursor.ErrOutOfData, "section %q [%#x,%#x) beyond file size %d", s.Name, s.Offset, end, len(f.data))
	}
	return f.data[s.Offset:end:end], nil
}

// ProgData returns the file bytes [Off, Off+Filesz) of p. The memory image
// of a segment may be longer; the rest is zero filled at load time.
func (f *File) ProgData(p *Prog) ([]byte, error) {
	end := p.Off + p.Filesz
	if end < p.Off || end > uint64(len(f.data)) {
		return nil, errors.Wrapf(cursor.ErrOutOfData, "segment %d [%#x,%#x) beyond file size %d", p.Index, p.Off, end, len(f.data))
	}
	return f.data[p.Off:end:end], nil
}

// SectionDataByName looks up a section and returns its bytes; a missing
// section yields nil data and ok false.
func (f *File) SectionDataByName(name string) (data []byte, ok bool, err error) {
	s, ok := f.Section(name)
	if !ok {
		return nil, false, nil
	}
	data, err = f.SectionData(s)
	return data, true, err
}

func (f *File) String() string {
	class := "ELF64"
	if !f.Is64() {
		class = "ELF32"
	}
	return fmt.Sprintf("%s %v %s, %d segments, %d sections", class, f.ByteOrder, f.MachineName(), len(f.Progs), len(f.Sections))
}
