// Package fixture builds small synthetic ELF images and DWARF byte streams
// for tests.
package fixture

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	SHT_PROGBITS = 1
	SHT_STRTAB   = 3
	SHT_NOBITS   = 8

	PT_LOAD = 1

	PF_X = 1
	PF_W = 2
	PF_R = 4

	EM_X86_64 = 62
)

type ehdr64 struct {
	Ident     [16]byte
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

type ehdr32 struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type shdr64 struct {
	Name      uint32
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

type shdr32 struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
	Entsize   uint32
}

type phdr64 struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

type phdr32 struct {
	Type   uint32
	Off    uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

// Segment one program header, spanning the file bytes of the named
// section and mapped at that section's address. Memsz defaults to the
// section size.
type Segment struct {
	Type    uint32
	Flags   uint32
	Section string
	Memsz   uint64
}

// Section one section of a synthetic image
type Section struct {
	Name  string
	Type  uint32
	Flags uint64
	Addr  uint64
	Data  []byte
}

// ELF describes a synthetic ELF image. Section 0 (null) and .shstrtab are
// added by Build.
type ELF struct {
	Class    int // 32 or 64
	Order    binary.ByteOrder
	Machine  uint16
	Segments []Segment
	Sections []Section
}

// Build lays out header, program header table, section contents, .shstrtab
// and the section header table, in that order.
func (e *ELF) Build() ([]byte, error) {
	is64 := e.Class != 32
	order := e.Order
	if order == nil {
		order = binary.LittleEndian
	}

	ehsize, shentsize, phentsize := 64, 64, 56
	if !is64 {
		ehsize, shentsize, phentsize = 52, 40, 32
	}
	phoff := 0
	if len(e.Segments) > 0 {
		phoff = ehsize
	}
	// section contents start after the program header table
	dataStart := ehsize + len(e.Segments)*phentsize

	sections := append([]Section{{}}, e.Sections...)
	strtab := []byte{0}
	nameOffs := make([]uint32, len(sections)+1)
	for i, s := range sections {
		if i == 0 {
			continue
		}
		nameOffs[i] = uint32(len(strtab))
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)
	}
	nameOffs[len(sections)] = uint32(len(strtab))
	strtab = append(strtab, ".shstrtab\x00"...)
	sections = append(sections, Section{Name: ".shstrtab", Type: SHT_STRTAB, Data: strtab})

	var body bytes.Buffer
	offsets := make([]uint64, len(sections))
	for i, s := range sections {
		if i == 0 || s.Type == SHT_NOBITS {
			continue
		}
		offsets[i] = uint64(dataStart + body.Len())
		body.Write(s.Data)
	}
	for body.Len()%8 != 0 {
		body.WriteByte(0)
	}
	shoff := uint64(dataStart + body.Len())

	var out bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1}
	if !is64 {
		ident[4] = 1
	}
	if order == binary.BigEndian {
		ident[5] = 2
	}

	var hdr interface{}
	if is64 {
		hdr = &ehdr64{
			Ident: ident, Type: 2, Machine: e.Machine, Version: 1, Phoff: uint64(phoff), Shoff: shoff,
			Ehsize: uint16(ehsize), Phentsize: uint16(phentsize), Phnum: uint16(len(e.Segments)),
			Shentsize: uint16(shentsize), Shnum: uint16(len(sections)), Shstrndx: uint16(len(sections) - 1),
		}
	} else {
		hdr = &ehdr32{
			Ident: ident, Type: 2, Machine: e.Machine, Version: 1, Phoff: uint32(phoff), Shoff: uint32(shoff),
			Ehsize: uint16(ehsize), Phentsize: uint16(phentsize), Phnum: uint16(len(e.Segments)),
			Shentsize: uint16(shentsize), Shnum: uint16(len(sections)), Shstrndx: uint16(len(sections) - 1),
		}
	}
	if err := struc.PackWithOrder(&out, hdr, order); err != nil {
		return nil, errors.Wrap(err, "pack ELF header")
	}

	for i, seg := range e.Segments {
		idx := -1
		for j, s := range sections {
			if j > 0 && s.Name == seg.Section {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, errors.Errorf("segment %d: no section %q", i, seg.Section)
		}
		s := sections[idx]
		filesz := uint64(len(s.Data))
		if s.Type == SHT_NOBITS {
			filesz = 0
		}
		memsz := seg.Memsz
		if memsz == 0 {
			memsz = uint64(len(s.Data))
		}

		var ph interface{}
		if is64 {
			ph = &phdr64{
				Type: seg.Type, Flags: seg.Flags, Off: offsets[idx], Vaddr: s.Addr, Paddr: s.Addr,
				Filesz: filesz, Memsz: memsz, Align: 1,
			}
		} else {
			ph = &phdr32{
				Type: seg.Type, Flags: seg.Flags, Off: uint32(offsets[idx]), Vaddr: uint32(s.Addr), Paddr: uint32(s.Addr),
				Filesz: uint32(filesz), Memsz: uint32(memsz), Align: 1,
			}
		}
		if err := struc.PackWithOrder(&out, ph, order); err != nil {
			return nil, errors.Wrapf(err, "pack program header %d", i)
		}
	}
	out.Write(body.Bytes())

	for i, s := range sections {
		var sh interface{}
		if is64 {
			sh = &shdr64{
				Name: nameOffs[i], Type: s.Type, Flags: s.Flags, Addr: s.Addr,
				Offset: offsets[i], Size: uint64(len(s.Data)), Addralign: 1,
			}
		} else {
			sh = &shdr32{
				Name: nameOffs[i], Type: s.Type, Flags: uint32(s.Flags), Addr: uint32(s.Addr),
				Offset: uint32(offsets[i]), Size: uint32(len(s.Data)), Addralign: 1,
			}
		}
		if i == 0 {
			if is64 {
				sh = &shdr64{}
			} else {
				sh = &shdr32{}
			}
		}
		if err := struc.PackWithOrder(&out, sh, order); err != nil {
			return nil, errors.Wrapf(err, "pack section header %d", i)
		}
	}
	return out.Bytes(), nil
}

// MustBuild is Build for tests that cannot fail on a well-formed description.
func (e *ELF) MustBuild() []byte {
	b, err := e.Build()
	if err != nil {
		panic(err)
	}
	return b
}
