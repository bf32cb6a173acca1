package dump

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfy/internal/fixture"
	"github.com/hitzhangjie/dwarfy/pkg/dwarf"
	"github.com/hitzhangjie/dwarfy/pkg/dwarf/frame"
	"github.com/hitzhangjie/dwarfy/pkg/elf"
)

func tag(t dwarf.Tag) uint64   { return uint64(t) }
func attr(a dwarf.Attr) uint64 { return uint64(a) }
func form(f dwarf.Form) uint64 { return uint64(f) }

// sampleData holds one unit: a compile unit with a subprogram that has a
// local variable, names in .debug_str.
func sampleData(t *testing.T) *dwarf.Data {
	t.Helper()
	le := binary.LittleEndian

	abbrev := fixture.AbbrevTable(
		fixture.Abbrev{Code: 1, Tag: tag(dwarf.TagCompileUnit), Children: true, Attrs: []fixture.AttrSpec{
			{Attr: attr(dwarf.AttrName), Form: form(dwarf.FormString)},
		}},
		fixture.Abbrev{Code: 2, Tag: tag(dwarf.TagSubprogram), Children: true, Attrs: []fixture.AttrSpec{
			{Attr: attr(dwarf.AttrName), Form: form(dwarf.FormStrp)},
			{Attr: attr(dwarf.AttrLowpc), Form: form(dwarf.FormAddr)},
			{Attr: attr(dwarf.AttrFrameBase), Form: form(dwarf.FormExprloc)},
		}},
		fixture.Abbrev{Code: 3, Tag: tag(dwarf.TagVariable), Attrs: []fixture.AttrSpec{
			{Attr: attr(dwarf.AttrName), Form: form(dwarf.FormString)},
			{Attr: attr(dwarf.AttrConstValue), Form: form(dwarf.FormImplicitConst), Const: -3},
		}},
	)
	body := fixture.NewBuf(le).
		ULEB(1).CString("main.c").
		ULEB(2).U32(0).U64(0x401000).ULEB(1).U8(0x9c).
		ULEB(3).CString("local").
		ULEB(0).
		ULEB(0).
		Bytes()
	info := fixture.Unit{Version: 5, UnitType: 1, AddrSize: 8, Body: body}.Encode(le)

	image := (&fixture.ELF{
		Class: 64, Order: le, Machine: fixture.EM_X86_64,
		Sections: []fixture.Section{
			{Name: ".debug_abbrev", Type: fixture.SHT_PROGBITS, Data: abbrev},
			{Name: ".debug_info", Type: fixture.SHT_PROGBITS, Data: info},
			{Name: ".debug_str", Type: fixture.SHT_PROGBITS, Data: []byte("main\x00")},
		},
	}).MustBuild()

	f, err := elf.Open(image)
	require.NoError(t, err)
	d, err := dwarf.New(f)
	require.NoError(t, err)
	return d
}

func TestSections(t *testing.T) {
	f, err := elf.Open(fixture.CompileUnitImage(binary.LittleEndian, "a.c"))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Sections(&out, f))
	assert.Contains(t, out.String(), ".debug_info")
	assert.Contains(t, out.String(), "SHT_PROGBITS")
	assert.Contains(t, out.String(), "0x401000")
	assert.NotContains(t, out.String(), "PT_LOAD")

	f, err = elf.Open((&fixture.ELF{
		Class: 64, Order: binary.LittleEndian, Machine: fixture.EM_X86_64,
		Segments: []fixture.Segment{
			{Type: fixture.PT_LOAD, Flags: fixture.PF_R | fixture.PF_X, Section: ".text"},
		},
		Sections: []fixture.Section{
			{Name: ".text", Type: fixture.SHT_PROGBITS, Flags: 0x6, Addr: 0x401000, Data: []byte{0xc3}},
		},
	}).MustBuild())
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, Sections(&out, f))
	assert.Contains(t, out.String(), "1 segments")
	assert.Contains(t, out.String(), "PT_LOAD")
	assert.Contains(t, out.String(), "PF_X+PF_R")
}

func TestUnitsAndAbbrevs(t *testing.T) {
	d := sampleData(t)

	var out bytes.Buffer
	require.NoError(t, Units(&out, d))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), ".debug_info: unit@0x0 v5 compile 32-bit")

	out.Reset()
	require.NoError(t, Abbrevs(&out, d, 0))
	s := out.String()
	assert.Contains(t, s, "3 declarations")
	assert.Contains(t, s, "DW_FORM_implicit_const -3")
}

func TestUnitsReportsBadHeaders(t *testing.T) {
	le := binary.LittleEndian
	info := append(
		fixture.Unit{Version: 9, AddrSize: 8, Body: []byte{0}}.Encode(le),
		fixture.Unit{Version: 4, AddrSize: 8, Body: []byte{0}}.Encode(le)...)
	image := (&fixture.ELF{
		Class: 64, Order: le, Machine: fixture.EM_X86_64,
		Sections: []fixture.Section{
			{Name: ".debug_abbrev", Type: fixture.SHT_PROGBITS, Data: []byte{0}},
			{Name: ".debug_info", Type: fixture.SHT_PROGBITS, Data: info},
		},
	}).MustBuild()
	f, err := elf.Open(image)
	require.NoError(t, err)
	d, err := dwarf.New(f)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Units(&out, d))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "error:"))
	assert.Contains(t, lines[1], "v4")
}

func TestEntries(t *testing.T) {
	d := sampleData(t)
	units, err := d.AllUnits()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Entries(&out, d, units[0], -1))
	s := out.String()
	assert.Contains(t, s, `"main.c"`)
	assert.Contains(t, s, `"main"`)
	assert.Contains(t, s, "0x401000")
	assert.Contains(t, s, "[9c]")
	assert.Contains(t, s, "    <")
	assert.Contains(t, s, `"local"`)
	assert.Contains(t, s, "-3")

	out.Reset()
	require.NoError(t, Entries(&out, d, units[0], 1))
	assert.Contains(t, out.String(), `"main"`)
	assert.NotContains(t, out.String(), `"local"`)

	out.Reset()
	require.NoError(t, Entries(&out, d, units[0], 0))
	assert.NotContains(t, out.String(), `"main"`)
}

func TestAranges(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Aranges(&out, []*dwarf.ArangeSet{{
		InfoOffset: 0x40, AddrSize: 8,
		Ranges: []dwarf.Arange{{Addr: 0x1000, Length: 0x20}},
	}}))
	assert.Contains(t, out.String(), "unit 0x40")
	assert.Contains(t, out.String(), "[0x1000, 0x1020)")
}

func TestFrames(t *testing.T) {
	le := binary.LittleEndian
	cie := fixture.NewBuf(le).U32(0xffffffff).U8(1).CString("").ULEB(1).SLEB(-8).U8(16).
		U8(0x0c).ULEB(7).ULEB(8).Bytes() // DW_CFA_def_cfa r7+8
	fde := fixture.NewBuf(le).U32(0).U64(0x401000).U64(0x10).U8(0x41).Bytes() // DW_CFA_advance_loc 1
	var section []byte
	for _, e := range [][]byte{cie, fde} {
		section = append(section, fixture.NewBuf(le).U32(uint32(len(e))).Bytes()...)
		section = append(section, e...)
	}
	fdes, err := frame.Parse(section, le, 0, 8)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Frames(&out, fdes, false))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))

	out.Reset()
	require.NoError(t, Frames(&out, fdes, true))
	assert.Contains(t, out.String(), "DW_CFA_def_cfa 7, 8")
	assert.Contains(t, out.String(), "DW_CFA_advance_loc 1")
}

func TestStats(t *testing.T) {
	d := sampleData(t)
	stats, err := d.Scan(context.Background(), 2, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Stats(&out, stats, d.Abbrevs().Builds()))
	assert.Contains(t, out.String(), "entries:        3")
	assert.Contains(t, out.String(), "null entries:   2")
	assert.Contains(t, out.String(), "abbrev tables:  1")
}
