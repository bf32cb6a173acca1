package browse

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfy/internal/fixture"
	"github.com/hitzhangjie/dwarfy/pkg/config"
	"github.com/hitzhangjie/dwarfy/pkg/dwarf"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

func sampleBinary(t *testing.T) *target.Binary {
	t.Helper()
	le := binary.LittleEndian

	abbrev := fixture.AbbrevTable(
		fixture.Abbrev{Code: 1, Tag: uint64(dwarf.TagCompileUnit), Children: true, Attrs: []fixture.AttrSpec{
			{Attr: uint64(dwarf.AttrName), Form: uint64(dwarf.FormString)},
			{Attr: uint64(dwarf.AttrLowpc), Form: uint64(dwarf.FormAddr)},
			{Attr: uint64(dwarf.AttrHighpc), Form: uint64(dwarf.FormData4)},
		}},
		fixture.Abbrev{Code: 2, Tag: uint64(dwarf.TagSubprogram), Attrs: []fixture.AttrSpec{
			{Attr: uint64(dwarf.AttrName), Form: uint64(dwarf.FormString)},
			{Attr: uint64(dwarf.AttrLowpc), Form: uint64(dwarf.FormAddr)},
			{Attr: uint64(dwarf.AttrHighpc), Form: uint64(dwarf.FormData4)},
		}},
	)
	body := fixture.NewBuf(le).
		ULEB(1).CString("main.c").U64(0x401000).U32(4).
		ULEB(2).CString("main").U64(0x401000).U32(4).
		ULEB(0).
		Bytes()
	info := fixture.Unit{Version: 4, AddrSize: 8, Body: body}.Encode(le)

	image := (&fixture.ELF{
		Class: 64, Order: le, Machine: fixture.EM_X86_64,
		Sections: []fixture.Section{
			{Name: ".text", Type: fixture.SHT_PROGBITS, Flags: 0x6, Addr: 0x401000, Data: []byte{0x55, 0x90, 0x5d, 0xc3}},
			{Name: ".debug_abbrev", Type: fixture.SHT_PROGBITS, Data: abbrev},
			{Name: ".debug_info", Type: fixture.SHT_PROGBITS, Data: info},
		},
	}).MustBuild()

	path := filepath.Join(t.TempDir(), "a.out")
	require.NoError(t, os.WriteFile(path, image, 0o644))
	b, err := target.Open(path, target.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func newTestSession(t *testing.T) (*Session, *bytes.Buffer) {
	t.Helper()
	target.Current = sampleBinary(t)

	cfg := &config.Config{}
	cfg.Dump.MaxDepth = -1
	cfg.Disass.Syntax = "intel"

	var out bytes.Buffer
	return NewSession(cfg, &out), &out
}

func TestSessionCommands(t *testing.T) {
	s, out := newTestSession(t)

	s.Run("units")
	assert.Contains(t, out.String(), "unit@0x0 v4")

	out.Reset()
	s.Run("dies 0")
	assert.Contains(t, out.String(), `"main.c"`)
	assert.Contains(t, out.String(), `"main"`)

	out.Reset()
	s.Run("dies 0 -d 0")
	assert.NotContains(t, out.String(), `"main"`)

	// flags do not leak into the next line
	out.Reset()
	s.Run("dies 0")
	assert.Contains(t, out.String(), `"main"`)

	out.Reset()
	s.Run("pc 0x401002")
	assert.Contains(t, out.String(), "compile unit: main.c")
	assert.Contains(t, out.String(), "function: main [0x401000, 0x401004)")

	out.Reset()
	s.Run("disass main -n 2")
	assert.Contains(t, out.String(), "push rbp")
	assert.NotContains(t, out.String(), "0x401002:")

	out.Reset()
	s.Run("disass main -s go")
	assert.Contains(t, out.String(), "PUSHL BP")

	out.Reset()
	s.Run("abbrev 0")
	assert.Contains(t, out.String(), "2 declarations")
}

func TestSessionErrors(t *testing.T) {
	s, out := newTestSession(t)

	s.Run("dies 0x99")
	assert.Contains(t, out.String(), "error: no unit at offset 0x99")

	out.Reset()
	s.Run("pc nosuch")
	assert.Contains(t, out.String(), "error:")

	out.Reset()
	s.Run("bogus")
	assert.Contains(t, out.String(), "error:")

	assert.False(t, s.Stopped())
	s.Run("exit")
	assert.True(t, s.Stopped())
	s.Run("exit")
}

func TestHelpByGroups(t *testing.T) {
	s, out := newTestSession(t)

	s.Run("help")
	help := out.String()
	for _, group := range []string{"- [layout]", "- [entries]", "- [code]", "- [other]"} {
		assert.Contains(t, help, group)
	}
	assert.Contains(t, help, "disass")
}

func TestCompleter(t *testing.T) {
	assert.ElementsMatch(t, []string{"dies", "disass", "dis", "disassemble"}, completer("di"))
	assert.Equal(t, []string{"pc"}, completer("p"))
}
