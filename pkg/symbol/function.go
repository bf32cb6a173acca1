package symbol

import (
	"github.com/hitzhangjie/dwarfy/pkg/dwarf"
)

// Function function
//
// see DWARFv4 3.3 subroutine and entry point entries
type Function struct {
	name      string
	lowpc     uint64
	highpc    uint64
	frameBase []byte
	declFile  int64
	external  bool

	entry     *dwarf.Entry
	variables []*dwarf.Entry
	cu        *CompileUnit
}

func (f *Function) Name() string {
	return f.name
}

// LowPC returns the address of the first instruction.
func (f *Function) LowPC() uint64 { return f.lowpc }

// HighPC returns the address past the last instruction.
func (f *Function) HighPC() uint64 { return f.highpc }

func (f *Function) External() bool { return f.external }

func (f *Function) CompileUnit() *CompileUnit { return f.cu }

func (f *Function) Variables() []*dwarf.Entry {
	return f.variables
}

func (f *Function) parseFrom(d *dwarf.Data, u *dwarf.Unit, curEntry *dwarf.Entry) error {
	var err error
	for i := range curEntry.Fields {
		field := &curEntry.Fields[i]
		switch field.Attr {
		case dwarf.AttrName:
			f.name, err = d.FieldString(u, field)
		case dwarf.AttrFrameBase:
			if field.Class() == dwarf.ClassExprLoc || field.Class() == dwarf.ClassBlock {
				f.frameBase, err = field.Block()
			}
		case dwarf.AttrDeclFile:
			var v uint64
			v, err = field.Uint()
			f.declFile = int64(v)
		case dwarf.AttrExternal:
			f.external, err = field.Flag()
		}
		if err != nil {
			return err
		}
	}

	if f.lowpc, err = lowPC(d, u, curEntry); err != nil {
		return err
	}
	if f.highpc, err = highPC(d, u, curEntry, f.lowpc); err != nil {
		return err
	}
	f.entry = curEntry
	return nil
}

// FrameBase returns the DW_AT_frame_base location expression, if any.
func (f *Function) FrameBase() []byte { return f.frameBase }

func (f *Function) DeclFile() int64 { return f.declFile }
