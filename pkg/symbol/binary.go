package symbol

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf"
	"github.com/hitzhangjie/dwarfy/pkg/dwarf/frame"
)

// ErrNotFound no function or frame covers the address
var ErrNotFound = errors.New("not found")

// BinaryInfo binary info
type BinaryInfo struct {
	Functions    []*Function
	CompileUnits []*CompileUnit
	FdeEntries   frame.FrameDescriptionEntries
	Aranges      *dwarf.ArangeIndex

	data *dwarf.Data
	log  *zap.Logger

	// only used for parsing purpose
	curCompileUnit *CompileUnit
	curFunction    *Function
	fnDepth        int
}

// Analyze walks every unit of data and indexes its compile units and
// subprograms, then the optional .debug_frame and .debug_aranges.
func Analyze(data *dwarf.Data) (*BinaryInfo, error) {
	bi := &BinaryInfo{data: data, log: data.Logger()}

	if err := bi.ParseInfo(); err != nil {
		return nil, err
	}
	if err := bi.ParseFrame(); err != nil {
		return nil, err
	}
	if err := bi.ParseAranges(); err != nil {
		return nil, err
	}
	return bi, nil
}

// ParseInfo parse .debug_info
//
// unit entries: see DWARF v4 chapter 3.1.1 normal and partial compilation unit entries
func (bi *BinaryInfo) ParseInfo() error {
	units, err := bi.data.AllUnits()
	if err != nil {
		return err
	}

	for _, u := range units {
		it := bi.data.Entries(u)
		bi.curCompileUnit = nil
		bi.curFunction = nil
		for {
			depth := it.Depth()
			entry, err := it.Next()
			if err != nil {
				return err
			}
			if entry == nil { // reaches the end
				break
			}
			if entry.IsNull() {
				continue
			}
			if bi.curFunction != nil && depth <= bi.fnDepth {
				bi.curFunction = nil
			}

			switch entry.Tag {
			// parse compile unit
			case dwarf.TagCompileUnit, dwarf.TagPartialUnit:
				cu := &CompileUnit{unit: u, entry: entry, bi: bi}
				if err := cu.parseFrom(entry); err != nil {
					return err
				}
				bi.curCompileUnit = cu
				bi.CompileUnits = append(bi.CompileUnits, cu)

			// parse subprogram
			case dwarf.TagSubprogram:
				fn := &Function{cu: bi.curCompileUnit}
				if err := fn.parseFrom(bi.data, u, entry); err != nil {
					return err
				}
				bi.Functions = append(bi.Functions, fn)
				if bi.curCompileUnit != nil {
					bi.curCompileUnit.functions = append(bi.curCompileUnit.functions, fn)
				}
				bi.curFunction = fn
				bi.fnDepth = depth

			// parse variables defined in subprogram
			case dwarf.TagVariable, dwarf.TagFormalParameter:
				if bi.curFunction != nil {
					bi.curFunction.variables = append(bi.curFunction.variables, entry)
				}
			}
		}
	}

	sort.SliceStable(bi.Functions, func(i, j int) bool { return bi.Functions[i].lowpc < bi.Functions[j].lowpc })
	bi.log.Debug("indexed debug info",
		zap.Int("compile_units", len(bi.CompileUnits)),
		zap.Int("functions", len(bi.Functions)))
	return nil
}

// ParseFrame parse .debug_frame section to build the Call Frame Information
//
// see DWARFv4 6.4 Call Frame Information.
func (bi *BinaryInfo) ParseFrame() error {
	frameData, ok := bi.data.Section(dwarf.SectionFrame)
	if !ok {
		return nil
	}

	ptrSize := 8
	if f := bi.data.File(); f != nil && !f.Is64() {
		ptrSize = 4
	}
	frameEntries, err := frame.Parse(frameData, bi.data.Order(), 0, ptrSize)
	if err != nil {
		return err
	}
	bi.FdeEntries = frameEntries
	return nil
}

// ParseAranges parse .debug_aranges to map addresses to compile units.
func (bi *BinaryInfo) ParseAranges() error {
	sets, err := bi.data.Aranges()
	if errors.Is(err, dwarf.ErrMissingSection) {
		return nil
	}
	if err != nil {
		return err
	}
	bi.Aranges = dwarf.NewArangeIndex(sets)
	return nil
}

// PCToFunction returns the function whose range covers PC
//
// note: not considered inline function
func (bi *BinaryInfo) PCToFunction(pc uint64) (*Function, error) {
	for _, f := range bi.Functions {
		if f.lowpc <= pc && pc < f.highpc {
			return f, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "function for pc %#x", pc)
}

// PCToCompileUnit returns the compile unit covering PC, using
// .debug_aranges when present and the units' own ranges otherwise.
func (bi *BinaryInfo) PCToCompileUnit(pc uint64) (*CompileUnit, error) {
	if bi.Aranges != nil {
		if off, ok := bi.Aranges.Unit(pc); ok {
			for _, cu := range bi.CompileUnits {
				if cu.unit.Offset == off {
					return cu, nil
				}
			}
		}
	}
	for _, cu := range bi.CompileUnits {
		if cu.lowpc <= pc && pc < cu.highpc {
			return cu, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "compile unit for pc %#x", pc)
}

// LocToPC converts location `loc` to PC. loc is an address, like
// 0x401000, or a function name, like main.
func (bi *BinaryInfo) LocToPC(loc string) (uint64, error) {
	if pc, err := strconv.ParseUint(loc, 0, 64); err == nil {
		return pc, nil
	}
	for _, f := range bi.Functions {
		if f.name == loc {
			return f.lowpc, nil
		}
	}
	return 0, errors.Wrapf(ErrNotFound, "location %q", loc)
}

// PCToFDE returns the frame whose range covers PC
func (bi *BinaryInfo) PCToFDE(pc uint64) (*frame.FrameDescriptionEntry, error) {
	return bi.FdeEntries.FDEForPC(pc)
}

// Dump writes the compile units, functions and frames to w.
func (bi *BinaryInfo) Dump(w io.Writer) {
	for _, cu := range bi.CompileUnits {
		fmt.Fprintf(w, "compile unit: %s [%#x, %#x) %d functions\n", cu.Name(), cu.lowpc, cu.highpc, len(cu.functions))
	}

	for _, fn := range bi.Functions {
		fmt.Fprintf(w, "function: %-32s [%#x, %#x) %d variables\n", fn.Name(), fn.lowpc, fn.highpc, len(fn.variables))
	}

	for i, v := range bi.FdeEntries {
		fmt.Fprintf(w, "frames index: %d, fde: [%#x, %#x]\n", i, v.Begin(), v.End())
	}
}

// highPC resolves DW_AT_high_pc, an address or, from DWARF 4 on, an
// offset from low_pc.
func highPC(d *dwarf.Data, u *dwarf.Unit, e *dwarf.Entry, lowpc uint64) (uint64, error) {
	f, ok := e.Field(dwarf.AttrHighpc)
	if !ok {
		return lowpc, nil
	}
	if f.Class() == dwarf.ClassConstant {
		v, err := f.Uint()
		return lowpc + v, err
	}
	return d.FieldAddress(u, f)
}

func lowPC(d *dwarf.Data, u *dwarf.Unit, e *dwarf.Entry) (uint64, error) {
	f, ok := e.Field(dwarf.AttrLowpc)
	if !ok {
		return 0, nil
	}
	return d.FieldAddress(u, f)
}
