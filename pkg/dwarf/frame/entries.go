package frame

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// CommonInformationEntry represents a Common Information Entry in
// the Dwarf .debug_frame section.
type CommonInformationEntry struct {
	Offset                uint64
	Length                uint64
	Version               uint8
	Augmentation          string
	AddressSize           uint8
	SegmentSize           uint8
	CodeAlignmentFactor   uint64
	DataAlignmentFactor   int64
	ReturnAddressRegister uint64
	InitialInstructions   []byte
	staticBase            uint64
}

// FrameDescriptionEntry represents a Frame Descriptor Entry in the
// Dwarf .debug_frame section.
type FrameDescriptionEntry struct {
	Offset       uint64
	Length       uint64
	CIE          *CommonInformationEntry
	Instructions []byte
	begin, size  uint64
	addrSize     int
	order        binary.ByteOrder
}

// Cover returns whether or not the given address is within the
// bounds of this frame.
func (fde *FrameDescriptionEntry) Cover(addr uint64) bool {
	return (addr - fde.begin) < fde.size
}

// Begin returns address of first location for this frame.
func (fde *FrameDescriptionEntry) Begin() uint64 {
	return fde.begin
}

// End returns address of last location for this frame.
func (fde *FrameDescriptionEntry) End() uint64 {
	return fde.begin + fde.size
}

// Translate moves the beginning of fde forward by delta.
func (fde *FrameDescriptionEntry) Translate(delta uint64) {
	fde.begin += delta
}

// Program decodes the CIE's initial instructions followed by the FDE's own.
// DW_CFA_set_loc operands have the width the FDE's addresses were read with.
func (fde *FrameDescriptionEntry) Program() ([]Instruction, error) {
	initial, err := Decode(fde.CIE.InitialInstructions, fde.order, fde.addrSize)
	if err != nil {
		return nil, err
	}
	own, err := Decode(fde.Instructions, fde.order, fde.addrSize)
	return append(initial, own...), err
}

func (fde *FrameDescriptionEntry) String() string {
	return fmt.Sprintf("FDE@%#x cie=%#x pc=%#x..%#x", fde.Offset, fde.CIE.Offset, fde.begin, fde.End())
}

// ErrNoFDEForPC no entry covers PC
type ErrNoFDEForPC struct {
	PC uint64
}

func (err *ErrNoFDEForPC) Error() string {
	return fmt.Sprintf("no FDE covers pc %#x", err.PC)
}

// FrameDescriptionEntries a list of FDEs
type FrameDescriptionEntries []*FrameDescriptionEntry

func newFrameIndex() FrameDescriptionEntries {
	return make(FrameDescriptionEntries, 0, 1000)
}

// FDEForPC returns the Frame Description Entry for the given PC.
func (fdes FrameDescriptionEntries) FDEForPC(pc uint64) (*FrameDescriptionEntry, error) {
	idx := sort.Search(len(fdes), func(i int) bool {
		return fdes[i].Cover(pc) || fdes[i].Begin() >= pc
	})
	if idx == len(fdes) || !fdes[idx].Cover(pc) {
		return nil, &ErrNoFDEForPC{pc}
	}
	return fdes[idx], nil
}

// Sort orders the entries by start address, which FDEForPC relies on.
func (fdes FrameDescriptionEntries) Sort() {
	sort.Slice(fdes, func(i, j int) bool { return fdes[i].begin < fdes[j].begin })
}
