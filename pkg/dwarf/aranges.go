package dwarf

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
)

// Arange one address range of a set.
type Arange struct {
	Segment uint64
	Addr    uint64
	Length  uint64
}

// ArangeSet the ranges covered by one unit, from .debug_aranges.
//
// see DWARFv4 6.1.2 Lookup by Address
type ArangeSet struct {
	Offset      uint64
	Length      uint64
	Version     uint16
	InfoOffset  uint64 // offset of the unit in .debug_info
	AddrSize    uint8
	SegmentSize uint8
	Ranges      []Arange
}

// ParseAranges decodes every set of a .debug_aranges section.
//
// The first tuple of a set is aligned to a multiple of the tuple size
// (segment selector plus address plus length), counted from the start of
// the set. A set ends at its all-zero tuple or at its declared length.
func ParseAranges(section []byte, order binary.ByteOrder) ([]*ArangeSet, error) {
	var sets []*ArangeSet

	c := cursor.New(section, order)
	for !c.Empty() {
		start := c.Pos()
		length, _, offsetSize, err := readInitialLength(&c)
		if err != nil {
			return sets, decodeError(SectionAranges, start, err)
		}
		if length > uint64(c.Len()) {
			return sets, decodeError(SectionAranges, start,
				fmt.Errorf("%w: set length %#x exceeds remaining %#x bytes", ErrOutOfData, length, c.Len()))
		}
		body, _ := c.Sub(int(length))
		body = body.WithOffsetSize(offsetSize)

		set := &ArangeSet{Offset: start, Length: length}
		if err := readArangeSet(&body, set, start); err != nil {
			return sets, decodeError(SectionAranges, start, err)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func readArangeSet(c *cursor.Cursor, set *ArangeSet, start uint64) (err error) {
	if set.Version, err = c.U16(); err != nil {
		return err
	}
	if set.Version != 2 {
		return fmt.Errorf("%w: aranges version %d, expected 2", ErrUnsupportedVersion, set.Version)
	}
	if set.InfoOffset, err = c.Offset(); err != nil {
		return err
	}
	if set.AddrSize, err = c.U8(); err != nil {
		return err
	}
	if set.SegmentSize, err = c.U8(); err != nil {
		return err
	}

	tuple := uint64(set.SegmentSize) + 2*uint64(set.AddrSize)
	if tuple == 0 {
		return fmt.Errorf("%w: zero address size", ErrOutOfData)
	}
	if rem := (c.Pos() - start) % tuple; rem != 0 {
		if err := c.Skip(int(tuple - rem)); err != nil {
			return err
		}
	}

	*c = c.WithAddressSize(int(set.AddrSize)).WithSegmentSize(int(set.SegmentSize))
	for uint64(c.Len()) >= tuple {
		var r Arange
		if r.Segment, err = c.Segment(); err != nil {
			return err
		}
		if r.Addr, err = c.Address(); err != nil {
			return err
		}
		if r.Length, err = c.Uint(int(set.AddrSize)); err != nil {
			return err
		}
		if r == (Arange{}) {
			break
		}
		set.Ranges = append(set.Ranges, r)
	}
	return nil
}

// Aranges decodes .debug_aranges.
func (d *Data) Aranges() ([]*ArangeSet, error) {
	b, ok := d.sections[SectionAranges]
	if !ok {
		return nil, errors.Wrap(ErrMissingSection, SectionAranges)
	}
	return ParseAranges(b, d.order)
}

// ArangeIndex maps addresses to the unit covering them.
type ArangeIndex struct {
	entries []arangeEntry
}

type arangeEntry struct {
	lo, hi uint64
	unit   uint64
}

// NewArangeIndex indexes the ranges of sets.
func NewArangeIndex(sets []*ArangeSet) *ArangeIndex {
	ix := &ArangeIndex{}
	for _, s := range sets {
		for _, r := range s.Ranges {
			hi := r.Addr + r.Length
			if hi < r.Addr {
				// clamp ranges running past the top of the address space
				hi = math.MaxUint64
			}
			ix.entries = append(ix.entries, arangeEntry{lo: r.Addr, hi: hi, unit: s.InfoOffset})
		}
	}
	sort.Slice(ix.entries, func(i, j int) bool { return ix.entries[i].lo < ix.entries[j].lo })
	return ix
}

// Unit returns the .debug_info offset of the unit covering pc.
func (ix *ArangeIndex) Unit(pc uint64) (uint64, bool) {
	i := sort.Search(len(ix.entries), func(i int) bool { return ix.entries[i].lo > pc })
	for i--; i >= 0; i-- {
		e := ix.entries[i]
		if pc >= e.lo && pc < e.hi {
			return e.unit, true
		}
	}
	return 0, false
}
