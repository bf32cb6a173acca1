package dwarf

import (
	"fmt"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
)

// Entry a debugging information entry.
//
// An entry with Code 0 is the null entry closing a sibling list; it has no
// tag and no fields.
type Entry struct {
	Offset   uint64 // section offset of the abbreviation code
	Code     uint64
	Tag      Tag
	Children bool
	Fields   []Field
	Abbrev   *Abbrev
}

// IsNull reports whether e terminates a sibling list.
func (e *Entry) IsNull() bool { return e.Code == 0 }

// Field returns the first field for attr.
func (e *Entry) Field(attr Attr) (*Field, bool) {
	for i := range e.Fields {
		if e.Fields[i].Attr == attr {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// Val returns the display value of attr, or nil when e lacks it.
func (e *Entry) Val(attr Attr) interface{} {
	f, ok := e.Field(attr)
	if !ok {
		return nil
	}
	return f.Val()
}

func (e *Entry) String() string {
	if e.IsNull() {
		return fmt.Sprintf("<%#x> null", e.Offset)
	}
	return fmt.Sprintf("<%#x> %s (abbrev %d, %d fields)", e.Offset, e.Tag, e.Code, len(e.Fields))
}

// EntryIterator decodes the flat, pre-order DIE stream of one unit.
//
// The iterator does not build a tree. It tracks only the nesting depth
// implied by the children flags and null entries, see Depth and BuildTree.
type EntryIterator struct {
	unit    *Unit
	c       cursor.Cursor
	abbrevs *AbbrevCache
	table   *AbbrevTable

	depth int
	last  *Entry
	err   error
}

// NewEntryIterator iterates the DIEs of u, resolving abbreviation codes in
// the table at u's debug_abbrev_offset.
func NewEntryIterator(u *Unit, abbrevs *AbbrevCache) *EntryIterator {
	return &EntryIterator{unit: u, c: u.Cursor(), abbrevs: abbrevs}
}

// Unit returns the unit being iterated.
func (it *EntryIterator) Unit() *Unit { return it.unit }

// Offset returns the section offset of the next entry.
func (it *EntryIterator) Offset() uint64 { return it.c.Pos() }

// Depth returns the nesting depth of the next entry; the unit's root entry
// is at depth 0.
func (it *EntryIterator) Depth() int { return it.depth }

// Next decodes the next entry, or returns nil at the end of the unit.
// Any error is final since the stream cannot be resynchronized.
func (it *EntryIterator) Next() (*Entry, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.c.Empty() {
		it.last = nil
		return nil, nil
	}

	e, err := it.decode()
	if err != nil {
		it.err = err
		it.last = nil
		return nil, err
	}
	switch {
	case e.IsNull():
		if it.depth > 0 {
			it.depth--
		}
	case e.Children:
		it.depth++
	}
	it.last = e
	return e, nil
}

func (it *EntryIterator) decode() (*Entry, error) {
	u := it.unit
	off := it.c.Pos()
	code, err := it.c.ULEB128()
	if err != nil {
		return nil, decodeError(u.section, off, err)
	}
	if code == 0 {
		return &Entry{Offset: off}, nil
	}

	if it.table == nil {
		if it.table, err = it.abbrevs.Table(u.AbbrevOffset); err != nil {
			return nil, err
		}
	}
	a, err := it.table.Lookup(code)
	if err != nil {
		return nil, decodeError(u.section, off, err)
	}

	e := &Entry{
		Offset:   off,
		Code:     code,
		Tag:      a.Tag,
		Children: a.Children,
		Abbrev:   a,
		Fields:   make([]Field, 0, len(a.Fields)),
	}
	for _, spec := range a.Fields {
		at := it.c.Pos()
		f, err := readField(&it.c, u.enc, spec)
		if err != nil {
			return nil, decodeError(u.section, at, err)
		}
		f.unit = u.Offset
		e.Fields = append(e.Fields, f)
	}
	return e, nil
}

// SkipChildren skips the children of the entry last returned by Next. It
// follows DW_AT_sibling when present and otherwise decodes its way to the
// matching null entry.
func (it *EntryIterator) SkipChildren() error {
	e := it.last
	if e == nil || e.IsNull() || !e.Children {
		return nil
	}
	it.last = nil
	target := it.depth - 1

	if f, ok := e.Field(AttrSibling); ok {
		if sib, err := f.Ref(); err == nil && sib > it.c.Pos() && sib <= it.unit.NextOffset() {
			if err := it.c.Skip(int(sib - it.c.Pos())); err == nil {
				it.depth = target
				return nil
			}
		}
	}

	for it.depth > target {
		next, err := it.Next()
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
	}
	return nil
}

// Entries decodes every entry of u, null entries included.
func Entries(u *Unit, abbrevs *AbbrevCache) ([]*Entry, error) {
	it := NewEntryIterator(u, abbrevs)
	var out []*Entry
	for {
		e, err := it.Next()
		if err != nil {
			return out, err
		}
		if e == nil {
			return out, nil
		}
		out = append(out, e)
	}
}
