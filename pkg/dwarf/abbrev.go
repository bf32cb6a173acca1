package dwarf

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
)

// AttrSpec one (attribute, form) pair of an abbreviation declaration.
// ImplicitConst holds the value of a DW_FORM_implicit_const attribute.
type AttrSpec struct {
	Attr          Attr
	Form          Form
	ImplicitConst int64
}

// Abbrev an abbreviation declaration: the schema of every DIE using Code
// within the units that share its table.
//
// see DWARFv4 7.5.3 Abbreviations Tables
type Abbrev struct {
	Offset   uint64 // offset of the declaration in .debug_abbrev
	Code     uint64
	Tag      Tag
	Children bool
	Fields   []AttrSpec
}

// AbbrevTable the declarations starting at one .debug_abbrev offset, up to
// the terminating zero code.
type AbbrevTable struct {
	Offset  uint64
	Entries []*Abbrev

	byCode map[uint64]*Abbrev
}

// Lookup returns the declaration for code.
func (t *AbbrevTable) Lookup(code uint64) (*Abbrev, error) {
	if a, ok := t.byCode[code]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: code %d in table at %#x", ErrAbbrevCodeNotFound, code, t.Offset)
}

// readAbbrev reads one declaration. It returns nil at the table's
// terminating zero code.
func readAbbrev(c *cursor.Cursor) (*Abbrev, error) {
	start := c.Pos()
	code, err := c.ULEB128()
	if err != nil {
		return nil, err
	}
	if code == 0 {
		return nil, nil
	}

	tag, err := c.ULEB128()
	if err != nil {
		return nil, err
	}
	children, err := c.U8()
	if err != nil {
		return nil, err
	}

	a := &Abbrev{Offset: start, Code: code, Tag: Tag(tag), Children: children != 0}
	for {
		name, err := c.ULEB128()
		if err != nil {
			return nil, err
		}
		form, err := c.ULEB128()
		if err != nil {
			return nil, err
		}
		if name == 0 && form == 0 {
			break
		}
		spec := AttrSpec{Attr: Attr(name), Form: Form(form)}
		if spec.Form == FormImplicitConst {
			if spec.ImplicitConst, err = c.SLEB128(); err != nil {
				return nil, err
			}
		}
		a.Fields = append(a.Fields, spec)
	}
	return a, nil
}

func abbrevCursor(section []byte, offset uint64) (cursor.Cursor, error) {
	if offset > uint64(len(section)) {
		return cursor.Cursor{}, decodeError(SectionAbbrev, offset,
			fmt.Errorf("%w: table offset beyond section of %d bytes", ErrOutOfData, len(section)))
	}
	// abbreviations hold only LEB128 values and single bytes
	return cursor.At(section[offset:], offset, binary.LittleEndian), nil
}

// ParseAbbrevTable reads the whole table starting at offset.
func ParseAbbrevTable(section []byte, offset uint64) (*AbbrevTable, error) {
	c, err := abbrevCursor(section, offset)
	if err != nil {
		return nil, err
	}

	t := &AbbrevTable{Offset: offset, byCode: map[uint64]*Abbrev{}}
	for {
		at := c.Pos()
		a, err := readAbbrev(&c)
		if err != nil {
			return nil, decodeError(SectionAbbrev, at, err)
		}
		if a == nil {
			return t, nil
		}
		// the first declaration of a duplicated code wins
		if _, ok := t.byCode[a.Code]; !ok {
			t.byCode[a.Code] = a
		}
		t.Entries = append(t.Entries, a)
	}
}

// FindAbbrev scans the table at offset for code without building the
// table, stopping at the table's terminating zero.
func FindAbbrev(section []byte, offset, code uint64) (*Abbrev, error) {
	c, err := abbrevCursor(section, offset)
	if err != nil {
		return nil, err
	}
	for {
		at := c.Pos()
		a, err := readAbbrev(&c)
		if err != nil {
			return nil, decodeError(SectionAbbrev, at, err)
		}
		if a == nil {
			return nil, decodeError(SectionAbbrev, at,
				fmt.Errorf("%w: code %d in table at %#x", ErrAbbrevCodeNotFound, code, offset))
		}
		if a.Code == code {
			return a, nil
		}
	}
}

// AbbrevIndex maps every abbreviation code seen anywhere in .debug_abbrev
// to the offset of its first declaration.
//
// Codes are only meaningful relative to a unit's table; the index is sound
// for random access only when Shared reports that no code was declared
// twice with different schemas.
type AbbrevIndex struct {
	offsets   map[uint64]uint64
	tables    []uint64
	conflicts int
}

// Offset returns the .debug_abbrev offset of code's first declaration.
func (ix *AbbrevIndex) Offset(code uint64) (uint64, bool) {
	off, ok := ix.offsets[code]
	return off, ok
}

// Tables returns the start offsets of all non-empty tables, in section order.
func (ix *AbbrevIndex) Tables() []uint64 { return ix.tables }

// Shared reports whether every code has one declaration across the section.
func (ix *AbbrevIndex) Shared() bool { return ix.conflicts == 0 }

// Len returns the number of distinct codes.
func (ix *AbbrevIndex) Len() int { return len(ix.offsets) }

func buildAbbrevIndex(section []byte) (*AbbrevIndex, error) {
	ix := &AbbrevIndex{offsets: map[uint64]uint64{}}
	seen := map[uint64]*Abbrev{}

	c := cursor.New(section, binary.LittleEndian)
	for !c.Empty() {
		tableStart := c.Pos()
		empty := true
		for {
			at := c.Pos()
			a, err := readAbbrev(&c)
			if err != nil {
				return nil, decodeError(SectionAbbrev, at, err)
			}
			if a == nil {
				break
			}
			empty = false
			if prev, ok := seen[a.Code]; ok {
				if !sameSchema(prev, a) {
					ix.conflicts++
				}
				continue
			}
			seen[a.Code] = a
			ix.offsets[a.Code] = a.Offset
		}
		if !empty {
			ix.tables = append(ix.tables, tableStart)
		}
	}
	return ix, nil
}

func sameSchema(a, b *Abbrev) bool {
	if a.Tag != b.Tag || a.Children != b.Children || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}

// AbbrevCache memoizes abbreviation tables by .debug_abbrev offset. It is
// safe for concurrent use; the section is immutable so entries are never
// invalidated.
type AbbrevCache struct {
	section []byte
	log     *zap.Logger

	mu     sync.RWMutex
	tables map[uint64]*AbbrevTable
	group  singleflight.Group
	builds *atomic.Uint64

	indexOnce sync.Once
	index     *AbbrevIndex
	indexErr  error
}

// NewAbbrevCache returns an empty cache over the .debug_abbrev bytes.
func NewAbbrevCache(section []byte, log *zap.Logger) *AbbrevCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &AbbrevCache{
		section: section,
		log:     log,
		tables:  map[uint64]*AbbrevTable{},
		builds:  atomic.NewUint64(0),
	}
}

// Table returns the table at offset, building it on first use.
func (c *AbbrevCache) Table(offset uint64) (*AbbrevTable, error) {
	c.mu.RLock()
	t, ok := c.tables[offset]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := c.group.Do(strconv.FormatUint(offset, 10), func() (interface{}, error) {
		c.mu.RLock()
		t, ok := c.tables[offset]
		c.mu.RUnlock()
		if ok {
			return t, nil
		}

		t, err := ParseAbbrevTable(c.section, offset)
		if err != nil {
			return nil, err
		}
		c.builds.Inc()
		c.log.Debug("built abbreviation table",
			zap.Uint64("offset", offset),
			zap.Int("entries", len(t.Entries)))

		c.mu.Lock()
		c.tables[offset] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AbbrevTable), nil
}

// Lookup resolves code within the table owned by the unit whose
// debug_abbrev_offset is offset.
func (c *AbbrevCache) Lookup(offset, code uint64) (*Abbrev, error) {
	t, err := c.Table(offset)
	if err != nil {
		return nil, err
	}
	return t.Lookup(code)
}

// Index returns the whole-section code index, built once.
func (c *AbbrevCache) Index() (*AbbrevIndex, error) {
	c.indexOnce.Do(func() {
		c.index, c.indexErr = buildAbbrevIndex(c.section)
		if c.indexErr == nil {
			c.log.Debug("built abbreviation index",
				zap.Int("codes", c.index.Len()),
				zap.Int("tables", len(c.index.tables)),
				zap.Bool("shared", c.index.Shared()))
		}
	})
	return c.index, c.indexErr
}

// LookupAny resolves code through the whole-section index. Callers must
// have checked Index().Shared() or otherwise know a single table is in use.
func (c *AbbrevCache) LookupAny(code uint64) (*Abbrev, error) {
	ix, err := c.Index()
	if err != nil {
		return nil, err
	}
	off, ok := ix.Offset(code)
	if !ok {
		return nil, fmt.Errorf("%w: code %d in any table", ErrAbbrevCodeNotFound, code)
	}
	cur, err := abbrevCursor(c.section, off)
	if err != nil {
		return nil, err
	}
	a, err := readAbbrev(&cur)
	if err != nil {
		return nil, decodeError(SectionAbbrev, off, err)
	}
	return a, nil
}

// Builds returns how many tables were parsed, for tests and statistics.
func (c *AbbrevCache) Builds() uint64 { return c.builds.Load() }

// Len returns the number of cached tables.
func (c *AbbrevCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}
