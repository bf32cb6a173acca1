package dwarf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
	"github.com/hitzhangjie/dwarfy/pkg/elf"
)

// Data the debug sections of one ELF file together with the abbreviation
// cache shared by every unit decoded from them.
type Data struct {
	file     *elf.File
	order    binary.ByteOrder
	sections map[string][]byte
	abbrevs  *AbbrevCache
	log      *zap.Logger
}

// Option configures New.
type Option func(d *Data)

// WithLogger sets the logger used for debug tracing.
func WithLogger(log *zap.Logger) Option {
	return func(d *Data) {
		if log != nil {
			d.log = log
		}
	}
}

// WithByteOrder overrides the byte order taken from the ELF header.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(d *Data) {
		if order != nil {
			d.order = order
		}
	}
}

// New collects the well-known debug sections of f. .debug_info and
// .debug_abbrev are required; every other section is optional.
func New(f *elf.File, opts ...Option) (*Data, error) {
	d := &Data{
		file:     f,
		order:    f.ByteOrder,
		sections: map[string][]byte{},
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}

	for _, name := range knownSections {
		data, ok, err := f.SectionDataByName(name)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}
		if ok {
			d.sections[name] = data
			d.log.Debug("found debug section", zap.String("name", name), zap.Int("size", len(data)))
		}
	}
	for _, name := range []string{SectionInfo, SectionAbbrev} {
		if _, ok := d.sections[name]; !ok {
			return nil, errors.Wrap(ErrMissingSection, name)
		}
	}

	d.abbrevs = NewAbbrevCache(d.sections[SectionAbbrev], d.log)
	return d, nil
}

// File returns the ELF file the sections were taken from.
func (d *Data) File() *elf.File { return d.file }

// Order returns the byte order used for every section.
func (d *Data) Order() binary.ByteOrder { return d.order }

// Logger returns the logger the Data traces with.
func (d *Data) Logger() *zap.Logger { return d.log }

// Section returns the bytes of a known debug section, ok is false when the
// file lacks it.
func (d *Data) Section(name string) ([]byte, bool) {
	b, ok := d.sections[name]
	return b, ok
}

// Abbrevs returns the abbreviation cache shared by all units.
func (d *Data) Abbrevs() *AbbrevCache { return d.abbrevs }

// Units iterates the units of .debug_info.
func (d *Data) Units() *UnitIterator {
	return NewUnitIterator(d.sections[SectionInfo], d.order)
}

// TypeUnits iterates the units of .debug_types, which yields nothing when
// the file has no such section.
func (d *Data) TypeUnits() *UnitIterator {
	return NewTypeUnitIterator(d.sections[SectionTypes], d.order)
}

// AllUnits decodes every unit header of .debug_info.
func (d *Data) AllUnits() ([]*Unit, error) {
	var units []*Unit
	it := d.Units()
	for {
		u, err := it.Next()
		if err != nil {
			return units, err
		}
		if u == nil {
			return units, nil
		}
		d.log.Debug("unit",
			zap.Uint64("offset", u.Offset),
			zap.Uint16("version", u.Version),
			zap.Bool("dwarf64", u.Is64()))
		units = append(units, u)
	}
}

// Entries iterates the DIEs of u.
func (d *Data) Entries(u *Unit) *EntryIterator {
	return NewEntryIterator(u, d.abbrevs)
}

// String returns the NUL-terminated string at off in .debug_str.
func (d *Data) String(off uint64) (string, error) {
	return d.sectionString(SectionStr, off)
}

// LineString returns the NUL-terminated string at off in .debug_line_str.
func (d *Data) LineString(off uint64) (string, error) {
	return d.sectionString(SectionLineStr, off)
}

func (d *Data) sectionString(name string, off uint64) (string, error) {
	b, ok := d.sections[name]
	if !ok {
		return "", errors.Wrap(ErrMissingSection, name)
	}
	if off >= uint64(len(b)) {
		return "", decodeError(name, off, fmt.Errorf("%w: string offset beyond section of %d bytes", ErrOutOfData, len(b)))
	}
	s := b[off:]
	end := bytes.IndexByte(s, 0)
	if end < 0 {
		return "", decodeError(name, off, fmt.Errorf("%w: unterminated string", ErrOutOfData))
	}
	return string(s[:end]), nil
}

// FieldString resolves a string-class field of an entry in u, wherever the
// string is stored.
func (d *Data) FieldString(u *Unit, f *Field) (string, error) {
	switch f.Class() {
	case ClassString:
		return f.InlineString()
	case ClassStrOffset:
		off, err := f.Uint()
		if err != nil {
			return "", err
		}
		switch f.Form {
		case FormLineStrp:
			return d.LineString(off)
		case FormStrpSup:
			return "", errors.Wrap(ErrMissingSection, SectionSup)
		}
		return d.String(off)
	case ClassStrIndex:
		idx, err := f.Uint()
		if err != nil {
			return "", err
		}
		off, err := d.strOffset(u, idx)
		if err != nil {
			return "", err
		}
		return d.String(off)
	}
	return "", f.classError("string")
}

// EntryName returns the DW_AT_name of e, or "" when it has none.
func (d *Data) EntryName(u *Unit, e *Entry) (string, error) {
	f, ok := e.Field(AttrName)
	if !ok {
		return "", nil
	}
	return d.FieldString(u, f)
}

// FieldAddress resolves an address-class field, reading .debug_addr for
// the indexed forms.
func (d *Data) FieldAddress(u *Unit, f *Field) (uint64, error) {
	switch f.Class() {
	case ClassAddress:
		return f.Uint()
	case ClassAddrIndex:
		idx, err := f.Uint()
		if err != nil {
			return 0, err
		}
		base, err := d.unitBase(u, AttrAddrBase)
		if err != nil {
			return 0, err
		}
		return d.indexed(SectionAddr, base, idx, u.enc.AddrSize, u)
	}
	return 0, f.classError("address")
}

func (d *Data) strOffset(u *Unit, idx uint64) (uint64, error) {
	base, err := d.unitBase(u, AttrStrOffsetsBase)
	if err != nil {
		return 0, err
	}
	return d.indexed(SectionStrOffs, base, idx, u.enc.OffsetSize, u)
}

// unitBase returns a DW_AT_*_base attribute of u's root entry. Without one
// the table is assumed to start right after its 8 or 16 byte header.
func (d *Data) unitBase(u *Unit, attr Attr) (uint64, error) {
	e, err := d.Entries(u).Next()
	if err != nil {
		return 0, err
	}
	if e != nil {
		if f, ok := e.Field(attr); ok {
			return f.Uint()
		}
	}
	if u.Is64() {
		return 16, nil
	}
	return 8, nil
}

func (d *Data) indexed(name string, base, idx uint64, width int, u *Unit) (uint64, error) {
	b, ok := d.sections[name]
	if !ok {
		return 0, errors.Wrap(ErrMissingSection, name)
	}
	if width <= 0 || base > uint64(len(b)) || idx > (uint64(len(b))-base)/uint64(width) {
		return 0, decodeError(name, base, fmt.Errorf("%w: index %d beyond section", ErrOutOfData, idx))
	}
	off := base + idx*uint64(width)
	c := cursor.At(b[off:], off, u.enc.Order)
	v, err := c.Uint(width)
	if err != nil {
		return 0, decodeError(name, off, err)
	}
	return v, nil
}
