package symbol

import (
	"github.com/hitzhangjie/dwarfy/pkg/dwarf"
)

// CompileUnit compilation unit
//
// see DWARFv4 3.1.1 normal and partial compilation unit entries
type CompileUnit struct {
	name     string
	compDir  string
	producer string
	lowpc    uint64
	highpc   uint64

	functions []*Function
	unit      *dwarf.Unit
	entry     *dwarf.Entry
	bi        *BinaryInfo
}

func (c *CompileUnit) parseFrom(entry *dwarf.Entry) error {
	d, u := c.bi.data, c.unit

	var err error
	if c.name, err = d.EntryName(u, entry); err != nil {
		return err
	}
	if f, ok := entry.Field(dwarf.AttrCompDir); ok {
		if c.compDir, err = d.FieldString(u, f); err != nil {
			return err
		}
	}
	if f, ok := entry.Field(dwarf.AttrProducer); ok {
		if c.producer, err = d.FieldString(u, f); err != nil {
			return err
		}
	}
	if c.lowpc, err = lowPC(d, u, entry); err != nil {
		return err
	}
	c.highpc, err = highPC(d, u, entry, c.lowpc)
	return err
}

func (c *CompileUnit) Name() string     { return c.name }
func (c *CompileUnit) CompDir() string  { return c.compDir }
func (c *CompileUnit) Producer() string { return c.producer }

// Unit returns the unit the compile unit entry was read from.
func (c *CompileUnit) Unit() *dwarf.Unit { return c.unit }

func (c *CompileUnit) Functions() []*Function { return c.functions }
