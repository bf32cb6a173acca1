// Package dump prints the decoded structures in the plain text layout used
// by the command line and the browse shell.
package dump

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf"
	"github.com/hitzhangjie/dwarfy/pkg/dwarf/frame"
	"github.com/hitzhangjie/dwarfy/pkg/elf"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// Sections lists the section headers of f, followed by its program headers
// if it has any.
func Sections(w io.Writer, f *elf.File) error {
	fmt.Fprintln(w, f)

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "idx\tname\ttype\taddr\toffset\tsize")
	for _, s := range f.Sections {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%#x\t%#x\t%#x\n", s.Index, s.Name, s.TypeName(), s.Addr, s.Offset, s.Size)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(f.Progs) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = newTabWriter(w)
	fmt.Fprintln(tw, "idx\ttype\tflags\tvaddr\toffset\tfilesz\tmemsz")
	for _, p := range f.Progs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%#x\t%#x\t%#x\t%#x\n", p.Index, p.TypeName(), p.FlagsString(), p.Vaddr, p.Off, p.Filesz, p.Memsz)
	}
	return tw.Flush()
}

// Units lists the unit headers of .debug_info and, when present, of
// .debug_types. A unit with a malformed header is reported and skipped.
func Units(w io.Writer, d *dwarf.Data) error {
	for _, it := range []*dwarf.UnitIterator{d.Units(), d.TypeUnits()} {
		for {
			u, err := it.Next()
			if it.Err() != nil {
				return it.Err()
			}
			if err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
				continue
			}
			if u == nil {
				break
			}
			fmt.Fprintf(w, "%s: %s\n", u.Section(), u)
		}
	}
	return nil
}

// Abbrevs lists the abbreviation table at offset.
func Abbrevs(w io.Writer, d *dwarf.Data, offset uint64) error {
	t, err := d.Abbrevs().Table(offset)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "abbrev table at %#x, %d declarations\n", t.Offset, len(t.Entries))
	for _, a := range t.Entries {
		children := "no children"
		if a.Children {
			children = "has children"
		}
		fmt.Fprintf(w, "[%d] %s %s\n", a.Code, a.Tag, children)
		for _, spec := range a.Fields {
			if spec.Form == dwarf.FormImplicitConst {
				fmt.Fprintf(w, "    %-24s %s %d\n", spec.Attr, spec.Form, spec.ImplicitConst)
				continue
			}
			fmt.Fprintf(w, "    %-24s %s\n", spec.Attr, spec.Form)
		}
	}
	return nil
}

// Entries prints the DIEs of u indented by depth. Children below maxDepth
// are skipped; a negative maxDepth prints everything.
func Entries(w io.Writer, d *dwarf.Data, u *dwarf.Unit, maxDepth int) error {
	fmt.Fprintf(w, "%s\n", u)

	it := d.Entries(u)
	for {
		depth := it.Depth()
		e, err := it.Next()
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}
		if e.IsNull() {
			continue
		}

		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(w, "%s<%#x> %s\n", indent, e.Offset, e.Tag)
		for i := range e.Fields {
			f := &e.Fields[i]
			fmt.Fprintf(w, "%s    %-24s %-20s %s\n", indent, f.Attr, f.Form, FieldValue(d, u, f))
		}

		if maxDepth >= 0 && depth >= maxDepth {
			if err := it.SkipChildren(); err != nil {
				return err
			}
		}
	}
}

// FieldValue formats f, resolving string and address indirections where
// the needed sections are present.
func FieldValue(d *dwarf.Data, u *dwarf.Unit, f *dwarf.Field) string {
	switch f.Class() {
	case dwarf.ClassString, dwarf.ClassStrOffset, dwarf.ClassStrIndex:
		s, err := d.FieldString(u, f)
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return fmt.Sprintf("%q", s)
	case dwarf.ClassAddress, dwarf.ClassAddrIndex:
		addr, err := d.FieldAddress(u, f)
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return fmt.Sprintf("%#x", addr)
	case dwarf.ClassReference, dwarf.ClassRefAddr, dwarf.ClassSecOffset:
		v := f.Val()
		if n, ok := v.(uint64); ok {
			return fmt.Sprintf("<%#x>", n)
		}
		return fmt.Sprint(v)
	case dwarf.ClassBlock, dwarf.ClassExprLoc:
		return fmt.Sprintf("[% x]", f.Raw)
	}
	return fmt.Sprint(f.Val())
}

// Aranges lists the address range sets.
func Aranges(w io.Writer, sets []*dwarf.ArangeSet) error {
	tw := newTabWriter(w)
	for _, set := range sets {
		fmt.Fprintf(tw, "set@%#x\tunit %#x\taddr_size %d\tseg_size %d\n", set.Offset, set.InfoOffset, set.AddrSize, set.SegmentSize)
		for _, r := range set.Ranges {
			fmt.Fprintf(tw, "\t[%#x, %#x)\t\t\n", r.Addr, r.Addr+r.Length)
		}
	}
	return tw.Flush()
}

// Frames lists the FDEs; with program set, each is followed by its decoded
// call frame instructions.
func Frames(w io.Writer, fdes frame.FrameDescriptionEntries, program bool) error {
	for _, fde := range fdes {
		fmt.Fprintln(w, fde)
		if !program {
			continue
		}
		insts, err := fde.Program()
		for _, in := range insts {
			fmt.Fprintf(w, "    %s\n", in)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats prints the totals of a scan.
func Stats(w io.Writer, s dwarf.ScanStats, tables uint64) error {
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "units:\t%d\n", s.Units)
	fmt.Fprintf(tw, "entries:\t%d\n", s.Entries)
	fmt.Fprintf(tw, "null entries:\t%d\n", s.Nulls)
	fmt.Fprintf(tw, "attributes:\t%d\n", s.Fields)
	fmt.Fprintf(tw, "abbrev tables:\t%d\n", tables)
	return tw.Flush()
}
