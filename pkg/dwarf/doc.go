// Package dwarf provides ability for parsing DWARF info, abbrev and aranges
// sections. With the help of this package, we can walk the units of a
// binary, decode their DIEs as a flat stream and build the DIE tree when
// it is needed.
//
// Sub packages: cursor reads fixed-width and LEB128 values, frame parses
// .debug_frame.
package dwarf
