package dwarf

import (
	"errors"
	"fmt"

	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
	"github.com/hitzhangjie/dwarfy/pkg/dwarf/leb128"
)

var (
	// ErrMissingSection a required section is absent
	ErrMissingSection = errors.New("missing section")
	// ErrBadInitialLength initial length in the reserved range [0xfffffff0, 0xffffffff)
	ErrBadInitialLength = errors.New("bad DWARF initial length")
	// ErrUnsupportedVersion unit version outside 2..5
	ErrUnsupportedVersion = errors.New("unsupported DWARF version")
	// ErrUnknownForm attribute form not valid for the unit
	ErrUnknownForm = errors.New("unknown attribute form")
	// ErrNestedIndirect DW_FORM_indirect resolved to DW_FORM_indirect again
	ErrNestedIndirect = errors.New("nested DW_FORM_indirect")
	// ErrAbbrevCodeNotFound abbreviation code not declared in the unit's table
	ErrAbbrevCodeNotFound = errors.New("abbreviation code not found")
	// ErrFormClass the value's form cannot be read as the requested kind
	ErrFormClass = errors.New("form does not hold the requested value kind")

	// ErrOutOfData read past the end of a span
	ErrOutOfData = cursor.ErrOutOfData
	// ErrLeb128Overflow LEB128 value wider than 64 bits
	ErrLeb128Overflow = leb128.ErrOverflow
)

// DecodeError reports where in which section decoding failed.
type DecodeError struct {
	Section string
	Offset  uint64
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s at offset %#x: %v", e.Section, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decodeError wraps err with its location unless it already carries one.
func decodeError(section string, offset uint64, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Section: section, Offset: offset, Err: err}
}
