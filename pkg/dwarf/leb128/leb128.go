// Package leb128 implements the Little-Endian Base-128 variable-length
// integer encoding used throughout DWARF.
//
// see DWARFv4 7.6 Variable Length Data.
package leb128

import "errors"

var (
	// ErrOverflow the encoded value does not fit into 64 bits
	ErrOverflow = errors.New("leb128: value overflows 64 bits")
	// ErrTruncated the input ended before the terminating byte
	ErrTruncated = errors.New("leb128: truncated input")
)

// MaxLen is the longest encoding of a 64-bit value.
const MaxLen = 10

func highBit(b byte) bool { return b&0x80 != 0 }
func lowBits(b byte) byte { return b & 0x7f }
func signBit(b byte) bool { return b&0x40 != 0 }

// DecodeUnsigned decodes an unsigned LEB128 value from the head of buf and
// returns the value and the number of bytes consumed.
func DecodeUnsigned(buf []byte) (uint64, int, error) {
	var (
		result uint64
		shift  uint
	)
	for i, b := range buf {
		result |= uint64(lowBits(b)) << shift
		shift += 7
		if !highBit(b) {
			return result, i + 1, nil
		}
		if shift >= 64 {
			return 0, 0, ErrOverflow
		}
	}
	return 0, 0, ErrTruncated
}

// DecodeSigned decodes a signed LEB128 value from the head of buf and
// returns the value and the number of bytes consumed.
func DecodeSigned(buf []byte) (int64, int, error) {
	var (
		result uint64
		shift  uint
	)
	for i, b := range buf {
		result |= uint64(lowBits(b)) << shift
		shift += 7
		if !highBit(b) {
			if shift < 64 && signBit(b) {
				result |= ^uint64(0) << shift
			}
			return int64(result), i + 1, nil
		}
		if shift >= 64 {
			return 0, 0, ErrOverflow
		}
	}
	return 0, 0, ErrTruncated
}

// AppendUnsigned appends the unsigned LEB128 encoding of v to buf.
func AppendUnsigned(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// AppendSigned appends the signed LEB128 encoding of v to buf.
func AppendSigned(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		// done once the remaining bits are pure sign extension of b
		if (v == 0 && !signBit(b)) || (v == -1 && signBit(b)) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}
