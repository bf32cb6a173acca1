package dwarf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfy/internal/fixture"
)

// arangeSet encodes one 32-bit format set with 8-byte addresses.
func arangeSet(order binary.ByteOrder, infoOffset uint64, ranges ...Arange) []byte {
	rest := fixture.NewBuf(order).U16(2).U32(uint32(infoOffset)).U8(8).U8(0)
	// header is 12 bytes, pad to the 16 byte tuple size
	rest.Raw(0, 0, 0, 0)
	for _, r := range ranges {
		rest.U64(r.Addr).U64(r.Length)
	}
	rest.U64(0).U64(0)
	return append(fixture.NewBuf(order).U32(uint32(rest.Len())).Bytes(), rest.Bytes()...)
}

func TestParseAranges(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		section := append(
			arangeSet(order, 0, Arange{Addr: 0x1000, Length: 0x100}, Arange{Addr: 0x3000, Length: 0x10}),
			arangeSet(order, 0x80, Arange{Addr: 0x2000, Length: 0x40})...)

		sets, err := ParseAranges(section, order)
		require.NoError(t, err)
		require.Len(t, sets, 2)

		assert.Equal(t, uint64(0), sets[0].InfoOffset)
		assert.Equal(t, []Arange{{Addr: 0x1000, Length: 0x100}, {Addr: 0x3000, Length: 0x10}}, sets[0].Ranges)
		assert.Equal(t, uint64(0x80), sets[1].InfoOffset)
		assert.Equal(t, uint8(8), sets[1].AddrSize)

		ix := NewArangeIndex(sets)
		for pc, want := range map[uint64]uint64{0x1000: 0, 0x10ff: 0, 0x2010: 0x80, 0x300f: 0} {
			unit, ok := ix.Unit(pc)
			require.True(t, ok, "%#x", pc)
			assert.Equal(t, want, unit, "%#x", pc)
		}
		for _, pc := range []uint64{0, 0x1100, 0x2040, 0x3010} {
			_, ok := ix.Unit(pc)
			assert.False(t, ok, "%#x", pc)
		}
	}
}

func TestParseArangesErrors(t *testing.T) {
	le := binary.LittleEndian
	good := arangeSet(le, 0, Arange{Addr: 1, Length: 1})

	bad := append([]byte(nil), good...)
	le.PutUint16(bad[4:], 3)
	_, err := ParseAranges(bad, le)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = ParseAranges(good[:len(good)-4], le)
	assert.ErrorIs(t, err, ErrOutOfData)
}

func TestArangeIndexRangeAtTopOfAddressSpace(t *testing.T) {
	le := binary.LittleEndian
	section := append(
		arangeSet(le, 0x40, Arange{Addr: 0xffffffffffff0000, Length: 0x20000}),
		arangeSet(le, 0x80, Arange{Addr: 0x1000, Length: 0x10})...)
	sets, err := ParseAranges(section, le)
	require.NoError(t, err)

	ix := NewArangeIndex(sets)
	for pc, want := range map[uint64]uint64{0xffffffffffff0000: 0x40, 0xfffffffffffffff0: 0x40, 0x1008: 0x80} {
		unit, ok := ix.Unit(pc)
		require.True(t, ok, "%#x", pc)
		assert.Equal(t, want, unit, "%#x", pc)
	}
	_, ok := ix.Unit(0x8000)
	assert.False(t, ok)
}
