package dwarf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfy/internal/fixture"
	"github.com/hitzhangjie/dwarfy/pkg/dwarf/cursor"
)

func TestReadInitialLength(t *testing.T) {
	le := binary.LittleEndian

	t.Run("64-bit", func(t *testing.T) {
		b := fixture.NewBuf(le).U32(0xffffffff).U64(0x123456789).Bytes()
		c := cursor.New(b, le)
		length, fieldSize, offsetSize, err := readInitialLength(&c)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x123456789), length)
		assert.Equal(t, 12, fieldSize)
		assert.Equal(t, 8, offsetSize)
	})

	for _, v := range []uint32{0, 1, 0x1234, 0xffffffef} {
		b := fixture.NewBuf(le).U32(v).Bytes()
		c := cursor.New(b, le)
		length, fieldSize, offsetSize, err := readInitialLength(&c)
		require.NoError(t, err)
		assert.Equal(t, uint64(v), length)
		assert.Equal(t, 4, fieldSize)
		assert.Equal(t, 4, offsetSize)
	}

	for v := uint32(0xfffffff0); v < 0xffffffff; v++ {
		b := fixture.NewBuf(le).U32(v).U64(8).Bytes()
		c := cursor.New(b, le)
		_, _, _, err := readInitialLength(&c)
		assert.ErrorIs(t, err, ErrBadInitialLength, "%#x", v)
	}

	// escape without the 8-byte length
	c := cursor.New(fixture.NewBuf(le).U32(0xffffffff).U32(0).Bytes(), le)
	_, _, _, err := readInitialLength(&c)
	assert.ErrorIs(t, err, ErrOutOfData)
}

func TestUnitIteratorVisitsEveryUnit(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		for n := 0; n <= 12; n++ {
			var info []byte
			var starts []uint64
			for i := 0; i < n; i++ {
				starts = append(starts, uint64(len(info)))
				body := make([]byte, i*7%23)
				info = append(info, fixture.Unit{
					Version:      uint16(2 + i%4),
					Format64:     i%3 == 0,
					UnitType:     uint8(UTCompile),
					AbbrevOffset: uint64(i * 16),
					AddrSize:     8,
					Body:         body,
				}.Encode(order)...)
			}

			it := NewUnitIterator(info, order)
			var got []uint64
			for {
				u, err := it.Next()
				require.NoError(t, err)
				if u == nil {
					break
				}
				got = append(got, u.Offset)
				assert.Equal(t, uint64(len(got)-1)*16, u.AbbrevOffset)
				assert.Equal(t, u.Offset, starts[len(got)-1])
			}
			assert.Equal(t, starts, got)
			assert.Equal(t, uint64(len(info)), it.Offset())
		}
	}
}

func TestUnitHeaderLayouts(t *testing.T) {
	le := binary.LittleEndian
	body := []byte{0xaa, 0xbb}

	cases := []struct {
		name string
		unit fixture.Unit
		data uint64 // offset of the first DIE byte
	}{
		{"v4-32", fixture.Unit{Version: 4, AbbrevOffset: 0x40, AddrSize: 8, Body: body}, 11},
		{"v4-64", fixture.Unit{Version: 4, Format64: true, AbbrevOffset: 0x40, AddrSize: 4, Body: body}, 23},
		{"v5-32", fixture.Unit{Version: 5, UnitType: uint8(UTCompile), AbbrevOffset: 0x40, AddrSize: 8, Body: body}, 12},
		{"v5-64", fixture.Unit{Version: 5, Format64: true, UnitType: uint8(UTPartial), AbbrevOffset: 0x40, AddrSize: 8, Body: body}, 24},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := tc.unit.Encode(le)
			it := NewUnitIterator(info, le)
			u, err := it.Next()
			require.NoError(t, err)
			require.NotNil(t, u)

			assert.Equal(t, tc.unit.Version, u.Version)
			assert.Equal(t, uint64(0x40), u.AbbrevOffset)
			assert.Equal(t, tc.unit.AddrSize, u.AddrSize)
			assert.Equal(t, tc.unit.Format64, u.Is64())
			assert.Equal(t, tc.data, u.DataOffset())
			assert.Equal(t, uint64(len(info)), u.NextOffset())

			enc := u.Encoding()
			assert.Equal(t, int(tc.unit.AddrSize), enc.AddrSize)
			c := u.Cursor()
			assert.Equal(t, body, c.Bytes())

			u, err = it.Next()
			assert.NoError(t, err)
			assert.Nil(t, u)
		})
	}
}

func TestTypeUnitHeader(t *testing.T) {
	le := binary.LittleEndian

	v4 := fixture.Unit{Version: 4, AddrSize: 8, TypeUnit: true, Signature: 0xfeedface, TypeOffset: 0x17}.Encode(le)
	u, err := NewTypeUnitIterator(v4, le).Next()
	require.NoError(t, err)
	assert.True(t, u.IsTypeUnit())
	assert.Equal(t, uint64(0xfeedface), u.Signature)
	assert.Equal(t, uint64(0x17), u.TypeOffset)

	v5 := fixture.Unit{Version: 5, UnitType: uint8(UTType), AddrSize: 8, TypeUnit: true, Signature: 0xabc, TypeOffset: 0x20}.Encode(le)
	u, err = NewUnitIterator(v5, le).Next()
	require.NoError(t, err)
	assert.True(t, u.IsTypeUnit())
	assert.Equal(t, UTType, u.Type)
	assert.Equal(t, uint64(0xabc), u.Signature)
}

func TestUnitIteratorErrors(t *testing.T) {
	le := binary.LittleEndian
	good := fixture.Unit{Version: 4, AddrSize: 8, Body: []byte{0}}.Encode(le)

	t.Run("bad version is skipped", func(t *testing.T) {
		bad := fixture.Unit{Version: 7, AddrSize: 8, Body: []byte{0}}.Encode(le)
		info := append(append([]byte(nil), bad...), good...)

		it := NewUnitIterator(info, le)
		_, err := it.Next()
		require.ErrorIs(t, err, ErrUnsupportedVersion)
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, SectionInfo, de.Section)
		assert.Equal(t, uint64(0), de.Offset)
		assert.NoError(t, it.Err())

		u, err := it.Next()
		require.NoError(t, err)
		assert.Equal(t, uint64(len(bad)), u.Offset)
	})

	t.Run("reserved length stops", func(t *testing.T) {
		info := append(fixture.NewBuf(le).U32(0xfffffff5).Bytes(), good...)
		it := NewUnitIterator(info, le)
		_, err := it.Next()
		require.ErrorIs(t, err, ErrBadInitialLength)
		assert.ErrorIs(t, it.Err(), ErrBadInitialLength)
		_, err = it.Next()
		assert.ErrorIs(t, err, ErrBadInitialLength)
	})

	t.Run("overlong unit", func(t *testing.T) {
		info := fixture.NewBuf(le).U32(100).U16(4).Bytes()
		_, err := NewUnitIterator(info, le).Next()
		assert.ErrorIs(t, err, ErrOutOfData)
	})

	t.Run("truncated header", func(t *testing.T) {
		info := fixture.NewBuf(le).U32(3).U16(4).U8(0).Bytes()
		_, err := NewUnitIterator(info, le).Next()
		assert.ErrorIs(t, err, ErrOutOfData)
	})
}
