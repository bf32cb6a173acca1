package dwarf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/dwarfy/internal/fixture"
)

// decodeOne builds a unit holding one entry of the given forms and decodes
// it.
func decodeOne(t *testing.T, u fixture.Unit, order binary.ByteOrder, attrs []fixture.AttrSpec, values []byte) (*Entry, error) {
	t.Helper()
	abbrev := fixture.AbbrevTable(fixture.Abbrev{Code: 1, Tag: uint64(TagVariable), Attrs: attrs})
	u.Body = append(fixture.NewBuf(order).ULEB(1).Bytes(), values...)
	info := u.Encode(order)

	unit, err := NewUnitIterator(info, order).Next()
	require.NoError(t, err)
	it := NewEntryIterator(unit, NewAbbrevCache(abbrev, nil))
	e, err := it.Next()
	if err != nil {
		return nil, err
	}
	assert.True(t, it.c.Empty(), "entry left %d bytes", it.c.Len())
	return e, nil
}

func TestFormByteConsumption(t *testing.T) {
	le := binary.LittleEndian
	v4 := fixture.Unit{Version: 4, AddrSize: 8}

	cases := []struct {
		name   string
		unit   fixture.Unit
		form   Form
		values []byte
		raw    []byte
	}{
		{"addr8", v4, FormAddr, []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{"addr4", fixture.Unit{Version: 4, AddrSize: 4}, FormAddr, []byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}},
		{"block2", v4, FormBlock2, []byte{2, 0, 0xaa, 0xbb}, []byte{0xaa, 0xbb}},
		{"block4", v4, FormBlock4, []byte{1, 0, 0, 0, 0xcc}, []byte{0xcc}},
		{"data1", v4, FormData1, []byte{0x7f}, []byte{0x7f}},
		{"data2", v4, FormData2, []byte{1, 2}, []byte{1, 2}},
		{"data4", v4, FormData4, []byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}},
		{"data8", v4, FormData8, []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{"string", v4, FormString, []byte("a.c\x00"), []byte("a.c\x00")},
		{"block", v4, FormBlock, []byte{3, 9, 8, 7}, []byte{9, 8, 7}},
		{"exprloc", v4, FormExprloc, []byte{1, 0x9c}, []byte{0x9c}},
		{"block1", v4, FormBlock1, []byte{0}, []byte{}},
		{"flag", v4, FormFlag, []byte{1}, []byte{1}},
		{"sdata", v4, FormSdata, []byte{0xc0, 0xbb, 0x78}, []byte{0xc0, 0xbb, 0x78}},
		{"udata", v4, FormUdata, []byte{0xe5, 0x8e, 0x26}, []byte{0xe5, 0x8e, 0x26}},
		{"ref_udata", v4, FormRefUdata, []byte{0x05}, []byte{0x05}},
		{"strp", v4, FormStrp, []byte{4, 0, 0, 0}, []byte{4, 0, 0, 0}},
		{"strp64", fixture.Unit{Version: 4, Format64: true, AddrSize: 8}, FormStrp,
			[]byte{4, 0, 0, 0, 0, 0, 0, 0}, []byte{4, 0, 0, 0, 0, 0, 0, 0}},
		{"sec_offset", v4, FormSecOffset, []byte{1, 0, 0, 0}, []byte{1, 0, 0, 0}},
		{"ref_addr", v4, FormRefAddr, []byte{1, 0, 0, 0}, []byte{1, 0, 0, 0}},
		{"ref_addr v2", fixture.Unit{Version: 2, AddrSize: 8}, FormRefAddr,
			[]byte{1, 0, 0, 0, 0, 0, 0, 0}, []byte{1, 0, 0, 0, 0, 0, 0, 0}},
		{"ref1", v4, FormRef1, []byte{1}, []byte{1}},
		{"ref2", v4, FormRef2, []byte{1, 0}, []byte{1, 0}},
		{"ref4", v4, FormRef4, []byte{1, 0, 0, 0}, []byte{1, 0, 0, 0}},
		{"ref8", v4, FormRef8, []byte{1, 0, 0, 0, 0, 0, 0, 0}, []byte{1, 0, 0, 0, 0, 0, 0, 0}},
		{"flag_present", v4, FormFlagPresent, nil, []byte{}},
		{"ref_sig8", v4, FormRefSig8, []byte{8, 7, 6, 5, 4, 3, 2, 1}, []byte{8, 7, 6, 5, 4, 3, 2, 1}},
		{"indirect", v4, FormIndirect, []byte{byte(FormData2), 0x34, 0x12}, []byte{0x34, 0x12}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attrs := []fixture.AttrSpec{{Attr: uint64(AttrConstValue), Form: uint64(tc.form)}}
			e, err := decodeOne(t, tc.unit, le, attrs, tc.values)
			require.NoError(t, err)
			require.Len(t, e.Fields, 1)
			assert.Equal(t, AttrConstValue, e.Fields[0].Attr)
			assert.Equal(t, tc.raw, e.Fields[0].Raw)
		})
	}
}

func TestIndirectResolvesForm(t *testing.T) {
	attrs := []fixture.AttrSpec{{Attr: uint64(AttrName), Form: uint64(FormIndirect)}}
	e, err := decodeOne(t, fixture.Unit{Version: 4, AddrSize: 8}, binary.LittleEndian, attrs,
		append([]byte{byte(FormString)}, "x.c\x00"...))
	require.NoError(t, err)
	assert.Equal(t, FormString, e.Fields[0].Form)
	s, err := e.Fields[0].InlineString()
	require.NoError(t, err)
	assert.Equal(t, "x.c", s)
}

func TestFormErrors(t *testing.T) {
	le := binary.LittleEndian
	v4 := fixture.Unit{Version: 4, AddrSize: 8}
	one := func(f Form) []fixture.AttrSpec {
		return []fixture.AttrSpec{{Attr: uint64(AttrConstValue), Form: uint64(f)}}
	}

	_, err := decodeOne(t, v4, le, one(Form(0x7f)), []byte{0})
	assert.ErrorIs(t, err, ErrUnknownForm)

	_, err = decodeOne(t, v4, le, one(FormIndirect), []byte{byte(FormIndirect), byte(FormData1), 0})
	assert.ErrorIs(t, err, ErrNestedIndirect)

	_, err = decodeOne(t, v4, le, one(FormIndirect), []byte{0x7f})
	assert.ErrorIs(t, err, ErrUnknownForm)

	// version 5 forms are unknown to older units
	for _, f := range []Form{FormStrx1, FormData16, FormLineStrp, FormAddrx, FormImplicitConst} {
		_, err = decodeOne(t, v4, le, one(f), []byte{0})
		assert.ErrorIs(t, err, ErrUnknownForm, f.String())
	}

	_, err = decodeOne(t, v4, le, one(FormData4), []byte{1, 2})
	assert.ErrorIs(t, err, ErrOutOfData)

	_, err = decodeOne(t, v4, le, one(FormBlock), []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	assert.ErrorIs(t, err, ErrLeb128Overflow)

	_, err = decodeOne(t, v4, le, one(FormBlock), []byte{0xff, 0xff, 0x03})
	assert.ErrorIs(t, err, ErrOutOfData)

	_, err = decodeOne(t, v4, le, one(FormString), []byte("no terminator"))
	assert.ErrorIs(t, err, ErrOutOfData)
}

func TestVersion5Forms(t *testing.T) {
	le := binary.LittleEndian
	v5 := fixture.Unit{Version: 5, UnitType: uint8(UTCompile), AddrSize: 8}

	attrs := []fixture.AttrSpec{
		{Attr: uint64(AttrName), Form: uint64(FormStrx1)},
		{Attr: uint64(AttrProducer), Form: uint64(FormStrx3)},
		{Attr: uint64(AttrLowpc), Form: uint64(FormAddrx)},
		{Attr: uint64(AttrConstValue), Form: uint64(FormData16)},
		{Attr: uint64(AttrDeclLine), Form: uint64(FormImplicitConst), Const: 42},
		{Attr: uint64(AttrCompDir), Form: uint64(FormLineStrp)},
	}
	values := fixture.NewBuf(le).
		U8(2).
		Raw(0x01, 0x02, 0x03).
		ULEB(300).
		Raw(make([]byte, 16)...).
		U32(0x10).
		Bytes()

	e, err := decodeOne(t, v5, le, attrs, values)
	require.NoError(t, err)
	require.Len(t, e.Fields, 6)

	v, err := e.Fields[0].Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
	assert.Equal(t, ClassStrIndex, e.Fields[0].Class())

	v, err = e.Fields[1].Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x030201), v)

	v, err = e.Fields[2].Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), v)

	b, err := e.Fields[3].Block()
	require.NoError(t, err)
	assert.Len(t, b, 16)

	n, err := e.Fields[4].Int()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Empty(t, e.Fields[4].Raw)

	v, err = e.Fields[5].Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10), v)
}

func TestFieldAccessors(t *testing.T) {
	be := binary.BigEndian
	attrs := []fixture.AttrSpec{
		{Attr: uint64(AttrByteSize), Form: uint64(FormData2)},
		{Attr: uint64(AttrConstValue), Form: uint64(FormData1)},
		{Attr: uint64(AttrDeclLine), Form: uint64(FormSdata)},
		{Attr: uint64(AttrType), Form: uint64(FormRef4)},
		{Attr: uint64(AttrExternal), Form: uint64(FormFlagPresent)},
		{Attr: uint64(AttrDeclaration), Form: uint64(FormFlag)},
		{Attr: uint64(AttrLocation), Form: uint64(FormExprloc)},
	}
	values := fixture.NewBuf(be).
		U16(0x0102).
		U8(0xff).
		SLEB(-123456).
		U32(0x2a).
		U8(0).
		ULEB(2).Raw(0x91, 0x7c).
		Bytes()

	e, err := decodeOne(t, fixture.Unit{Version: 4, AddrSize: 8}, be, attrs, values)
	require.NoError(t, err)

	f, ok := e.Field(AttrByteSize)
	require.True(t, ok)
	v, err := f.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102), v)

	f, _ = e.Field(AttrConstValue)
	n, err := f.Int()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)

	f, _ = e.Field(AttrDeclLine)
	n, err = f.Int()
	require.NoError(t, err)
	assert.Equal(t, int64(-123456), n)
	assert.Equal(t, int64(-123456), e.Val(AttrDeclLine))

	// unit-relative reference rebased on the unit at offset 0
	f, _ = e.Field(AttrType)
	ref, err := f.Ref()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2a), ref)

	assert.Equal(t, true, e.Val(AttrExternal))
	assert.Equal(t, false, e.Val(AttrDeclaration))
	assert.Equal(t, []byte{0x91, 0x7c}, e.Val(AttrLocation))
	assert.Nil(t, e.Val(AttrName))

	f, _ = e.Field(AttrLocation)
	_, err = f.Uint()
	assert.ErrorIs(t, err, ErrFormClass)
	_, err = f.InlineString()
	assert.ErrorIs(t, err, ErrFormClass)
}

func TestFieldWithShortPayload(t *testing.T) {
	_, err := (&Field{Attr: AttrExternal, Form: FormFlag}).Flag()
	assert.ErrorIs(t, err, ErrFormClass)
	_, err = (&Field{Attr: AttrExternal, Form: FormFlag, Raw: []byte{1, 0}}).Flag()
	assert.ErrorIs(t, err, ErrFormClass)

	ok, err := (&Field{Attr: AttrExternal, Form: FormFlagPresent}).Flag()
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = (&Field{Attr: AttrName, Form: FormStrx3, Raw: []byte{1}}).Uint()
	assert.ErrorIs(t, err, ErrFormClass)
}

func TestEntryIteratorDepth(t *testing.T) {
	le := binary.LittleEndian
	abbrev := fixture.AbbrevTable(
		fixture.Abbrev{Code: 1, Tag: uint64(TagCompileUnit), Children: true},
		fixture.Abbrev{Code: 2, Tag: uint64(TagSubprogram), Children: true, Attrs: []fixture.AttrSpec{
			{Attr: uint64(AttrSibling), Form: uint64(FormRef4)},
		}},
		fixture.Abbrev{Code: 3, Tag: uint64(TagVariable)},
	)

	// cu { sub { var var } var }
	const unitHeader = 11
	b := fixture.NewBuf(le).ULEB(1)
	subAt := unitHeader + b.Len()
	b.ULEB(2).U32(0) // patched below
	b.ULEB(3).ULEB(3).ULEB(0)
	sibling := unitHeader + b.Len()
	b.ULEB(3).ULEB(0)
	body := b.Bytes()
	le.PutUint32(body[subAt-unitHeader+1:], uint32(sibling))

	info := fixture.Unit{Version: 4, AddrSize: 8, Body: body}.Encode(le)
	u, err := NewUnitIterator(info, le).Next()
	require.NoError(t, err)
	cache := NewAbbrevCache(abbrev, nil)

	it := NewEntryIterator(u, cache)
	var tags []Tag
	var depths []int
	for {
		d := it.Depth()
		e, err := it.Next()
		require.NoError(t, err)
		if e == nil {
			break
		}
		if !e.IsNull() {
			tags = append(tags, e.Tag)
			depths = append(depths, d)
		}
	}
	assert.Equal(t, []Tag{TagCompileUnit, TagSubprogram, TagVariable, TagVariable, TagVariable}, tags)
	assert.Equal(t, []int{0, 1, 2, 2, 1}, depths)

	// skipping the subprogram's children lands on its sibling
	it = NewEntryIterator(u, cache)
	_, _ = it.Next()
	sub, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, TagSubprogram, sub.Tag)
	require.NoError(t, it.SkipChildren())
	assert.Equal(t, uint64(sibling), it.Offset())
	assert.Equal(t, 1, it.Depth())
	next, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, TagVariable, next.Tag)

	tree, err := BuildTree(NewEntryIterator(u, cache))
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 5)
	assert.Equal(t, []int{0}, tree.Roots())
	assert.Equal(t, []int{1, 4}, tree.Children(0))
	assert.Equal(t, []int{2, 3}, tree.Children(1))
	assert.Equal(t, 1, tree.Nodes[2].Parent)
	assert.Equal(t, 2, tree.Nodes[3].Depth)
	assert.Equal(t, None, tree.Nodes[4].NextSibling)
}

func TestEntryCodeNotFound(t *testing.T) {
	le := binary.LittleEndian
	abbrev := fixture.AbbrevTable(fixture.Abbrev{Code: 1, Tag: uint64(TagCompileUnit)})
	info := fixture.Unit{Version: 4, AddrSize: 8, Body: []byte{0, 5}}.Encode(le)
	u, err := NewUnitIterator(info, le).Next()
	require.NoError(t, err)

	it := NewEntryIterator(u, NewAbbrevCache(abbrev, nil))
	// code 0 is never looked up
	e, err := it.Next()
	require.NoError(t, err)
	assert.True(t, e.IsNull())

	_, err = it.Next()
	require.ErrorIs(t, err, ErrAbbrevCodeNotFound)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, uint64(12), de.Offset)
}
