package dwarf

import (
	godwarf "debug/dwarf"
	"fmt"
	"math"
)

// Section names
const (
	SectionAbbrev   = ".debug_abbrev"
	SectionAddr     = ".debug_addr"
	SectionAranges  = ".debug_aranges"
	SectionFrame    = ".debug_frame"
	SectionInfo     = ".debug_info"
	SectionLine     = ".debug_line"
	SectionLineStr  = ".debug_line_str"
	SectionLoc      = ".debug_loc"
	SectionLoclists = ".debug_loclists"
	SectionMacinfo  = ".debug_macinfo"
	SectionMacro    = ".debug_macro"
	SectionNames    = ".debug_names"
	SectionPubnames = ".debug_pubnames"
	SectionPubtypes = ".debug_pubtypes"
	SectionRanges   = ".debug_ranges"
	SectionRnglists = ".debug_rnglists"
	SectionStr      = ".debug_str"
	SectionStrOffs  = ".debug_str_offsets"
	SectionSup      = ".debug_sup"
	SectionTypes    = ".debug_types"
)

// knownSections are picked up from the ELF file when present.
var knownSections = []string{
	SectionAbbrev, SectionAddr, SectionAranges, SectionFrame, SectionInfo,
	SectionLine, SectionLineStr, SectionLoc, SectionLoclists, SectionMacinfo,
	SectionMacro, SectionNames, SectionPubnames, SectionPubtypes, SectionRanges,
	SectionRnglists, SectionStr, SectionStrOffs, SectionSup, SectionTypes,
}

// Tag DIE tag, DW_TAG_*
type Tag uint64

const (
	TagArrayType         Tag = 0x01
	TagFormalParameter   Tag = 0x05
	TagLexicalBlock      Tag = 0x0b
	TagMember            Tag = 0x0d
	TagPointerType       Tag = 0x0f
	TagCompileUnit       Tag = 0x11
	TagStructType        Tag = 0x13
	TagTypedef           Tag = 0x16
	TagInlinedSubroutine Tag = 0x1d
	TagBaseType          Tag = 0x24
	TagSubprogram        Tag = 0x2e
	TagVariable          Tag = 0x34
	TagPartialUnit       Tag = 0x3c
	TagTypeUnit          Tag = 0x41
	TagSkeletonUnit      Tag = 0x4a
)

// names come from the standard library tables
func (t Tag) String() string {
	if t <= math.MaxUint32 {
		return godwarf.Tag(t).String()
	}
	return fmt.Sprintf("Tag(%d)", uint64(t))
}

// Attr attribute name, DW_AT_*
type Attr uint64

const (
	AttrSibling     Attr = 0x01
	AttrLocation    Attr = 0x02
	AttrName        Attr = 0x03
	AttrByteSize    Attr = 0x0b
	AttrStmtList    Attr = 0x10
	AttrLowpc       Attr = 0x11
	AttrHighpc      Attr = 0x12
	AttrLanguage    Attr = 0x13
	AttrCompDir     Attr = 0x1b
	AttrConstValue  Attr = 0x1c
	AttrProducer    Attr = 0x25
	AttrDeclFile    Attr = 0x3a
	AttrDeclLine    Attr = 0x3b
	AttrDeclaration Attr = 0x3c
	AttrExternal    Attr = 0x3f
	AttrFrameBase   Attr = 0x40
	AttrType        Attr = 0x49
	AttrRanges      Attr = 0x55
	AttrLinkageName Attr = 0x6e

	AttrStrOffsetsBase Attr = 0x72
	AttrAddrBase       Attr = 0x73
)

func (a Attr) String() string {
	if a <= math.MaxUint32 {
		return godwarf.Attr(a).String()
	}
	return fmt.Sprintf("Attr(%d)", uint64(a))
}

// Form attribute value encoding, DW_FORM_*
type Form uint64

const (
	FormAddr        Form = 0x01
	FormBlock2      Form = 0x03
	FormBlock4      Form = 0x04
	FormData2       Form = 0x05
	FormData4       Form = 0x06
	FormData8       Form = 0x07
	FormString      Form = 0x08
	FormBlock       Form = 0x09
	FormBlock1      Form = 0x0a
	FormData1       Form = 0x0b
	FormFlag        Form = 0x0c
	FormSdata       Form = 0x0d
	FormStrp        Form = 0x0e
	FormUdata       Form = 0x0f
	FormRefAddr     Form = 0x10
	FormRef1        Form = 0x11
	FormRef2        Form = 0x12
	FormRef4        Form = 0x13
	FormRef8        Form = 0x14
	FormRefUdata    Form = 0x15
	FormIndirect    Form = 0x16
	FormSecOffset   Form = 0x17
	FormExprloc     Form = 0x18
	FormFlagPresent Form = 0x19
	FormRefSig8     Form = 0x20

	// DWARF 5
	FormStrx          Form = 0x1a
	FormAddrx         Form = 0x1b
	FormRefSup4       Form = 0x1c
	FormStrpSup       Form = 0x1d
	FormData16        Form = 0x1e
	FormLineStrp      Form = 0x1f
	FormImplicitConst Form = 0x21
	FormLoclistx      Form = 0x22
	FormRnglistx      Form = 0x23
	FormRefSup8       Form = 0x24
	FormStrx1         Form = 0x25
	FormStrx2         Form = 0x26
	FormStrx3         Form = 0x27
	FormStrx4         Form = 0x28
	FormAddrx1        Form = 0x29
	FormAddrx2        Form = 0x2a
	FormAddrx3        Form = 0x2b
	FormAddrx4        Form = 0x2c
)

var formNames = map[Form]string{
	FormAddr:          "DW_FORM_addr",
	FormBlock2:        "DW_FORM_block2",
	FormBlock4:        "DW_FORM_block4",
	FormData2:         "DW_FORM_data2",
	FormData4:         "DW_FORM_data4",
	FormData8:         "DW_FORM_data8",
	FormString:        "DW_FORM_string",
	FormBlock:         "DW_FORM_block",
	FormBlock1:        "DW_FORM_block1",
	FormData1:         "DW_FORM_data1",
	FormFlag:          "DW_FORM_flag",
	FormSdata:         "DW_FORM_sdata",
	FormStrp:          "DW_FORM_strp",
	FormUdata:         "DW_FORM_udata",
	FormRefAddr:       "DW_FORM_ref_addr",
	FormRef1:          "DW_FORM_ref1",
	FormRef2:          "DW_FORM_ref2",
	FormRef4:          "DW_FORM_ref4",
	FormRef8:          "DW_FORM_ref8",
	FormRefUdata:      "DW_FORM_ref_udata",
	FormIndirect:      "DW_FORM_indirect",
	FormSecOffset:     "DW_FORM_sec_offset",
	FormExprloc:       "DW_FORM_exprloc",
	FormFlagPresent:   "DW_FORM_flag_present",
	FormRefSig8:       "DW_FORM_ref_sig8",
	FormStrx:          "DW_FORM_strx",
	FormAddrx:         "DW_FORM_addrx",
	FormRefSup4:       "DW_FORM_ref_sup4",
	FormStrpSup:       "DW_FORM_strp_sup",
	FormData16:        "DW_FORM_data16",
	FormLineStrp:      "DW_FORM_line_strp",
	FormImplicitConst: "DW_FORM_implicit_const",
	FormLoclistx:      "DW_FORM_loclistx",
	FormRnglistx:      "DW_FORM_rnglistx",
	FormRefSup8:       "DW_FORM_ref_sup8",
	FormStrx1:         "DW_FORM_strx1",
	FormStrx2:         "DW_FORM_strx2",
	FormStrx3:         "DW_FORM_strx3",
	FormStrx4:         "DW_FORM_strx4",
	FormAddrx1:        "DW_FORM_addrx1",
	FormAddrx2:        "DW_FORM_addrx2",
	FormAddrx3:        "DW_FORM_addrx3",
	FormAddrx4:        "DW_FORM_addrx4",
}

func (f Form) String() string {
	if s, ok := formNames[f]; ok {
		return s
	}
	return fmt.Sprintf("DW_FORM_%#x", uint64(f))
}

// v5Only forms are rejected in units older than version 5.
func (f Form) v5Only() bool {
	return f >= FormStrx && f <= FormAddrx4 && f != FormRefSig8
}

// UnitType DW_UT_*, explicit in version 5 headers
type UnitType uint8

const (
	UTCompile      UnitType = 0x01
	UTType         UnitType = 0x02
	UTPartial      UnitType = 0x03
	UTSkeleton     UnitType = 0x04
	UTSplitCompile UnitType = 0x05
	UTSplitType    UnitType = 0x06
)

func (t UnitType) String() string {
	switch t {
	case UTCompile:
		return "compile"
	case UTType:
		return "type"
	case UTPartial:
		return "partial"
	case UTSkeleton:
		return "skeleton"
	case UTSplitCompile:
		return "split_compile"
	case UTSplitType:
		return "split_type"
	}
	return fmt.Sprintf("UnitType(%d)", uint8(t))
}
