package mpeg2video

import "github.com/zsiec/framecore/internal/dict"

// MPEG-2 video start codes, always preceded by the 00 00 01 prefix.
const (
	startCodeSeq   = 0xB3
	startCodeGOP   = 0xB8
	startCodePic   = 0x00
	startCodeSlice = 0x01 // first slice code; slices run through sliceLast
	sliceLast      = 0xAF
	startCodeExt   = 0xB5
	startCodeEnd   = 0xB7
)

// Extension start code identifiers, carried in the 4 bits following an
// extension start code.
const (
	extIDSequence        = 0x1
	extIDSequenceDisplay = 0x2
	extIDPictureCoding   = 0x8
)

// Fixed header sizes, start code included, derived from the standard
// MPEG-2 bitstream field widths for the subset of each header this framer
// reads.
const (
	seqHeaderSize    = 12 // 4 start code + 64 bits of fixed sequence_header fields
	seqExtSize       = 10 // 4 start code + 48 bits of sequence_extension fields
	seqDisplaySize   = 9  // 4 start code + 40 bits (byte-aligned) base fields
	seqDisplayColor  = 3  // extra bytes when colour_description is set
	gopHeaderSize    = 8  // 4 start code + 32 bits (byte-aligned) GOP fields
	picHeaderSize    = 8  // 4 start code + 32 bits (byte-aligned) picture fields
	picExtSize       = 9  // 4 start code + 40 bits (byte-aligned) extension fields
	quantMatrixBytes = 64
)

// Picture coding types.
const (
	picTypeI = 1
	picTypeP = 2
	picTypeB = 3
)

// Picture structure codes from the picture coding extension.
const (
	structureTop    = 1
	structureBottom = 2
	structureFrame  = 3
)

// Aspect ratio information codes.
const (
	aspectSquare = 1
	aspect4x3    = 2
	aspect16x9   = 3
	aspect2_21   = 4
)

// Chroma format codes carried in the sequence extension.
const (
	chroma420 = 1
	chroma422 = 2
	chroma444 = 3
)

// Level codes, masked out of profile_and_level_indication.
const (
	levelMask     = 0x0F
	levelLow      = 0xA
	levelMain     = 0x8
	levelHigh1440 = 0x6
	levelHigh     = 0x4
)

// frameRateFromCode is the 16-entry frame-rate table indexed by
// frame_rate_code. Entries 0, 14 and 15 are invalid; 9-13 are legacy
// encoder values (Xing, libmpeg3) accepted for robustness.
var frameRateFromCode = [16]dict.Rat{
	{Num: 0, Den: 0},
	{Num: 24000, Den: 1001},
	{Num: 24, Den: 1},
	{Num: 25, Den: 1},
	{Num: 30000, Den: 1001},
	{Num: 30, Den: 1},
	{Num: 50, Den: 1},
	{Num: 60000, Den: 1001},
	{Num: 60, Den: 1},
	{Num: 15000, Den: 1001},
	{Num: 5000, Den: 1001},
	{Num: 10000, Den: 1001},
	{Num: 12000, Den: 1001},
	{Num: 15000, Den: 1001},
	{Num: 0, Den: 0},
	{Num: 0, Den: 0},
}

const expectedFlowDefPrefix = "block.mpeg2video."
