package mpeg2video

import "github.com/zsiec/framecore/internal/dict"

// FlowDef describes the video parameters carried by the framer's output
// flow definition. It is rebuilt from scratch every time the cached
// sequence parameters change.
type FlowDef struct {
	Def string // e.g. "block.mpeg2video.pic.planar8_420."

	HSize, VSize       int
	VisHSize, VisVSize int
	HasVisibleSize     bool

	Aspect dict.Rat
	FPS    dict.Rat

	OctetRate uint64
	CPBBuffer uint64

	Progressive bool
	LowDelay    bool

	HasProfileLevel bool
	ProfileLevel    uint8
	MaxOctetRate    uint64
}

// planeDef returns the flow-definition suffix for a chroma_format code, and
// false if the code is not 4:2:0, 4:2:2 or 4:4:4.
func planeDef(chroma uint8) (suffix string, ok bool) {
	switch chroma {
	case chroma420:
		return "pic.planar8_420.", true
	case chroma422:
		return "pic.planar8_422.", true
	case chroma444:
		return "pic.planar8_444.", true
	default:
		return "", false
	}
}

// aspectRatio derives the pixel aspect ratio from the sequence header's
// aspect_ratio_information code and the (possibly SEQX-widened) picture
// dimensions.
func aspectRatio(code uint8, hsize, vsize int) (dict.Rat, bool) {
	switch code {
	case aspectSquare:
		return dict.Rat{Num: 1, Den: 1}, true
	case aspect4x3:
		return dict.Rat{Num: int64(vsize) * 4, Den: int64(hsize) * 3}.Simplify(), true
	case aspect16x9:
		return dict.Rat{Num: int64(vsize) * 16, Den: int64(hsize) * 9}.Simplify(), true
	case aspect2_21:
		return dict.Rat{Num: int64(vsize) * 221, Den: int64(hsize) * 100}.Simplify(), true
	default:
		return dict.Rat{}, false
	}
}

// maxOctetRateForLevel returns the maximum octet rate permitted by a
// profile_and_level_indication level code, per the SEQX profile/level
// table.
func maxOctetRateForLevel(level uint8) (uint64, bool) {
	switch level {
	case levelLow:
		return 4_000_000 / 8, true
	case levelMain:
		return 15_000_000 / 8, true
	case levelHigh1440:
		return 60_000_000 / 8, true
	case levelHigh:
		return 80_000_000 / 8, true
	default:
		return 0, false
	}
}
