package mpeg2video

import "bytes"

// sequenceHeader holds the fields this framer reads out of a
// sequence_header(), plus the raw bytes (start code included, quantiser
// matrices included) so two sequence headers can be compared for byte
// equality.
type sequenceHeader struct {
	hSize, vSize  int
	aspect        uint8
	frameRateCode uint8
	bitRate       uint64
	vbvBuffer     uint64
	length        int
	loadIntra     bool
	loadNonIntra  bool
	raw           []byte
}

// parseSequenceHeaderFixed parses the fixed 8-byte field region of a
// sequence_header() (buf must hold at least seqHeaderSize bytes: start code
// plus fields; anything after them is ignored). The returned length
// already accounts for the quantiser matrices flagged within it; raw is
// left unset, for the caller to fill once it has checked that length bytes
// are available.
func parseSequenceHeaderFixed(buf []byte) (sequenceHeader, error) {
	if len(buf) < seqHeaderSize {
		return sequenceHeader{}, structuralf("sequence header", "short buffer: %d bytes", len(buf))
	}
	br := newBitReader(buf[4:])
	h, err1 := br.readBits(12)
	v, err2 := br.readBits(12)
	aspect, err3 := br.readBits(4)
	frCode, err4 := br.readBits(4)
	bitRate, err5 := br.readBits(18)
	if err := firstErr(err1, err2, err3, err4, err5); err != nil {
		return sequenceHeader{}, structuralf("sequence header", "%w", err)
	}
	if err := br.skipBits(1); err != nil { // marker_bit
		return sequenceHeader{}, structuralf("sequence header", "%w", err)
	}
	vbv, err := br.readBits(10)
	if err != nil {
		return sequenceHeader{}, structuralf("sequence header", "%w", err)
	}
	if err := br.skipBits(1); err != nil { // constrained_parameters_flag
		return sequenceHeader{}, structuralf("sequence header", "%w", err)
	}
	loadIntra, err := br.readBits(1)
	if err != nil {
		return sequenceHeader{}, structuralf("sequence header", "%w", err)
	}
	loadNonIntra, err := br.readBits(1)
	if err != nil {
		return sequenceHeader{}, structuralf("sequence header", "%w", err)
	}

	length := seqHeaderSize
	if loadIntra == 1 {
		length += quantMatrixBytes
	}
	if loadNonIntra == 1 {
		length += quantMatrixBytes
	}

	return sequenceHeader{
		hSize:         int(h),
		vSize:         int(v),
		aspect:        uint8(aspect),
		frameRateCode: uint8(frCode),
		bitRate:       uint64(bitRate),
		vbvBuffer:     uint64(vbv),
		length:        length,
		loadIntra:     loadIntra == 1,
		loadNonIntra:  loadNonIntra == 1,
	}, nil
}

// sequenceExtension holds the fields read out of a sequence_extension().
type sequenceExtension struct {
	profileLevel        uint8
	progressiveSequence bool
	chromaFormat        uint8
	hSizeExt, vSizeExt  uint8
	lowDelay            bool
	frameRateExtN       uint8
	frameRateExtD       uint8
	raw                 []byte
}

// parseSequenceExtension parses a full sequence_extension() buffer,
// exactly seqExtSize bytes (start code included). The extension identifier
// nibble is returned separately so the caller can verify it is
// extIDSequence before trusting the rest.
func parseSequenceExtension(buf []byte) (extID uint8, ext sequenceExtension, err error) {
	if len(buf) < seqExtSize {
		return 0, sequenceExtension{}, structuralf("sequence extension", "short buffer: %d bytes", len(buf))
	}
	br := newBitReader(buf[4:])
	id, e1 := br.readBits(4)
	profileLevel, e2 := br.readBits(8)
	progressive, e3 := br.readBits(1)
	chroma, e4 := br.readBits(2)
	hExt, e5 := br.readBits(2)
	vExt, e6 := br.readBits(2)
	if err := firstErr(e1, e2, e3, e4, e5, e6); err != nil {
		return 0, sequenceExtension{}, structuralf("sequence extension", "%w", err)
	}
	if err := br.skipBits(12); err != nil { // bit_rate_extension
		return 0, sequenceExtension{}, structuralf("sequence extension", "%w", err)
	}
	if err := br.skipBits(1); err != nil { // marker_bit
		return 0, sequenceExtension{}, structuralf("sequence extension", "%w", err)
	}
	if err := br.skipBits(8); err != nil { // vbv_buffer_size_extension
		return 0, sequenceExtension{}, structuralf("sequence extension", "%w", err)
	}
	lowDelay, e7 := br.readBits(1)
	frExtN, e8 := br.readBits(2)
	frExtD, e9 := br.readBits(5)
	if err := firstErr(e7, e8, e9); err != nil {
		return 0, sequenceExtension{}, structuralf("sequence extension", "%w", err)
	}

	return uint8(id), sequenceExtension{
		profileLevel:        uint8(profileLevel),
		progressiveSequence: progressive == 1,
		chromaFormat:        uint8(chroma),
		hSizeExt:            uint8(hExt),
		vSizeExt:            uint8(vExt),
		lowDelay:            lowDelay == 1,
		frameRateExtN:       uint8(frExtN),
		frameRateExtD:       uint8(frExtD),
	}, nil
}

// sequenceDisplay holds the fields read out of a
// sequence_display_extension().
type sequenceDisplay struct {
	visHSize, visVSize int
	raw                []byte
}

// peekSequenceDisplayColor reports whether the colour_description flag is
// set, given only the byte immediately following the extension start code
// (buf must have length >= 5: start code + that one byte).
func peekSequenceDisplayColor(buf []byte) (extID uint8, hasColor bool, err error) {
	if len(buf) < 5 {
		return 0, false, structuralf("sequence display extension", "short buffer: %d bytes", len(buf))
	}
	extID = buf[4] >> 4
	hasColor = buf[4]&0x01 != 0
	return extID, hasColor, nil
}

// parseSequenceDisplay parses a full sequence_display_extension() buffer
// (start code included), whose length is seqDisplaySize plus
// seqDisplayColor if hasColor.
func parseSequenceDisplay(buf []byte, hasColor bool) (sequenceDisplay, error) {
	want := seqDisplaySize
	if hasColor {
		want += seqDisplayColor
	}
	if len(buf) < want {
		return sequenceDisplay{}, structuralf("sequence display extension", "short buffer: %d bytes", len(buf))
	}
	br := newBitReader(buf[4:])
	if err := br.skipBits(4 + 3 + 1); err != nil { // ext id, video_format, colour_description
		return sequenceDisplay{}, structuralf("sequence display extension", "%w", err)
	}
	if hasColor {
		if err := br.skipBits(8 + 8 + 8); err != nil {
			return sequenceDisplay{}, structuralf("sequence display extension", "%w", err)
		}
	}
	dh, e1 := br.readBits(14)
	if e1 != nil {
		return sequenceDisplay{}, structuralf("sequence display extension", "%w", e1)
	}
	if err := br.skipBits(1); err != nil { // marker_bit
		return sequenceDisplay{}, structuralf("sequence display extension", "%w", err)
	}
	dv, e2 := br.readBits(14)
	if e2 != nil {
		return sequenceDisplay{}, structuralf("sequence display extension", "%w", e2)
	}
	return sequenceDisplay{visHSize: int(dh), visVSize: int(dv)}, nil
}

// cachedSequence bundles the three raw buffers whose byte equality decides
// whether the output flow definition needs re-deriving.
type cachedSequence struct {
	header  []byte
	ext     []byte
	display []byte
}

func (c *cachedSequence) equal(header, ext, display []byte) bool {
	return bytes.Equal(c.header, header) && bytes.Equal(c.ext, ext) && bytes.Equal(c.display, display)
}

// deriveFlowDef builds the output FlowDef from a parsed sequence header,
// its optional extension, and its optional display extension. inputDef is
// not used: Def is always expectedFlowDefPrefix followed by the chroma
// suffix, and nothing else from the input flow definition is carried over.
func deriveFlowDef(inputDef string, hdr sequenceHeader, ext *sequenceExtension, disp *sequenceDisplay) (*FlowDef, error) {
	hsize, vsize := hdr.hSize, hdr.vSize
	if ext != nil {
		hsize |= int(ext.hSizeExt) << 12
		vsize |= int(ext.vSizeExt) << 12
	}

	aspect, ok := aspectRatio(hdr.aspect, hsize, vsize)
	if !ok {
		return nil, structuralf("aspect ratio", "invalid aspect ratio code %d", hdr.aspect)
	}

	if int(hdr.frameRateCode) >= len(frameRateFromCode) {
		return nil, structuralf("frame rate", "invalid frame rate code %d", hdr.frameRateCode)
	}
	fps := frameRateFromCode[hdr.frameRateCode]
	if fps.Num == 0 {
		return nil, structuralf("frame rate", "unrecognized frame rate code %d", hdr.frameRateCode)
	}

	progressive := false
	var maxOctetRate uint64
	hasProfileLevel := false
	var profileLevel uint8
	lowDelay := false
	chroma := uint8(chroma420)

	if ext != nil {
		progressive = ext.progressiveSequence
		lowDelay = ext.lowDelay
		hasProfileLevel = true
		profileLevel = ext.profileLevel
		chroma = ext.chromaFormat

		fps.Num *= int64(ext.frameRateExtN) + 1
		fps.Den *= int64(ext.frameRateExtD) + 1
		fps = fps.Simplify()

		level := ext.profileLevel & levelMask
		rate, ok := maxOctetRateForLevel(level)
		if !ok {
			return nil, structuralf("level", "invalid level code %d", level)
		}
		maxOctetRate = rate
	}

	suffix, ok := planeDef(chroma)
	if !ok {
		return nil, structuralf("chroma format", "invalid chroma format %d", chroma)
	}

	fd := &FlowDef{
		Def:             expectedFlowDefPrefix + suffix,
		HSize:           hsize,
		VSize:           vsize,
		Aspect:          aspect,
		FPS:             fps,
		OctetRate:       hdr.bitRate * 400 / 8,
		CPBBuffer:       hdr.vbvBuffer * 16 * 1024 / 8,
		Progressive:     progressive,
		LowDelay:        lowDelay,
		HasProfileLevel: hasProfileLevel,
		ProfileLevel:    profileLevel,
		MaxOctetRate:    maxOctetRate,
	}
	_ = inputDef
	if disp != nil {
		fd.HasVisibleSize = true
		fd.VisHSize = disp.visHSize
		fd.VisVSize = disp.visVSize
	}
	return fd, nil
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
