package mpeg2video

// gopHeader holds the fields read out of a group_of_pictures_header().
type gopHeader struct {
	closedGOP  bool
	brokenLink bool
}

func parseGOPHeader(buf []byte) (gopHeader, error) {
	if len(buf) < gopHeaderSize {
		return gopHeader{}, structuralf("gop header", "short buffer: %d bytes", len(buf))
	}
	br := newBitReader(buf[4:])
	if err := br.skipBits(25); err != nil { // time_code
		return gopHeader{}, structuralf("gop header", "%w", err)
	}
	closed, e1 := br.readBits(1)
	broken, e2 := br.readBits(1)
	if err := firstErr(e1, e2); err != nil {
		return gopHeader{}, structuralf("gop header", "%w", err)
	}
	return gopHeader{closedGOP: closed == 1, brokenLink: broken == 1}, nil
}

// pictureHeader holds the fields read out of a picture_header().
// vbvDelay is 0xFFFF when the encoder signals "no bound".
type pictureHeader struct {
	temporalRef int
	codingType  uint8
	vbvDelay    uint16
}

func parsePictureHeader(buf []byte) (pictureHeader, error) {
	if len(buf) < picHeaderSize {
		return pictureHeader{}, structuralf("picture header", "short buffer: %d bytes", len(buf))
	}
	br := newBitReader(buf[4:])
	tr, e1 := br.readBits(10)
	ctype, e2 := br.readBits(3)
	vbv, e3 := br.readBits(16)
	if err := firstErr(e1, e2, e3); err != nil {
		return pictureHeader{}, structuralf("picture header", "%w", err)
	}
	return pictureHeader{temporalRef: int(tr), codingType: uint8(ctype), vbvDelay: uint16(vbv)}, nil
}

// pictureCodingExt holds the fields read out of a
// picture_coding_extension().
type pictureCodingExt struct {
	intraDCPrecision uint8
	structure        uint8
	topFieldFirst    bool
	repeatFirstField bool
	progressiveFrame bool
}

func parsePictureCodingExt(buf []byte) (extID uint8, ext pictureCodingExt, err error) {
	if len(buf) < picExtSize {
		return 0, pictureCodingExt{}, structuralf("picture coding extension", "short buffer: %d bytes", len(buf))
	}
	br := newBitReader(buf[4:])
	id, e1 := br.readBits(4)
	if e1 != nil {
		return 0, pictureCodingExt{}, structuralf("picture coding extension", "%w", e1)
	}
	if err := br.skipBits(16); err != nil { // f_code[2][2]
		return 0, pictureCodingExt{}, structuralf("picture coding extension", "%w", err)
	}
	intraDC, e2 := br.readBits(2)
	structure, e3 := br.readBits(2)
	tff, e4 := br.readBits(1)
	if err := firstErr(e2, e3, e4); err != nil {
		return 0, pictureCodingExt{}, structuralf("picture coding extension", "%w", err)
	}
	if err := br.skipBits(1 + 1 + 1 + 1 + 1); err != nil {
		// frame_pred_frame_dct, concealment_motion_vectors, q_scale_type,
		// intra_vlc_format, alternate_scan
		return 0, pictureCodingExt{}, structuralf("picture coding extension", "%w", err)
	}
	rff, e5 := br.readBits(1)
	if e5 != nil {
		return 0, pictureCodingExt{}, structuralf("picture coding extension", "%w", e5)
	}
	if err := br.skipBits(1); err != nil { // chroma_420_type
		return 0, pictureCodingExt{}, structuralf("picture coding extension", "%w", err)
	}
	progressive, e6 := br.readBits(1)
	if e6 != nil {
		return 0, pictureCodingExt{}, structuralf("picture coding extension", "%w", e6)
	}

	return uint8(id), pictureCodingExt{
		intraDCPrecision: uint8(intraDC),
		structure:        uint8(structure),
		topFieldFirst:    tff == 1,
		repeatFirstField: rff == 1,
		progressiveFrame: progressive == 1,
	}, nil
}

// pictureDuration derives the clock-tick duration of a picture from its
// coding extension flags and the sequence's frame rate.
func pictureDuration(clockHz uint64, fpsNum, fpsDen int64, progressiveSequence bool, structure uint8, tff, rff bool) uint64 {
	if fpsNum == 0 {
		return 0
	}
	duration := clockHz * uint64(fpsDen) / uint64(fpsNum)
	if progressiveSequence {
		if rff {
			mult := uint64(1)
			if tff {
				mult = 2
			}
			duration *= mult
		}
		return duration
	}
	if structure == structureFrame {
		if rff {
			duration += duration / 2
		}
		return duration
	}
	return duration / 2
}
