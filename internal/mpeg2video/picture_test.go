package mpeg2video

import "testing"

func TestParseGOPHeaderFlags(t *testing.T) {
	buf := packGOPHeader(true, false)
	gop, err := parseGOPHeader(buf)
	if err != nil {
		t.Fatalf("parseGOPHeader: %v", err)
	}
	if !gop.closedGOP || gop.brokenLink {
		t.Fatalf("gop = %+v, want closed=true broken=false", gop)
	}

	buf2 := packGOPHeader(false, true)
	gop2, err := parseGOPHeader(buf2)
	if err != nil {
		t.Fatalf("parseGOPHeader: %v", err)
	}
	if gop2.closedGOP || !gop2.brokenLink {
		t.Fatalf("gop2 = %+v, want closed=false broken=true", gop2)
	}
}

func TestParseGOPHeaderShortBufferFails(t *testing.T) {
	if _, err := parseGOPHeader(make([]byte, 3)); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}

func TestParsePictureHeaderFields(t *testing.T) {
	buf := packPictureHeader(42, picTypeP, 0x1234)
	pic, err := parsePictureHeader(buf)
	if err != nil {
		t.Fatalf("parsePictureHeader: %v", err)
	}
	if pic.temporalRef != 42 || pic.codingType != picTypeP || pic.vbvDelay != 0x1234 {
		t.Fatalf("pic = %+v", pic)
	}
}

func TestParsePictureCodingExtFields(t *testing.T) {
	buf := packPictureCodingExt(structureFrame, true, true, true)
	id, ext, err := parsePictureCodingExt(buf)
	if err != nil {
		t.Fatalf("parsePictureCodingExt: %v", err)
	}
	if id != extIDPictureCoding {
		t.Fatalf("id = %d, want %d", id, extIDPictureCoding)
	}
	if ext.structure != structureFrame || !ext.topFieldFirst || !ext.repeatFirstField || !ext.progressiveFrame {
		t.Fatalf("ext = %+v", ext)
	}
}

func TestPictureDurationProgressiveNoRepeat(t *testing.T) {
	d := pictureDuration(90000, 25, 1, true, structureFrame, false, false)
	if d != 90000/25 {
		t.Fatalf("duration = %d, want %d", d, 90000/25)
	}
}

func TestPictureDurationProgressiveRepeatWithTFF(t *testing.T) {
	base := uint64(90000) / 25
	d := pictureDuration(90000, 25, 1, true, structureFrame, true, true)
	if d != base*2 {
		t.Fatalf("duration = %d, want %d (doubled for rff+tff)", d, base*2)
	}
}

func TestPictureDurationInterlacedFrameWithRepeat(t *testing.T) {
	base := uint64(90000) / 25
	d := pictureDuration(90000, 25, 1, false, structureFrame, false, true)
	if d != base+base/2 {
		t.Fatalf("duration = %d, want %d (1.5x for interlaced repeat)", d, base+base/2)
	}
}

func TestPictureDurationFieldPicture(t *testing.T) {
	base := uint64(90000) / 25
	d := pictureDuration(90000, 25, 1, false, structureTop, false, false)
	if d != base/2 {
		t.Fatalf("duration = %d, want %d (half for a field)", d, base/2)
	}
}

func TestPictureDurationZeroFrameRateIsZero(t *testing.T) {
	if d := pictureDuration(90000, 0, 1, true, structureFrame, false, false); d != 0 {
		t.Fatalf("duration = %d, want 0 for unset frame rate", d)
	}
}
