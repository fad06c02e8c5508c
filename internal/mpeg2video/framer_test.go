package mpeg2video

import (
	"bytes"
	"testing"

	"github.com/zsiec/framecore/internal/dict"
	"github.com/zsiec/framecore/internal/dictpool"
	"github.com/zsiec/framecore/uref"
)

func inputUref(mgr *dictpool.Manager, block []byte) *uref.Uref {
	d, _ := mgr.Alloc(64)
	return uref.New(mgr, d, block)
}

func buildTwoFrameStream() []byte {
	var b bytes.Buffer
	b.Write(packSequenceHeader(720, 576, aspect4x3, 3, 5000, 100))
	b.Write(packSequenceExtension(0x48, true, chroma420, 0, 0, false, 0, 0)) // Main profile @ Main level
	b.Write(packGOPHeader(true, false))
	b.Write(packPictureHeader(0, picTypeI, 0xFFFF))
	b.Write(packPictureCodingExt(structureFrame, true, false, true))
	b.Write(sliceStart(1))

	b.Write(packGOPHeader(true, false))
	b.Write(packPictureHeader(1, picTypeP, 0xFFFF))
	b.Write(packPictureCodingExt(structureFrame, true, false, true))
	b.Write(sliceStart(1))
	b.Write([]byte{0, 0, 1, startCodeEnd})
	return b.Bytes()
}

func TestFramerAcquiresSyncAndEmitsTwoFrames(t *testing.T) {
	mgr := dictpool.NewManager(nil)
	var events []EventKind
	var frames []*uref.Uref
	f := NewFramer(mgr,
		WithEventHandler(func(e Event) { events = append(events, e.Kind) }),
		WithFrameHandler(func(u *uref.Uref) { frames = append(frames, u) }),
	)

	f.ProcessInput(inputUref(mgr, buildTwoFrameStream()))

	if len(frames) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(frames))
	}
	if events[0] != EventReady || events[1] != EventSyncAcquired {
		t.Fatalf("events = %v, want [ready sync_acquired ...]", events)
	}

	first, second := frames[0], frames[1]
	if !first.IsRandomAccess() {
		t.Fatalf("first frame not marked random access")
	}
	if second.IsRandomAccess() {
		t.Fatalf("second (P) frame unexpectedly marked random access")
	}

	n1, ok := first.GetUint(dict.ShPNum)
	if !ok {
		t.Fatalf("first frame missing picture number")
	}
	n2, ok := second.GetUint(dict.ShPNum)
	if !ok {
		t.Fatalf("second frame missing picture number")
	}
	if n2 <= n1 {
		t.Fatalf("picture numbers not increasing: %d then %d", n1, n2)
	}

	def, ok := first.FlowDef()
	if !ok || def != "block.mpeg2video.pic.planar8_420." {
		t.Fatalf("FlowDef() = %q, %v", def, ok)
	}
}

func buildStreamWithBareSecondIFrame() []byte {
	var b bytes.Buffer
	b.Write(packSequenceHeader(720, 576, aspect4x3, 3, 5000, 100))
	b.Write(packSequenceExtension(0x48, true, chroma420, 0, 0, false, 0, 0)) // Main profile @ Main level
	b.Write(packGOPHeader(true, false))
	b.Write(packPictureHeaderCoding(0, picTypeI))
	b.Write(sliceStart(1))

	// A second I-frame with its own (closed) GOP but no sequence header of
	// its own: it must be a random access point only if sequence insertion
	// is enabled.
	b.Write(packGOPHeader(true, false))
	b.Write(packPictureHeaderCoding(1, picTypeI))
	b.Write(sliceStart(1))
	b.Write([]byte{0, 0, 1, startCodeEnd})
	return b.Bytes()
}

func TestFramerInsertsSequenceOnUnadornedIFrame(t *testing.T) {
	mgr := dictpool.NewManager(nil)
	var frames []*uref.Uref
	f := NewFramer(mgr,
		WithSequenceInsertion(true),
		WithFrameHandler(func(u *uref.Uref) { frames = append(frames, u) }),
	)

	f.ProcessInput(inputUref(mgr, buildStreamWithBareSecondIFrame()))
	if len(frames) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(frames))
	}

	second := frames[1]
	if !second.IsRandomAccess() {
		t.Fatalf("bare I-frame not marked random access with sequence insertion enabled")
	}
	if !bytes.Contains(second.Block(), []byte{0, 0, 1, startCodeSeq}) {
		t.Fatalf("sequence header was not prepended to the bare I-frame's block")
	}
}

func TestFramerRaisesNewFlowDefinitionOnceForRepeatedSequence(t *testing.T) {
	mgr := dictpool.NewManager(nil)
	var newFlowDefs int
	f := NewFramer(mgr, WithEventHandler(func(e Event) {
		if e.Kind == EventNewFlowDefinition {
			newFlowDefs++
		}
	}))

	var b bytes.Buffer
	seq := packSequenceHeader(720, 576, aspect4x3, 3, 5000, 100)
	ext := packSequenceExtension(0x48, true, chroma420, 0, 0, false, 0, 0) // Main profile @ Main level
	for i := 0; i < 2; i++ {
		b.Write(seq)
		b.Write(ext)
		b.Write(packGOPHeader(true, false))
		b.Write(packPictureHeader(0, picTypeI, 0xFFFF))
		b.Write(packPictureCodingExt(structureFrame, true, false, true))
		b.Write(sliceStart(1))
	}
	b.Write([]byte{0, 0, 1, startCodeEnd})

	f.ProcessInput(inputUref(mgr, b.Bytes()))
	if newFlowDefs != 1 {
		t.Fatalf("EventNewFlowDefinition fired %d times, want 1 (identical sequence repeated)", newFlowDefs)
	}
}

func TestFramerStructuralErrorLosesSync(t *testing.T) {
	mgr := dictpool.NewManager(nil)
	var events []EventKind
	f := NewFramer(mgr, WithEventHandler(func(e Event) { events = append(events, e.Kind) }))

	var b bytes.Buffer
	b.Write(packSequenceHeaderClaimingMatrices(720, 576, aspect4x3, 3)) // claims matrices it doesn't carry
	b.Write(packPictureHeader(0, picTypeI, 0xFFFF))
	b.Write(sliceStart(1))
	b.Write([]byte{0, 0, 1, startCodeEnd})

	f.ProcessInput(inputUref(mgr, b.Bytes()))

	sawLost := false
	for _, k := range events {
		if k == EventSyncLost {
			sawLost = true
		}
	}
	if !sawLost {
		t.Fatalf("events = %v, want an EventSyncLost after the malformed sequence header", events)
	}
	if f.state != stateUnacquired {
		t.Fatalf("state = %v after structural error, want stateUnacquired (sync loss must not be reseeded)", f.state)
	}
}

func TestFramerDiscontinuityCleansAccumulatorBetweenFrames(t *testing.T) {
	mgr := dictpool.NewManager(nil)
	f := NewFramer(mgr)

	f.ProcessInput(inputUref(mgr, []byte{0, 0, 1, startCodeSeq}))
	in := inputUref(mgr, []byte{1, 2, 3})
	in.SetDiscontinuous(mgr.Allocator(), mgr.ExtraSize())
	f.ProcessInput(in)

	if !f.gotDiscontinuity {
		t.Fatalf("gotDiscontinuity not set")
	}
	if f.pictureOffset != -1 || f.cursor != 0 {
		t.Fatalf("in-progress frame state not cleared: pictureOffset=%d cursor=%d", f.pictureOffset, f.cursor)
	}
}

func TestFramerPropagatesArrivalPTSToEmittedFrame(t *testing.T) {
	mgr := dictpool.NewManager(nil)
	var frames []*uref.Uref
	f := NewFramer(mgr, WithFrameHandler(func(u *uref.Uref) { frames = append(frames, u) }))

	in := inputUref(mgr, buildTwoFrameStream())
	in.SetPTS(mgr.Allocator(), mgr.ExtraSize(), 12345)
	f.ProcessInput(in)

	if len(frames) == 0 {
		t.Fatalf("no frames emitted")
	}
	pts, ok := frames[0].PTS()
	if !ok || pts != 12345 {
		t.Fatalf("PTS() = %d, %v, want 12345, true", pts, ok)
	}
}
