// Package mpeg2video implements a frame-boundary parser for raw MPEG-2
// video elementary streams: it scans an incoming byte stream for start
// codes, assembles complete pictures, extracts the sequence/picture
// parameters needed to describe the stream to a downstream consumer, and
// emits one uref per decoded picture.
package mpeg2video

import (
	"log/slog"
	"strings"

	"github.com/zsiec/framecore/internal/bytestream"
	"github.com/zsiec/framecore/internal/dict"
	"github.com/zsiec/framecore/internal/dictpool"
	"github.com/zsiec/framecore/uref"
)

type framerState int

const (
	stateUnacquired framerState = iota
	stateAcquired               // acquired, no picture start code seen yet in this frame
	statePrePicture             // picture start code just seen, absorbing the code right after it
	statePostPicture
)

const defaultClockHz = 90000

// Option configures a Framer at construction time.
type Option func(*Framer)

// WithLogger overrides the framer's logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(f *Framer) { f.log = log }
}

// WithClockHz sets the clock frequency VBV delay and picture durations are
// expressed in. The default is 90000 (the standard MPEG clock rate).
func WithClockHz(hz uint64) Option {
	return func(f *Framer) { f.clockHz = hz }
}

// WithSequenceInsertion enables prepending a cached sequence header (plus
// its extension and display extension) to I-frames that don't already
// carry one, so every random-access point is self-describing. Off by
// default, matching the framer control protocol's default.
func WithSequenceInsertion(enabled bool) Option {
	return func(f *Framer) { f.insertSequence = enabled }
}

// WithEventHandler registers the callback invoked for every framer event
// (sync acquired/lost, new flow definition, allocation and flow-definition
// errors, ready, dead).
func WithEventHandler(h func(Event)) Option {
	return func(f *Framer) { f.onEvent = h }
}

// WithFrameHandler registers the callback invoked with every emitted
// frame. The Framer transfers ownership of the uref to the callback.
func WithFrameHandler(h func(*uref.Uref)) Option {
	return func(f *Framer) { f.onFrame = h }
}

type pendingClock struct {
	pts, ptsOrig, ptsSys    uint64
	hasPTS, hasPTSOrig, hasPTSSys bool
	dts, dtsOrig, dtsSys    uint64
	hasDTS, hasDTSOrig, hasDTSSys bool
}

func (p *pendingClock) clearPTS() {
	p.hasPTS, p.hasPTSOrig, p.hasPTSSys = false, false, false
}

func (p *pendingClock) advanceDTS(duration uint64) {
	if p.hasDTS {
		p.dts += duration
	}
	if p.hasDTSOrig {
		p.dtsOrig += duration
	}
	if p.hasDTSSys {
		p.dtsSys += duration
	}
}

// Framer assembles an MPEG-2 video elementary stream into discrete
// pictures. It is not safe for concurrent use.
type Framer struct {
	log            *slog.Logger
	mgr            *dictpool.Manager
	stream         *bytestream.Stream
	clockHz        uint64
	insertSequence bool
	onEvent        func(Event)
	onFrame        func(*uref.Uref)

	state             framerState
	cursor            int
	pictureOffset     int
	nextFrameSequence bool
	nextFrameSlice    bool
	frameHasError     bool
	gotDiscontinuity  bool

	flowDefInput string
	haveSequence bool
	cachedSeq    *cachedSequence
	cachedHeader sequenceHeader
	cachedExt    *sequenceExtension
	cachedDisp   *sequenceDisplay
	currentFlow  *FlowDef

	lastTemporalReference int
	lastPictureNumber     int
	hasSystimeRAP         bool
	systimeRAP            uint64

	pending pendingClock
}

// NewFramer creates a Framer that pools its output dictionaries through
// mgr. If mgr is nil, a manager backed by dict.SliceAllocator{} is created.
func NewFramer(mgr *dictpool.Manager, opts ...Option) *Framer {
	if mgr == nil {
		mgr = dictpool.NewManager(nil)
	}
	f := &Framer{
		log:                   slog.Default(),
		mgr:                   mgr,
		clockHz:               defaultClockHz,
		pictureOffset:         -1,
		lastTemporalReference: -1,
	}
	f.stream = bytestream.New(f.onHeadPromoted)
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With("component", "mpeg2video-framer")
	f.raise(Event{Kind: EventReady})
	return f
}

func (f *Framer) raise(e Event) {
	if f.onEvent != nil {
		f.onEvent(e)
	}
}

func (f *Framer) onHeadPromoted() {
	// A newly promoted head buffer carries its own arrival timestamps;
	// since this core reads pending clock values off the input uref
	// directly (see ProcessInput), there is nothing to copy here beyond
	// what ProcessInput already recorded — the hook exists so a caller
	// tracking multiple concurrent input buffers has a place to hang
	// per-buffer bookkeeping if it needs to.
}

// ProcessInput feeds one input uref through the framer, per the input path
// described for this core: flow-definition carriers update the tracked
// input flow definition, discontinuity flags reset or annotate in-progress
// state, and payload bytes are appended to the accumulator and run through
// the assembly loop.
func (f *Framer) ProcessInput(in *uref.Uref) {
	if def, ok := in.FlowDef(); ok {
		f.handleFlowDefInput(def)
	}

	block := in.Block()
	if len(block) == 0 {
		return
	}

	if in.IsDiscontinuous() {
		if !f.nextFrameSlice {
			f.stream.Clean()
			f.cursor = 0
			f.pictureOffset = -1
			f.nextFrameSequence = false
			f.nextFrameSlice = false
			f.gotDiscontinuity = true
			f.state = stateUnacquired
		} else {
			f.frameHasError = true
		}
	}

	f.recordPending(in)

	f.stream.Append(block)
	f.runAssembly()
}

func (f *Framer) handleFlowDefInput(def string) {
	if !strings.HasPrefix(def, expectedFlowDefPrefix) {
		f.flowDefInput = ""
		f.haveSequence = false
		f.raise(Event{Kind: EventFlowDefinitionError, Err: ErrFlowDefinition})
		return
	}
	f.flowDefInput = def
	if !f.haveSequence {
		return
	}
	fd, err := deriveFlowDef(f.flowDefInput, f.cachedHeader, f.cachedExt, f.cachedDisp)
	if err != nil {
		f.log.Warn("failed to re-derive flow definition", "err", err)
		return
	}
	f.currentFlow = fd
	f.raise(Event{Kind: EventNewFlowDefinition, FlowDef: fd})
}

func (f *Framer) recordPending(in *uref.Uref) {
	if v, ok := in.PTS(); ok {
		f.pending.pts, f.pending.hasPTS = v, true
	}
	if v, ok := in.GetUint(dict.ShKPTSOrig); ok {
		f.pending.ptsOrig, f.pending.hasPTSOrig = v, true
	}
	if v, ok := in.GetUint(dict.ShKPTSSys); ok {
		f.pending.ptsSys, f.pending.hasPTSSys = v, true
	}
	if v, ok := in.DTS(); ok {
		f.pending.dts, f.pending.hasDTS = v, true
	}
	if v, ok := in.GetUint(dict.ShKDTSOrig); ok {
		f.pending.dtsOrig, f.pending.hasDTSOrig = v, true
	}
	if v, ok := in.GetUint(dict.ShKDTSSys); ok {
		f.pending.dtsSys, f.pending.hasDTSSys = v, true
	}
	if v, ok := in.SystimeRAP(); ok {
		f.systimeRAP, f.hasSystimeRAP = v, true
	}
}

var startCodePrefix = []byte{0, 0, 1}

func findStartCode(buf []byte, from int, code byte) (int, bool) {
	pos := from
	for {
		idx, found := indexFrom(buf, pos, startCodePrefix)
		if !found {
			return 0, false
		}
		if idx+3 < len(buf) && buf[idx+3] == code {
			return idx, true
		}
		pos = idx + 1
	}
}

func indexFrom(buf []byte, from int, pattern []byte) (int, bool) {
	if from < 0 {
		from = 0
	}
	limit := len(buf) - len(pattern)
	for pos := from; pos <= limit; pos++ {
		matched := true
		for i := range pattern {
			if buf[pos+i] != pattern[i] {
				matched = false
				break
			}
		}
		if matched {
			return pos, true
		}
	}
	return 0, false
}

func isSlice(code byte) bool {
	return code >= startCodeSlice && code <= sliceLast
}

// runAssembly scans the accumulator for start codes and drives the frame
// state machine until no further complete start code is available.
func (f *Framer) runAssembly() {
	for {
		pos, found := f.stream.Find(startCodePrefix, f.cursor)
		if !found {
			return
		}
		if pos+3 >= f.stream.Len() {
			return // incomplete start code, wait for more input
		}
		var codeBuf [1]byte
		f.stream.Extract(pos+3, 1, codeBuf[:])
		code := codeBuf[0]

		switch f.state {
		case stateUnacquired:
			f.stepUnacquired(pos, code)
		case stateAcquired:
			f.stepAcquired(pos, code)
		case statePrePicture:
			f.cursor = pos + 4
			f.state = statePostPicture
		case statePostPicture:
			f.stepPostPicture(pos, code)
		}
	}
}

func (f *Framer) stepUnacquired(pos int, code byte) {
	switch code {
	case startCodeSeq:
		f.stream.Consume(pos)
		f.cursor = 4
		f.state = stateAcquired
		f.nextFrameSequence = true
		f.pictureOffset = -1
		f.raise(Event{Kind: EventSyncAcquired})
	case startCodePic:
		f.stream.Consume(pos + 4)
		f.cursor = 0
		f.pending.clearPTS()
	default:
		f.stream.Consume(pos + 4)
		f.cursor = 0
	}
}

func (f *Framer) stepAcquired(pos int, code byte) {
	if code == startCodePic {
		f.pictureOffset = pos
		f.cursor = pos + 4
		f.state = statePrePicture
		return
	}
	f.cursor = pos + 4
}

func (f *Framer) stepPostPicture(pos int, code byte) {
	switch {
	case code == startCodeExt:
		f.cursor = pos + 4
	case isSlice(code):
		f.nextFrameSlice = true
		f.cursor = pos + 4
	case code == startCodeEnd:
		f.cursor = pos + 4
		f.emitAndReset(f.cursor, stateAcquired, false)
	case code == startCodeSeq || code == startCodeGOP || code == startCodePic:
		frameLen := pos
		nextState := stateAcquired
		nextSequence := code == startCodeSeq
		nextPictureOffset := -1
		if code == startCodePic {
			nextPictureOffset = 0
			nextState = statePrePicture
		}
		ok := f.emitFrame(frameLen)
		f.stream.Consume(frameLen)
		f.resetFrameState()
		f.cursor = 4
		if ok {
			f.state = nextState
			f.nextFrameSequence = nextSequence
			f.pictureOffset = nextPictureOffset
		} else {
			f.nextFrameSequence = false
			f.pictureOffset = -1
		}
	default:
		f.cursor = pos + 4
	}
}

// emitAndReset emits the frame of length frameLen (start-code-included
// terminator such as END already folded into it), consumes it, and resets
// per-frame bookkeeping before entering nextState. If the emit fails on a
// structural error, emitFrame has already dropped the framer to
// stateUnacquired; nextState is not applied in that case.
func (f *Framer) emitAndReset(frameLen int, nextState framerState, keepPictureOffset bool) {
	ok := f.emitFrame(frameLen)
	f.stream.Consume(frameLen)
	f.resetFrameState()
	f.cursor = 0
	if ok {
		f.state = nextState
	}
	if !keepPictureOffset {
		f.pictureOffset = -1
	}
}

func (f *Framer) resetFrameState() {
	f.nextFrameSequence = false
	f.nextFrameSlice = false
	f.frameHasError = false
}

// emitFrame runs sequence and picture handling on a fresh copy of the
// frame bytes and, on success, hands the resulting uref to the frame
// handler. It returns false only on a structural failure: it then logs,
// reports sync loss and drops to unacquired, so the caller does not reseed
// the state machine into the state it would have entered on success. If the
// output dictionary cannot be allocated, the frame is dropped after raising
// EventAllocationError and emitFrame still returns true. The caller is
// responsible for consuming the frame bytes either way.
func (f *Framer) emitFrame(frameLen int) bool {
	if frameLen <= 0 {
		return true
	}
	frame := make([]byte, frameLen)
	if !f.stream.Extract(0, frameLen, frame) {
		return true
	}

	d, ok := f.mgr.Alloc(f.mgr.ExtraSize())
	if !ok {
		f.raise(Event{Kind: EventAllocationError, Err: ErrAllocation})
		return true
	}
	out := uref.New(f.mgr, d, frame)

	if err := f.processFrame(frame, out); err != nil {
		f.log.Warn("dropping frame after structural error", "err", err)
		out.Release()
		f.state = stateUnacquired
		f.raise(Event{Kind: EventSyncLost})
		return false
	}

	if f.hasSystimeRAP {
		out.SetSystimeRAP(f.mgr.Allocator(), f.mgr.ExtraSize(), f.systimeRAP)
	}
	if f.frameHasError {
		out.SetFlag(f.mgr.Allocator(), f.mgr.ExtraSize(), dict.ShFError)
	}
	if f.currentFlow != nil {
		out.SetFlowDef(f.mgr.Allocator(), f.mgr.ExtraSize(), f.currentFlow.Def)
	}

	if f.onFrame != nil {
		f.onFrame(out)
	} else {
		out.Release()
	}
	return true
}

func (f *Framer) processFrame(frame []byte, out *uref.Uref) error {
	if f.nextFrameSequence {
		changed, err := f.handleSequence(frame)
		if err != nil {
			return err
		}
		if changed && f.currentFlow != nil {
			f.raise(Event{Kind: EventNewFlowDefinition, FlowDef: f.currentFlow})
		}
	}
	if f.pictureOffset >= 0 {
		if err := f.handlePicture(frame, out); err != nil {
			return err
		}
	}
	return nil
}

func (f *Framer) handleSequence(frame []byte) (bool, error) {
	fixed, err := parseSequenceHeaderFixed(frame)
	if err != nil {
		return false, err
	}
	if len(frame) < fixed.length {
		return false, structuralf("sequence header", "frame too short for matrices: %d bytes", len(frame))
	}
	fixed.raw = append([]byte(nil), frame[:fixed.length]...)
	offset := fixed.length

	var ext *sequenceExtension
	var disp *sequenceDisplay

	if idx, found := findStartCode(frame, offset, startCodeExt); found {
		if idx+seqExtSize > len(frame) {
			return false, structuralf("sequence extension", "truncated")
		}
		extID, parsed, err := parseSequenceExtension(frame[idx : idx+seqExtSize])
		if err != nil {
			return false, err
		}
		if extID != extIDSequence {
			return false, structuralf("sequence extension", "expected sequence extension, got id %d", extID)
		}
		parsed.raw = append([]byte(nil), frame[idx:idx+seqExtSize]...)
		ext = &parsed
		offset = idx + seqExtSize

		if idx2, found2 := findStartCode(frame, offset, startCodeExt); found2 {
			if idx2+5 <= len(frame) {
				extID2, hasColor, err := peekSequenceDisplayColor(frame[idx2 : idx2+5])
				if err == nil && extID2 == extIDSequenceDisplay {
					size := seqDisplaySize
					if hasColor {
						size += seqDisplayColor
					}
					if idx2+size <= len(frame) {
						parsedDisp, err := parseSequenceDisplay(frame[idx2:idx2+size], hasColor)
						if err == nil {
							parsedDisp.raw = append([]byte(nil), frame[idx2:idx2+size]...)
							disp = &parsedDisp
						}
					}
				}
			}
		}
	}

	var extRaw, dispRaw []byte
	if ext != nil {
		extRaw = ext.raw
	}
	if disp != nil {
		dispRaw = disp.raw
	}

	same := f.cachedSeq != nil && f.cachedSeq.equal(fixed.raw, extRaw, dispRaw)
	f.cachedSeq = &cachedSequence{header: fixed.raw, ext: extRaw, display: dispRaw}
	f.cachedHeader = fixed
	f.cachedExt = ext
	f.cachedDisp = disp
	f.haveSequence = true

	if same {
		return false, nil
	}

	fd, err := deriveFlowDef(f.flowDefInput, fixed, ext, disp)
	if err != nil {
		return false, err
	}
	f.currentFlow = fd
	return true, nil
}

func (f *Framer) handlePicture(frame []byte, out *uref.Uref) error {
	off := f.pictureOffset
	alloc, extra := f.mgr.Allocator(), f.mgr.ExtraSize()

	if gopIdx, found := findStartCode(frame[:off], 0, startCodeGOP); found {
		if gopIdx+gopHeaderSize > off {
			return structuralf("gop header", "truncated")
		}
		gop, err := parseGOPHeader(frame[gopIdx : gopIdx+gopHeaderSize])
		if err != nil {
			return err
		}
		f.lastTemporalReference = -1
		if gop.brokenLink || (!gop.closedGOP && f.gotDiscontinuity) {
			out.SetDiscontinuous(alloc, extra)
		}
	}

	if off+picHeaderSize > len(frame) {
		return structuralf("picture header", "truncated")
	}
	pic, err := parsePictureHeader(frame[off : off+picHeaderSize])
	if err != nil {
		return err
	}

	picNum := f.lastPictureNumber + (pic.temporalRef - f.lastTemporalReference)
	if pic.temporalRef > f.lastTemporalReference {
		f.lastPictureNumber = picNum
		f.lastTemporalReference = pic.temporalRef
	}
	out.SetUint(alloc, extra, dict.ShPNum, uint64(picNum))
	if pic.vbvDelay != 0xFFFF {
		out.SetUint(alloc, extra, dict.ShKVBVDelay, uint64(pic.vbvDelay)*f.clockHz/90000)
	}

	extOffset := off + picHeaderSize
	var codingExt *pictureCodingExt
	if extOffset+picExtSize <= len(frame) {
		if extID, parsedExt, err := parsePictureCodingExt(frame[extOffset : extOffset+picExtSize]); err == nil && extID == extIDPictureCoding {
			if parsedExt.intraDCPrecision != 0 {
				f.log.Warn("non-zero intra DC precision", "value", parsedExt.intraDCPrecision)
			}
			codingExt = &parsedExt
		}
	}

	if codingExt != nil {
		progressiveSeq := f.cachedExt != nil && f.cachedExt.progressiveSequence
		var fpsNum, fpsDen int64 = 1, 1
		if f.currentFlow != nil {
			fpsNum, fpsDen = f.currentFlow.FPS.Num, f.currentFlow.FPS.Den
		}
		duration := pictureDuration(f.clockHz, fpsNum, fpsDen, progressiveSeq, codingExt.structure, codingExt.topFieldFirst, codingExt.repeatFirstField)

		if codingExt.structure == structureTop || codingExt.structure == structureFrame {
			out.SetFlag(alloc, extra, dict.ShPTF)
		}
		if codingExt.structure == structureBottom || codingExt.structure == structureFrame {
			out.SetFlag(alloc, extra, dict.ShPBF)
		}
		if codingExt.topFieldFirst {
			out.SetFlag(alloc, extra, dict.ShPTFF)
		}
		if codingExt.progressiveFrame {
			out.SetFlag(alloc, extra, dict.ShPProgressive)
		}
		out.SetUint(alloc, extra, dict.ShKDuration, duration)
		f.pending.advanceDTS(duration)
	}

	if f.pending.hasPTS {
		out.SetPTS(alloc, extra, f.pending.pts)
	}
	if f.pending.hasPTSOrig {
		out.SetUint(alloc, extra, dict.ShKPTSOrig, f.pending.ptsOrig)
	}
	if f.pending.hasPTSSys {
		out.SetUint(alloc, extra, dict.ShKPTSSys, f.pending.ptsSys)
	}
	f.pending.clearPTS()
	if f.pending.hasDTS {
		out.SetDTS(alloc, extra, f.pending.dts)
	}
	if f.pending.hasDTSOrig {
		out.SetUint(alloc, extra, dict.ShKDTSOrig, f.pending.dtsOrig)
	}
	if f.pending.hasDTSSys {
		out.SetUint(alloc, extra, dict.ShKDTSSys, f.pending.dtsSys)
	}

	f.applyRandomAccess(frame, off, pic, out)
	return nil
}

func (f *Framer) applyRandomAccess(frame []byte, pictureOffset int, pic pictureHeader, out *uref.Uref) {
	if pic.codingType != picTypeI {
		return
	}
	alloc, extra := f.mgr.Allocator(), f.mgr.ExtraSize()

	beganWithSequence := f.nextFrameSequence && f.cachedSeq != nil
	switch {
	case beganWithSequence:
		out.SetRandomAccess(alloc, extra)
	case f.insertSequence && f.cachedSeq != nil:
		prefix := make([]byte, 0, len(f.cachedSeq.header)+len(f.cachedSeq.ext)+len(f.cachedSeq.display))
		prefix = append(prefix, f.cachedSeq.header...)
		prefix = append(prefix, f.cachedSeq.ext...)
		prefix = append(prefix, f.cachedSeq.display...)
		out.SetBlock(append(prefix, out.Block()...))
		out.SetRandomAccess(alloc, extra)
	}
	if f.hasSystimeRAP {
		out.SetSystimeRAP(alloc, extra, f.systimeRAP)
	}
}

// Close releases the framer's stream buffers and the manager it was
// constructed with, raising a final Dead event.
func (f *Framer) Close() {
	f.stream.Clean()
	f.mgr.Close()
	f.raise(Event{Kind: EventDead})
}
