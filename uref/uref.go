// Package uref defines the carrier type that flows through the framer: a
// pairing of an attribute dictionary and an opaque byte-block buffer, with
// convenience accessors for the clock and flow attributes every consumer
// needs (PTS/DTS variants, random-access and discontinuity flags, flow
// definition strings).
package uref

import (
	"errors"

	"github.com/zsiec/framecore/internal/dict"
	"github.com/zsiec/framecore/internal/dictpool"
)

// ErrNotFound names the condition of an attribute being absent from the
// dictionary. The accessors below do not return it: they report absence
// with a false second result.
var ErrNotFound = errors.New("uref: attribute not found")

// Uref pairs an attribute dictionary with a block of payload bytes. Either
// half may be nil: a control-only uref carries no block, and a bare block
// transfer (rare in this core) carries no dictionary.
type Uref struct {
	mgr   *dictpool.Manager
	dict  *dict.Dict
	block []byte
}

// New wraps d and block into a Uref owned by mgr. mgr is retained so
// Release can hand d back to the pool.
func New(mgr *dictpool.Manager, d *dict.Dict, block []byte) *Uref {
	return &Uref{mgr: mgr, dict: d, block: block}
}

// Dict returns the underlying dictionary, or nil if this Uref carries none.
func (u *Uref) Dict() *dict.Dict { return u.dict }

// Block returns the payload bytes carried by this Uref.
func (u *Uref) Block() []byte { return u.block }

// SetBlock replaces the payload bytes.
func (u *Uref) SetBlock(b []byte) { u.block = b }

// Release drops this Uref's hold on its dictionary (returning it to the
// pool through the manager) and its block buffer. It mirrors the original
// upipe behavior of tearing down both halves of a uref with one call.
func (u *Uref) Release() {
	if u.mgr != nil && u.dict != nil {
		u.mgr.Free(u.dict)
	}
	u.dict = nil
	u.block = nil
}

func getUnsigned(d *dict.Dict, code dict.Type) (uint64, bool) {
	v, ok := d.Get("", code)
	if !ok || len(v) < 8 {
		return 0, false
	}
	var n uint64
	for _, b := range v[:8] {
		n = n<<8 | uint64(b)
	}
	return n, true
}

func setUnsigned(d *dict.Dict, a dict.Allocator, extra int, code dict.Type, val uint64) bool {
	v, ok := d.Set(a, extra, "", code, 8)
	if !ok {
		return false
	}
	for i := 7; i >= 0; i-- {
		v[i] = byte(val)
		val >>= 8
	}
	return true
}

func hasVoid(d *dict.Dict, code dict.Type) bool {
	_, ok := d.Get("", code)
	return ok
}

// GetUint returns the raw unsigned value stored under a shorthand code, and
// false if unset. It is the generic escape hatch for attributes (picture
// number, VBV delay, duration, ...) that don't warrant their own named
// accessor.
func (u *Uref) GetUint(code dict.Type) (uint64, bool) { return getUnsigned(u.dict, code) }

// SetUint stores val under a shorthand code.
func (u *Uref) SetUint(a dict.Allocator, extra int, code dict.Type, val uint64) bool {
	return setUnsigned(u.dict, a, extra, code, val)
}

// GetRat returns the rational value stored under a shorthand code (e.g.
// pixel aspect ratio, frame rate), and false if unset.
func (u *Uref) GetRat(code dict.Type) (dict.Rat, bool) {
	v, ok := u.dict.Get("", code)
	if !ok || len(v) < 16 {
		return dict.Rat{}, false
	}
	return dict.Rat{Num: beInt64(v[0:8]), Den: beInt64(v[8:16])}, true
}

// SetRat stores a rational value under a shorthand code.
func (u *Uref) SetRat(a dict.Allocator, extra int, code dict.Type, r dict.Rat) bool {
	v, ok := u.dict.Set(a, extra, "", code, 16)
	if !ok {
		return false
	}
	putBeInt64(v[0:8], r.Num)
	putBeInt64(v[8:16], r.Den)
	return true
}

func beInt64(b []byte) int64 {
	var n uint64
	for _, c := range b[:8] {
		n = n<<8 | uint64(c)
	}
	return int64(n)
}

func putBeInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
}

// HasFlag reports whether a VOID-base shorthand attribute is present.
func (u *Uref) HasFlag(code dict.Type) bool { return hasVoid(u.dict, code) }

// SetFlag sets a VOID-base shorthand attribute.
func (u *Uref) SetFlag(a dict.Allocator, extra int, code dict.Type) bool {
	_, ok := u.dict.Set(a, extra, "", code, 0)
	return ok
}

// PTS returns the presentation timestamp, and false if unset.
func (u *Uref) PTS() (uint64, bool) { return getUnsigned(u.dict, dict.ShKPTS) }

// SetPTS sets the presentation timestamp using allocator a (typically the
// same allocator backing the owning manager) with extra grow headroom.
func (u *Uref) SetPTS(a dict.Allocator, extra int, pts uint64) bool {
	return setUnsigned(u.dict, a, extra, dict.ShKPTS, pts)
}

// DTS returns the decoding timestamp, and false if unset.
func (u *Uref) DTS() (uint64, bool) { return getUnsigned(u.dict, dict.ShKDTS) }

// SetDTS sets the decoding timestamp.
func (u *Uref) SetDTS(a dict.Allocator, extra int, dts uint64) bool {
	return setUnsigned(u.dict, a, extra, dict.ShKDTS, dts)
}

// Systime returns the system-clock arrival time, and false if unset.
func (u *Uref) Systime() (uint64, bool) { return getUnsigned(u.dict, dict.ShKSystime) }

// SystimeRAP returns the system-clock time of the last random-access
// point, and false if unset.
func (u *Uref) SystimeRAP() (uint64, bool) { return getUnsigned(u.dict, dict.ShKSystimeRap) }

// SetSystimeRAP records the system-clock time of the current random-access
// point.
func (u *Uref) SetSystimeRAP(a dict.Allocator, extra int, t uint64) bool {
	return setUnsigned(u.dict, a, extra, dict.ShKSystimeRap, t)
}

// IsRandomAccess reports whether this frame is flagged as a random-access
// point.
func (u *Uref) IsRandomAccess() bool { return hasVoid(u.dict, dict.ShFRandom) }

// SetRandomAccess flags this frame as a random-access point.
func (u *Uref) SetRandomAccess(a dict.Allocator, extra int) bool {
	_, ok := u.dict.Set(a, extra, "", dict.ShFRandom, 0)
	return ok
}

// IsDiscontinuous reports whether this frame is flagged discontinuous.
func (u *Uref) IsDiscontinuous() bool { return hasVoid(u.dict, dict.ShFDisc) }

// SetDiscontinuous flags this frame as discontinuous.
func (u *Uref) SetDiscontinuous(a dict.Allocator, extra int) bool {
	_, ok := u.dict.Set(a, extra, "", dict.ShFDisc, 0)
	return ok
}

// FlowDef returns the flow-definition string, and false if unset.
func (u *Uref) FlowDef() (string, bool) {
	v, ok := u.dict.Get("", dict.ShFDef)
	if !ok {
		return "", false
	}
	return trimNul(v), true
}

// SetFlowDef sets the flow-definition string.
func (u *Uref) SetFlowDef(a dict.Allocator, extra int, def string) bool {
	v, ok := u.dict.Set(a, extra, "", dict.ShFDef, len(def))
	if !ok {
		return false
	}
	copy(v, def)
	return true
}

func trimNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
