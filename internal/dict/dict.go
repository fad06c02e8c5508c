package dict

import (
	"fmt"
	"io"
)

// Allocator supplies raw byte buffers to a Dict. Grouping allocation behind
// an interface (rather than calling make([]byte, n) directly) lets a
// dictionary manager inject a pooled or instrumented allocator, and lets
// tests exercise the allocation-failure paths spec'd for Set and Init.
type Allocator interface {
	// Allocate returns a zero-valued buffer of exactly size bytes, or false
	// if the allocation could not be satisfied.
	Allocate(size int) ([]byte, bool)
}

// SliceAllocator is the trivial Allocator backed directly by make(); it
// never fails. It is the default allocator a dictpool.Manager uses unless
// the caller supplies one of its own (e.g. one that recycles buffers from a
// pool, or one under test that injects failures).
type SliceAllocator struct{}

// Allocate implements Allocator.
func (SliceAllocator) Allocate(size int) ([]byte, bool) {
	return make([]byte, size), true
}

// Dict is a resizable byte buffer holding a sequence of attribute records
// terminated by a single End byte, as described in the package doc. It has
// no exported fields: every mutation must go through the methods below so
// the End-terminator and size-header invariants can't be violated from
// outside the package.
type Dict struct {
	buf  []byte
	size int
}

// Init (re)allocates d's buffer to size bytes via a, writes the End
// sentinel, and resets the used length to 1. It is how both a fresh Dict
// and a pool-recycled shell are (re)armed for use. It fails, leaving d
// unchanged, if a cannot satisfy the allocation.
func (d *Dict) Init(a Allocator, size int) bool {
	buf, ok := a.Allocate(size)
	if !ok {
		return false
	}
	buf[0] = byte(End)
	d.buf = buf
	d.size = 1
	return true
}

// Reset releases d's buffer reference and zeroes its used length, without
// returning the shell itself anywhere — that is the caller's (dictpool
// Manager's) job when it pushes the shell back onto its pool.
func (d *Dict) Reset() {
	d.buf = nil
	d.size = 0
}

// Len returns the number of used bytes in d's buffer, including the
// trailing End byte.
func (d *Dict) Len() int { return d.size }

// Cap returns the capacity of d's underlying buffer.
func (d *Dict) Cap() int { return len(d.buf) }

// Bytes returns the used prefix of d's buffer, terminator included. The
// caller must not retain it across a mutating call.
func (d *Dict) Bytes() []byte { return d.buf[:d.size] }

// CopyFrom overwrites d's used prefix with src's. d must already have
// capacity >= src.Len() (callers Init d with src.Len() before calling this,
// as dictpool.Manager.Dup does).
func (d *Dict) CopyFrom(src *Dict) {
	copy(d.buf[:src.size], src.buf[:src.size])
	d.size = src.size
}

// recordLen returns the total on-buffer length of the record starting at
// pos, including its header. pos must point at a valid record boundary.
func (d *Dict) recordLen(pos int) int {
	t := Type(d.buf[pos])
	if t == End {
		return 1
	}
	if t > Shorthand {
		sh, ok := shorthandFor(t)
		if !ok {
			return 1
		}
		if sh.base == Opaque || sh.base == String {
			size := int(d.buf[pos+1])<<8 | int(d.buf[pos+2])
			return 3 + size
		}
		fixed, _ := FixedSize(sh.base)
		return 1 + fixed
	}
	size := int(d.buf[pos+1])<<8 | int(d.buf[pos+2])
	return 3 + size
}

// valueAt returns the start offset and length of the value carried by the
// record at pos.
func (d *Dict) valueAt(pos int) (start, length int) {
	t := Type(d.buf[pos])
	if t > Shorthand {
		sh, _ := shorthandFor(t)
		if sh.base == Opaque || sh.base == String {
			size := int(d.buf[pos+1])<<8 | int(d.buf[pos+2])
			return pos + 3, size
		}
		fixed, _ := FixedSize(sh.base)
		return pos + 1, fixed
	}
	size := int(d.buf[pos+1])<<8 | int(d.buf[pos+2])
	namelen := 0
	for d.buf[pos+3+namelen] != 0 {
		namelen++
	}
	return pos + 3 + namelen + 1, size - namelen - 1
}

// find locates the record matching (name, typ) and returns its offset.
// For shorthand types name is ignored, matching the wire format's rule
// that shorthand records carry no name.
func (d *Dict) find(name string, typ Type) (int, bool) {
	pos := 0
	for pos < d.size {
		t := Type(d.buf[pos])
		if t == End {
			break
		}
		if t == typ {
			if t > Shorthand {
				return pos, true
			}
			if d.nameMatches(pos, name) {
				return pos, true
			}
		}
		pos += d.recordLen(pos)
	}
	return 0, false
}

func (d *Dict) nameMatches(pos int, name string) bool {
	nameStart := pos + 3
	i := 0
	for ; i < len(name); i++ {
		if nameStart+i >= d.size || d.buf[nameStart+i] != name[i] {
			return false
		}
	}
	return nameStart+i < d.size && d.buf[nameStart+i] == 0
}

// Get returns the value bytes stored for (name, typ), or false if no such
// attribute exists. The returned slice aliases d's buffer and is only
// valid until the next mutating call.
func (d *Dict) Get(name string, typ Type) ([]byte, bool) {
	pos, ok := d.find(name, typ)
	if !ok {
		return nil, false
	}
	start, length := d.valueAt(pos)
	return d.buf[start : start+length], true
}

// Delete removes the attribute matching (name, typ) and reports whether it
// existed. The tail of the buffer (including the End terminator) is
// shifted left over the removed record.
func (d *Dict) Delete(name string, typ Type) bool {
	pos, ok := d.find(name, typ)
	if !ok {
		return false
	}
	length := d.recordLen(pos)
	copy(d.buf[pos:], d.buf[pos+length:d.size])
	d.size -= length
	return true
}

// Iterate implements the cursor protocol described in the package doc:
// pass (name, End) to start, and the (name, typ) last returned to advance.
// It returns ("", End) once the buffer is exhausted.
func (d *Dict) Iterate(name string, typ Type) (nextName string, nextType Type) {
	var pos int
	if typ != End {
		p, ok := d.find(name, typ)
		if !ok {
			return "", End
		}
		pos = p + d.recordLen(p)
	}
	if pos >= d.size || Type(d.buf[pos]) == End {
		return "", End
	}
	t := Type(d.buf[pos])
	if t > Shorthand {
		return "", t
	}
	nameStart := pos + 3
	nameEnd := nameStart
	for d.buf[nameEnd] != 0 {
		nameEnd++
	}
	return string(d.buf[nameStart:nameEnd]), t
}

// Set writes (or idempotently returns the existing slot for) the attribute
// named (name, typ), sized valueLen, and returns a mutable view of the
// value region for the caller to fill in. a and extraSize come from the
// owning manager (buffer allocator and grow headroom); Set never mutates d
// on failure.
func (d *Dict) Set(a Allocator, extraSize int, name string, typ Type, valueLen int) ([]byte, bool) {
	baseType := typ
	isShort := typ > Shorthand
	var namelen int
	if isShort {
		sh, ok := shorthandFor(typ)
		if !ok {
			return nil, false
		}
		baseType = sh.base
	} else {
		namelen = len(name)
	}
	if d.size == 0 || Type(d.buf[d.size-1]) != End {
		panic("dict: buffer is missing its END sentinel")
	}

	removePos, removeLen := 0, 0
	if pos, exists := d.find(name, typ); exists {
		start, curLen := d.valueAt(pos)
		if baseType != Opaque && baseType != String {
			return d.buf[start : start+curLen], true
		}
		if curLen == valueLen {
			return d.buf[start : start+valueLen], true
		}
		if baseType == String && curLen > valueLen {
			shrink := curLen - valueLen
			copy(d.buf[start+valueLen:], d.buf[start+curLen:d.size])
			d.size -= shrink
			newStored := valueLen
			if !isShort {
				newStored = namelen + 1 + valueLen
			}
			d.buf[pos+1] = byte(newStored >> 8)
			d.buf[pos+2] = byte(newStored & 0xff)
			return d.buf[start : start+valueLen], true
		}
		removePos, removeLen = pos, d.recordLen(pos)
	}

	headerSize := 1
	if isShort {
		if baseType == Opaque || baseType == String {
			headerSize += 2
		}
	} else {
		headerSize += 2 + namelen + 1
	}
	if headerSize > 1 && headerSize-3+valueLen > 0xFFFF {
		panic(fmt.Sprintf("dict: attribute %q (%s) size does not fit in 16 bits", name, typ))
	}

	// The old record is only removed once any grow has succeeded, so a
	// failed allocation leaves d exactly as it was.
	needed := d.size - removeLen - 1 + headerSize + valueLen + 1
	if needed > len(d.buf) {
		newBuf, ok := a.Allocate(needed + extraSize)
		if !ok {
			return nil, false
		}
		copy(newBuf, d.buf[:d.size])
		d.buf = newBuf
	}
	if removeLen > 0 {
		copy(d.buf[removePos:], d.buf[removePos+removeLen:d.size])
		d.size -= removeLen
	}

	// The two header shapes diverge enough that writing them inline reads
	// clearer than trying to unify the branches.
	pos := d.size - 1
	if isShort {
		d.buf[pos] = byte(typ)
		pos++
		if baseType == Opaque || baseType == String {
			d.buf[pos] = byte(valueLen >> 8)
			d.buf[pos+1] = byte(valueLen & 0xff)
			pos += 2
		}
	} else {
		d.buf[pos] = byte(typ)
		pos++
		storedSize := namelen + 1 + valueLen
		d.buf[pos] = byte(storedSize >> 8)
		d.buf[pos+1] = byte(storedSize & 0xff)
		pos += 2
		copy(d.buf[pos:], name)
		d.buf[pos+namelen] = 0
		pos += namelen + 1
	}

	valueStart := pos
	d.buf[valueStart+valueLen] = byte(End)
	d.size = valueStart + valueLen + 1
	return d.buf[valueStart : valueStart+valueLen], true
}

// Dump writes one "name (type): value" line per attribute to w, in storage
// order, for interactive inspection. Shorthand attributes print their
// looked-up name; unrecognized shorthand codes fall back to the code's
// numeric form.
func (d *Dict) Dump(w io.Writer) error {
	name, typ := d.Iterate("", End)
	for typ != End {
		displayName := name
		displayType := typ
		if typ > Shorthand {
			if n, base, ok := Name(typ); ok {
				displayName = n
				displayType = base
			}
		}
		val, ok := d.Get(name, typ)
		if !ok {
			return fmt.Errorf("dict: dump: attribute %q vanished mid-iteration", displayName)
		}
		if _, err := fmt.Fprintf(w, "%s (%s): %x\n", displayName, displayType, val); err != nil {
			return err
		}
		name, typ = d.Iterate(name, typ)
	}
	return nil
}
