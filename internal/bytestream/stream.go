// Package bytestream implements a fragmented byte-stream accumulator: a
// FIFO queue of buffers presented to callers as one contiguous logical byte
// range, so a framer can scan for start codes and extract frame payloads
// without caring how the input was chunked on the wire.
package bytestream

// Stream accumulates buffers in append order and exposes them as one
// logical byte range. It is not safe for concurrent use; per the
// single-threaded cooperative model this core is built for, one framer
// drives one Stream from one goroutine.
type Stream struct {
	frags     [][]byte
	headOff   int
	onPromote func()
}

// New creates an empty Stream. onPromote, if non-nil, is called every time
// the head fragment is fully consumed and a queued fragment is promoted to
// take its place — the hook a framer uses to copy the new head's carried
// timestamps into pending attribute slots.
func New(onPromote func()) *Stream {
	return &Stream{onPromote: onPromote}
}

// Append enqueues buf. The first appended buffer becomes the head; later
// ones wait to be promoted as earlier ones are fully consumed.
func (s *Stream) Append(buf []byte) {
	if len(buf) == 0 {
		return
	}
	s.frags = append(s.frags, buf)
}

// Len returns the number of unconsumed logical bytes across all fragments.
func (s *Stream) Len() int {
	if len(s.frags) == 0 {
		return 0
	}
	total := len(s.frags[0]) - s.headOff
	for _, f := range s.frags[1:] {
		total += len(f)
	}
	return total
}

// locate maps a logical offset (0 == first unconsumed byte) to a fragment
// index and the offset within that fragment's backing slice.
func (s *Stream) locate(offset int) (idx, within int, ok bool) {
	if offset < 0 || len(s.frags) == 0 {
		return 0, 0, false
	}
	first := len(s.frags[0]) - s.headOff
	if offset < first {
		return 0, s.headOff + offset, true
	}
	remaining := offset - first
	for i := 1; i < len(s.frags); i++ {
		if remaining < len(s.frags[i]) {
			return i, remaining, true
		}
		remaining -= len(s.frags[i])
	}
	return 0, 0, false
}

func (s *Stream) byteAt(offset int) (byte, bool) {
	idx, within, ok := s.locate(offset)
	if !ok {
		return 0, false
	}
	return s.frags[idx][within], true
}

// Find searches for pattern starting at logical offset and returns the
// offset of the first match. It reports false if pattern does not occur
// before the stream's current end.
func (s *Stream) Find(pattern []byte, offset int) (int, bool) {
	if len(pattern) == 0 {
		return offset, true
	}
	limit := s.Len() - len(pattern)
	for pos := offset; pos <= limit; pos++ {
		matched := true
		for i := range pattern {
			b, ok := s.byteAt(pos + i)
			if !ok || b != pattern[i] {
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

// Extract copies length bytes starting at offset into dst, which must have
// capacity for at least length bytes. It reports false, leaving dst
// untouched, if the requested range extends past the stream's end.
func (s *Stream) Extract(offset, length int, dst []byte) bool {
	if offset < 0 || length < 0 || offset+length > s.Len() {
		return false
	}
	idx, within, ok := s.locate(offset)
	if !ok {
		if length == 0 {
			return true
		}
		return false
	}
	n := 0
	for n < length {
		frag := s.frags[idx][within:]
		take := len(frag)
		if take > length-n {
			take = length - n
		}
		copy(dst[n:n+take], frag[:take])
		n += take
		idx++
		within = 0
	}
	return true
}

// Peek returns a view of length bytes starting at offset. If the range
// lies entirely within one fragment, the returned slice aliases the
// fragment directly and unmap is a no-op. Otherwise the range is copied
// into scratch (which must have length capacity) and unmap is again a
// no-op — callers still must not retain the returned slice past their next
// mutating call, since scratch ownership is theirs either way.
func (s *Stream) Peek(offset, length int, scratch []byte) (data []byte, unmap func(), ok bool) {
	if offset < 0 || length < 0 || offset+length > s.Len() {
		return nil, nil, false
	}
	if length == 0 {
		return nil, func() {}, true
	}
	idx, within, ok := s.locate(offset)
	if !ok {
		return nil, nil, false
	}
	if within+length <= len(s.frags[idx]) {
		return s.frags[idx][within : within+length], func() {}, true
	}
	if len(scratch) < length {
		return nil, nil, false
	}
	if !s.Extract(offset, length, scratch) {
		return nil, nil, false
	}
	return scratch[:length], func() {}, true
}

// Consume drops the first n logical bytes. A fragment fully drained by the
// drop is retired; if another fragment is queued behind it, it is promoted
// to head and onPromote is invoked.
func (s *Stream) Consume(n int) {
	for n > 0 && len(s.frags) > 0 {
		avail := len(s.frags[0]) - s.headOff
		if n < avail {
			s.headOff += n
			return
		}
		n -= avail
		s.frags = s.frags[1:]
		s.headOff = 0
		if len(s.frags) > 0 && s.onPromote != nil {
			s.onPromote()
		}
	}
}

// Clean discards every buffered fragment.
func (s *Stream) Clean() {
	s.frags = nil
	s.headOff = 0
}
