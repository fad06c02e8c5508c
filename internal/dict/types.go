// Package dict implements an inline attribute dictionary: a self-describing
// set of typed key/value attributes packed into a single contiguous byte
// buffer, so that dictionaries can be copied, pooled, and transmitted as
// plain bytes. It also holds the static shorthand registry that maps
// well-known attribute names to compact one-byte type codes.
//
// The encoding is deliberately close to the wire: every mutation keeps the
// buffer terminated by a single END byte and shifts bytes in place rather
// than building an intermediate representation, so a Dict's buffer can be
// handed directly to a transport without a serialization pass.
package dict

import "fmt"

// Type identifies the on-buffer representation of an attribute. Values
// greater than Shorthand are not literal types: they are shorthand codes
// naming a (name, base type) pair in the shorthand table.
type Type uint8

const (
	End Type = iota
	Opaque
	String
	Void
	Bool
	SmallUnsigned
	SmallInt
	Unsigned
	Int
	Rational
	Float

	// Shorthand is a sentinel: any Type value greater than Shorthand is a
	// shorthand code, not a literal base type. Shorthand codes are assigned
	// Shorthand+1, Shorthand+2, ... in shorthand-table order.
	Shorthand
)

func (t Type) String() string {
	switch t {
	case End:
		return "end"
	case Opaque:
		return "opaque"
	case String:
		return "string"
	case Void:
		return "void"
	case Bool:
		return "bool"
	case SmallUnsigned:
		return "small_unsigned"
	case SmallInt:
		return "small_int"
	case Unsigned:
		return "unsigned"
	case Int:
		return "int"
	case Rational:
		return "rational"
	case Float:
		return "float"
	}
	if t > Shorthand {
		return fmt.Sprintf("shorthand(%d)", t)
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// fixedSize maps a base type to its fixed value size in bytes, for the
// types whose value is not variable-length. Opaque and String are variable
// and have no entry here; IsFixedSize reports which types are covered.
var fixedSize = map[Type]int{
	Void:          0,
	Bool:          1,
	SmallUnsigned: 1,
	SmallInt:      1,
	Unsigned:      8,
	Int:           8,
	Rational:      16,
	Float:         8,
}

// IsFixedSize reports whether base has a fixed value size (every base type
// except Opaque and String).
func IsFixedSize(base Type) bool {
	_, ok := fixedSize[base]
	return ok
}

// FixedSize returns the fixed value size of base, and false if base is
// Opaque, String, or not a recognized base type.
func FixedSize(base Type) (int, bool) {
	n, ok := fixedSize[base]
	return n, ok
}

// Rat is a rational number stored as two big-endian 64-bit integers, used
// for the Rational attribute type (e.g. pixel aspect ratio, frame rate).
type Rat struct {
	Num int64
	Den int64
}

// Simplify reduces r to lowest terms. A zero denominator is left untouched.
func (r Rat) Simplify() Rat {
	if r.Den == 0 {
		return r
	}
	a, b := r.Num, r.Den
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	g := a
	if g == 0 {
		return r
	}
	return Rat{Num: r.Num / g, Den: r.Den / g}
}
