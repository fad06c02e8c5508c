package dict

// shorthand pairs a well-known attribute name with its base storage type.
// Entry i in the table below is addressed on the wire as shorthand code
// Shorthand + 1 + i; the table is append-only for that reason — inserting
// an entry would silently renumber every code after it.
type shorthand struct {
	name string
	base Type
}

// shorthands is the closed set of well-known attributes this core
// recognizes. Order is part of the wire contract: any two implementations
// that disagree on this table cannot exchange dictionaries.
var shorthands = []shorthand{
	{"f.disc", Void},
	{"f.random", Void},
	{"f.error", Void},
	{"f.def", String},
	{"f.rawdef", String},
	{"f.program", String},
	{"f.lang", String},

	{"k.systime", Unsigned},
	{"k.systime.rap", Unsigned},
	{"k.pts", Unsigned},
	{"k.pts.orig", Unsigned},
	{"k.pts.sys", Unsigned},
	{"k.dts", Unsigned},
	{"k.dts.orig", Unsigned},
	{"k.dts.sys", Unsigned},
	{"k.vbvdelay", Unsigned},
	{"k.duration", Unsigned},

	{"b.start", Void},
	{"b.end", Void},

	{"p.num", Unsigned},
	{"p.hsize", Unsigned},
	{"p.vsize", Unsigned},
	{"p.hsizevis", Unsigned},
	{"p.vsizevis", Unsigned},
	{"p.hposition", Unsigned},
	{"p.vposition", Unsigned},
	{"p.aspect", Rational},
	{"p.progressive", Void},
	{"p.tf", Void},
	{"p.bf", Void},
	{"p.tff", Void},
}

// Well-known shorthand codes, in shorthand-table order. Downstream packages
// (uref, mpeg2video) address attributes by these constants rather than by
// re-deriving the index into the shorthand table.
const (
	ShFDisc Type = Shorthand + 1 + iota
	ShFRandom
	ShFError
	ShFDef
	ShFRawDef
	ShFProgram
	ShFLang

	ShKSystime
	ShKSystimeRap
	ShKPTS
	ShKPTSOrig
	ShKPTSSys
	ShKDTS
	ShKDTSOrig
	ShKDTSSys
	ShKVBVDelay
	ShKDuration

	ShBStart
	ShBEnd

	ShPNum
	ShPHSize
	ShPVSize
	ShPHSizeVis
	ShPVSizeVis
	ShPHPosition
	ShPVPosition
	ShPAspect
	ShPProgressive
	ShPTF
	ShPBF
	ShPTFF
)

// shorthandFor returns the shorthand entry named by code, and false if code
// is not a shorthand or is out of range. The bounds check is strict
// (code-Shorthand-1 must be < len(shorthands)) so an out-of-range code is
// rejected rather than silently indexing into an adjacent entry.
func shorthandFor(code Type) (shorthand, bool) {
	if code <= Shorthand {
		return shorthand{}, false
	}
	idx := int(code) - int(Shorthand) - 1
	if idx < 0 || idx >= len(shorthands) {
		return shorthand{}, false
	}
	return shorthands[idx], true
}

// Name looks up the (name, base type) pair named by a shorthand code. It
// fails if code is not strictly greater than Shorthand or is out of the
// table's range.
func Name(code Type) (name string, base Type, ok bool) {
	sh, ok := shorthandFor(code)
	if !ok {
		return "", 0, false
	}
	return sh.name, sh.base, true
}
