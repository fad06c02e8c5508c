package dict

import "testing"

func newTestDict(t *testing.T, size int) *Dict {
	t.Helper()
	d := &Dict{}
	if !d.Init(SliceAllocator{}, size) {
		t.Fatalf("Init(%d) failed", size)
	}
	return d
}

func TestSetGetShorthandUnsigned(t *testing.T) {
	d := newTestDict(t, 32)
	v, ok := d.Set(SliceAllocator{}, 64, "", ShKPTS, 8)
	if !ok {
		t.Fatalf("Set failed")
	}
	if len(v) != 8 {
		t.Fatalf("value len = %d, want 8", len(v))
	}
	// 9000 as an 8-byte big-endian value.
	for i := range v {
		v[i] = 0
	}
	v[6], v[7] = 0x23, 0x28 // 9000

	got, ok := d.Get("", ShKPTS)
	if !ok {
		t.Fatalf("Get failed after Set")
	}
	var n uint64
	for _, b := range got {
		n = n<<8 | uint64(b)
	}
	if n != 9000 {
		t.Fatalf("got %d, want 9000", n)
	}
}

func TestDeleteShorthand(t *testing.T) {
	d := newTestDict(t, 32)
	d.Set(SliceAllocator{}, 64, "", ShKPTS, 8)
	if !d.Delete("", ShKPTS) {
		t.Fatalf("Delete reported not found")
	}
	if _, ok := d.Get("", ShKPTS); ok {
		t.Fatalf("Get succeeded after Delete")
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (bare END)", d.Len())
	}
}

func TestSetStringShrinkInPlace(t *testing.T) {
	d := newTestDict(t, 64)
	v, ok := d.Set(SliceAllocator{}, 64, "", ShFDef, 6)
	if !ok {
		t.Fatalf("Set failed")
	}
	copy(v, "block\x00")

	v2, ok := d.Set(SliceAllocator{}, 64, "", ShFDef, 3)
	if !ok {
		t.Fatalf("shrinking Set failed")
	}
	if string(v2) != "blo" {
		t.Fatalf("got %q, want %q", v2, "blo")
	}

	got, ok := d.Get("", ShFDef)
	if !ok {
		t.Fatalf("Get failed after shrink")
	}
	if string(got) != "blo" {
		t.Fatalf("Get after shrink = %q, want %q", got, "blo")
	}
}

func TestSetStringShrinkPreservesLaterAttributes(t *testing.T) {
	d := newTestDict(t, 64)
	v, ok := d.Set(SliceAllocator{}, 64, "", ShFDef, 6)
	if !ok {
		t.Fatalf("Set failed")
	}
	copy(v, "block\x00")

	if _, ok := d.Set(SliceAllocator{}, 64, "", ShPHSize, 8); !ok {
		t.Fatalf("Set of trailing attribute failed")
	}

	if _, ok := d.Set(SliceAllocator{}, 64, "", ShFDef, 3); !ok {
		t.Fatalf("shrinking Set failed")
	}

	if _, ok := d.Get("", ShPHSize); !ok {
		t.Fatalf("attribute after a shrunk string became unreachable")
	}

	name, typ := d.Iterate("", End)
	count := 0
	for typ != End {
		count++
		name, typ = d.Iterate(name, typ)
	}
	if count != 2 {
		t.Fatalf("Iterate visited %d attributes, want 2", count)
	}
}

func TestSetLongFormNamedAttribute(t *testing.T) {
	d := newTestDict(t, 32)
	v, ok := d.Set(SliceAllocator{}, 64, "x.custom", Opaque, 4)
	if !ok {
		t.Fatalf("Set failed")
	}
	copy(v, []byte{1, 2, 3, 4})

	got, ok := d.Get("x.custom", Opaque)
	if !ok {
		t.Fatalf("Get failed")
	}
	if len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Fatalf("got %v", got)
	}

	if !d.Delete("x.custom", Opaque) {
		t.Fatalf("Delete reported not found")
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d after delete, want 1", d.Len())
	}
}

func TestDupProducesIndependentEqualCopy(t *testing.T) {
	src := newTestDict(t, 64)
	src.Set(SliceAllocator{}, 64, "", ShPHSize, 8)
	src.Set(SliceAllocator{}, 64, "", ShPVSize, 8)
	src.Set(SliceAllocator{}, 64, "", ShPAspect, 16)

	dst := &Dict{}
	if !dst.Init(SliceAllocator{}, src.Len()) {
		t.Fatalf("Init failed")
	}
	dst.CopyFrom(src)

	if dst.Len() != src.Len() {
		t.Fatalf("dup length mismatch: %d vs %d", dst.Len(), src.Len())
	}
	if string(dst.Bytes()) != string(src.Bytes()) {
		t.Fatalf("dup bytes mismatch")
	}

	// Mutating dst must not affect src.
	dst.Delete("", ShPHSize)
	if dst.Len() == src.Len() {
		t.Fatalf("dup shares storage with src")
	}
	if _, ok := src.Get("", ShPHSize); !ok {
		t.Fatalf("delete on dup affected src")
	}
}

func TestIterateVisitsEveryAttributeOnce(t *testing.T) {
	d := newTestDict(t, 64)
	d.Set(SliceAllocator{}, 64, "", ShFDisc, 0)
	d.Set(SliceAllocator{}, 64, "a.one", Opaque, 2)
	d.Set(SliceAllocator{}, 64, "", ShKPTS, 8)

	var names []string
	var types []Type
	name, typ := d.Iterate("", End)
	for typ != End {
		names = append(names, name)
		types = append(types, typ)
		name, typ = d.Iterate(name, typ)
	}

	if len(types) != 3 {
		t.Fatalf("got %d attributes, want 3: %v", len(types), types)
	}
	if types[0] != ShFDisc || types[1] != Opaque || types[2] != ShKPTS {
		t.Fatalf("unexpected order/types: %v", types)
	}
	if names[1] != "a.one" {
		t.Fatalf("names[1] = %q, want a.one", names[1])
	}
}

func TestGetMissingFails(t *testing.T) {
	d := newTestDict(t, 8)
	if _, ok := d.Get("", ShKPTS); ok {
		t.Fatalf("Get on empty dict succeeded")
	}
}

func TestSetGrowsAndPreservesExistingAttributes(t *testing.T) {
	d := newTestDict(t, 4) // deliberately tiny to force at least one grow
	for i, code := range []Type{ShFDisc, ShFRandom, ShKPTS, ShKDTS, ShPHSize, ShPVSize} {
		size := 0
		if code == ShKPTS || code == ShKDTS || code == ShPHSize || code == ShPVSize {
			size = 8
		}
		if _, ok := d.Set(SliceAllocator{}, 16, "", code, size); !ok {
			t.Fatalf("Set #%d failed", i)
		}
	}
	if _, ok := d.Get("", ShFDisc); !ok {
		t.Fatalf("first attribute lost after grow")
	}
	if _, ok := d.Get("", ShPVSize); !ok {
		t.Fatalf("last attribute missing")
	}
}

func TestNameLooksUpShorthandTable(t *testing.T) {
	name, base, ok := Name(ShKPTS)
	if !ok || name != "k.pts" || base != Unsigned {
		t.Fatalf("Name(ShKPTS) = %q, %v, %v", name, base, ok)
	}
	if _, _, ok := Name(Shorthand); ok {
		t.Fatalf("Name(Shorthand) should fail: it is the sentinel, not a code")
	}
	if _, _, ok := Name(Type(255)); ok {
		t.Fatalf("Name(255) should fail: out of table range")
	}
}
