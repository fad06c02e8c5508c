package dictpool

import (
	"testing"

	"github.com/zsiec/framecore/internal/dict"
)

type failingAllocator struct{}

func (failingAllocator) Allocate(int) ([]byte, bool) { return nil, false }

func TestAllocReservesMinSize(t *testing.T) {
	m := NewManager(nil, WithMinSize(256))
	d, ok := m.Alloc(16)
	if !ok {
		t.Fatalf("Alloc failed")
	}
	if d.Cap() < 256 {
		t.Fatalf("Cap() = %d, want >= 256", d.Cap())
	}
	if m.Outstanding() != 1 {
		t.Fatalf("Outstanding() = %d, want 1", m.Outstanding())
	}
}

func TestFreeReturnsShellToPool(t *testing.T) {
	m := NewManager(nil)
	d, _ := m.Alloc(32)
	m.Free(d)
	if m.Outstanding() != 0 {
		t.Fatalf("Outstanding() = %d, want 0", m.Outstanding())
	}
	if len(m.pool) != 1 {
		t.Fatalf("pool len = %d, want 1", len(m.pool))
	}

	d2, ok := m.Alloc(32)
	if !ok {
		t.Fatalf("Alloc after Free failed")
	}
	if d2 != d {
		t.Fatalf("Alloc did not reuse the freed shell")
	}
}

func TestDupCopiesAttributes(t *testing.T) {
	m := NewManager(nil)
	src, _ := m.Alloc(32)
	src.Set(m.Allocator(), m.ExtraSize(), "", dict.ShKPTS, 8)

	dst, ok := m.Dup(src)
	if !ok {
		t.Fatalf("Dup failed")
	}
	if _, ok := dst.Get("", dict.ShKPTS); !ok {
		t.Fatalf("dup missing source attribute")
	}
}

func TestAllocFailurePropagates(t *testing.T) {
	m := NewManager(failingAllocator{})
	if _, ok := m.Alloc(32); ok {
		t.Fatalf("Alloc unexpectedly succeeded against a failing allocator")
	}
	if m.Outstanding() != 0 {
		t.Fatalf("Outstanding() = %d after failed alloc, want 0", m.Outstanding())
	}
}

func TestCloseDefersUntilOutstandingReachesZero(t *testing.T) {
	m := NewManager(nil)
	d, _ := m.Alloc(32)
	m.Close()
	if m.alloc == nil {
		t.Fatalf("manager destroyed while a dictionary is still outstanding")
	}
	m.Free(d)
	if m.alloc != nil {
		t.Fatalf("manager not destroyed after last outstanding dictionary was freed")
	}
}

func TestVacuumDrainsPool(t *testing.T) {
	m := NewManager(nil)
	d, _ := m.Alloc(32)
	m.Free(d)
	m.Vacuum()
	if len(m.pool) != 0 {
		t.Fatalf("pool len = %d after Vacuum, want 0", len(m.pool))
	}
}
