package hat

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"testing"
	"unsafe"
)

// fakeMmu installs a minimal, architecture-agnostic MmuInfo (2 levels, 512
// entries/table, x86_64-shaped flag bits) against a backing Go byte slice
// published as the HHDM, so the generic walker can be exercised without a
// real CPU or page tables.
func fakeMmu(t *testing.T) {
	t.Helper()

	const (
		present PteFlags = 1 << 0
		write   PteFlags = 1 << 1
		user    PteFlags = 1 << 2
		huge    PteFlags = 1 << 7
		nx      PteFlags = 1 << 63
	)

	buf := make([]byte, 256*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&buf[0]))
	base = (base + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	mem.PublishHHDMBaseForTest(mem.VirtAddr(base))

	m := MmuInfo{
		Bits:         48,
		Levels:       2,
		MaxLevel:     1,
		PtesPerTable: 512,
		IndexBits:    9,
		AddrMask:     0x000f_ffff_ffff_f000,
		PresentBit:   present,
		HugeBit:      huge,
		LeafBits:     huge,
		WriteBit:     write,
		UserBit:      user,
		NXBit:        nx,
		ParentFlags:  present | user | write,
		PageSizeBytes: [numPageSizes]uintptr{
			Size4KiB: uintptr(mem.PageSize),
			Size2MiB: 2 * 1024 * 1024,
		},
		PteFlagsForLevel: [numPageSizes]PteFlags{
			Size4KiB: 0,
			Size2MiB: huge,
		},
		NXSupported: true,
	}
	m.Prot = newProtMapForTest(nx, write, user)

	resetMmuForTest(m)

	t.Cleanup(func() {
		mem.ResetHHDMForTest()
		resetMmuForTest(MmuInfo{})
		infoPublished = false
	})
}

func newProtMapForTest(nxBit, writeBit, userBit PteFlags) ProtMap {
	basic := [4]PteFlags{nxBit, 0, writeBit | nxBit, writeBit}
	var m ProtMap
	for i := 0; i < 16; i++ {
		v := basic[i&0x3]
		if i&int(ProtUser) != 0 {
			v |= userBit
		}
		m[i] = v
	}
	return m
}

func resetMmuForTest(m MmuInfo) {
	info = m
	infoPublished = true
}

func newTestHat(t *testing.T) *Hat {
	t.Helper()
	frameAllocFn = allocFrameForTest
	top, _ := frameAllocFn()
	return &Hat{topLevel: top}
}

// allocFrameForTest hands out successive pages from the fake HHDM region
// without going through the real pmm package (which would need its own
// free-list seeding); each call just carves the next untouched page.
var testNextFrame mem.PhysAddr

func allocFrameForTest() (mem.PhysAddr, *kernel.Error) {
	addr := testNextFrame
	testNextFrame = testNextFrame.Add(uintptr(mem.PageSize))
	return addr, nil
}

func TestMapPages4KiB(t *testing.T) {
	fakeMmu(t)
	testNextFrame = 0
	h := newTestHat(t)

	virt := mem.VirtAddr(0xffff_8000_0000_0000)
	phys := mem.PhysAddr(0x10_0000)

	if err := h.MapPages(virt, phys, 0x2000, Size4KiB, ProtRead|ProtWrite); err != nil {
		t.Fatalf("MapPages failed: %v", err)
	}

	top := tableAt(h.topLevel)
	pml4e := top[levelIndex(virt, 1)]
	if !pml4e.Present() || pml4e.Huge() {
		t.Fatalf("expected a present, non-huge intermediate entry")
	}

	leafTable := tableAt(pml4e.Addr())
	for i, wantPhys := range []mem.PhysAddr{0x10_0000, 0x10_1000} {
		e := leafTable[levelIndex(virt, 0)+uint(i)]
		if !e.Present() {
			t.Fatalf("leaf %d not present", i)
		}
		if e.Addr() != wantPhys {
			t.Fatalf("leaf %d: expected phys %#x, got %#x", i, wantPhys, e.Addr())
		}
		if !e.Flags().HasFlags(info.WriteBit) {
			t.Fatalf("leaf %d: expected WRITE set", i)
		}
		if !e.Flags().HasFlags(info.NXBit) {
			t.Fatalf("leaf %d: expected NX set (no exec requested)", i)
		}
	}
}

func TestMapPagesIdempotent(t *testing.T) {
	fakeMmu(t)
	testNextFrame = 0
	h := newTestHat(t)

	virt := mem.VirtAddr(0xffff_8000_0000_1000)
	phys := mem.PhysAddr(0x20_0000)

	if err := h.MapPages(virt, phys, 0x1000, Size4KiB, ProtRead|ProtWrite); err != nil {
		t.Fatalf("first map failed: %v", err)
	}
	if err := h.MapPages(virt, phys, 0x1000, Size4KiB, ProtRead|ProtWrite); err != nil {
		t.Fatalf("identical remap should be a no-op, got: %v", err)
	}
	if err := h.MapPages(virt, phys.Add(uintptr(mem.PageSize)), 0x1000, Size4KiB, ProtRead|ProtWrite); err == nil {
		t.Fatalf("expected AlreadyMapped error when remapping with a different phys addr")
	} else if amErr, ok := err.(*AlreadyMappedError); !ok || amErr.Prev != phys {
		t.Fatalf("expected *AlreadyMappedError{Prev: %#x}, got %v", phys, err)
	}
}

func TestUnmapPagesClearsLeaves(t *testing.T) {
	fakeMmu(t)
	testNextFrame = 0
	h := newTestHat(t)

	virt := mem.VirtAddr(0xffff_8000_0000_2000)
	phys := mem.PhysAddr(0x30_0000)

	if err := h.MapPages(virt, phys, 0x1000, Size4KiB, ProtRead|ProtWrite); err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if err := h.UnmapPages(virt, 0x1000, Size4KiB); err != nil {
		t.Fatalf("unmap failed: %v", err)
	}

	top := tableAt(h.topLevel)
	pml4e := top[levelIndex(virt, 1)]
	leafTable := tableAt(pml4e.Addr())
	if leafTable[levelIndex(virt, 0)].Present() {
		t.Fatalf("expected leaf to be cleared after unmap")
	}
	if !pml4e.Present() {
		t.Fatalf("intermediate table should still exist after unmap")
	}
}

// TestMapPagesSmallThroughHugeConflict maps a huge page, then asks for a
// small-page mapping in the same region: walkToLevel must descend through
// the huge entry to reach the 4 KiB leaf level, and that descent is the
// fatal invariant violation MapPages documents.
func TestMapPagesSmallThroughHugeConflict(t *testing.T) {
	fakeMmu(t)
	testNextFrame = 0
	h := newTestHat(t)

	virt := mem.VirtAddr(0xffff_8000_0000_0000)
	phys := mem.PhysAddr(0x20_0000)

	if err := h.MapPages(virt, phys, 0x200000, Size2MiB, ProtRead|ProtWrite); err != nil {
		t.Fatalf("initial huge map failed: %v", err)
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected mapping a small page through an existing huge entry to panic")
		}
		if r != errTableOverlapsHugePage {
			t.Fatalf("expected errTableOverlapsHugePage, got %v", r)
		}
	}()
	_ = h.MapPages(virt, phys, 0x1000, Size4KiB, ProtRead|ProtWrite)
}
