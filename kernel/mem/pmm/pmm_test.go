package pmm

import (
	"gopheros/kernel/mem"
	"testing"
	"unsafe"
)

// resetList clears package state between test cases and installs a fake HHDM
// so that region nodes can be dereferenced against plain Go memory instead of
// real physical addresses.
func resetList(t *testing.T) {
	t.Helper()

	freeList = list{}

	buf := make([]byte, 64*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&buf[0]))
	base = (base + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)

	mem.PublishHHDMBaseForTest(mem.VirtAddr(base))

	t.Cleanup(func() {
		mem.ResetHHDMForTest()
	})
}

func TestFreeFramesCoalesces(t *testing.T) {
	resetList(t)

	FreeFrames(mem.PhysAddr(0x1000), 3)
	FreeFrames(mem.PhysAddr(0x4000), 2)
	FreeFrames(mem.PhysAddr(0x6000), 1)

	node := nodeAt(mem.PhysAddr(0x1000))
	if node.base != 0x1000 || node.len != 6 {
		t.Fatalf("expected single coalesced run {0x1000, 6}; got {%#x, %d}", node.base, node.len)
	}
	if node.hasNext || node.hasPrev {
		t.Fatalf("expected the coalesced run to have no neighbors")
	}

	addr, ok := AllocFrames(2)
	if !ok || addr != mem.PhysAddr(0x5000) {
		t.Fatalf("expected AllocFrames(2) to return 0x5000; got %#x, %v", addr, ok)
	}

	node = nodeAt(mem.PhysAddr(0x1000))
	if node.len != 4 {
		t.Fatalf("expected remaining run length 4; got %d", node.len)
	}
}

func TestFreeFramesNonAdjacent(t *testing.T) {
	resetList(t)

	FreeFrames(mem.PhysAddr(0x1000), 1)
	FreeFrames(mem.PhysAddr(0x3000), 1)

	if !freeList.hasHead || !freeList.hasTail || freeList.head == freeList.tail {
		t.Fatalf("expected two distinct runs to remain separate")
	}

	addr, ok := AllocFrames(1)
	if !ok || addr != mem.PhysAddr(0x3000) {
		t.Fatalf("expected AllocFrames(1) to return 0x3000; got %#x, %v", addr, ok)
	}

	node := nodeAt(mem.PhysAddr(0x1000))
	if node.base != 0x1000 || node.len != 1 || node.hasNext {
		t.Fatalf("expected a single remaining run {0x1000, 1}; got {%#x, %d, hasNext=%v}", node.base, node.len, node.hasNext)
	}
}

func TestAllocFramesExactRunRemovesIt(t *testing.T) {
	resetList(t)

	FreeFrames(mem.PhysAddr(0x1000), 2)

	addr, ok := AllocFrames(2)
	if !ok || addr != mem.PhysAddr(0x1000) {
		t.Fatalf("expected AllocFrames(2) to return 0x1000; got %#x, %v", addr, ok)
	}
	if freeList.hasHead || freeList.hasTail {
		t.Fatalf("expected the free list to be empty after exhausting its only run")
	}
}

func TestAllocFramesNoFit(t *testing.T) {
	resetList(t)

	FreeFrames(mem.PhysAddr(0x1000), 1)

	if _, ok := AllocFrames(2); ok {
		t.Fatalf("expected AllocFrames(2) to fail when the largest run has only 1 frame")
	}
}

func TestFreeFramesCoalesceLaw(t *testing.T) {
	resetList(t)
	FreeFrames(mem.PhysAddr(0x1000), 3)
	FreeFrames(mem.PhysAddr(0x4000), 2)
	left := nodeAt(mem.PhysAddr(0x1000))
	leftLen, leftHasNext := left.len, left.hasNext

	resetList(t)
	FreeFrames(mem.PhysAddr(0x1000), 5)
	right := nodeAt(mem.PhysAddr(0x1000))

	if leftLen != right.len || leftHasNext != right.hasNext {
		t.Fatalf("coalescing two adjacent frees should equal one combined free: got %d/%v vs %d/%v",
			leftLen, leftHasNext, right.len, right.hasNext)
	}
}
