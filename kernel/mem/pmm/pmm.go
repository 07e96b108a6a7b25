// Package pmm implements the kernel's physical memory manager: an intrusive,
// doubly-linked free-list of contiguous page-frame runs. The list carries no
// side allocation of its own; each node lives inside the very frames it
// describes, reached through the higher-half direct map (HHDM). This avoids
// the chicken-and-egg problem of needing a heap before a heap exists.
package pmm

import (
	"gopheros/kernel"
	"gopheros/kernel/kfmt"
	"gopheros/kernel/mem"
	"gopheros/kernel/sync"
	"unsafe"
)

var (
	errOverlappingRegion = &kernel.Error{Module: "pmm", Message: "free region overlaps an existing free run"}
	errUnalignedBase     = &kernel.Error{Module: "pmm", Message: "region base is not page-aligned"}

	// lock serializes all access to the free list. It must be acquired
	// with interrupts disabled; holding it across a fault that re-enters
	// the PMM (or the HAT, which allocates frames from it) deadlocks.
	lock sync.Spinlock

	freeList list
)

// region is the intrusive free-list node. It describes a run of len
// contiguous free frames starting at base. The struct is written directly
// into the first bytes of the run it describes; everything from
// [base, base+PageSize) is considered allocator-owned once a region claims
// it, and callers must never touch memory belonging to a free run.
type region struct {
	base    mem.PhysAddr
	len     uintptr
	next    mem.PhysAddr
	prev    mem.PhysAddr
	hasNext bool
	hasPrev bool
}

// list is the sorted-by-base doubly-linked list of free regions. head/tail
// are tracked by physical address rather than by pointer so that an empty
// list (no node at all) is distinguishable from a list whose single node
// happens to live at physical address 0.
type list struct {
	head    mem.PhysAddr
	tail    mem.PhysAddr
	hasHead bool
	hasTail bool
}

// nodeAt dereferences the region node living at the start of the run based
// at addr. The node is only ever reached this way: through the HHDM, never
// through a Go pointer that purports to own the memory.
func nodeAt(addr mem.PhysAddr) *region {
	return (*region)(unsafe.Pointer(uintptr(addr.ToVirtual())))
}

// FreeFrames returns n contiguous page frames starting at base to the
// allocator. base must be page-aligned and n must be greater than zero. The
// supplied range must not overlap any currently-free run; overlap is a
// fatal, unrecoverable programming error and this function panics rather
// than attempt to continue with a corrupted free list.
func FreeFrames(base mem.PhysAddr, n uintptr) {
	if uintptr(base)&uintptr(mem.PageSize-1) != 0 {
		panic(errUnalignedBase)
	}
	if n == 0 {
		return
	}

	lock.Acquire()
	defer lock.Release()

	freeList.insert(base, n)
}

// insert walks the list from the tail looking for the insertion point,
// asserts non-overlap against both neighbors, coalesces with either
// neighbor when the new run is contiguous with it, and otherwise links in a
// fresh node. Mirrors the original kernel's insert_region exactly: walking
// from the tail keeps the common case (bulk-freeing the boot memory map in
// ascending address order) close to O(1).
func (l *list) insert(base mem.PhysAddr, n uintptr) {
	newEnd := base.Add(uintptr(n) * uintptr(mem.PageSize))

	if !l.hasTail {
		l.head, l.tail = base, base
		l.hasHead, l.hasTail = true, true
		node := nodeAt(base)
		*node = region{base: base, len: n}
		return
	}

	cur, hasCur := l.tail, l.hasTail
	for hasCur {
		curNode := nodeAt(cur)
		if curNode.base <= base {
			break
		}
		cur, hasCur = curNode.prev, curNode.hasPrev
	}

	// cur (if valid) is now the region immediately preceding the
	// insertion point; curNode.next (if any) is the region immediately
	// following it.
	var (
		prevAddr mem.PhysAddr
		hasPrev  bool
		nextAddr mem.PhysAddr
		hasNext  bool
	)

	if hasCur {
		prevAddr, hasPrev = cur, true
		prevNode := nodeAt(cur)
		nextAddr, hasNext = prevNode.next, prevNode.hasNext
	} else {
		nextAddr, hasNext = l.head, l.hasHead
	}

	if hasPrev {
		prevNode := nodeAt(prevAddr)
		prevEnd := prevNode.base.Add(uintptr(prevNode.len) * uintptr(mem.PageSize))
		if prevEnd > base {
			panic(errOverlappingRegion)
		}
		if prevEnd == base {
			// Coalesce left: grow the preceding run instead of
			// inserting a new node.
			prevNode.len += n
			if hasNext {
				nextNode := nodeAt(nextAddr)
				if prevNode.base.Add(uintptr(prevNode.len)*uintptr(mem.PageSize)) == nextNode.base {
					l.coalesceRight(prevAddr, prevNode, nextAddr, nextNode)
				}
			}
			return
		}
	}

	if hasNext {
		nextNode := nodeAt(nextAddr)
		if newEnd > nextNode.base {
			panic(errOverlappingRegion)
		}
		if newEnd == nextNode.base {
			// Coalesce right: absorb the following run into the
			// new node written at base.
			node := nodeAt(base)
			*node = region{
				base:    base,
				len:     n + nextNode.len,
				next:    nextNode.next,
				hasNext: nextNode.hasNext,
				prev:    prevAddr,
				hasPrev: hasPrev,
			}
			l.relink(base, hasPrev, prevAddr, node.next, node.hasNext)
			return
		}
	}

	// No adjacency on either side: link in a standalone node.
	node := nodeAt(base)
	*node = region{base: base, len: n, prev: prevAddr, hasPrev: hasPrev, next: nextAddr, hasNext: hasNext}
	l.relink(base, hasPrev, prevAddr, nextAddr, hasNext)
}

// coalesceRight folds the region at nextAddr into prevNode (which has just
// absorbed a left-adjacent free) and removes nextAddr from the list.
func (l *list) coalesceRight(prevAddr mem.PhysAddr, prevNode *region, nextAddr mem.PhysAddr, nextNode *region) {
	prevNode.len += nextNode.len
	prevNode.next, prevNode.hasNext = nextNode.next, nextNode.hasNext
	if nextNode.hasNext {
		nodeAt(nextNode.next).prev, nodeAt(nextNode.next).hasPrev = prevAddr, true
	} else {
		l.tail, l.hasTail = prevAddr, true
	}
}

// relink patches the prev/next pointers of the neighbors of a freshly
// written node at addr into place, and updates head/tail if the node sits at
// either end.
func (l *list) relink(addr mem.PhysAddr, hasPrev bool, prevAddr mem.PhysAddr, nextAddr mem.PhysAddr, hasNext bool) {
	if hasPrev {
		nodeAt(prevAddr).next, nodeAt(prevAddr).hasNext = addr, true
	} else {
		l.head, l.hasHead = addr, true
	}

	if hasNext {
		nodeAt(nextAddr).prev, nodeAt(nextAddr).hasPrev = addr, true
	} else {
		l.tail, l.hasTail = addr, true
	}
}

// AllocFrames reserves n contiguous page frames and returns the physical
// address of the first one. The search walks the list from the
// highest-addressed run towards the lowest, taking the first run whose
// length is at least n and carving the requested frames from its top (the
// highest addresses in the run). This keeps low memory, which is often the
// only DMA-capable region, intact for longer. AllocFrames reports false when
// no run is large enough to satisfy the request.
func AllocFrames(n uintptr) (mem.PhysAddr, bool) {
	if n == 0 {
		return 0, false
	}

	lock.Acquire()
	defer lock.Release()

	return freeList.alloc(n)
}

func (l *list) alloc(n uintptr) (mem.PhysAddr, bool) {
	cur, hasCur := l.tail, l.hasTail
	for hasCur {
		node := nodeAt(cur)
		if node.len >= n {
			node.len -= n
			addr := node.base.Add(uintptr(node.len) * uintptr(mem.PageSize))
			if node.len == 0 {
				l.remove(node)
			}
			return addr, true
		}
		cur, hasCur = node.prev, node.hasPrev
	}

	return 0, false
}

// remove unlinks a now-empty node from the list.
func (l *list) remove(node *region) {
	if node.hasPrev {
		nodeAt(node.prev).next, nodeAt(node.prev).hasNext = node.next, node.hasNext
	} else {
		l.head, l.hasHead = node.next, node.hasNext
	}

	if node.hasNext {
		nodeAt(node.next).prev, nodeAt(node.next).hasPrev = node.prev, node.hasPrev
	} else {
		l.tail, l.hasTail = node.prev, node.hasPrev
	}
}

// PrintMmap dumps the current free list for diagnostics.
func PrintMmap() {
	lock.Acquire()
	defer lock.Release()

	kfmt.Printf("[pmm] free regions:\n")
	cur, hasCur := freeList.head, freeList.hasHead
	for hasCur {
		node := nodeAt(cur)
		kfmt.Printf("\t[0x%16x - 0x%16x] (%d frames)\n",
			uint64(node.base), uint64(node.base)+uint64(node.len)*uint64(mem.PageSize), uint64(node.len))
		cur, hasCur = node.next, node.hasNext
	}
}
