// Package hat implements the hardware address translation layer: a
// multi-level page-table manager shared, in shape, by every supported
// architecture. Architecture-specific files populate the MmuInfo that
// drives this generic walker (level count, flag bit positions, available
// page sizes); the walk, map and unmap algorithms themselves do not need to
// know which architecture they are running on.
package hat

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/sync"
	"unsafe"
)

// AlreadyMappedError is returned by MapPages when a leaf entry is already
// present with a physical address different from the one requested.
// Remapping the same address is not an error — it is treated as an
// idempotent no-op.
type AlreadyMappedError struct {
	// Prev is the physical address the entry already pointed at.
	Prev mem.PhysAddr
}

func (e *AlreadyMappedError) Error() string {
	return "hat: virtual address already mapped"
}

var (
	errTableOverlapsHugePage = &kernel.Error{Module: "hat", Message: "intermediate entry is a huge page"}
	errHugePageOverlapsTable = &kernel.Error{Module: "hat", Message: "huge page would replace an intermediate table"}
	errNonCanonicalAddr      = &kernel.Error{Module: "hat", Message: "virtual address is not canonical"}
	errMisaligned            = &kernel.Error{Module: "hat", Message: "address or size is not page-size aligned"}

	initialPtes          []Pte
	initialPtesPublished bool

	// frameAllocFn is mocked by tests that cannot seed a real PMM free
	// list.
	frameAllocFn = pmm.AllocFrame
)

// PublishInitialPtes installs the kernel's golden copy of the shared
// top-level page-table entries (the kernel half of the address space). Must
// be called exactly once, before the first call to New.
func PublishInitialPtes(ptes []Pte) {
	if initialPtesPublished {
		panic(&kernel.Error{Module: "hat", Message: "initial PTEs published more than once"})
	}
	initialPtes = ptes
	initialPtesPublished = true
}

// Hat owns one address space's page-table tree: the top-level table frame,
// a cached hardware root-register value (CR3 on x86_64, SATP on RISC-V,
// including PCID/ASID when applicable), and per-page-size mapped-page
// accounting. Mutation is serialized by an internal lock; callers are
// expected to additionally run with interrupts disabled, since an interrupt
// handler that itself allocates inside the same Hat would deadlock.
type Hat struct {
	lock sync.Spinlock

	topLevel mem.PhysAddr
	pcid     uintptr
	root     uintptr

	mappedPages [numPageSizes]uintptr
}

// New allocates a fresh top-level table and seeds its upper half with the
// shared kernel entries published via PublishInitialPtes. asid becomes the
// PCID/ASID recorded in the cached root value (masked to 12 bits, matching
// the x86_64 PCID field width).
func New(asid uintptr) (*Hat, *kernel.Error) {
	top, err := frameAllocFn()
	if err != nil {
		return nil, err
	}

	if initialPtesPublished {
		dst := tableAt(top)
		half := info.PtesPerTable / 2
		n := (uintptr(len(initialPtes)) - uintptr(half)) * unsafe.Sizeof(Pte(0))
		kernel.Memcopy(
			uintptr(unsafe.Pointer(&initialPtes[half])),
			uintptr(unsafe.Pointer(&dst[half])),
			n,
		)
	}

	h := &Hat{
		topLevel: top,
		pcid:     asid & 0xfff,
	}
	h.root = archRoot(top, h.pcid)

	return h, nil
}

// tableAt views the page-table page at addr (reached through the HHDM) as a
// slice of PTEs.
func tableAt(addr mem.PhysAddr) []Pte {
	return unsafe.Slice((*Pte)(unsafe.Pointer(uintptr(addr.ToVirtual()))), info.PtesPerTable)
}

// levelIndex returns the index into a level-`level` table that virt selects.
func levelIndex(virt mem.VirtAddr, level uint8) uint {
	shift := uint(12) + uint(level)*uint(info.IndexBits)
	return uint(uintptr(virt)>>shift) & (info.PtesPerTable - 1)
}

// isCanonical reports whether virt's unused high bits are a sign-extension
// of bit (Bits-1), as required for every virtual address actually used by
// the MMU.
func isCanonical(virt mem.VirtAddr) bool {
	shift := uint(64 - info.Bits)
	signed := int64(uintptr(virt)) << shift >> shift
	return uintptr(signed) == uintptr(virt)
}

// MapPages inserts a translation of size bytes starting at virt, mapping to
// phys, using page_size-sized entries (silently downgraded to 2 MiB if
// size==Size1GiB and the CPU lacks gigapage support), with the given
// protection. virt must be canonical; virt, phys and size must all be
// aligned to the (possibly downgraded) page size. Re-mapping an identical
// translation is an idempotent no-op; mapping over a different physical
// address returns *AlreadyMappedError. Attempting to map through an
// existing huge-page entry, or to place a huge page where an intermediate
// table is already present, is a fatal invariant violation.
func (h *Hat) MapPages(virt mem.VirtAddr, phys mem.PhysAddr, size uintptr, ps PageSize, prot Prot) error {
	ps = info.downgrade(ps)
	pageBytes := info.PageSizeBytes[ps]
	leafLevel := levelForPageSize(ps)

	if !isCanonical(virt) {
		panic(errNonCanonicalAddr)
	}
	if uintptr(virt)%pageBytes != 0 || uintptr(phys)%pageBytes != 0 || size%pageBytes != 0 {
		panic(errMisaligned)
	}

	leafFlags := info.Prot.Resolve(prot) | info.PteFlagsForLevel[leafLevel] | info.PresentBit

	h.lock.Acquire()
	defer h.lock.Release()

	numPages := size / pageBytes
	for numPages > 0 {
		table, err := h.walkToLevel(virt, leafLevel, true)
		if err != nil {
			return err
		}

		entryIndex := levelIndex(virt, leafLevel)
		batch := uintptr(info.PtesPerTable - entryIndex)
		if batch > numPages {
			batch = numPages
		}

		for i := uintptr(0); i < batch; i++ {
			idx := entryIndex + uint(i)
			newEntry := NewPte(phys+mem.PhysAddr(i*pageBytes), leafFlags)
			cur := table[idx]

			switch {
			case !cur.Present():
				table[idx] = newEntry
				h.mappedPages[leafLevel]++
			case leafLevel > 0 && !cur.Huge():
				panic(errHugePageOverlapsTable)
			case cur != newEntry:
				return &AlreadyMappedError{Prev: cur.Addr()}
			default:
				// Identical remap: idempotent no-op.
			}
		}

		virt = virt.Add(batch * pageBytes)
		phys = phys.Add(batch * pageBytes)
		numPages -= batch
	}

	return nil
}

// UnmapPages clears a translation previously installed by MapPages. It does
// not free now-empty intermediate tables and does not flush the TLB; the
// caller is responsible for invalidation.
func (h *Hat) UnmapPages(virt mem.VirtAddr, size uintptr, ps PageSize) error {
	ps = info.downgrade(ps)
	pageBytes := info.PageSizeBytes[ps]
	leafLevel := levelForPageSize(ps)

	h.lock.Acquire()
	defer h.lock.Release()

	numPages := size / pageBytes
	for numPages > 0 {
		table, err := h.walkToLevel(virt, leafLevel, false)
		if err != nil {
			return err
		}
		if table == nil {
			// Nothing mapped along this path; nothing to clear.
			virt = virt.Add(pageBytes)
			numPages--
			continue
		}

		entryIndex := levelIndex(virt, leafLevel)
		batch := uintptr(info.PtesPerTable - entryIndex)
		if batch > numPages {
			batch = numPages
		}

		for i := uintptr(0); i < batch; i++ {
			idx := entryIndex + uint(i)
			if table[idx].Present() {
				h.mappedPages[leafLevel]--
			}
			table[idx] = Pte(0)
		}

		virt = virt.Add(batch * pageBytes)
		numPages -= batch
	}

	return nil
}

// walkToLevel descends from the top-level table to the table that directly
// contains leafLevel's entries, allocating intermediate tables along the
// way when alloc is true. With alloc false (the unmap path), an absent
// intermediate entry yields a nil table rather than an allocation.
func (h *Hat) walkToLevel(virt mem.VirtAddr, leafLevel uint8, alloc bool) ([]Pte, error) {
	table := tableAt(h.topLevel)

	for level := info.MaxLevel; level > leafLevel; level-- {
		idx := levelIndex(virt, level)
		entry := table[idx]

		switch {
		case !entry.Present():
			if !alloc {
				return nil, nil
			}
			child, err := frameAllocFn()
			if err != nil {
				panic(err)
			}
			entry = NewPte(child, info.ParentFlags|info.PresentBit)
			table[idx] = entry
		case entry.Huge():
			panic(errTableOverlapsHugePage)
		}

		table = tableAt(entry.Addr())
	}

	return table, nil
}

// SwitchTo loads this Hat's cached root value into the hardware MMU control
// register, making it the active address space on the current CPU.
func (h *Hat) SwitchTo() {
	archSwitchTo(h.root)
}
